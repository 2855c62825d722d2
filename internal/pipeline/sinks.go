package pipeline

import (
	"context"

	"feedfunnel/internal"
)

// CatalogImporter receives accepted records as import requests.
type CatalogImporter interface {
	ImportAccepted(ctx context.Context, batchID string, record internal.ProductRecord, result internal.ProfitabilityResult) error
}

// ReviewWriter receives records that passed every gate but missed the margin
// threshold.
type ReviewWriter interface {
	QueueReview(ctx context.Context, batchID string, record internal.ProductRecord, result internal.ProfitabilityResult) error
}

type ErrorLogger interface {
	LogError(ctx context.Context, batchID string, record internal.ProductRecord, stage, message string) error
}

type Sinks struct {
	Importer CatalogImporter
	Reviews  ReviewWriter
	Errors   ErrorLogger
}

// Discard drops everything handed to it.
type Discard struct{}

func (Discard) ImportAccepted(context.Context, string, internal.ProductRecord, internal.ProfitabilityResult) error {
	return nil
}

func (Discard) QueueReview(context.Context, string, internal.ProductRecord, internal.ProfitabilityResult) error {
	return nil
}

func (Discard) LogError(context.Context, string, internal.ProductRecord, string, string) error {
	return nil
}

func (s Sinks) withDefaults() Sinks {
	if s.Importer == nil {
		s.Importer = Discard{}
	}
	if s.Reviews == nil {
		s.Reviews = Discard{}
	}
	if s.Errors == nil {
		s.Errors = Discard{}
	}
	return s
}
