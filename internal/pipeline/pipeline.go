package pipeline

import (
	"context"
	"log/slog"

	"feedfunnel/internal"
	"feedfunnel/internal/config"
	"feedfunnel/internal/dedup"
	"feedfunnel/internal/metrics"
	"feedfunnel/internal/rules"
)

type Evaluator interface {
	Evaluate(ctx context.Context, record internal.ProductRecord) (internal.ProfitabilityResult, error)
}

// Pipeline runs records through brand, category, dedup and profitability in
// that order. It is built once per run from a rules snapshot and never
// changes afterwards.
type Pipeline struct {
	brands     *rules.BrandGate
	categories *rules.CategoryGate
	dedup      *dedup.Gate
	evaluator  Evaluator
	sinks      Sinks
	logger     *slog.Logger
	workers    int
}

// New wires a pipeline. fingerprints is ignored when funnel.DedupEnabled is
// false; a nil store with dedup enabled keeps fingerprints in memory.
func New(snapshot *rules.Snapshot, funnel config.Funnel, fingerprints dedup.Store, evaluator Evaluator, sinks Sinks, logger *slog.Logger) *Pipeline {
	p := &Pipeline{
		brands:     rules.NewBrandGate(snapshot),
		categories: rules.NewCategoryGate(snapshot, funnel.TieBreak),
		evaluator:  evaluator,
		sinks:      sinks.withDefaults(),
		logger:     logger,
		workers:    1,
	}
	if funnel.DedupEnabled {
		if fingerprints == nil {
			fingerprints = dedup.NewMemoryStore()
		}
		p.dedup = dedup.NewGate(fingerprints)
	}
	return p
}

func (p *Pipeline) WithWorkers(n int) *Pipeline {
	if n < 1 {
		n = 1
	}
	p.workers = n
	return p
}

// Process drives one record to a terminal state. Per-record failures end in
// StateErrored. Cancellation leaves a record non-terminal only before the
// dedup gate has registered it.
func (p *Pipeline) Process(ctx context.Context, batchID string, record internal.ProductRecord) Decision {
	d := Decision{Record: record, State: StateReceived}
	if err := ctx.Err(); err != nil {
		d.Err = err
		return d
	}

	if !p.brands.Admit(record) {
		return p.reject(d, OutcomeBrandRejected)
	}
	d.State = StateBrandChecked

	if !p.categories.Admit(record) {
		return p.reject(d, OutcomeCategoryRejected)
	}
	d.State = StateCategoryChecked

	if p.dedup != nil {
		outcome, key, err := p.dedup.CheckAndRegister(ctx, record)
		d.DedupKey = key
		if err != nil {
			return p.fail(ctx, batchID, d, "dedup", err)
		}
		if outcome == internal.DedupDuplicate {
			return p.reject(d, OutcomeDuplicate)
		}
		// the fingerprint is now registered; the record must reach a
		// terminal state even if the run is cancelled
		ctx = context.WithoutCancel(ctx)
	}
	d.State = StateDedupChecked

	result, err := p.evaluator.Evaluate(ctx, record)
	if err != nil {
		return p.fail(ctx, batchID, d, "profitability", err)
	}
	d.State = StateProfitabilityChecked
	d.Result = &result

	if result.IsProfitable {
		if err := p.sinks.Importer.ImportAccepted(ctx, batchID, record, result); err != nil {
			return p.fail(ctx, batchID, d, "import", err)
		}
		d.State, d.Outcome = StateAccepted, OutcomeProfitable
		return d
	}

	if err := p.sinks.Reviews.QueueReview(ctx, batchID, record, result); err != nil {
		return p.fail(ctx, batchID, d, "review", err)
	}
	d.State, d.Outcome = StateReviewQueued, OutcomeUnprofitable
	return d
}

func (p *Pipeline) reject(d Decision, o Outcome) Decision {
	d.State, d.Outcome = StateRejected, o
	return d
}

func (p *Pipeline) fail(ctx context.Context, batchID string, d Decision, stage string, err error) Decision {
	d.Stage, d.Err = stage, err
	if ctx.Err() != nil {
		return d
	}
	d.State, d.Outcome = StateErrored, OutcomeError

	p.logger.Warn("record errored",
		"batch_id", batchID, "external_id", d.Record.ExternalID, "line", d.Record.LineNo, "stage", stage, "err", err)
	if logErr := p.sinks.Errors.LogError(ctx, batchID, d.Record, stage, err.Error()); logErr != nil {
		p.logger.Error("error log write failed", "batch_id", batchID, "external_id", d.Record.ExternalID, "err", logErr)
	}
	return d
}

// Run processes a batch and returns its statistics. On cancellation the
// returned stats cover exactly the records that reached a terminal state and
// the context error is returned alongside.
func (p *Pipeline) Run(ctx context.Context, batchID string, records []internal.ProductRecord) (internal.ImportBatchStats, error) {
	acc := NewAccumulator()
	pool := newWorkerPool(p.workers)

	for _, record := range records {
		if !pool.Submit(ctx, func() {
			d := p.Process(ctx, batchID, record)
			if !d.Terminal() {
				return
			}
			_ = acc.Record(d.Outcome)
			metrics.RecordDecision(string(d.State), string(d.Outcome))
		}) {
			break
		}
	}
	pool.Wait()

	return acc.Snapshot(), ctx.Err()
}
