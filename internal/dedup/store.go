package dedup

import (
	"context"
	"sync"
	"time"

	"feedfunnel/internal"
)

// Store persists fingerprints. Register must be atomic per key: of two
// concurrent first sightings exactly one reports isNew.
type Store interface {
	Find(ctx context.Context, key string) (*internal.ProductFingerprint, error)
	Upsert(ctx context.Context, fp internal.ProductFingerprint) error
	Register(ctx context.Context, key string, now time.Time) (isNew bool, err error)
	Archive(ctx context.Context, key string) (bool, error)
}

type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]internal.ProductFingerprint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: map[string]internal.ProductFingerprint{}}
}

func (s *MemoryStore) Find(_ context.Context, key string) (*internal.ProductFingerprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fp, ok := s.rows[key]
	if !ok {
		return nil, nil
	}
	return &fp, nil
}

func (s *MemoryStore) Upsert(_ context.Context, fp internal.ProductFingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.rows[fp.DedupKey]; ok {
		fp.FirstSeenAt = existing.FirstSeenAt
	}
	s.rows[fp.DedupKey] = fp
	return nil
}

func (s *MemoryStore) Register(_ context.Context, key string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fp, ok := s.rows[key]
	if !ok {
		s.rows[key] = internal.ProductFingerprint{DedupKey: key, FirstSeenAt: now, LastSeenAt: now, Status: internal.FingerprintActive}
		return true, nil
	}
	isNew := fp.Status == internal.FingerprintArchived
	fp.LastSeenAt = now
	fp.Status = internal.FingerprintActive
	s.rows[key] = fp
	return isNew, nil
}

func (s *MemoryStore) Archive(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fp, ok := s.rows[key]
	if !ok {
		return false, nil
	}
	fp.Status = internal.FingerprintArchived
	s.rows[key] = fp
	return true, nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}
