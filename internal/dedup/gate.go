package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"feedfunnel/internal"
)

type Gate struct {
	store Store
	now   func() time.Time
	locks keyLocks
}

func NewGate(store Store) *Gate {
	return &Gate{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock replaces the time source; used by tests and replays.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// CheckAndRegister records the sighting and reports whether the product was
// seen before. The fingerprint is written on both outcomes. An archived
// fingerprint is reactivated and reported as new.
func (g *Gate) CheckAndRegister(ctx context.Context, record internal.ProductRecord) (internal.DedupOutcome, string, error) {
	key := Key(record)
	if key == "||" {
		return "", key, &internal.ValidationError{Field: "dedup_key", Msg: "record has neither EAN nor brand/model/size"}
	}

	unlock := g.locks.lock(key)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return "", key, err
	}
	isNew, err := g.store.Register(ctx, key, g.now())
	if err != nil {
		return "", key, fmt.Errorf("register fingerprint %s: %w", key, err)
	}
	if isNew {
		return internal.DedupNew, key, nil
	}
	return internal.DedupDuplicate, key, nil
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

func (k *keyLocks) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = map[string]*keyLock{}
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
