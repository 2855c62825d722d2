package pipeline

import (
	"fmt"
	"sync"

	"feedfunnel/internal"
)

// Accumulator counts terminal outcomes. Safe for concurrent use; every
// Snapshot satisfies TotalSeen == Terminal().
type Accumulator struct {
	mu    sync.Mutex
	stats internal.ImportBatchStats
}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Record increments exactly one bucket and the total.
func (a *Accumulator) Record(o Outcome) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch o {
	case OutcomeBrandRejected:
		a.stats.BrandRejected++
	case OutcomeCategoryRejected:
		a.stats.CategoryRejected++
	case OutcomeDuplicate:
		a.stats.Duplicate++
	case OutcomeProfitable:
		a.stats.Profitable++
	case OutcomeUnprofitable:
		a.stats.Unprofitable++
	case OutcomeError:
		a.stats.Errors++
	default:
		return fmt.Errorf("unknown outcome %q", o)
	}
	a.stats.TotalSeen++
	return nil
}

func (a *Accumulator) Snapshot() internal.ImportBatchStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// Buckets flattens a snapshot into metric labels.
func Buckets(s internal.ImportBatchStats) map[string]int {
	return map[string]int{
		"total_seen":                    s.TotalSeen,
		string(OutcomeBrandRejected):    s.BrandRejected,
		string(OutcomeCategoryRejected): s.CategoryRejected,
		string(OutcomeDuplicate):        s.Duplicate,
		string(OutcomeProfitable):       s.Profitable,
		string(OutcomeUnprofitable):     s.Unprofitable,
		string(OutcomeError):            s.Errors,
	}
}
