package pipeline

import "feedfunnel/internal"

type State string

const (
	StateReceived             State = "received"
	StateBrandChecked         State = "brand_checked"
	StateCategoryChecked      State = "category_checked"
	StateDedupChecked         State = "dedup_checked"
	StateProfitabilityChecked State = "profitability_checked"
	StateAccepted             State = "accepted"
	StateRejected             State = "rejected"
	StateReviewQueued         State = "review_queued"
	StateErrored              State = "errored"
)

func (s State) Terminal() bool {
	switch s {
	case StateAccepted, StateRejected, StateReviewQueued, StateErrored:
		return true
	default:
		return false
	}
}

// Outcome names the statistics bucket a terminal record lands in.
type Outcome string

const (
	OutcomeBrandRejected    Outcome = "brand_rejected"
	OutcomeCategoryRejected Outcome = "category_rejected"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeProfitable       Outcome = "profitable"
	OutcomeUnprofitable     Outcome = "unprofitable"
	OutcomeError            Outcome = "errors"
)

// Decision is what Process reports for one record. A record interrupted by
// cancellation keeps the last state it reached and carries the context error.
type Decision struct {
	Record   internal.ProductRecord
	State    State
	Outcome  Outcome
	Stage    string
	DedupKey string
	Result   *internal.ProfitabilityResult
	Err      error
}

func (d Decision) Terminal() bool { return d.State.Terminal() }
