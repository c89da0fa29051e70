package oracle

import (
	"time"

	"GoldLedger/internal/errs"

	"github.com/holiman/uint256"
)

// Quote is an accepted price and the source time it was observed at.
type Quote struct {
	Price     *uint256.Int `json:"price"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Result is either a validated quote or an invalid outcome. An invalid result
// may still carry the last accepted quote, flagged stale.
type Result struct {
	quote  *Quote
	reason error
}

func valid(q Quote) Result {
	return Result{quote: &q}
}

func invalid(cached *Quote, reason error) Result {
	r := Result{reason: reason}
	if cached != nil {
		c := *cached
		r.quote = &c
	}
	return r
}

func (r Result) Valid() bool { return r.reason == nil && r.quote != nil }

// Quote returns the validated quote, or OracleInvalid.
func (r Result) Quote() (Quote, error) {
	if r.Valid() {
		return *r.quote, nil
	}
	return Quote{}, r.Err()
}

// Cached returns the last accepted quote regardless of validity.
func (r Result) Cached() (Quote, bool) {
	if r.quote == nil {
		return Quote{}, false
	}
	return *r.quote, true
}

// Err is nil for a valid result.
func (r Result) Err() error {
	if r.Valid() {
		return nil
	}
	if r.reason == nil {
		return errs.OracleInvalid("quote", "no accepted price")
	}
	return r.reason
}
