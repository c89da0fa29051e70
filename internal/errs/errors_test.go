package errs_test

import (
	"errors"
	"fmt"
	"testing"

	"GoldLedger/internal/errs"

	"github.com/stretchr/testify/assert"
)

func TestKindsAreDistinguishable(t *testing.T) {
	all := []error{
		errs.ErrValidation, errs.ErrState, errs.ErrOracleInvalid, errs.ErrOracleUnavailable,
		errs.ErrArithmetic, errs.ErrCoverage, errs.ErrUnauthorized,
	}
	samples := []error{
		errs.Validation("deposit", "amount must be positive"),
		errs.State("bid", "auction settled"),
		errs.OracleInvalid("read", "stale"),
		errs.OracleUnavailable("value", "unit price is zero"),
		errs.Arithmetic("add", "overflow"),
		errs.Coverage("withdraw", "ratio breached"),
		errs.Unauthorized("cancel", "missing role"),
	}
	for i, err := range samples {
		for j, sentinel := range all {
			assert.Equal(t, i == j, errors.Is(err, sentinel), "%v vs %v", err, sentinel)
		}
	}
}

func TestWrapKeepsExistingKind(t *testing.T) {
	inner := errs.Coverage("pay claim", "ratio breached")
	wrapped := fmt.Errorf("settle: %w", inner)

	err := errs.Wrap(errs.KindState, "settle", wrapped)
	assert.ErrorIs(t, err, errs.ErrCoverage)
	assert.NotErrorIs(t, err, errs.ErrState)
	assert.Equal(t, errs.KindCoverage, errs.KindOf(err))

	plain := errs.Wrap(errs.KindValidation, "transfer", errors.New("insufficient balance"))
	assert.ErrorIs(t, plain, errs.ErrValidation)
	assert.Equal(t, "transfer: ValidationError: insufficient balance", plain.Error())
}
