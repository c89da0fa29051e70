// Package errs defines the failure kinds surfaced by every engine operation.
// Callers match kinds with errors.Is against the Err* sentinels.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an engine failure.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindValidation
	KindState
	KindOracleInvalid
	KindOracleUnavailable
	KindArithmetic
	KindDivisionByZero
	KindCoverage
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindState:
		return "StateError"
	case KindOracleInvalid:
		return "OracleInvalid"
	case KindOracleUnavailable:
		return "OracleUnavailable"
	case KindArithmetic:
		return "ArithmeticError"
	case KindDivisionByZero:
		return "DivisionByZero"
	case KindCoverage:
		return "CoverageViolation"
	case KindUnauthorized:
		return "Unauthorized"
	default:
		return "Unknown"
	}
}

// parent returns the broader kind a kind also matches.
// DivisionByZero is an ArithmeticError.
func (k Kind) parent() Kind {
	if k == KindDivisionByZero {
		return KindArithmetic
	}
	return KindUnknown
}

// Error is a classified failure. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.msg(), e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.msg())
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.msg(), e.Err)
	default:
		return e.msg()
	}
}

func (e *Error) msg() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by kind. A sentinel is an *Error with no Op and no Msg.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Op != "" || t.Msg != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind || (t.Kind != KindUnknown && t.Kind == e.Kind.parent())
}

var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrState             = &Error{Kind: KindState}
	ErrOracleInvalid     = &Error{Kind: KindOracleInvalid}
	ErrOracleUnavailable = &Error{Kind: KindOracleUnavailable}
	ErrArithmetic        = &Error{Kind: KindArithmetic}
	ErrDivisionByZero    = &Error{Kind: KindDivisionByZero}
	ErrCoverage          = &Error{Kind: KindCoverage}
	ErrUnauthorized      = &Error{Kind: KindUnauthorized}
)

func newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func Validation(op, format string, args ...any) *Error {
	return newf(KindValidation, op, format, args...)
}

func State(op, format string, args ...any) *Error {
	return newf(KindState, op, format, args...)
}

func OracleInvalid(op, format string, args ...any) *Error {
	return newf(KindOracleInvalid, op, format, args...)
}

func OracleUnavailable(op, format string, args ...any) *Error {
	return newf(KindOracleUnavailable, op, format, args...)
}

func Arithmetic(op, format string, args ...any) *Error {
	return newf(KindArithmetic, op, format, args...)
}

func DivisionByZero(op string) *Error {
	return &Error{Kind: KindDivisionByZero, Op: op, Msg: "division by zero"}
}

func Coverage(op, format string, args ...any) *Error {
	return newf(KindCoverage, op, format, args...)
}

func Unauthorized(op, format string, args ...any) *Error {
	return newf(KindUnauthorized, op, format, args...)
}

// Wrap classifies err under kind. An err that already carries a kind keeps it.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
