package sync

import (
	"errors"
	"fmt"
)

// Kind classifies orchestrator failures.
type Kind string

const (
	// KindValidation covers bad configuration or inputs. Nothing was mutated.
	KindValidation Kind = "validation"

	// KindFatal covers batch-level failures: backup, store open, store save.
	KindFatal Kind = "fatal"

	// KindRollbackFailed means the store could not be restored after a fatal
	// error and may be in an unknown state.
	KindRollbackFailed Kind = "rollback-failed"

	// KindCanceled means the batch was canceled before any mutation.
	KindCanceled Kind = "canceled"
)

// Sentinels matched by errors.Is against an *Error of the same kind.
var (
	ErrValidation     = errors.New("invalid sync configuration")
	ErrFatal          = errors.New("sync batch failed")
	ErrRollbackFailed = errors.New("rollback failed: store may be in an unknown state")
	ErrCanceled       = errors.New("sync canceled")
)

// Error is a classified orchestrator error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Kind == KindRollbackFailed {
		return fmt.Sprintf("%s: %v", ErrRollbackFailed, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrFatal:
		return e.Kind == KindFatal
	case ErrRollbackFailed:
		return e.Kind == KindRollbackFailed
	case ErrCanceled:
		return e.Kind == KindCanceled
	}
	return false
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

func validationErr(op string, err error) error {
	return &Error{Kind: KindValidation, Op: op, Err: err}
}

func fatalErr(op string, err error) error {
	return &Error{Kind: KindFatal, Op: op, Err: err}
}

func canceledErr(op string, err error) error {
	return &Error{Kind: KindCanceled, Op: op, Err: err}
}
