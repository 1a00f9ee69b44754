package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Is(t *testing.T) {
	cause := errors.New("disk full")
	tests := map[string]struct {
		err      error
		sentinel error
		kind     Kind
	}{
		"validation":      {validationErr("configure", cause), ErrValidation, KindValidation},
		"fatal":           {fatalErr("save store", cause), ErrFatal, KindFatal},
		"canceled":        {canceledErr("confirm", context.Canceled), ErrCanceled, KindCanceled},
		"rollback failed": {&Error{Kind: KindRollbackFailed, Op: "rollback", Err: cause}, ErrRollbackFailed, KindRollbackFailed},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			wrapped := fmt.Errorf("cli: %w", tt.err)
			if !errors.Is(wrapped, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", wrapped, tt.sentinel)
			}
			if KindOf(wrapped) != tt.kind {
				t.Errorf("KindOf() = %q, want %q", KindOf(wrapped), tt.kind)
			}
			for _, other := range []error{ErrValidation, ErrFatal, ErrCanceled, ErrRollbackFailed} {
				if other != tt.sentinel && errors.Is(tt.err, other) {
					t.Errorf("%s error should not match %v", tt.kind, other)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	err := canceledErr("scan", context.Canceled)
	if !errors.Is(err, context.Canceled) {
		t.Error("canceled error should unwrap to context.Canceled")
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("plain errors have no kind")
	}
}

func TestError_Message(t *testing.T) {
	err := &Error{Kind: KindRollbackFailed, Op: "rollback", Err: errors.New("permission denied")}
	if !strings.Contains(err.Error(), "unknown state") {
		t.Errorf("rollback failure message should warn about store state, got %q", err.Error())
	}
	if got := fatalErr("backup", errors.New("no space")).Error(); got != "backup: no space" {
		t.Errorf("Error() = %q", got)
	}
}
