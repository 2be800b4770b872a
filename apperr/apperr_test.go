package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOfWrapped(t *testing.T) {
	base := E(NotFound, "ledger.AddPayment", "loan l1 not found")
	wrapped := fmt.Errorf("handler: %w", base)

	if got := KindOf(wrapped); got != NotFound {
		t.Fatalf("KindOf=%v want %v", got, NotFound)
	}
	if !errors.Is(wrapped, ErrNotFound) {
		t.Fatalf("errors.Is(ErrNotFound) = false")
	}
	if errors.Is(wrapped, ErrConflict) {
		t.Fatalf("errors.Is(ErrConflict) = true")
	}
}

func TestKindOfForeignIsInternal(t *testing.T) {
	if got := KindOf(context.DeadlineExceeded); got != Internal {
		t.Fatalf("KindOf=%v want internal", got)
	}
	if got := KindOf(nil); got != Internal {
		t.Fatalf("KindOf(nil)=%v want internal", got)
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(BackendUnavailable, "docstore.Get", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("cause lost")
	}
	if err.Error() != "docstore.Get: connection refused" {
		t.Fatalf("message=%q", err.Error())
	}
}
