package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorEnvelopeMessage(t *testing.T) {
	err := NewConflictError(ConflictLockedByOther, "proposal 7 is locked by bob")
	want := "CONFLICT/LOCKED_BY_OTHER: proposal 7 is locked by bob"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	nf := NewNotFoundError("lock missing")
	if nf.Error() != "NOT_FOUND: lock missing" {
		t.Errorf("Error() = %q", nf.Error())
	}
}

func TestCodeOfUnwrapsEnvelope(t *testing.T) {
	err := fmt.Errorf("refresh lock: %w", NewNotFoundError("lock gone"))
	if CodeOf(err) != ErrNotFound {
		t.Errorf("CodeOf(wrapped) = %q, want %q", CodeOf(err), ErrNotFound)
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Error("CodeOf(plain error) should be empty")
	}
}

func TestReasonOf(t *testing.T) {
	err := NewConflictError(ConflictVersionMismatch, "stale view")
	if ReasonOf(err) != ConflictVersionMismatch {
		t.Errorf("ReasonOf = %q, want %q", ReasonOf(err), ConflictVersionMismatch)
	}
	if ReasonOf(NewForbiddenError("nope")) != "" {
		t.Error("ReasonOf(forbidden) should be empty")
	}
}

func TestInvalidTransitionNamesBothStatuses(t *testing.T) {
	err := NewInvalidTransitionError(StatusSent, StatusDraft)
	if CodeOf(err) != ErrInvalidTransition {
		t.Fatalf("CodeOf = %q", CodeOf(err))
	}
	want := `no transition from "sent" to "draft"`
	if err.Message != want {
		t.Errorf("Message = %q, want %q", err.Message, want)
	}
}
