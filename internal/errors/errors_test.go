package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := New(NotFound, "script not found")
	if got := err.Error(); got != "[NOT_FOUND] script not found" {
		t.Errorf("unexpected error string: %q", got)
	}

	wrapped := Wrap(StoreFailure, "insert failed", fmt.Errorf("disk full"))
	if !strings.Contains(wrapped.Error(), "disk full") {
		t.Errorf("expected cause in message, got %q", wrapped.Error())
	}
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := Wrap(StoreFailure, "query failed", cause)

	if !stderrors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
}

func TestCodeOf(t *testing.T) {
	if CodeOf(New(NotAuthorized, "nope")) != NotAuthorized {
		t.Error("expected NOT_AUTHORIZED")
	}
	if CodeOf(fmt.Errorf("plain")) != Internal {
		t.Error("expected plain errors to map to INTERNAL_ERROR")
	}

	// Codes survive wrapping by callers
	outer := fmt.Errorf("while deleting: %w", New(NotFound, "gone"))
	if CodeOf(outer) != NotFound {
		t.Error("expected code to survive fmt.Errorf wrapping")
	}
}

func TestDuplicateConflictDetails(t *testing.T) {
	err := Duplicate("script-1", "Backup rotation")

	details, ok := err.Details.(ConflictDetails)
	if !ok {
		t.Fatalf("expected ConflictDetails, got %T", err.Details)
	}
	if details.ExistingID != "script-1" || details.ExistingTitle != "Backup rotation" {
		t.Errorf("unexpected details: %+v", details)
	}
	if !Is(err, DuplicateContent) {
		t.Error("expected DUPLICATE_CONTENT code")
	}
}

func TestValidationErrors(t *testing.T) {
	var v ValidationErrors
	if v.AsError() != nil {
		t.Error("empty validation set should produce nil error")
	}

	v.Add("title", "is required")
	v.Add("content", "is required")

	err := v.AsError()
	if err == nil {
		t.Fatal("expected an error")
	}
	if CodeOf(err) != ValidationFailed {
		t.Errorf("expected VALIDATION_FAILED, got %s", CodeOf(err))
	}
	if !strings.Contains(v.Error(), "title: is required") {
		t.Errorf("expected field detail in message, got %q", v.Error())
	}
}
