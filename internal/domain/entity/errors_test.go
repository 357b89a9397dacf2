package entity

import (
	"errors"
	"testing"
)

func TestValidationError_MatchesInvalidInput(t *testing.T) {
	src := &Source{}
	err := src.Validate()
	if err == nil {
		t.Fatal("expected validation error for empty source")
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v, want match for ErrInvalidInput", err)
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %T, want *ValidationError", err)
	}
	if verr.Field != "id" {
		t.Errorf("Field = %q, want id", verr.Field)
	}
}
