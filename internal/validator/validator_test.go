package validator

import (
	"strings"
	"testing"
)

type record struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required,oneof=student teacher"`
}

func TestStructValid(t *testing.T) {
	if err := Struct(record{Email: "s@school.edu", Role: "student"}); err != nil {
		t.Fatalf("expected valid record, got %v", err)
	}
}

func TestStructReportsJSONFieldNames(t *testing.T) {
	err := Struct(record{Email: "not-an-email", Role: "janitor"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "email") || !strings.Contains(msg, "role") {
		t.Fatalf("expected both json field names in %q", msg)
	}
}
