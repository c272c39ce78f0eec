package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateTypeKey(t *testing.T) {
	t.Parallel()

	if err := ValidateTypeKey("promotionLetter"); err != nil {
		t.Fatalf("ValidateTypeKey() error = %v", err)
	}
	for _, bad := range []string{"", "  ", "9starts_with_digit", "has space", "has-dash", strings.Repeat("a", MaxTypeKeyLength+1)} {
		if err := ValidateTypeKey(bad); err == nil {
			t.Fatalf("expected error for type key %q", bad)
		}
	}
}

func TestFieldDefinitionValidate(t *testing.T) {
	t.Parallel()

	field := FieldDefinition{FieldKey: "employeeName", MinLength: 1, MaxLength: 120}
	if err := field.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	tests := []struct {
		name  string
		field FieldDefinition
	}{
		{"empty key", FieldDefinition{FieldKey: ""}},
		{"bad key syntax", FieldDefinition{FieldKey: "field key"}},
		{"min above max", FieldDefinition{FieldKey: "f", MinLength: 10, MaxLength: 5}},
		{"max above canonical width", FieldDefinition{FieldKey: "f", MaxLength: MaxFieldValueLength + 1}},
		{"broken pattern", FieldDefinition{FieldKey: "f", Pattern: "("}},
		{"oversized default", FieldDefinition{FieldKey: "f", DefaultValue: strings.Repeat("x", MaxFieldValueLength+1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := tt.field.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestFieldDefinitionCheckValue(t *testing.T) {
	t.Parallel()

	field := FieldDefinition{FieldKey: "grade", MinLength: 2, MaxLength: 4, Pattern: `^[A-Z]+$`}

	if err := field.CheckValue("ABC"); err != nil {
		t.Fatalf("CheckValue() error = %v", err)
	}
	// Empty values pass the rule; required-ness is the pipeline's concern.
	if err := field.CheckValue(""); err != nil {
		t.Fatalf("CheckValue(empty) error = %v", err)
	}
	if err := field.CheckValue("A"); err == nil {
		t.Fatal("expected min length error")
	}
	if err := field.CheckValue("ABCDE"); err == nil {
		t.Fatal("expected max length error")
	}
	if err := field.CheckValue("abc"); err == nil {
		t.Fatal("expected pattern error")
	}
	if err := field.CheckValue(strings.Repeat("x", MaxFieldValueLength+1)); err == nil {
		t.Fatal("expected canonical width error")
	}
}

func TestValidateFieldSetRejectsDuplicates(t *testing.T) {
	t.Parallel()

	fields := []FieldDefinition{
		{FieldKey: "employeeName"},
		{FieldKey: "EMPLOYEENAME"},
	}
	err := ValidateFieldSet(fields)
	if !errors.Is(err, ErrDuplicateFieldKey) {
		t.Fatalf("error = %v, want ErrDuplicateFieldKey", err)
	}
}
