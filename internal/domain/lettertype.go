package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Field and value limits for provisioned storage. Every provisioned column
// is a varchar(MaxFieldValueLength); the width is enforced here, before any
// DDL or row write reaches the store.
const (
	MaxTypeKeyLength    = 64
	MaxFieldKeyLength   = 64
	MaxFieldValueLength = 1000
)

var keyPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// LetterType is a user-defined document category with its own field schema.
// Once referenced by a generated document it is only ever extended (new
// fields) or deactivated, never physically removed.
type LetterType struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	TypeKey     string `gorm:"type:varchar(64);not null"`
	DisplayName string `gorm:"type:varchar(255);not null"`
	Description string `gorm:"type:text"`
	IsActive    bool   `gorm:"not null;default:true"`
	Fields      []FieldDefinition
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FieldDefinition is a single named input slot belonging to a letter type.
// FieldKey is immutable after creation: renaming would orphan the provisioned
// column and break historical documents.
type FieldDefinition struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	LetterTypeID string `gorm:"type:uuid;not null"`
	FieldKey     string `gorm:"type:varchar(64);not null"`
	DisplayName  string `gorm:"type:varchar(255)"`
	DisplayOrder int    `gorm:"not null;default:0"`
	IsRequired   bool   `gorm:"not null;default:false"`
	DefaultValue string `gorm:"type:varchar(1000)"`
	MinLength    int    `gorm:"not null;default:0"`
	MaxLength    int    `gorm:"not null;default:0"`
	Pattern      string `gorm:"type:varchar(255)"`
	CreatedAt    time.Time
}

func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func ValidateTypeKey(key string) error {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return fmt.Errorf("%w: typeKey is required", ErrValidation)
	}
	if len(trimmed) > MaxTypeKeyLength {
		return fmt.Errorf("%w: typeKey exceeds %d characters", ErrValidation, MaxTypeKeyLength)
	}
	if !keyPattern.MatchString(trimmed) {
		return fmt.Errorf("%w: typeKey %q must match %s", ErrValidation, key, keyPattern.String())
	}
	return nil
}

func (f *FieldDefinition) Validate() error {
	trimmed := strings.TrimSpace(f.FieldKey)
	if trimmed == "" {
		return fmt.Errorf("%w: fieldKey is required", ErrValidation)
	}
	if len(trimmed) > MaxFieldKeyLength {
		return fmt.Errorf("%w: fieldKey %q exceeds %d characters", ErrValidation, f.FieldKey, MaxFieldKeyLength)
	}
	if !keyPattern.MatchString(trimmed) {
		return fmt.Errorf("%w: fieldKey %q must match %s", ErrValidation, f.FieldKey, keyPattern.String())
	}
	if f.MinLength < 0 || f.MaxLength < 0 {
		return fmt.Errorf("%w: field %q length bounds must be non-negative", ErrValidation, f.FieldKey)
	}
	if f.MaxLength > MaxFieldValueLength {
		return fmt.Errorf("%w: field %q max length exceeds %d", ErrValidation, f.FieldKey, MaxFieldValueLength)
	}
	if f.MaxLength > 0 && f.MinLength > f.MaxLength {
		return fmt.Errorf("%w: field %q min length exceeds max length", ErrValidation, f.FieldKey)
	}
	if f.Pattern != "" {
		if _, err := regexp.Compile(f.Pattern); err != nil {
			return fmt.Errorf("%w: field %q has invalid pattern: %v", ErrValidation, f.FieldKey, err)
		}
	}
	if len([]rune(f.DefaultValue)) > MaxFieldValueLength {
		return fmt.Errorf("%w: field %q default value exceeds %d characters", ErrValidation, f.FieldKey, MaxFieldValueLength)
	}
	return nil
}

// CheckValue applies the field's validation rule to a resolved value.
// Required-ness is checked by the document pipeline after the merge, not here.
func (f *FieldDefinition) CheckValue(value string) error {
	length := len([]rune(value))
	if length > MaxFieldValueLength {
		return fmt.Errorf("%w: field %q value exceeds %d characters", ErrValidation, f.FieldKey, MaxFieldValueLength)
	}
	if value == "" {
		return nil
	}
	if f.MinLength > 0 && length < f.MinLength {
		return fmt.Errorf("%w: field %q value shorter than %d characters", ErrValidation, f.FieldKey, f.MinLength)
	}
	if f.MaxLength > 0 && length > f.MaxLength {
		return fmt.Errorf("%w: field %q value exceeds %d characters", ErrValidation, f.FieldKey, f.MaxLength)
	}
	if f.Pattern != "" {
		re, err := regexp.Compile(f.Pattern)
		if err != nil {
			return fmt.Errorf("%w: field %q has invalid pattern: %v", ErrValidation, f.FieldKey, err)
		}
		if !re.MatchString(value) {
			return fmt.Errorf("%w: field %q value does not match pattern %s", ErrValidation, f.FieldKey, f.Pattern)
		}
	}
	return nil
}

// ValidateFieldSet checks a proposed field collection for a letter type:
// each field valid on its own, no duplicate keys within the set.
func ValidateFieldSet(fields []FieldDefinition) error {
	seen := make(map[string]struct{}, len(fields))
	for i := range fields {
		if err := fields[i].Validate(); err != nil {
			return err
		}
		key := NormalizeKey(fields[i].FieldKey)
		if _, ok := seen[key]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateFieldKey, fields[i].FieldKey)
		}
		seen[key] = struct{}{}
	}
	return nil
}
