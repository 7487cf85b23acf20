package core

// validation.go provides row-level validation of archive tables without
// writing anything.
//
// Validation happens at two levels:
//  1. Header validation: Ensures required columns are present
//  2. Row validation: Checks each cell against its FieldSpec (type, format, enum values)
//
// Unlike FieldReader, which stops at the first problem, the RowValidator
// returns every error of a row so a preview can show them all at once.

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation error for a field.
type ValidationError struct {
	Field   string `json:"field"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// ValidationResult contains the result of validating a row.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	Warnings []ValidationError `json:"warnings,omitempty"` // Optional cells that will be stored as NULL
}

// RowValidator validates rows against a table's field specifications.
type RowValidator struct {
	specs []FieldSpec
}

// NewRowValidator creates a validator for specs.
func NewRowValidator(specs []FieldSpec) *RowValidator {
	return &RowValidator{specs: specs}
}

// ValidateRow checks every declared field of row and returns all problems.
func (v *RowValidator) ValidateRow(row Row) ValidationResult {
	result := ValidationResult{Valid: true}
	add := func(e ValidationError) {
		result.Valid = false
		result.Errors = append(result.Errors, e)
	}

	for _, spec := range v.specs {
		cell, present := row.Get(spec.Name)
		if !present {
			if spec.Required {
				add(ValidationError{Field: spec.Name, Message: "missing required column"})
			}
			continue
		}

		raw := CleanCell(cell.Raw)
		if spec.Normalizer != nil && raw != "" {
			raw = spec.Normalizer(raw)
		}
		if raw == "" {
			if spec.Required {
				add(ValidationError{Field: spec.Name, Message: "required field is empty"})
			}
			continue
		}

		if err := ValidateCell(raw, spec); err != nil {
			e := ValidationError{Field: spec.Name, Value: raw, Message: err.Error()}
			if spec.Required {
				add(e)
			} else {
				result.Warnings = append(result.Warnings, e)
			}
		}
	}

	return result
}

// ValidateCell validates a single cell value against its FieldSpec.
// Returns nil if valid, or an error describing the problem.
func ValidateCell(value string, spec FieldSpec) error {
	if value == "" {
		return nil
	}

	switch spec.Type {
	case FieldNumeric:
		if _, err := ParseDecimal(value); err != nil {
			return fmt.Errorf("invalid number format")
		}
	case FieldInt:
		if _, err := ParseInt(value); err != nil {
			return fmt.Errorf("must be a whole number")
		}
	case FieldDate:
		if _, err := ParseDate(value); err != nil {
			return fmt.Errorf("invalid date format (use YYYY-MM-DD or DD/MM/YYYY)")
		}
	case FieldTime:
		if _, err := ParseTime(value); err != nil {
			return fmt.Errorf("invalid timestamp format (use RFC 3339 or DD/MM/YYYY HH:MM:SS)")
		}
	case FieldBool:
		if _, err := ParseBool(value); err != nil {
			return fmt.Errorf("must be yes/no, true/false, or 1/0")
		}
	case FieldEnum:
		if len(spec.EnumValues) > 0 && !slices.Contains(spec.EnumValues, strings.ToLower(value)) {
			return fmt.Errorf("value must be one of: %s", strings.Join(spec.EnumValues, ", "))
		}
	}
	return nil
}

// ValidateHeaders checks that the table has every required column.
func ValidateHeaders(t *Table, specs []FieldSpec) error {
	if missing := t.Missing(specs); len(missing) > 0 {
		return fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

// fieldTypeName returns a human-readable name for a field type.
func fieldTypeName(ft FieldType) string {
	switch ft {
	case FieldText:
		return "text"
	case FieldEnum:
		return "enum"
	case FieldDate:
		return "date"
	case FieldTime:
		return "timestamp"
	case FieldNumeric:
		return "number"
	case FieldInt:
		return "integer"
	case FieldBool:
		return "bool"
	case FieldJSON:
		return "json"
	default:
		return "value"
	}
}
