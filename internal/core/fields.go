package core

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FieldError describes a cell that could not be coerced.
type FieldError struct {
	Field   string
	Value   string
	Problem string // "invalid number", "empty required field", ...
}

func (e *FieldError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s %q", e.Problem, e.Field)
	}
	return fmt.Sprintf("%s for %q: %q", e.Problem, e.Field, e.Value)
}

// FieldReader coerces the cells of one row according to the table's field
// specs. Required fields that are missing or do not parse record an error;
// optional ones come back as their zero or null value. Only the first error
// is kept, so a decoder can read every field and check Err once.
type FieldReader struct {
	row   Row
	specs map[string]FieldSpec
	err   error
}

// NewFieldReader returns a reader for row.
func NewFieldReader(row Row, specs []FieldSpec) *FieldReader {
	m := make(map[string]FieldSpec, len(specs))
	for _, s := range specs {
		m[NormalizeHeader(s.Name)] = s
	}
	return &FieldReader{row: row, specs: m}
}

// Err returns the first coercion error.
func (f *FieldReader) Err() error {
	return f.err
}

// Line returns the row's line number.
func (f *FieldReader) Line() int {
	return f.row.Line
}

func (f *FieldReader) fail(field, value, problem string) {
	if f.err == nil {
		f.err = &FieldError{Field: field, Value: value, Problem: problem}
	}
}

// cell returns the cleaned, normalized value. ok is false when the value is
// blank; a blank required field has been recorded as an error by then.
func (f *FieldReader) cell(name string) (value string, spec FieldSpec, ok bool) {
	spec, known := f.specs[NormalizeHeader(name)]
	if !known {
		spec = FieldSpec{Name: name}
	}

	v, present := f.row.Get(name)
	if !present {
		if spec.Required {
			f.fail(name, "", "missing required column")
		}
		return "", spec, false
	}

	s := CleanCell(v.Raw)
	if spec.Normalizer != nil {
		s = spec.Normalizer(s)
	}
	if s == "" {
		if spec.Required {
			f.fail(name, "", "empty required field")
		}
		return "", spec, false
	}
	return s, spec, true
}

// Text returns the cell as a string.
func (f *FieldReader) Text(name string) string {
	s, _, _ := f.cell(name)
	return s
}

// NullText returns the cell, or NULL when blank.
func (f *FieldReader) NullText(name string) sql.NullString {
	s, _, ok := f.cell(name)
	return sql.NullString{String: s, Valid: ok}
}

// Enum returns the lowercased cell if it is one of the field's EnumValues.
// An unknown value fails a required field and blanks an optional one.
func (f *FieldReader) Enum(name string) string {
	s, spec, ok := f.cell(name)
	if !ok {
		return ""
	}
	s = strings.ToLower(s)
	if len(spec.EnumValues) > 0 && !slices.Contains(spec.EnumValues, s) {
		if spec.Required {
			f.fail(name, s, "invalid enum value")
		}
		return ""
	}
	return s
}

// Decimal returns the cell as a number, or zero when blank.
func (f *FieldReader) Decimal(name string) decimal.Decimal {
	d := f.NullDecimal(name)
	return d.Decimal
}

// NullDecimal returns the cell as a number, or NULL when blank or, for an
// optional field, unparseable.
func (f *FieldReader) NullDecimal(name string) decimal.NullDecimal {
	s, spec, ok := f.cell(name)
	if !ok {
		return decimal.NullDecimal{}
	}
	d, err := ParseDecimal(s)
	if err != nil {
		if spec.Required {
			f.fail(name, s, "invalid number")
		}
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// Int returns the cell as a whole number, or zero when blank.
func (f *FieldReader) Int(name string) int64 {
	return f.NullInt(name).Int64
}

// NullInt returns the cell as a whole number, or NULL.
func (f *FieldReader) NullInt(name string) sql.NullInt64 {
	s, spec, ok := f.cell(name)
	if !ok {
		return sql.NullInt64{}
	}
	n, err := ParseInt(s)
	if err != nil {
		if spec.Required {
			f.fail(name, s, "invalid number")
		}
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: n, Valid: true}
}

// Time returns the cell as a UTC timestamp, or the zero time when blank.
func (f *FieldReader) Time(name string) time.Time {
	return f.NullTime(name).Time
}

// NullTime returns the cell as a UTC timestamp, or NULL.
func (f *FieldReader) NullTime(name string) sql.NullTime {
	s, spec, ok := f.cell(name)
	if !ok {
		return sql.NullTime{}
	}
	t, err := ParseTime(s)
	if err != nil {
		if spec.Required {
			f.fail(name, s, "invalid time")
		}
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// Date returns the cell as a date formatted YYYY-MM-DD, or "" when blank.
func (f *FieldReader) Date(name string) string {
	s, spec, ok := f.cell(name)
	if !ok {
		return ""
	}
	t, err := ParseDate(s)
	if err != nil {
		if spec.Required {
			f.fail(name, s, "invalid date")
		}
		return ""
	}
	return FormatDate(t)
}

// Bool returns the cell as a flag; blank is false.
func (f *FieldReader) Bool(name string) bool {
	s, spec, ok := f.cell(name)
	if !ok {
		return false
	}
	b, err := ParseBool(s)
	if err != nil {
		if spec.Required {
			f.fail(name, s, "invalid boolean")
		}
		return false
	}
	return b
}

// JSON returns the cell as JSON text. Cells that already hold JSON are
// compacted; any other non-blank cell is encoded as a JSON string.
func (f *FieldReader) JSON(name string) sql.NullString {
	s, _, ok := f.cell(name)
	if !ok {
		return sql.NullString{}
	}
	v, _ := f.row.Get(name)
	if v.IsJSON {
		out, err := json.Marshal(v.JSON)
		if err == nil {
			return sql.NullString{String: string(out), Valid: true}
		}
	}
	out, err := json.Marshal(s)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(out), Valid: true}
}

// List returns the cell as a list of strings. A JSON array is used as is;
// otherwise the cell is split on commas and semicolons.
func (f *FieldReader) List(name string) []string {
	s, _, ok := f.cell(name)
	if !ok {
		return nil
	}
	v, _ := f.row.Get(name)
	if arr, isArr := v.JSON.([]any); v.IsJSON && isArr {
		out := make([]string, 0, len(arr))
		for _, item := range arr {
			if str := strings.TrimSpace(fmt.Sprint(item)); str != "" {
				out = append(out, str)
			}
		}
		return out
	}

	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
