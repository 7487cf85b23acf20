package core

import (
	"strings"
	"testing"
)

func TestValidateCell(t *testing.T) {
	enum := FieldSpec{Name: "side", Type: FieldEnum, EnumValues: []string{"buy", "sell"}}

	tests := []struct {
		name    string
		value   string
		spec    FieldSpec
		wantErr bool
	}{
		{"empty is valid", "", FieldSpec{Type: FieldNumeric}, false},
		{"number", "1,234.5", FieldSpec{Type: FieldNumeric}, false},
		{"bad number", "abc", FieldSpec{Type: FieldNumeric}, true},
		{"int", "3", FieldSpec{Type: FieldInt}, false},
		{"fractional int", "3.5", FieldSpec{Type: FieldInt}, true},
		{"date", "2024-03-05", FieldSpec{Type: FieldDate}, false},
		{"bad date", "yesterday", FieldSpec{Type: FieldDate}, true},
		{"time", "2024-03-05T09:30:00Z", FieldSpec{Type: FieldTime}, false},
		{"bad time", "soon", FieldSpec{Type: FieldTime}, true},
		{"bool", "yes", FieldSpec{Type: FieldBool}, false},
		{"bad bool", "maybe", FieldSpec{Type: FieldBool}, true},
		{"enum", "BUY", enum, false},
		{"bad enum", "hold", enum, true},
		{"text accepts anything", "whatever", FieldSpec{Type: FieldText}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCell(tt.value, tt.spec)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCell(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
		})
	}
}

func TestRowValidator_CollectsAllErrors(t *testing.T) {
	row := firstRow(t, "side,entry_price,pnl,entry_time\nhold,abc,n/a,\n")
	res := NewRowValidator(tradeSpecs).ValidateRow(row)

	if res.Valid {
		t.Fatal("row should be invalid")
	}
	fields := map[string]bool{}
	for _, e := range res.Errors {
		fields[e.Field] = true
	}
	for _, f := range []string{"side", "entry_price", "entry_time"} {
		if !fields[f] {
			t.Errorf("missing error for %s in %+v", f, res.Errors)
		}
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Field != "pnl" {
		t.Errorf("Warnings = %+v, want one for pnl", res.Warnings)
	}
}

func TestRowValidator_ValidRow(t *testing.T) {
	row := firstRow(t, "side,entry_price,entry_time\nsell,1.1,2024-03-05 09:30:00\n")
	res := NewRowValidator(tradeSpecs).ValidateRow(row)
	if !res.Valid || len(res.Errors) != 0 {
		t.Errorf("ValidateRow = %+v", res)
	}
}

func TestValidateHeaders(t *testing.T) {
	tbl, _ := DecodeTable("t.csv", "id,side\n")
	err := ValidateHeaders(tbl, tradeSpecs)
	if err == nil {
		t.Fatal("expected missing columns error")
	}
	if !strings.Contains(err.Error(), "entry_price") || !strings.Contains(err.Error(), "entry_time") {
		t.Errorf("error = %v", err)
	}

	tbl, _ = DecodeTable("t.csv", "side,entry_price,entry_time\n")
	if err := ValidateHeaders(tbl, tradeSpecs); err != nil {
		t.Errorf("ValidateHeaders = %v", err)
	}
}

func TestValidationError_Error(t *testing.T) {
	if got := (ValidationError{Field: "pnl", Message: "invalid number format"}).Error(); got != "pnl: invalid number format" {
		t.Errorf("Error() = %q", got)
	}
	if got := (ValidationError{Message: "bad"}).Error(); got != "bad" {
		t.Errorf("Error() = %q", got)
	}
	if fieldTypeName(FieldTime) != "timestamp" {
		t.Errorf("fieldTypeName(FieldTime) = %q", fieldTypeName(FieldTime))
	}
}
