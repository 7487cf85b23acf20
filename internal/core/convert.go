package core

// convert.go provides type conversion functions for archive cells.
//
// These functions handle the messy reality of exported journal data:
//   - Multiple date and timestamp formats (ISO, RFC3339, day-first, epoch)
//   - Currency symbols, percent signs and thousand separators in numbers
//   - Various boolean representations (yes/no, true/false, 1/0)
//   - Spreadsheet formula prefixes (="value")
//
// Every Parse* function returns an error for input it cannot read. Callers
// decide whether that fails the row or nulls the field (see FieldReader).

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// ErrEmpty is returned by the Parse* functions for blank input.
var ErrEmpty = errors.New("empty value")

// numericRegex validates that a string is a valid numeric format after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would result in dates more than this many years in the future
// are assumed to be in the previous century.
var TwoDigitYearPivot = 20

// Timestamp layouts, tried in order. Layouts without a zone are read as UTC.
// Slash dates are day-first: prop-firm exports write 02/01/2006 15:04:05.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006.01.02 15:04:05",
	"2006.01.02 15:04",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"2/1/2006 15:04:05",
	"02.01.2006 15:04:05",
	"02.01.2006 15:04",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
}

// Date layouts split by year format for proper 2-digit year handling.
// Day-first layouts come before month-first ones; "12/25/2024" still parses
// because it is not a valid day-first date.
var (
	twoDigitYearLayouts = []string{
		"02/01/06", "2/1/06", "02.01.06", "2.1.06", "01/02/06", "1/2/06",
	}
	fourDigitYearLayouts = []string{
		"2006-01-02", "2006/01/02", "2006.01.02",
		"02/01/2006", "2/1/2006", "02-01-2006", "02.01.2006", "2.1.2006",
		"01/02/2006", "1/2/2006",
		"Jan 2, 2006", "2 Jan 2006", "2 January 2006",
		"20060102",
	}
)

// CleanCell removes common CSV artifacts from a cell value:
// - Trims whitespace
// - Removes spreadsheet formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") && len(s) > 1 {
		s = s[1:]
	}

	return strings.TrimSpace(strings.Trim(s, `"'`))
}

// NormalizeHeader reduces a column name to lowercase letters and digits, so
// "account_number", "accountNumber" and "Account Number" compare equal.
func NormalizeHeader(s string) string {
	s = strings.TrimPrefix(CleanCell(s), "\ufeff")
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// MakeHeaderIndex creates a HeaderIndex from a CSV header row.
// When two columns normalize to the same key the first one wins.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := NormalizeHeader(h)
		if key == "" {
			continue
		}
		if _, dup := idx[key]; dup {
			continue
		}
		idx[key] = i
	}
	return idx
}

// ParseDecimal parses a number, accepting currency symbols, thousands
// separators, a trailing percent sign and accounting negatives "(123.45)".
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = CleanCell(s)
	if s == "" {
		return decimal.Zero, ErrEmpty
	}
	raw := s

	// Detect negative accounting format "(123.45)"
	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.NewReplacer(
		"$", "",
		"€", "", // Euro
		"£", "", // Pound
		",", "",
		"_", "",
		" ", "",
	).Replace(s)
	s = strings.TrimSuffix(s, "%")

	if isNegative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return decimal.Zero, &strconv.NumError{Func: "ParseDecimal", Num: raw, Err: strconv.ErrSyntax}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &strconv.NumError{Func: "ParseDecimal", Num: raw, Err: err}
	}
	return d, nil
}

// ParseInt parses a whole number. "3", "3.0" and "1,000" are accepted.
func ParseInt(s string) (int64, error) {
	d, err := ParseDecimal(s)
	if err != nil {
		return 0, err
	}
	if !d.IsInteger() {
		return 0, &strconv.NumError{Func: "ParseInt", Num: s, Err: strconv.ErrSyntax}
	}
	return d.IntPart(), nil
}

// ParseBool accepts true/false, yes/no, t/f, y/n and 1/0.
func ParseBool(s string) (bool, error) {
	s = strings.ToLower(CleanCell(s))
	switch s {
	case "":
		return false, ErrEmpty
	case "true", "t", "yes", "y", "1":
		return true, nil
	case "false", "f", "no", "n", "0":
		return false, nil
	default:
		return false, &strconv.NumError{Func: "ParseBool", Num: s, Err: strconv.ErrSyntax}
	}
}

// ParseTime parses a timestamp and returns it in UTC.
// Bare dates parse as midnight UTC; 10 and 13 digit integers are read as
// unix seconds and milliseconds.
func ParseTime(s string) (time.Time, error) {
	s = CleanCell(s)
	if s == "" {
		return time.Time{}, ErrEmpty
	}

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	if t, ok := parseEpoch(s); ok {
		return t, nil
	}

	if t, err := parseDateOnly(s); err == nil {
		return t, nil
	}

	return time.Time{}, &time.ParseError{Value: s, Message: ": unrecognised timestamp format"}
}

// ParseDate parses a calendar date. Timestamps are accepted and truncated to
// their UTC date. 2-digit years are resolved with TwoDigitYearPivot.
func ParseDate(s string) (time.Time, error) {
	s = CleanCell(s)
	if s == "" {
		return time.Time{}, ErrEmpty
	}

	if t, err := parseDateOnly(s); err == nil {
		return t, nil
	}

	t, err := ParseTime(s)
	if err != nil {
		return time.Time{}, &time.ParseError{Value: s, Message: ": unrecognised date format"}
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

func parseDateOnly(s string) (time.Time, error) {
	// Try 4-digit year layouts first (unambiguous)
	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	// Try 2-digit year layouts with pivot year adjustment
	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, nil
		}
	}

	return time.Time{}, &time.ParseError{Value: s, Message: ": unrecognised date format"}
}

func parseEpoch(s string) (time.Time, bool) {
	if len(s) != 10 && len(s) != 13 {
		return time.Time{}, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return time.Time{}, false
	}
	if len(s) == 13 {
		return time.UnixMilli(n).UTC(), true
	}
	return time.Unix(n, 0).UTC(), true
}

// FormatDate renders a date the way date columns store it.
func FormatDate(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
