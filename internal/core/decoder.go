package core

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
)

// Value is one decoded cell. Cells that look like JSON (a leading '{' or '[')
// are parsed; when parsing fails they stay plain strings.
type Value struct {
	Raw    string
	JSON   any
	IsJSON bool
}

// Row is one data row of a table.
type Row struct {
	Line   int // 1-based line in the table text, header is line 1
	header []string
	index  HeaderIndex
	values []Value
}

// Get returns the cell for a column name. Names are matched with
// NormalizeHeader. ok is false when the table has no such column.
func (r Row) Get(name string) (Value, bool) {
	i, ok := r.index[NormalizeHeader(name)]
	if !ok {
		return Value{}, false
	}
	if i >= len(r.values) {
		// Short row: the column exists but this row has no cell for it.
		return Value{}, true
	}
	return r.values[i], true
}

// Fields returns the row as a header name to raw string mapping.
func (r Row) Fields() map[string]string {
	out := make(map[string]string, len(r.header))
	for i, h := range r.header {
		if i < len(r.values) {
			out[h] = r.values[i].Raw
		} else {
			out[h] = ""
		}
	}
	return out
}

// Table is a decoded archive table. It keeps the entry text, so iterating
// again never touches the archive.
type Table struct {
	Name   string
	Header []string
	index  HeaderIndex
	text   string
}

// DecodeTable parses the header of a comma separated table. An empty table
// is valid and has no header and no rows.
func DecodeTable(name, text string) (*Table, error) {
	t := &Table{Name: name, text: text}

	r := newCSVReader(text)
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s header: %w", name, err)
	}

	t.Header = make([]string, len(header))
	for i, h := range header {
		t.Header[i] = CleanCell(h)
	}
	t.index = MakeHeaderIndex(t.Header)
	return t, nil
}

// Has reports whether the table has a column matching name.
func (t *Table) Has(name string) bool {
	_, ok := t.index[NormalizeHeader(name)]
	return ok
}

// Missing returns the required columns of specs the table lacks.
func (t *Table) Missing(specs []FieldSpec) []string {
	if t.Header == nil {
		return nil
	}
	var missing []string
	for _, spec := range specs {
		if spec.Required && !t.Has(spec.Name) {
			missing = append(missing, spec.Name)
		}
	}
	return missing
}

// Rows returns a lazy sequence of the table's data rows. Each call starts a
// fresh parse, so the sequence can be ranged over any number of times.
// Blank rows are skipped. A malformed row yields an error and iteration
// continues with the next row.
func (t *Table) Rows() iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		if t.Header == nil {
			return
		}

		r := newCSVReader(t.text)
		if _, err := r.Read(); err != nil {
			return
		}

		for {
			record, err := r.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				var parseErr *csv.ParseError
				if errors.As(err, &parseErr) {
					if !yield(Row{Line: parseErr.Line}, err) {
						return
					}
					continue
				}
				yield(Row{}, err)
				return
			}

			if blankRecord(record) {
				continue
			}

			line, _ := r.FieldPos(0)
			row := Row{
				Line:   line,
				header: t.Header,
				index:  t.index,
				values: make([]Value, len(record)),
			}
			for i, cell := range record {
				row.values[i] = decodeValue(cell)
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// Len counts the data rows. It parses the whole table.
func (t *Table) Len() int {
	n := 0
	for _, err := range t.Rows() {
		if err == nil {
			n++
		}
	}
	return n
}

func newCSVReader(text string) *csv.Reader {
	r := csv.NewReader(newTableReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r
}

func blankRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func decodeValue(cell string) Value {
	v := Value{Raw: cell}
	trimmed := strings.TrimSpace(cell)
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[') {
		return v
	}
	var parsed any
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
		v.JSON = parsed
		v.IsJSON = true
	}
	return v
}
