package core

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/tradejournal/internal/archive"
)

// PreviewSummary contains the summary counts of a snapshot preview.
type PreviewSummary struct {
	Tables    int `json:"tables"`
	TotalRows int `json:"totalRows"`
	ValidRows int `json:"validRows"`
	ErrorRows int `json:"errorRows"`
}

// ColumnPreview describes one expected column of a table.
type ColumnPreview struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Present  bool   `json:"present"`
}

// ErrorPreview represents a row with validation errors.
type ErrorPreview struct {
	LineNumber int               `json:"lineNumber"`
	OldID      string            `json:"oldId,omitempty"`
	Values     map[string]string `json:"values"`
	Errors     []ValidationError `json:"errors"`
	Warnings   []ValidationError `json:"warnings,omitempty"`
}

// TablePreview is the validation outcome of one archive table.
type TablePreview struct {
	Entity         EntityType      `json:"entity"`
	Label          string          `json:"label"`
	Present        bool            `json:"present"`
	DeclaredRows   int             `json:"declaredRows,omitempty"`
	TotalRows      int             `json:"totalRows"`
	ValidRows      int             `json:"validRows"`
	ErrorRows      int             `json:"errorRows"`
	MissingColumns []string        `json:"missingColumns,omitempty"`
	Columns        []ColumnPreview `json:"columns"`
	ErrorSamples   []ErrorPreview  `json:"errorSamples,omitempty"`
	Error          string          `json:"error,omitempty"` // Table could not be read
}

// PreviewResponse is the complete response from a snapshot preview.
type PreviewResponse struct {
	Manifest         archive.Manifest `json:"manifest"`
	Summary          PreviewSummary   `json:"summary"`
	Tables           []TablePreview   `json:"tables"`
	ProcessingTimeMs int64            `json:"processingTimeMs"`
}

// maxErrorSamples bounds the error rows listed per table.
const maxErrorSamples = 20

// PreviewSnapshot validates every table of a snapshot without writing.
// It reports the same fatal errors as ImportSnapshot for the archive itself.
func (s *Service) PreviewSnapshot(ctx context.Context, data []byte) (*PreviewResponse, error) {
	start := time.Now()

	if limit := s.cfg.MaxArchiveSize; limit > 0 && int64(len(data)) > limit {
		return nil, &ImportError{Kind: KindArchiveTooLarge,
			Err: fmt.Errorf("archive too large: %d bytes (max %d)", len(data), limit)}
	}
	ar, err := archive.Open(data)
	if err != nil {
		return nil, &ImportError{Kind: archiveErrorKind(err), Err: err}
	}
	if s.cfg.MaxEntrySize > 0 {
		ar.MaxEntrySize = s.cfg.MaxEntrySize
	}

	resp := &PreviewResponse{Manifest: ar.Manifest()}
	for _, def := range Ordered() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tp := previewTable(ar, def, resp.Manifest.Tables[string(def.Info.Key)])
		if tp.Present {
			resp.Summary.Tables++
		}
		resp.Summary.TotalRows += tp.TotalRows
		resp.Summary.ValidRows += tp.ValidRows
		resp.Summary.ErrorRows += tp.ErrorRows
		resp.Tables = append(resp.Tables, tp)
	}

	resp.ProcessingTimeMs = time.Since(start).Milliseconds()
	return resp, nil
}

func previewTable(src TextSource, def TableDefinition, declared int) TablePreview {
	tp := TablePreview{
		Entity:       def.Info.Key,
		Label:        def.Info.Label,
		DeclaredRows: declared,
	}

	d := readTable(src, def)
	tp.Columns = make([]ColumnPreview, len(def.FieldSpecs))
	for i, spec := range def.FieldSpecs {
		tp.Columns[i] = ColumnPreview{
			Name:     spec.Name,
			Type:     fieldTypeName(spec.Type),
			Required: spec.Required,
		}
	}
	if !d.present {
		return tp
	}
	tp.Present = true
	if d.err != nil {
		tp.Error = d.err.Error()
		return tp
	}
	for i := range tp.Columns {
		tp.Columns[i].Present = d.table.Has(tp.Columns[i].Name)
	}
	tp.MissingColumns = d.table.Missing(def.FieldSpecs)

	v := NewRowValidator(def.FieldSpecs)
	for row, err := range d.table.Rows() {
		tp.TotalRows++
		var result ValidationResult
		if err != nil {
			result = ValidationResult{Errors: []ValidationError{{Message: "malformed row: " + err.Error()}}}
		} else {
			result = v.ValidateRow(row)
		}
		if result.Valid {
			tp.ValidRows++
			continue
		}

		tp.ErrorRows++
		if len(tp.ErrorSamples) < maxErrorSamples {
			id, _ := row.Get("id")
			tp.ErrorSamples = append(tp.ErrorSamples, ErrorPreview{
				LineNumber: row.Line,
				OldID:      CleanCell(id.Raw),
				Values:     row.Fields(),
				Errors:     result.Errors,
				Warnings:   result.Warnings,
			})
		}
	}
	return tp
}
