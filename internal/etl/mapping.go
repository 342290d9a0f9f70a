package etl

import (
	"fmt"
	"strings"

	"dyntables/internal/codec"
	"dyntables/internal/domain"
)

// HeaderMapping binds CSV header positions to schema columns.
// Matching is exact and case-sensitive on the column name.
type HeaderMapping struct {
	Columns []*domain.ColumnDef // nil where the header matched nothing
	Unknown []string
}

// MapHeaders matches every header against the column names of db.
func MapHeaders(db *domain.LogicalDatabase, headers []string) HeaderMapping {
	m := HeaderMapping{Columns: make([]*domain.ColumnDef, len(headers))}
	for i, h := range headers {
		if c, ok := db.ColumnByName(h); ok {
			m.Columns[i] = &c
			continue
		}
		m.Unknown = append(m.Unknown, h)
	}
	return m
}

// Cells converts one CSV row into a cell map. Empty fields are left out.
// Select values resolve by choice label, then by choice id.
func (m HeaderMapping) Cells(row []string) (map[string]any, *domain.ImportError) {
	cells := make(map[string]any)
	for i, col := range m.Columns {
		if col == nil || i >= len(row) {
			continue
		}
		raw := strings.TrimSpace(row[i])
		if raw == "" {
			continue
		}
		v, err := convertField(*col, raw)
		if err != nil {
			return nil, &domain.ImportError{Column: col.Name, Message: err.Error()}
		}
		cells[col.ID] = v
	}
	return cells, nil
}

func convertField(col domain.ColumnDef, raw string) (any, error) {
	switch col.Type {
	case domain.ColTypeSelect:
		if col.Options == nil || len(col.Options.Choices) == 0 {
			return raw, nil
		}
		id, ok := col.ResolveChoice(raw)
		if !ok {
			return nil, fmt.Errorf("unknown option %q", raw)
		}
		return id, nil
	case domain.ColTypeMultiSelect:
		parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' })
		ids := make([]any, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if col.Options != nil && len(col.Options.Choices) > 0 {
				id, ok := col.ResolveChoice(p)
				if !ok {
					return nil, fmt.Errorf("unknown option %q", p)
				}
				p = id
			}
			ids = append(ids, p)
		}
		return ids, nil
	}
	// Everything else is validated by the codec and stored from its string form.
	if _, err := codec.EncodeCell(col, raw); err != nil {
		return nil, err
	}
	return raw, nil
}
