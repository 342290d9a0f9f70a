package codec

import (
	"testing"
	"time"

	"dyntables/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func col(t domain.ColumnType) domain.ColumnDef {
	return domain.ColumnDef{ID: "c1", Name: "C", Type: t}
}

func TestStorageFor(t *testing.T) {
	assert.Equal(t, StorageText, StorageFor(domain.ColTypeText))
	assert.Equal(t, StorageText, StorageFor(domain.ColTypeSelect))
	assert.Equal(t, StorageNumeric, StorageFor(domain.ColTypeNumber))
	assert.Equal(t, StorageBoolean, StorageFor(domain.ColTypeCheckbox))
	assert.Equal(t, StorageDate, StorageFor(domain.ColTypeDate))
	assert.Equal(t, StorageDatetime, StorageFor(domain.ColTypeDatetime))
	assert.Equal(t, StorageJSON, StorageFor(domain.ColTypeMultiSelect))
	assert.Equal(t, StorageJSON, StorageFor(domain.ColTypeAttendees))
	assert.Equal(t, StorageJSON, StorageFor(domain.ColTypeReminders))
	assert.Equal(t, StorageText, StorageFor(domain.ColumnType("something-new")))
}

func TestEncodeCell(t *testing.T) {
	tests := []struct {
		name    string
		typ     domain.ColumnType
		in      any
		want    any
		wantErr bool
	}{
		{name: "text", typ: domain.ColTypeText, in: "Ada", want: "Ada"},
		{name: "text from number", typ: domain.ColTypeText, in: 1.5, want: "1.5"},
		{name: "number", typ: domain.ColTypeNumber, in: 30, want: float64(30)},
		{name: "number from string", typ: domain.ColTypeNumber, in: " 4.25 ", want: 4.25},
		{name: "bad number", typ: domain.ColTypeNumber, in: "abc", wantErr: true},
		{name: "checkbox", typ: domain.ColTypeCheckbox, in: "yes", want: true},
		{name: "bad checkbox", typ: domain.ColTypeCheckbox, in: "maybe", wantErr: true},
		{name: "date", typ: domain.ColTypeDate, in: "2024-03-09T10:00:00Z", want: "2024-03-09"},
		{name: "bad date", typ: domain.ColTypeDate, in: "09/03/2024", wantErr: true},
		{name: "multi select list", typ: domain.ColTypeMultiSelect, in: []any{"a", "b"}, want: `["a","b"]`},
		{name: "multi select single", typ: domain.ColTypeMultiSelect, in: "a", want: `["a"]`},
		{name: "json string passthrough", typ: domain.ColTypeReminders, in: `[{"method":"popup","minutes":10}]`, want: `[{"method":"popup","minutes":10}]`},
		{name: "json object", typ: domain.ColTypeAttendees, in: map[string]any{"attendees": []any{}}, want: `{"attendees":[]}`},
		{name: "nil", typ: domain.ColTypeText, in: nil, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeCell(col(tt.typ), tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeDatetimeIsUTC(t *testing.T) {
	got, err := EncodeCell(col(domain.ColTypeDatetime), "2024-03-09T10:00:00+02:00")
	require.NoError(t, err)
	ts, ok := got.(time.Time)
	require.True(t, ok)
	assert.Equal(t, time.UTC, ts.Location())
	assert.Equal(t, 8, ts.Hour())
}

func TestDecodeCell(t *testing.T) {
	tests := []struct {
		name string
		typ  domain.ColumnType
		raw  any
		want any
	}{
		{name: "text bytes", typ: domain.ColTypeText, raw: []byte("Ada"), want: "Ada"},
		{name: "number float", typ: domain.ColTypeNumber, raw: float64(30), want: float64(30)},
		{name: "number int", typ: domain.ColTypeNumber, raw: int64(7), want: float64(7)},
		{name: "number text protocol", typ: domain.ColTypeNumber, raw: []byte("2.5"), want: 2.5},
		{name: "checkbox int", typ: domain.ColTypeCheckbox, raw: int64(1), want: true},
		{name: "checkbox bool", typ: domain.ColTypeCheckbox, raw: false, want: false},
		{name: "date time value", typ: domain.ColTypeDate, raw: time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), want: "2024-03-09"},
		{name: "date string", typ: domain.ColTypeDate, raw: "2024-03-09", want: "2024-03-09"},
		{name: "datetime", typ: domain.ColTypeDatetime, raw: "2024-03-09 10:30:00", want: "2024-03-09T10:30:00Z"},
		{name: "multi select", typ: domain.ColTypeMultiSelect, raw: `["a","b"]`, want: []any{"a", "b"}},
		{name: "malformed json is absent", typ: domain.ColTypeAttendees, raw: `{"attendees": [`, want: nil},
		{name: "null", typ: domain.ColTypeText, raw: nil, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeCell(col(tt.typ), tt.raw))
		})
	}
}
