package etl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dyntables/internal/domain"
)

func TestReadCSV(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		opts    CSVOptions
		headers []string
		rows    int
	}{
		{"comma", "Name,Age\nAda,36\nAlan,41\n", CSVOptions{}, []string{"Name", "Age"}, 2},
		{"semicolon", "Name;Age\nAda;36\n", CSVOptions{Delimiter: ';'}, []string{"Name", "Age"}, 1},
		{"bom", "\ufeffName,Age\nAda,36\n", CSVOptions{}, []string{"Name", "Age"}, 1},
		{"ragged", "Name,Age\nAda\nAlan,41,extra\n", CSVOptions{}, []string{"Name", "Age"}, 2},
		{"no header", "Ada,36\nAlan,41\n", CSVOptions{NoHeader: true}, []string{"column_1", "column_2"}, 2},
		{"header only", "Name,Age\n", CSVOptions{}, []string{"Name", "Age"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := ReadCSVString(tt.input, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.headers, table.Headers)
			assert.Len(t, table.Rows, tt.rows)
		})
	}
}

func TestReadCSV_Errors(t *testing.T) {
	_, err := ReadCSVString("", CSVOptions{})
	require.Error(t, err)

	_, err = ReadCSVFile("", CSVOptions{})
	require.Error(t, err)

	_, err = ReadCSVFile(filepath.Join(t.TempDir(), "missing.csv"), CSVOptions{})
	require.Error(t, err)
}

func TestReadCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "people.csv")
	require.NoError(t, os.WriteFile(path, []byte("Name,\"Note\"\nAda,\"likes, commas\"\n"), 0o644))
	table, err := ReadCSVFile(path, CSVOptions{})
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "likes, commas", table.Rows[0][1])
}

func TestInferColumnType(t *testing.T) {
	tests := []struct {
		values []string
		want   domain.ColumnType
	}{
		{[]string{"1", "2.5", ""}, domain.ColTypeNumber},
		{[]string{"true", "No"}, domain.ColTypeCheckbox},
		{[]string{"2024-01-31", " 2023-12-01 "}, domain.ColTypeDate},
		{[]string{"1", "two"}, domain.ColTypeText},
		{[]string{"", " "}, domain.ColTypeText},
		{[]string{"2024-1-31"}, domain.ColTypeText},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, InferColumnType(tt.values), "%q", tt.values)
	}
}
