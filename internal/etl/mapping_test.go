package etl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dyntables/internal/domain"
)

func mappingDB() *domain.LogicalDatabase {
	return &domain.LogicalDatabase{
		ID: "db-1",
		Columns: []domain.ColumnDef{
			{ID: "name", Name: "Name", Type: domain.ColTypeText},
			{ID: "age", Name: "Age", Type: domain.ColTypeNumber},
			{ID: "prio", Name: "Priority", Type: domain.ColTypeSelect, Options: &domain.ColumnOptions{
				Choices: []domain.Choice{{ID: "high", Label: "High"}, {ID: "low", Label: "Low"}},
			}},
			{ID: "tags", Name: "Tags", Type: domain.ColTypeMultiSelect, Options: &domain.ColumnOptions{
				Choices: []domain.Choice{{ID: "t1", Label: "red"}, {ID: "t2", Label: "blue"}},
			}},
			{ID: "free", Name: "Free", Type: domain.ColTypeSelect},
		},
	}
}

func TestMapHeaders_ExactMatch(t *testing.T) {
	m := MapHeaders(mappingDB(), []string{"Name", "age", "Age", "Extra"})
	require.Len(t, m.Columns, 4)
	assert.Equal(t, "name", m.Columns[0].ID)
	assert.Nil(t, m.Columns[1], "matching is case-sensitive")
	assert.Equal(t, "age", m.Columns[2].ID)
	assert.Nil(t, m.Columns[3])
	assert.Equal(t, []string{"age", "Extra"}, m.Unknown)
}

func TestHeaderMapping_Cells(t *testing.T) {
	m := MapHeaders(mappingDB(), []string{"Name", "Age", "Priority", "Tags", "Free", "Extra"})

	cells, rowErr := m.Cells([]string{" Ada ", "36", "High", "red; t2", "anything", "ignored"})
	require.Nil(t, rowErr)
	assert.Equal(t, map[string]any{
		"name": "Ada",
		"age":  "36",
		"prio": "high",
		"tags": []any{"t1", "t2"},
		"free": "anything",
	}, cells)

	cells, rowErr = m.Cells([]string{"Alan", ""})
	require.Nil(t, rowErr)
	assert.Equal(t, map[string]any{"name": "Alan"}, cells, "empty and missing fields are left out")

	_, rowErr = m.Cells([]string{"Grace", "old"})
	require.NotNil(t, rowErr)
	assert.Equal(t, "Age", rowErr.Column)
	assert.Contains(t, rowErr.Message, "expected a number")

	_, rowErr = m.Cells([]string{"Grace", "", "Urgent"})
	require.NotNil(t, rowErr)
	assert.Equal(t, "Priority", rowErr.Column)
	assert.Contains(t, rowErr.Message, `unknown option "Urgent"`)

	_, rowErr = m.Cells([]string{"Grace", "", "", "green"})
	require.NotNil(t, rowErr)
	assert.Equal(t, "Tags", rowErr.Column)
}
