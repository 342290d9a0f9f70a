package domain

import "time"

// LogicalRow is a row as seen by callers: cells keyed by column id.
// A column missing from Cells is "not present", which is how null
// physical cells are reported.
type LogicalRow struct {
	ID        string         `json:"id"`
	RowOrder  float64        `json:"rowOrder"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Cells     map[string]any `json:"cells"`
}

// FilterOp is a row filter operator.
type FilterOp string

const (
	FilterEquals      FilterOp = "equals"
	FilterNotEquals   FilterOp = "not_equals"
	FilterContains    FilterOp = "contains"
	FilterNotContains FilterOp = "not_contains"
	FilterIsEmpty     FilterOp = "is_empty"
	FilterIsNotEmpty  FilterOp = "is_not_empty"
	FilterGT          FilterOp = "gt"
	FilterGTE         FilterOp = "gte"
	FilterLT          FilterOp = "lt"
	FilterLTE         FilterOp = "lte"
	FilterStartsWith  FilterOp = "starts_with"
	FilterEndsWith    FilterOp = "ends_with"
)

// NeedsValue reports whether the operator takes an operand.
func (op FilterOp) NeedsValue() bool {
	return op != FilterIsEmpty && op != FilterIsNotEmpty
}

// Filter is a predicate on one logical column.
type Filter struct {
	ColumnID string   `json:"columnId"`
	Op       FilterOp `json:"operator"`
	Value    any      `json:"value,omitempty"`
}

// SortDirection orders query results.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// RowQuery selects rows of a logical database.
// Zero Limit means the configured default page size.
type RowQuery struct {
	Filters       []Filter      `json:"filters,omitempty"`
	SortColumn    string        `json:"sortColumn,omitempty"`
	SortDirection SortDirection `json:"sortDirection,omitempty"`
	Limit         int           `json:"limit,omitempty"`
	Offset        int           `json:"offset,omitempty"`
}

// RowPage is a page of rows plus the total matching count.
type RowPage struct {
	Rows  []LogicalRow `json:"rows"`
	Total int          `json:"total"`
}
