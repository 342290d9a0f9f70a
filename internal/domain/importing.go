package domain

// ImportError records why one input row was not imported. Row is 1-based.
type ImportError struct {
	Row     int    `json:"row"`
	Column  string `json:"column,omitempty"`
	Message string `json:"message"`
}

// ImportResult is the outcome of a batch import. A non-empty Errors list is
// a partial failure, not an error.
type ImportResult struct {
	RowsImported   int           `json:"rowsImported"`
	ColumnsCreated int           `json:"columnsCreated"`
	Errors         []ImportError `json:"errors"`
}

// ProgressFunc receives (completed, total) after every row or chunk.
type ProgressFunc func(completed, total int)
