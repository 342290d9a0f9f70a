package etl

import "time"

// ── ImportJob ──────────────────────────────────────────────
// A saved CSV import into one logical database, run by hand, on a cron
// schedule, or when the file changes.

// TriggerType says what starts an import job.
type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerSchedule  TriggerType = "schedule"
	TriggerFileWatch TriggerType = "file_watch"
)

// ImportJob holds the configuration of a recurring CSV import.
type ImportJob struct {
	ID                 string      `json:"id"`
	Name               string      `json:"name"`
	DatabaseID         string      `json:"databaseId"`
	FilePath           string      `json:"filePath"`
	WithDocuments      bool        `json:"withDocuments"`
	SkipUnknownColumns bool        `json:"skipUnknownColumns"`
	TitleColumn        string      `json:"titleColumn,omitempty"`
	TriggerType        TriggerType `json:"triggerType"`
	TriggerConfig      string      `json:"triggerConfig"` // cron expression or watched path
	Enabled            bool        `json:"enabled"`
	LastRunAt          *time.Time  `json:"lastRunAt,omitempty"`
	LastStatus         string      `json:"lastStatus"` // "success" | "partial" | "error" | "running" | ""
	LastError          string      `json:"lastError"`
	CreatedAt          time.Time   `json:"createdAt"`
	UpdatedAt          time.Time   `json:"updatedAt"`
}

// ImportRun is a historical record of one job execution.
type ImportRun struct {
	ID           string    `json:"id"`
	JobID        string    `json:"jobId"`
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt"`
	Status       string    `json:"status"`
	RowsRead     int       `json:"rowsRead"`
	RowsImported int       `json:"rowsImported"`
	Errors       string    `json:"errors,omitempty"` // JSON list of row errors
}
