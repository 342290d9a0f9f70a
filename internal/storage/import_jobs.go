package storage

import (
	"context"
	"database/sql"
	"time"

	"dyntables/internal/dbclient"
	"dyntables/internal/domain"
	"dyntables/internal/etl"

	"github.com/google/uuid"
)

// ImportJobStore persists import jobs and their run history.
type ImportJobStore struct {
	db *DB
}

// NewImportJobStore creates a new ImportJobStore.
func NewImportJobStore(db *DB) *ImportJobStore {
	return &ImportJobStore{db: db}
}

const selectJob = `SELECT id, name, database_id, file_path, with_documents, skip_unknown, title_column,
	trigger_type, trigger_config, enabled, last_run_at, last_status, last_error, created_at, updated_at
	FROM import_jobs`

// ── ImportJob CRUD ─────────────────────────────────────────

func (s *ImportJobStore) CreateJob(ctx context.Context, job *etl.ImportJob) error {
	now := time.Now().UTC()
	job.ID = uuid.NewString()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.TriggerType == "" {
		job.TriggerType = etl.TriggerManual
	}

	d := s.db.dialect
	_, err := s.db.exec(ctx, s.db.conn,
		`INSERT INTO import_jobs (id, name, database_id, file_path, with_documents, skip_unknown, title_column,
		 trigger_type, trigger_config, enabled, last_run_at, last_status, last_error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, '', '', ?, ?)`,
		job.ID, job.Name, job.DatabaseID, job.FilePath, job.WithDocuments, job.SkipUnknownColumns, job.TitleColumn,
		string(job.TriggerType), job.TriggerConfig, job.Enabled,
		d.BindTime(now), d.BindTime(now),
	)
	return domain.Backend("create import job", err)
}

func (s *ImportJobStore) GetJob(ctx context.Context, id string) (*etl.ImportJob, error) {
	job, err := scanJob(s.db.queryRow(ctx, s.db.conn, selectJob+` WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, domain.NotFound("get import job", "import job", id)
	}
	if err != nil {
		return nil, domain.Backend("get import job", err)
	}
	return job, nil
}

func (s *ImportJobStore) UpdateJob(ctx context.Context, job *etl.ImportJob) error {
	job.UpdatedAt = time.Now().UTC()
	res, err := s.db.exec(ctx, s.db.conn,
		`UPDATE import_jobs SET name = ?, database_id = ?, file_path = ?, with_documents = ?, skip_unknown = ?,
		 title_column = ?, trigger_type = ?, trigger_config = ?, enabled = ?, updated_at = ? WHERE id = ?`,
		job.Name, job.DatabaseID, job.FilePath, job.WithDocuments, job.SkipUnknownColumns,
		job.TitleColumn, string(job.TriggerType), job.TriggerConfig, job.Enabled,
		s.db.dialect.BindTime(job.UpdatedAt), job.ID,
	)
	if err != nil {
		return domain.Backend("update import job", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("update import job", "import job", job.ID)
	}
	return nil
}

func (s *ImportJobStore) UpdateJobStatus(ctx context.Context, id, status, errMsg string) error {
	now := s.db.dialect.BindTime(time.Now().UTC())
	_, err := s.db.exec(ctx, s.db.conn,
		`UPDATE import_jobs SET last_run_at = ?, last_status = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		now, status, errMsg, now, id,
	)
	return domain.Backend("update import job status", err)
}

func (s *ImportJobStore) DeleteJob(ctx context.Context, id string) error {
	// Delete run logs first.
	if _, err := s.db.exec(ctx, s.db.conn, `DELETE FROM import_runs WHERE job_id = ?`, id); err != nil {
		return domain.Backend("delete import job", err)
	}
	_, err := s.db.exec(ctx, s.db.conn, `DELETE FROM import_jobs WHERE id = ?`, id)
	return domain.Backend("delete import job", err)
}

func (s *ImportJobStore) ListJobs(ctx context.Context) ([]etl.ImportJob, error) {
	return s.listJobs(ctx, selectJob+` ORDER BY created_at ASC`)
}

// ListTriggeredJobs returns enabled jobs with a schedule or file-watch trigger.
func (s *ImportJobStore) ListTriggeredJobs(ctx context.Context) ([]etl.ImportJob, error) {
	return s.listJobs(ctx, selectJob+` WHERE enabled = ? AND trigger_type IN (?, ?) ORDER BY created_at ASC`,
		true, string(etl.TriggerSchedule), string(etl.TriggerFileWatch))
}

// DeleteJobsByDatabase removes the jobs targeting a deleted database.
func (s *ImportJobStore) DeleteJobsByDatabase(ctx context.Context, databaseID string) error {
	jobs, err := s.listJobs(ctx, selectJob+` WHERE database_id = ?`, databaseID)
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if err := s.DeleteJob(ctx, j.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *ImportJobStore) listJobs(ctx context.Context, query string, args ...any) ([]etl.ImportJob, error) {
	rows, err := s.db.query(ctx, s.db.conn, query, args...)
	if err != nil {
		return nil, domain.Backend("list import jobs", err)
	}
	defer rows.Close()

	jobs := []etl.ImportJob{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, domain.Backend("list import jobs", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, domain.Backend("list import jobs", rows.Err())
}

func scanJob(sc scanner) (*etl.ImportJob, error) {
	job := &etl.ImportJob{}
	var trigger string
	var lastRun, createdAt, updatedAt any
	if err := sc.Scan(&job.ID, &job.Name, &job.DatabaseID, &job.FilePath, &job.WithDocuments,
		&job.SkipUnknownColumns, &job.TitleColumn, &trigger, &job.TriggerConfig, &job.Enabled,
		&lastRun, &job.LastStatus, &job.LastError, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	job.TriggerType = etl.TriggerType(trigger)
	if lastRun != nil {
		t := dbclient.ParseTime(lastRun)
		job.LastRunAt = &t
	}
	job.CreatedAt = dbclient.ParseTime(createdAt)
	job.UpdatedAt = dbclient.ParseTime(updatedAt)
	return job, nil
}

// ── Run Logs ───────────────────────────────────────────────

func (s *ImportJobStore) CreateRun(ctx context.Context, run *etl.ImportRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Errors == "" {
		run.Errors = "[]"
	}
	d := s.db.dialect
	_, err := s.db.exec(ctx, s.db.conn,
		`INSERT INTO import_runs (id, job_id, started_at, finished_at, status, rows_read, rows_imported, errors_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.JobID, d.BindTime(run.StartedAt), d.BindTime(run.FinishedAt), run.Status,
		run.RowsRead, run.RowsImported, run.Errors,
	)
	return domain.Backend("create import run", err)
}

func (s *ImportJobStore) ListRuns(ctx context.Context, jobID string, limit int) ([]etl.ImportRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.query(ctx, s.db.conn,
		`SELECT id, job_id, started_at, finished_at, status, rows_read, rows_imported, errors_json
		 FROM import_runs WHERE job_id = ? ORDER BY started_at DESC LIMIT ?`,
		jobID, limit,
	)
	if err != nil {
		return nil, domain.Backend("list import runs", err)
	}
	defer rows.Close()

	runs := []etl.ImportRun{}
	for rows.Next() {
		var r etl.ImportRun
		var started, finished any
		if err := rows.Scan(&r.ID, &r.JobID, &started, &finished, &r.Status, &r.RowsRead, &r.RowsImported, &r.Errors); err != nil {
			return nil, domain.Backend("list import runs", err)
		}
		r.StartedAt = dbclient.ParseTime(started)
		r.FinishedAt = dbclient.ParseTime(finished)
		runs = append(runs, r)
	}
	return runs, domain.Backend("list import runs", rows.Err())
}
