package service_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dyntables/internal/domain"
	"dyntables/internal/etl"
	"dyntables/internal/service"
	"dyntables/internal/storage"
)

func newJobs(t *testing.T, e *env) *service.ImportJobService {
	t.Helper()
	jobs := service.NewImportJobService(storage.NewImportJobStore(e.db), e.schemas, e.importer, e.emitter, nil)
	t.Cleanup(jobs.Stop)
	return jobs
}

func writeCSV(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestImportJobs_Validation(t *testing.T) {
	e := newEnv(t)
	jobs := newJobs(t, e)
	db := peopleDB(t, e)

	tests := []struct {
		name string
		in   service.ImportJobInput
		kind error
	}{
		{"no file", service.ImportJobInput{DatabaseID: db.ID}, domain.ErrValidation},
		{"bad cron", service.ImportJobInput{DatabaseID: db.ID, FilePath: "a.csv", TriggerType: etl.TriggerSchedule, TriggerConfig: "every day"}, domain.ErrValidation},
		{"bad trigger", service.ImportJobInput{DatabaseID: db.ID, FilePath: "a.csv", TriggerType: "webhook"}, domain.ErrValidation},
		{"bad database id", service.ImportJobInput{DatabaseID: "nope", FilePath: "a.csv"}, domain.ErrValidation},
		{"unknown database", service.ImportJobInput{DatabaseID: uuid.NewString(), FilePath: "a.csv"}, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := jobs.CreateJob(e.ctx, tt.in)
			assert.ErrorIs(t, err, tt.kind)
		})
	}

	job, err := jobs.CreateJob(e.ctx, service.ImportJobInput{
		Name: "watch", DatabaseID: db.ID, FilePath: "people.csv", TriggerType: etl.TriggerFileWatch,
	})
	require.NoError(t, err)
	assert.Equal(t, "people.csv", job.TriggerConfig, "file watch defaults to the job's file")
}

func TestImportJobs_RunRecordsStatus(t *testing.T) {
	e := newEnv(t)
	jobs := newJobs(t, e)
	db := peopleDB(t, e)
	path := filepath.Join(t.TempDir(), "people.csv")

	writeCSV(t, path, "Name,Age\nAda,36\nAlan,41\n")
	job, err := jobs.CreateJob(e.ctx, service.ImportJobInput{Name: "people", DatabaseID: db.ID, FilePath: path})
	require.NoError(t, err)
	assert.Equal(t, etl.TriggerManual, job.TriggerType)

	res, err := jobs.RunJob(e.ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.RowsImported)

	got, err := jobs.GetJob(e.ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, service.JobStatusSuccess, got.LastStatus)
	assert.NotNil(t, got.LastRunAt)

	writeCSV(t, path, "Name,Age\nGrace,old\nEdsger,72\n")
	res, err = jobs.RunJob(e.ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RowsImported)

	got, _ = jobs.GetJob(e.ctx, job.ID)
	assert.Equal(t, service.JobStatusPartial, got.LastStatus)
	assert.Equal(t, "1 row(s) failed", got.LastError)

	require.NoError(t, os.Remove(path))
	_, err = jobs.RunJob(e.ctx, job.ID)
	assert.ErrorIs(t, err, domain.ErrValidation)
	got, _ = jobs.GetJob(e.ctx, job.ID)
	assert.Equal(t, service.JobStatusError, got.LastStatus)

	runs, err := jobs.ListRuns(e.ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, runs, 3)

	rows, err := e.rows.GetRows(e.ctx, db.ID, domain.RowQuery{})
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestImportJobs_FileWatchTriggersRun(t *testing.T) {
	e := newEnv(t)
	jobs := newJobs(t, e)
	db := peopleDB(t, e)
	path := filepath.Join(t.TempDir(), "people.csv")
	writeCSV(t, path, "Name,Age\n")

	job, err := jobs.CreateJob(e.ctx, service.ImportJobInput{
		Name: "watch", DatabaseID: db.ID, FilePath: path, TriggerType: etl.TriggerFileWatch, Enabled: true,
	})
	require.NoError(t, err)

	writeCSV(t, path, "Name,Age\nAda,36\n")
	require.Eventually(t, func() bool {
		got, err := jobs.GetJob(e.ctx, job.ID)
		return err == nil && got.LastStatus == service.JobStatusSuccess
	}, 5*time.Second, 50*time.Millisecond)

	jobs.WaitRunning(e.ctx)
	rows, err := e.rows.GetRows(e.ctx, db.ID, domain.RowQuery{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Ada", rows[0].Cells["name"])
}

func TestImportJobs_DeletingDatabaseRemovesJobs(t *testing.T) {
	e := newEnv(t)
	jobs := newJobs(t, e)
	db := peopleDB(t, e)

	job, err := jobs.CreateJob(e.ctx, service.ImportJobInput{Name: "people", DatabaseID: db.ID, FilePath: "people.csv"})
	require.NoError(t, err)
	require.NoError(t, e.dbs.DeleteDatabase(e.ctx, db.ID))

	_, err = jobs.GetJob(e.ctx, job.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
