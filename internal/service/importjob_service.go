package service

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"dyntables/internal/domain"
	"dyntables/internal/etl"
	"dyntables/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Import Job Service: saved CSV imports, cron and file watching
// ─────────────────────────────────────────────────────────────

const (
	JobStatusRunning = "running"
	JobStatusSuccess = "success"
	JobStatusPartial = "partial"
	JobStatusError   = "error"

	fileWatchDebounce = 500 * time.Millisecond
	jobTimeout        = 5 * time.Minute
)

// ImportJobService manages import jobs, their schedules and file watchers.
type ImportJobService struct {
	store       *storage.ImportJobStore
	schemas     domain.SchemaStore
	importer    *Importer
	emitter     EventEmitter
	log         *zap.SugaredLogger
	runs        RunGuard

	mu          sync.Mutex
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

// NewImportJobService creates an ImportJobService ready for use.
func NewImportJobService(
	store *storage.ImportJobStore,
	schemas domain.SchemaStore,
	importer *Importer,
	emitter EventEmitter,
	log *zap.SugaredLogger,
) *ImportJobService {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &ImportJobService{
		store:    store,
		schemas:  schemas,
		importer: importer,
		emitter:  emitterOrNop(emitter, log),
		log:      log,
	}
}

// ── Job CRUD ───────────────────────────────────────────────

type ImportJobInput struct {
	Name               string          `json:"name"`
	DatabaseID         string          `json:"databaseId"`
	FilePath           string          `json:"filePath"`
	WithDocuments      bool            `json:"withDocuments"`
	SkipUnknownColumns bool            `json:"skipUnknownColumns"`
	TitleColumn        string          `json:"titleColumn"`
	TriggerType        etl.TriggerType `json:"triggerType"`
	TriggerConfig      string          `json:"triggerConfig"`
	Enabled            bool            `json:"enabled"`
}

func (s *ImportJobService) validate(ctx context.Context, op string, in *ImportJobInput) error {
	if _, err := resolveDatabase(ctx, s.schemas, op, in.DatabaseID); err != nil {
		return err
	}
	if strings.TrimSpace(in.FilePath) == "" {
		return domain.Validation(op, "file path is required")
	}
	if in.TriggerType == "" {
		in.TriggerType = etl.TriggerManual
	}
	switch in.TriggerType {
	case etl.TriggerManual:
	case etl.TriggerSchedule:
		if _, err := cron.ParseStandard(in.TriggerConfig); err != nil {
			return domain.Validation(op, "invalid cron expression %q: %v", in.TriggerConfig, err)
		}
	case etl.TriggerFileWatch:
		if in.TriggerConfig == "" {
			in.TriggerConfig = in.FilePath
		}
	default:
		return domain.Validation(op, "unknown trigger type %q", in.TriggerType)
	}
	return nil
}

func (s *ImportJobService) CreateJob(ctx context.Context, in ImportJobInput) (*etl.ImportJob, error) {
	if err := s.validate(ctx, "create import job", &in); err != nil {
		return nil, err
	}
	job := &etl.ImportJob{
		Name:               in.Name,
		DatabaseID:         in.DatabaseID,
		FilePath:           in.FilePath,
		WithDocuments:      in.WithDocuments,
		SkipUnknownColumns: in.SkipUnknownColumns,
		TitleColumn:        in.TitleColumn,
		TriggerType:        in.TriggerType,
		TriggerConfig:      in.TriggerConfig,
		Enabled:            in.Enabled,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create import job: %w", err)
	}
	s.RestartWatchers(ctx)
	return job, nil
}

func (s *ImportJobService) GetJob(ctx context.Context, id string) (*etl.ImportJob, error) {
	return s.store.GetJob(ctx, id)
}

func (s *ImportJobService) ListJobs(ctx context.Context) ([]etl.ImportJob, error) {
	return s.store.ListJobs(ctx)
}

func (s *ImportJobService) UpdateJob(ctx context.Context, id string, in ImportJobInput) error {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if err := s.validate(ctx, "update import job", &in); err != nil {
		return err
	}
	job.Name = in.Name
	job.DatabaseID = in.DatabaseID
	job.FilePath = in.FilePath
	job.WithDocuments = in.WithDocuments
	job.SkipUnknownColumns = in.SkipUnknownColumns
	job.TitleColumn = in.TitleColumn
	job.TriggerType = in.TriggerType
	job.TriggerConfig = in.TriggerConfig
	job.Enabled = in.Enabled

	if err := s.store.UpdateJob(ctx, job); err != nil {
		return err
	}
	s.RestartWatchers(ctx)
	return nil
}

func (s *ImportJobService) DeleteJob(ctx context.Context, id string) error {
	err := s.store.DeleteJob(ctx, id)
	if err == nil {
		s.RestartWatchers(ctx)
	}
	return err
}

// ListRuns returns the last 50 runs of a job.
func (s *ImportJobService) ListRuns(ctx context.Context, jobID string) ([]etl.ImportRun, error) {
	return s.store.ListRuns(ctx, jobID, 50)
}

// ── Run ────────────────────────────────────────────────────

// RunJob reads the job's CSV file and imports it. A job runs at most once
// at a time. Row failures make the run "partial", not an error.
func (s *ImportJobService) RunJob(ctx context.Context, id string) (*domain.ImportResult, error) {
	start := time.Now()
	active, ok := s.runs.Claim(ActiveRun{RunID: uuid.NewString(), JobID: id, StartedAt: start})
	if !ok {
		return nil, &domain.Error{Kind: domain.ErrConflict, Op: "run import job", Message: fmt.Sprintf(
			"import job %s is already running (run %s since %s)", id, active.RunID, active.StartedAt.UTC().Format(time.RFC3339))}
	}
	defer s.runs.Release(active)

	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateJobStatus(ctx, id, JobStatusRunning, ""); err != nil {
		s.log.Warnf("import job %s: status update failed: %v", id, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	run := &etl.ImportRun{ID: active.RunID, JobID: id, StartedAt: start}
	result, runErr := s.runJob(runCtx, job, run)
	run.FinishedAt = time.Now()

	status, errMsg := JobStatusSuccess, ""
	switch {
	case runErr != nil:
		status, errMsg = JobStatusError, PublicMessage(runErr)
		s.log.Errorf("import job %s: %v", id, runErr)
	case len(result.Errors) > 0:
		status = JobStatusPartial
		errMsg = fmt.Sprintf("%d row(s) failed", len(result.Errors))
	}
	run.Status = status
	if result != nil {
		run.RowsImported = result.RowsImported
		if b, err := json.Marshal(result.Errors); err == nil {
			run.Errors = string(b)
		}
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		s.log.Warnf("import job %s: run log not saved: %v", id, err)
	}
	if err := s.store.UpdateJobStatus(ctx, id, status, errMsg); err != nil {
		s.log.Warnf("import job %s: status update failed: %v", id, err)
	}
	s.log.Infof("import job %s: %s in %s", id, status, run.FinishedAt.Sub(start).Round(time.Millisecond))
	return result, runErr
}

func (s *ImportJobService) runJob(ctx context.Context, job *etl.ImportJob, run *etl.ImportRun) (*domain.ImportResult, error) {
	table, err := etl.ReadCSVFile(job.FilePath, etl.CSVOptions{})
	if err != nil {
		return nil, domain.Validation("run import job", "cannot read %s: %v", filepath.Base(job.FilePath), err)
	}
	run.RowsRead = len(table.Rows)

	strategy := StrategyBatch
	if job.WithDocuments {
		strategy = StrategyRowDocument
	}
	opts := CSVImportOptions{
		ImportOptions: ImportOptions{
			Strategy:    strategy,
			TitleColumn: job.TitleColumn,
			OnProgress: func(done, total int) {
				s.emitter.Emit(ctx, EventImportProgress, map[string]any{"jobId": job.ID, "done": done, "total": total})
			},
		},
		SkipUnknownColumns: job.SkipUnknownColumns,
	}
	return s.importer.ImportCSV(ctx, job.DatabaseID, table, opts)
}

// ── Watchers (cron + file_watch) ──────────────────────────

// RestartWatchers tears down the current watcher/cron and rebuilds them from scratch.
func (s *ImportJobService) RestartWatchers(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopWatchers()

	jobs, err := s.store.ListTriggeredJobs(ctx)
	if err != nil {
		s.log.Errorf("import watcher: failed to list jobs: %v", err)
		return
	}

	// ── Cron jobs ──
	c := cron.New()
	scheduled := 0
	for _, j := range jobs {
		if j.TriggerType != etl.TriggerSchedule || j.TriggerConfig == "" {
			continue
		}
		jid := j.ID
		_, err := c.AddFunc(j.TriggerConfig, func() {
			s.log.Infof("import cron: running job %s", jid)
			if _, err := s.RunJob(context.Background(), jid); err != nil {
				s.log.Warnf("import cron: job %s failed: %v", jid, err)
			}
			s.emitter.Emit(context.Background(), EventImportCompleted, jid)
		})
		if err != nil {
			s.log.Warnf("import cron: invalid expression %q for job %s: %v", j.TriggerConfig, jid, err)
			continue
		}
		scheduled++
	}
	if scheduled > 0 {
		c.Start()
		s.cronSched = c
		s.log.Infof("import cron: scheduled %d job(s)", scheduled)
	}

	// ── File watchers ──
	pathToJob := make(map[string]string)
	for _, j := range jobs {
		if j.TriggerType != etl.TriggerFileWatch || j.TriggerConfig == "" {
			continue
		}
		absPath, err := filepath.Abs(j.TriggerConfig)
		if err != nil {
			s.log.Warnf("import watcher: bad path %q: %v", j.TriggerConfig, err)
			continue
		}
		pathToJob[absPath] = j.ID
	}
	if len(pathToJob) == 0 {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.log.Errorf("import watcher: failed to create watcher: %v", err)
		return
	}
	s.watcher = watcher

	watchedDirs := make(map[string]bool)
	for path := range pathToJob {
		dir := filepath.Dir(path)
		if watchedDirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			s.log.Warnf("import watcher: failed to watch dir %q: %v", dir, err)
			continue
		}
		watchedDirs[dir] = true
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	s.watchCancel = cancel
	go s.watch(watchCtx, watcher, pathToJob)

	s.log.Infof("import watcher: watching %d file(s)", len(pathToJob))
}

// watch runs a job once its file has been quiet for the debounce window.
func (s *ImportJobService) watch(ctx context.Context, watcher *fsnotify.Watcher, pathToJob map[string]string) {
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			absPath, _ := filepath.Abs(event.Name)
			jobID, ok := pathToJob[absPath]
			if !ok {
				continue
			}
			if t, exists := timers[jobID]; exists {
				t.Stop()
			}
			jid := jobID
			timers[jobID] = time.AfterFunc(fileWatchDebounce, func() {
				s.log.Infof("import watcher: file changed %q, running job %s", absPath, jid)
				if _, err := s.RunJob(ctx, jid); err != nil {
					s.log.Warnf("import watcher: run failed for job %s: %v", jid, err)
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.log.Warnf("import watcher: error: %v", err)
		}
	}
}

// WaitRunning blocks until all running jobs finish or ctx is cancelled.
// Used for graceful shutdown.
func (s *ImportJobService) WaitRunning(ctx context.Context) {
	s.runs.Wait(ctx)
}

// ActiveRun returns the run of job id in flight, if any.
func (s *ImportJobService) ActiveRun(id string) (ActiveRun, bool) {
	return s.runs.Active(id)
}

// Stop tears down all watchers and schedulers.
func (s *ImportJobService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopWatchers()
}

func (s *ImportJobService) stopWatchers() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}
}
