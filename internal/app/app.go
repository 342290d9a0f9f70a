// Package app is the composition root: it opens the backend, picks the
// cache and document store the configuration asks for, and builds the
// services on top.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"dyntables/internal/cache"
	"dyntables/internal/config"
	"dyntables/internal/dbclient"
	"dyntables/internal/domain"
	"dyntables/internal/query"
	"dyntables/internal/secret"
	"dyntables/internal/service"
	"dyntables/internal/storage"
)

// App owns the stores and services of one running instance.
type App struct {
	cfg config.Config
	log *zap.SugaredLogger

	db      *storage.DB
	closers []func() error

	Schemas     *storage.SchemaStore
	Provisioner *service.Provisioner
	Databases   *service.DatabaseService
	Rows        *service.RowService
	Importer    *service.Importer
	Tasks       *service.TaskService
	Events      *service.EventService
	Jobs        *service.ImportJobService
}

// New opens everything cfg describes. Close releases it.
func New(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) (a *App, err error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	a = &App{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	secrets := secret.DefaultResolver()
	password, err := secrets.Resolve(cfg.Backend.PasswordRef)
	if err != nil {
		return nil, fmt.Errorf("backend password: %w", err)
	}
	if cfg.Backend.Driver == domain.BackendSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.Backend.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	a.db, err = storage.New(cfg.Backend, password)
	if err != nil {
		return nil, fmt.Errorf("open backend: %w", err)
	}

	lists, err := a.openListCache(ctx, secrets)
	if err != nil {
		return nil, err
	}
	docs, err := a.openDocuments(ctx)
	if err != nil {
		return nil, err
	}

	settings := service.Settings{
		DefaultLimit:          cfg.Rows.DefaultLimit,
		MaxLimit:              cfg.Rows.MaxLimit,
		ChunkSize:             cfg.Import.ChunkSize,
		DocumentRetries:       cfg.Import.DocumentRetries,
		DocumentRetryInterval: cfg.Import.DocumentRetryInterval,
		WaitAttempts:          cfg.Waiter.MaxAttempts,
		WaitInterval:          cfg.Waiter.Interval,
	}
	emitter := service.LogEmitter{Log: log}

	a.Schemas = storage.NewSchemaStore(a.db, lists)
	gw := query.New(a.db.Conn(), a.db.Dialect(), cache.NewSchemaCache(cfg.SchemaCache.TTL), log)
	waiter := service.NewWaiter(gw, settings.WaitAttempts, settings.WaitInterval, log)
	a.Provisioner = service.NewProvisioner(a.Schemas, storage.NewProcedures(a.db), gw, waiter, log)
	a.Rows = service.NewRowService(a.Schemas, gw, a.Provisioner, storage.NewSequences(a.db), docs, emitter, settings, log)

	jobStore := storage.NewImportJobStore(a.db)
	a.Databases = service.NewDatabaseService(a.Schemas, a.Provisioner, waiter, gw, docs, jobStore, emitter, log)
	a.Importer = service.NewImporter(a.Rows, waiter, emitter, log)
	a.Tasks = service.NewTaskService(a.Schemas, a.Rows, log)
	a.Events = service.NewEventService(a.Schemas, a.Rows, log)
	a.Jobs = service.NewImportJobService(jobStore, a.Schemas, a.Importer, emitter, log)

	log.Infow("app: ready",
		"driver", cfg.Backend.Driver,
		"listCache", cfg.ListCache.Backend,
		"documents", cfg.Documents.Backend,
	)
	return a, nil
}

func (a *App) openListCache(ctx context.Context, secrets secret.Resolver) (cache.ListCache, error) {
	c := a.cfg.ListCache
	switch c.Backend {
	case config.ListCacheRedis:
		password, err := secrets.Resolve(c.RedisPasswordRef)
		if err != nil {
			return nil, fmt.Errorf("redis password: %w", err)
		}
		rc, err := cache.NewRedisListCache(ctx, c.RedisAddr, password, c.RedisDB, c.TTL, a.log)
		if err != nil {
			return nil, fmt.Errorf("open list cache: %w", err)
		}
		a.closers = append(a.closers, rc.Close)
		return rc, nil
	default:
		return cache.NewMemoryListCache(c.TTL), nil
	}
}

func (a *App) openDocuments(ctx context.Context) (domain.DocumentStore, error) {
	c := a.cfg.Documents
	switch c.Backend {
	case config.DocumentsMongo:
		ms, err := dbclient.NewMongoDocumentStore(ctx, c.MongoURI, c.MongoDatabase, a.log)
		if err != nil {
			return nil, fmt.Errorf("open document store: %w", err)
		}
		a.closers = append(a.closers, ms.Close)
		return ms, nil
	default:
		return storage.NewDocumentStore(a.db), nil
	}
}

// OwnerID is the owner tool calls act for when they name none.
func (a *App) OwnerID() string { return a.cfg.OwnerID }

// Close stops the import jobs and closes the stores, backend last.
func (a *App) Close() error {
	if a.Jobs != nil {
		a.Jobs.Stop()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	if a.db != nil {
		errs = append(errs, a.db.Close())
		a.db = nil
	}
	return errors.Join(errs...)
}
