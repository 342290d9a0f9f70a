package service

import (
	"context"
	"errors"
	"time"

	"dyntables/internal/codec"
	"dyntables/internal/domain"
	"dyntables/internal/retry"
)

// Settings tunes the services. Zero fields fall back to DefaultSettings.
type Settings struct {
	DefaultLimit          int
	MaxLimit              int
	ChunkSize             int
	DocumentRetries       int
	DocumentRetryInterval time.Duration
	WaitAttempts          int
	WaitInterval          time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		DefaultLimit:          50,
		MaxLimit:              1000,
		ChunkSize:             100,
		DocumentRetries:       3,
		DocumentRetryInterval: 100 * time.Millisecond,
		WaitAttempts:          10,
		WaitInterval:          200 * time.Millisecond,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.DefaultLimit <= 0 {
		s.DefaultLimit = d.DefaultLimit
	}
	if s.MaxLimit <= 0 {
		s.MaxLimit = d.MaxLimit
	}
	if s.DefaultLimit > s.MaxLimit {
		s.DefaultLimit = s.MaxLimit
	}
	if s.ChunkSize <= 0 {
		s.ChunkSize = d.ChunkSize
	}
	if s.DocumentRetries <= 0 {
		s.DocumentRetries = d.DocumentRetries
	}
	if s.DocumentRetryInterval <= 0 {
		s.DocumentRetryInterval = d.DocumentRetryInterval
	}
	if s.WaitAttempts <= 0 {
		s.WaitAttempts = d.WaitAttempts
	}
	if s.WaitInterval <= 0 {
		s.WaitInterval = d.WaitInterval
	}
	return s
}

// PublicMessage is the text of err that may be shown to a caller. Backend
// detail never leaves through it; only messages built by this module do.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	var de *domain.Error
	switch kind := domain.KindOf(err); kind {
	case domain.ErrValidation, domain.ErrNotFound, domain.ErrSchemaMismatch, domain.ErrConflict:
		if errors.As(err, &de) && de.Message != "" {
			return de.Message
		}
		return kind.Error()
	case domain.ErrSchemaNotYetVisible, domain.ErrTableNotProvisioned:
		return "the table is still being prepared, please retry"
	}
	return "the operation failed, please try again"
}

// resolveDatabase loads a database after checking the id is well formed.
func resolveDatabase(ctx context.Context, schemas domain.SchemaStore, op, id string) (*domain.LogicalDatabase, error) {
	if _, err := codec.TableName(id); err != nil {
		return nil, domain.Validation(op, "invalid database id %q", id).WithDatabase(id)
	}
	db, err := schemas.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// mutateColumns applies fn to the current column list and stores the result
// under the version it was read at. Concurrent writers make it re-read and
// re-apply. fn returning false leaves the record untouched.
func mutateColumns(ctx context.Context, schemas domain.SchemaStore, id string,
	fn func(db *domain.LogicalDatabase) ([]domain.ColumnDef, bool, error)) (*domain.LogicalDatabase, error) {

	var result *domain.LogicalDatabase
	var fnErr error
	out := retry.Do(ctx, retry.Policy{
		MaxAttempts: 5,
		Interval:    20 * time.Millisecond,
		Retryable:   func(err error) bool { return errors.Is(err, domain.ErrConflict) },
	}, func(ctx context.Context) error {
		db, err := schemas.Get(ctx, id)
		if err != nil {
			return err
		}
		cols, changed, err := fn(db)
		if err != nil {
			fnErr = err
			return err
		}
		if !changed {
			result = db
			return nil
		}
		updated, err := schemas.UpdateColumns(ctx, id, cols, db.Version)
		if err != nil {
			return err
		}
		result = updated
		return nil
	})
	if fnErr != nil {
		return nil, fnErr
	}
	if !out.Succeeded {
		return nil, out.Err
	}
	return result, nil
}

func cloneColumns(cols []domain.ColumnDef) []domain.ColumnDef {
	out := make([]domain.ColumnDef, len(cols))
	copy(out, cols)
	return out
}
