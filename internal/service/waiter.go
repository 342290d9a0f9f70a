package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"dyntables/internal/domain"
	"dyntables/internal/metrics"
	"dyntables/internal/retry"
)

// SchemaProber runs a zero-row query scoped to one column.
type SchemaProber interface {
	Probe(ctx context.Context, table, column string) error
}

// SchemaReloader asks the query layer to refresh its view of a table.
// Probers that cannot reload simply don't implement it.
type SchemaReloader interface {
	ReloadSchema(ctx context.Context, table string)
}

// Visibility is the result of waiting for one column.
type Visibility struct {
	Column   string `json:"column"`
	Visible  bool   `json:"visible"`
	Attempts int    `json:"attempts"`
}

// Waiter polls until a physical column shows up in the query layer's
// cached schema, within a bounded number of attempts.
type Waiter struct {
	prober   SchemaProber
	attempts int
	interval time.Duration
	log      *zap.SugaredLogger
}

// NewWaiter creates a waiter making at most attempts probes, interval apart.
func NewWaiter(prober SchemaProber, attempts int, interval time.Duration, log *zap.SugaredLogger) *Waiter {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Waiter{prober: prober, attempts: attempts, interval: interval, log: log}
}

func schemaLagging(err error) bool {
	return errors.Is(err, domain.ErrSchemaNotYetVisible) ||
		errors.Is(err, domain.ErrTableNotProvisioned) ||
		errors.Is(err, domain.ErrSchemaMismatch)
}

// Wait probes column until it is visible. Running out of attempts is not an
// error: the result reports Visible false and the caller proceeds.
func (w *Waiter) Wait(ctx context.Context, table, column string) Visibility {
	reloader, _ := w.prober.(SchemaReloader)

	out := retry.Do(ctx, retry.Policy{
		MaxAttempts: w.attempts,
		Interval:    w.interval,
		Retryable:   schemaLagging,
		OnRetry: func(attempt int, err error, _ time.Duration) {
			w.log.Debugf("waiter: %s.%s not visible after attempt %d: %v", table, column, attempt, err)
			if reloader != nil {
				reloader.ReloadSchema(ctx, table)
			}
		},
	}, func(ctx context.Context) error {
		return w.prober.Probe(ctx, table, column)
	})

	v := Visibility{Column: column, Visible: out.Succeeded, Attempts: out.Attempts}
	switch {
	case out.GaveUp:
		w.log.Warnf("waiter: gave up on %s.%s after %d attempts", table, column, out.Attempts)
	case !out.Succeeded && out.Err != nil:
		w.log.Warnf("waiter: probe of %s.%s failed: %v", table, column, out.Err)
	}
	metrics.RecordWait(v.Attempts, v.Visible)
	return v
}

// WaitAll waits for each column in turn.
func (w *Waiter) WaitAll(ctx context.Context, table string, columns []string) []Visibility {
	out := make([]Visibility, 0, len(columns))
	for _, c := range columns {
		out = append(out, w.Wait(ctx, table, c))
	}
	return out
}

// Pending lists the columns of vs that never became visible.
func Pending(vs []Visibility) []string {
	var out []string
	for _, v := range vs {
		if !v.Visible {
			out = append(out, v.Column)
		}
	}
	return out
}
