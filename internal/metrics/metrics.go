package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	namespace = "dyntables"

	rowsImportedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "rows_imported_total",
			Help:      "Total number of rows committed by the batch importer",
		},
		[]string{"strategy"},
	)

	rowsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "rows_failed_total",
			Help:      "Total number of rows rejected by the batch importer",
		},
		[]string{"strategy"},
	)

	importDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "duration_seconds",
			Help:      "Duration of import runs in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"strategy"},
	)

	waiterAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "waiter",
			Name:      "probe_attempts",
			Help:      "Number of probes needed before a column became visible",
			Buckets:   []float64{1, 2, 3, 5, 8, 13},
		},
	)

	waiterGiveUpsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "waiter",
			Name:      "give_ups_total",
			Help:      "Total number of waits that exhausted their attempts",
		},
	)

	lazyProvisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provisioner",
			Name:      "lazy_provisions_total",
			Help:      "Total number of tables or columns created on demand by row operations",
		},
		[]string{"kind"},
	)

	schemaRefreshesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "schema_refreshes_total",
			Help:      "Total number of times the query layer reloaded a table's column set",
		},
	)

	rowOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rows",
			Name:      "operations_total",
			Help:      "Total number of row operations by outcome",
		},
		[]string{"operation", "status"},
	)
)

func RecordImport(strategy string, imported, failed int, elapsed time.Duration) {
	rowsImportedTotal.WithLabelValues(strategy).Add(float64(imported))
	rowsFailedTotal.WithLabelValues(strategy).Add(float64(failed))
	importDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
}

// RecordWait records one propagation wait. Waits that gave up are only
// counted, not observed.
func RecordWait(attempts int, visible bool) {
	if !visible {
		waiterGiveUpsTotal.Inc()
		return
	}
	waiterAttempts.Observe(float64(attempts))
}

func RecordLazyProvision(kind string) {
	lazyProvisionsTotal.WithLabelValues(kind).Inc()
}

func RecordSchemaRefresh() {
	schemaRefreshesTotal.Inc()
}

func RecordRowOperation(operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	rowOperationsTotal.WithLabelValues(operation, status).Inc()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, log *zap.SugaredLogger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Infof("metrics: listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
