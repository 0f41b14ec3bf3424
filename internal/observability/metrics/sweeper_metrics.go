package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	SweepOutcomeSwept   = "swept"
	SweepOutcomeSkipped = "skipped_locked"
	SweepOutcomeFailed  = "failed"
)

const (
	SweepReasonDeadlineExceeded = "deadline_exceeded"
	SweepReasonDBLockTimeout    = "db_lock_timeout"
	SweepReasonLock             = "lock"
	SweepReasonUnknown          = "unknown"
)

// SweeperMetrics tracks the session garbage collector on the Prometheus registry.
type SweeperMetrics struct {
	runs     *prometheus.CounterVec
	errors   *prometheus.CounterVec
	duration prometheus.Histogram
	deleted  prometheus.Counter
}

var (
	sweeperMetricsOnce sync.Once
	sweeperMetrics     *SweeperMetrics
)

// Sweeper returns the process-wide sweeper metrics registered on the default registerer.
func Sweeper(cfg Config) *SweeperMetrics {
	sweeperMetricsOnce.Do(func() {
		sweeperMetrics = newSweeperMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return sweeperMetrics
}

// NewSweeperMetricsForTest registers sweeper metrics on an isolated registry.
func NewSweeperMetricsForTest(registerer prometheus.Registerer) *SweeperMetrics {
	return newSweeperMetrics(registerer, Config{ServiceName: "identity", Environment: "test"})
}

func newSweeperMetrics(registerer prometheus.Registerer, cfg Config) *SweeperMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "identity"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &SweeperMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "identity_session_sweeper_runs_total",
			Help:        "Session sweeper runs by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "identity_session_sweeper_errors_total",
			Help:        "Session sweeper failures by low-cardinality reason.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "identity_session_sweeper_duration_seconds",
			Help:        "Session sweeper run latency.",
			Buckets:     []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			ConstLabels: constLabels,
		}),
		deleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "identity_session_sweeper_deleted_total",
			Help:        "Expired session rows deleted by the sweeper.",
			ConstLabels: constLabels,
		}),
	}
	registerer.MustRegister(m.runs, m.errors, m.duration, m.deleted)
	return m
}

func (m *SweeperMetrics) ObserveRun(outcome string, elapsed time.Duration, deleted int64) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	if outcome == SweepOutcomeSkipped {
		return
	}
	m.duration.Observe(elapsed.Seconds())
	if deleted > 0 {
		m.deleted.Add(float64(deleted))
	}
}

func (m *SweeperMetrics) ObserveError(err error) {
	if m == nil || err == nil {
		return
	}
	m.errors.WithLabelValues(ClassifySweepError(err)).Inc()
}

// ClassifySweepError maps err onto a bounded reason label.
func ClassifySweepError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return SweepReasonDeadlineExceeded
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "55P03" {
		return SweepReasonDBLockTimeout
	}
	if strings.Contains(strings.ToLower(err.Error()), "redis") {
		return SweepReasonLock
	}
	return SweepReasonUnknown
}
