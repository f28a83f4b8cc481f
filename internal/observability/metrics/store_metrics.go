package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	StoreResultOK      = "ok"
	StoreResultNoRows  = "no_rows"
	StoreResultFailure = "failure"
)

const (
	StoreReasonDeadlineExceeded     = "deadline_exceeded"
	StoreReasonLockTimeout          = "db_lock_timeout"
	StoreReasonSerializationFailure = "serialization_failure"
	StoreReasonUniqueViolation      = "unique_violation"
	StoreReasonUndefinedTable       = "undefined_table"
	StoreReasonConnection           = "connection"
	StoreReasonUnknown              = "unknown"
)

// StoreMetrics tracks order-table writes issued by the reconciler.
type StoreMetrics struct {
	writes       *prometheus.CounterVec
	failures     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	replays      *prometheus.CounterVec
	missingOrder prometheus.Counter
}

// NewStoreMetrics registers store collectors on the given registerer.
func NewStoreMetrics(registerer prometheus.Registerer, cfg Config) *StoreMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := constLabels(cfg)

	writes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "payrecon_store_writes_total",
		Help:        "Order table writes by table and result.",
		ConstLabels: constLabels,
	}, []string{"table", "result"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "payrecon_store_write_failures_total",
		Help:        "Order table write failures by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"table", "reason"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "payrecon_store_write_duration_seconds",
		Help:        "Order table write latency.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		ConstLabels: constLabels,
	}, []string{"table"})
	replays := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "payrecon_notification_replays_total",
		Help:        "Notifications already recorded for the same transaction and result.",
		ConstLabels: constLabels,
	}, []string{"provider"})
	missingOrder := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "payrecon_notifications_without_order_total",
		Help:        "Notifications acknowledged without an order identifier.",
		ConstLabels: constLabels,
	})

	registerer.MustRegister(writes, failures, duration, replays, missingOrder)

	return &StoreMetrics{
		writes:       writes,
		failures:     failures,
		duration:     duration,
		replays:      replays,
		missingOrder: missingOrder,
	}
}

// ObserveWrite records one UPDATE against table.
func (m *StoreMetrics) ObserveWrite(table string, rows int64, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(table).Observe(elapsed.Seconds())
	switch {
	case err != nil:
		m.writes.WithLabelValues(table, StoreResultFailure).Inc()
		m.failures.WithLabelValues(table, ClassifyStoreReason(err)).Inc()
	case rows == 0:
		m.writes.WithLabelValues(table, StoreResultNoRows).Inc()
	default:
		m.writes.WithLabelValues(table, StoreResultOK).Inc()
	}
}

func (m *StoreMetrics) IncReplay(provider string) {
	if m == nil {
		return
	}
	m.replays.WithLabelValues(strings.ToLower(strings.TrimSpace(provider))).Inc()
}

func (m *StoreMetrics) IncMissingOrder() {
	if m == nil {
		return
	}
	m.missingOrder.Inc()
}

// ClassifyStoreReason maps store errors to low-cardinality reasons.
func ClassifyStoreReason(err error) string {
	switch {
	case err == nil:
		return StoreReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return StoreReasonDeadlineExceeded
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return StoreReasonUniqueViolation
	case hasPGCode(err, "55P03"):
		return StoreReasonLockTimeout
	case hasPGCode(err, "40001"):
		return StoreReasonSerializationFailure
	case hasPGCode(err, "42P01"):
		return StoreReasonUndefinedTable
	case hasPGClass(err, "08"):
		return StoreReasonConnection
	default:
		return StoreReasonUnknown
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func hasPGClass(err error, class string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, class)
	}
	return false
}

func constLabels(cfg Config) prometheus.Labels {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "payrecon"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	return prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}
}
