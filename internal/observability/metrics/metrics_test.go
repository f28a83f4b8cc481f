package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	"gorm.io/gorm"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("provider", "paymob"),
		attribute.String("order_id", "ORD1"),
		attribute.String("outcome", "paid"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "order_id" {
			t.Fatalf("order_id must not be used as a metric label")
		}
	}
}

func TestClassifyStoreReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: fmt.Errorf("update: %w", context.DeadlineExceeded), want: StoreReasonDeadlineExceeded},
		{name: "lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: StoreReasonLockTimeout},
		{name: "serialization", err: &pgconn.PgError{Code: "40001"}, want: StoreReasonSerializationFailure},
		{name: "unique", err: gorm.ErrDuplicatedKey, want: StoreReasonUniqueViolation},
		{name: "unique_wrapped", err: fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), want: StoreReasonUniqueViolation},
		{name: "undefined_table", err: &pgconn.PgError{Code: "42P01"}, want: StoreReasonUndefinedTable},
		{name: "connection", err: &pgconn.PgError{Code: "08006"}, want: StoreReasonConnection},
		{name: "unknown", err: errors.New("boom"), want: StoreReasonUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyStoreReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestStoreMetricsObserveWrite(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewStoreMetrics(registry, Config{ServiceName: "payrecon", Environment: "test"})

	m.ObserveWrite("parent_orders", 1, nil, time.Millisecond)
	m.ObserveWrite("orders", 0, nil, time.Millisecond)
	m.ObserveWrite("orders", 0, &pgconn.PgError{Code: "40001"}, time.Millisecond)
	m.IncReplay(" Paymob ")

	if got := testutil.ToFloat64(m.writes.WithLabelValues("parent_orders", StoreResultOK)); got != 1 {
		t.Fatalf("expected 1 ok parent write, got %v", got)
	}
	if got := testutil.ToFloat64(m.writes.WithLabelValues("orders", StoreResultNoRows)); got != 1 {
		t.Fatalf("expected 1 no_rows child write, got %v", got)
	}
	if got := testutil.ToFloat64(m.failures.WithLabelValues("orders", StoreReasonSerializationFailure)); got != 1 {
		t.Fatalf("expected 1 serialization failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.replays.WithLabelValues("paymob")); got != 1 {
		t.Fatalf("expected 1 replay, got %v", got)
	}
}

func TestNilStoreMetricsIsSafe(t *testing.T) {
	var m *StoreMetrics
	m.ObserveWrite("orders", 1, nil, time.Millisecond)
	m.IncReplay("paymob")
	m.IncMissingOrder()
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	m := NewHTTPMetrics(registry, Config{})

	r := gin.New()
	r.Use(m.GinMiddleware())
	r.POST("/webhooks/:provider", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/webhooks/paymob", nil))

	if got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodPost, "/webhooks/:provider", "200")); got != 1 {
		t.Fatalf("expected 1 request, got %v", got)
	}
}

func TestRecordNotificationWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.RecordNotification(context.Background(), "paymob", "callback", "paid")
	m.RecordOrderLock(context.Background(), "acquired")

	var nilMetrics *Metrics
	nilMetrics.RecordNotification(context.Background(), "paymob", "callback", "paid")
}
