package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/payrecon/internal/clock"
	"github.com/smallbiznis/payrecon/internal/config"
	obsmetrics "github.com/smallbiznis/payrecon/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/payrecon/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/payrecon/internal/payment/repository"
	paymentservice "github.com/smallbiznis/payrecon/internal/payment/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

var fixedNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

type harness struct {
	db   *gorm.DB
	svc  *paymentservice.Service
	logs *observer.ObservedLogs
}

func newHarness(t *testing.T, cfg config.Config, orders paymentdomain.OrderRepository) harness {
	t.Helper()
	db := setupTestDB(t)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	if orders == nil {
		orders, err = paymentrepo.NewOrderRepository(paymentrepo.Tables{
			Parent: cfg.Reconcile.ParentOrdersTable,
			Child:  cfg.Reconcile.ChildOrdersTable,
		})
		require.NoError(t, err)
	}

	core, logs := observer.New(zapcore.DebugLevel)
	svc := paymentservice.NewService(paymentservice.Params{
		DB:            db,
		Log:           zap.New(core),
		Cfg:           cfg,
		Clock:         clock.NewFakeClock(fixedNow),
		GenID:         node,
		Orders:        orders,
		Notifications: paymentrepo.ProvideNotificationRepository(),
		StoreMetrics:  obsmetrics.NewStoreMetrics(prometheus.NewRegistry(), obsmetrics.Config{}),
	})
	return harness{db: db, svc: svc, logs: logs}
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	schema := []string{
		`CREATE TABLE parent_orders (
			id TEXT PRIMARY KEY,
			payment_status TEXT,
			payment_transaction_id TEXT,
			payment_amount REAL,
			updated_at TIMESTAMP
		)`,
		`CREATE TABLE orders (
			id TEXT PRIMARY KEY,
			parent_order_id TEXT NOT NULL,
			status TEXT,
			payment_status TEXT,
			payment_transaction_id TEXT,
			payment_amount REAL,
			updated_at TIMESTAMP
		)`,
		`CREATE TABLE payment_notifications (
			id BIGINT PRIMARY KEY,
			provider TEXT NOT NULL,
			transport TEXT NOT NULL,
			transaction_id TEXT,
			merchant_order_token TEXT NOT NULL,
			order_id TEXT NOT NULL,
			success BOOLEAN NOT NULL,
			amount_cents BIGINT NOT NULL,
			currency TEXT NOT NULL,
			payload TEXT,
			outcome TEXT NOT NULL,
			received_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_payment_notifications_delivery ON payment_notifications(provider, transaction_id, success)`,
		`INSERT INTO parent_orders (id, payment_status) VALUES ('order123', 'pending'), ('order9', 'pending')`,
		`INSERT INTO orders (id, parent_order_id, status) VALUES ('c1', 'order123', 'new'), ('c2', 'order123', 'new'), ('c9', 'order9', 'new')`,
	}
	for _, stmt := range schema {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func defaultConfig() config.Config {
	return config.Config{Reconcile: config.ReconcileConfig{
		WriteMode:         config.WriteModeBestEffort,
		ParentOrdersTable: "parent_orders",
		ChildOrdersTable:  "orders",
	}}
}

func successNotification() *paymentdomain.PaymentNotification {
	return &paymentdomain.PaymentNotification{
		Provider:              "paymob",
		Transport:             paymentdomain.TransportCallback,
		ExternalTransactionID: "55",
		Success:               true,
		AmountCents:           5000,
		MerchantOrderToken:    "order123_1700000000_abc",
		RawPayload:            []byte(`{"obj":{"id":"55"}}`),
	}
}

func scanString(t *testing.T, db *gorm.DB, query string) string {
	t.Helper()
	var value string
	require.NoError(t, db.Raw(query).Scan(&value).Error)
	return value
}

func TestReconcileSuccessUpdatesParentAndChildren(t *testing.T) {
	h := newHarness(t, defaultConfig(), nil)

	outcome, err := h.svc.Reconcile(context.Background(), successNotification())
	require.NoError(t, err)

	assert.Equal(t, "order123", outcome.OrderID)
	assert.Equal(t, "paid", outcome.PaymentStatus)
	assert.Equal(t, "pending", outcome.OrderStatus)
	assert.True(t, outcome.Persisted)
	assert.Equal(t, int64(1), outcome.ParentRows)
	assert.Equal(t, int64(2), outcome.ChildRows)
	assert.Empty(t, outcome.Failures)
	assert.False(t, outcome.Replay)

	assert.Equal(t, "paid", scanString(t, h.db, `SELECT payment_status FROM parent_orders WHERE id = 'order123'`))
	assert.Equal(t, "55", scanString(t, h.db, `SELECT payment_transaction_id FROM parent_orders WHERE id = 'order123'`))
	var amount float64
	require.NoError(t, h.db.Raw(`SELECT payment_amount FROM parent_orders WHERE id = 'order123'`).Scan(&amount).Error)
	assert.InDelta(t, 50.0, amount, 1e-9)

	var pending int64
	require.NoError(t, h.db.Raw(`SELECT COUNT(1) FROM orders WHERE parent_order_id = 'order123' AND status = 'pending' AND payment_status = 'paid'`).Scan(&pending).Error)
	assert.Equal(t, int64(2), pending)
	assert.Equal(t, "new", scanString(t, h.db, `SELECT status FROM orders WHERE id = 'c9'`))

	var stamped int64
	require.NoError(t, h.db.Raw(`SELECT COUNT(1) FROM orders WHERE parent_order_id = 'order123' AND updated_at = ?`, fixedNow).Scan(&stamped).Error)
	assert.Equal(t, int64(2), stamped)
	require.NoError(t, h.db.Raw(`SELECT COUNT(1) FROM parent_orders WHERE id = 'order123' AND updated_at = ?`, fixedNow).Scan(&stamped).Error)
	assert.Equal(t, int64(1), stamped)
}

func TestReconcileFailureSetsFailedStatuses(t *testing.T) {
	h := newHarness(t, defaultConfig(), nil)

	outcome, err := h.svc.Reconcile(context.Background(), &paymentdomain.PaymentNotification{
		Provider:              "paymob",
		Transport:             paymentdomain.TransportRedirect,
		ExternalTransactionID: "7",
		Success:               false,
		MerchantOrderToken:    "order9",
	})
	require.NoError(t, err)

	assert.Equal(t, "failed", outcome.PaymentStatus)
	assert.Equal(t, "payment_failed", outcome.OrderStatus)
	assert.Equal(t, "failed", scanString(t, h.db, `SELECT payment_status FROM parent_orders WHERE id = 'order9'`))
	assert.Equal(t, "payment_failed", scanString(t, h.db, `SELECT status FROM orders WHERE id = 'c9'`))
}

func TestReconcileWithoutIdentifierSkipsWrites(t *testing.T) {
	orders := &mockOrderRepository{}
	h := newHarness(t, defaultConfig(), orders)

	n := successNotification()
	n.MerchantOrderToken = ""
	outcome, err := h.svc.Reconcile(context.Background(), n)
	require.NoError(t, err)

	assert.False(t, outcome.Persisted)
	assert.Empty(t, outcome.OrderID)
	orders.AssertNotCalled(t, "UpdateParentOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	orders.AssertNotCalled(t, "UpdateChildOrders", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 1, h.logs.FilterMessageSnippet("without order identifier").Len())
	assert.Equal(t, paymentdomain.OutcomeNoOrder, scanString(t, h.db, `SELECT outcome FROM payment_notifications`))
}

func TestReconcileBestEffortContinuesAfterParentFailure(t *testing.T) {
	orders := &mockOrderRepository{}
	orders.On("UpdateParentOrder", mock.Anything, mock.Anything, "order123", mock.Anything).
		Return(int64(0), errors.New("connection reset")).Once()
	orders.On("UpdateChildOrders", mock.Anything, mock.Anything, "order123", mock.Anything).
		Return(int64(2), nil).Once()
	h := newHarness(t, defaultConfig(), orders)

	outcome, err := h.svc.Reconcile(context.Background(), successNotification())
	require.NoError(t, err)

	assert.True(t, outcome.Success)
	assert.False(t, outcome.Persisted)
	assert.Equal(t, int64(2), outcome.ChildRows)
	require.Len(t, outcome.Failures, 1)
	assert.ErrorIs(t, outcome.Failures[0], paymentdomain.ErrStoreWrite)

	var failure *paymentdomain.StoreWriteFailure
	require.ErrorAs(t, outcome.Failures[0], &failure)
	assert.Equal(t, "parent_orders", failure.Table)

	assert.Equal(t, 1, h.logs.FilterMessage("order update failed").Len())
	assert.Equal(t, 1, h.logs.FilterMessage("child orders updated").Len())
	orders.AssertExpectations(t)
}

func TestReconcileTransactionalRollsBackBothWrites(t *testing.T) {
	cfg := defaultConfig()
	cfg.Reconcile.WriteMode = config.WriteModeTransactional
	cfg.Reconcile.ChildOrdersTable = "missing_orders"
	h := newHarness(t, cfg, nil)

	outcome, err := h.svc.Reconcile(context.Background(), successNotification())
	require.NoError(t, err)

	require.Len(t, outcome.Failures, 1)
	assert.Zero(t, outcome.ParentRows)
	assert.False(t, outcome.Persisted)
	assert.Equal(t, "pending", scanString(t, h.db, `SELECT payment_status FROM parent_orders WHERE id = 'order123'`))
	assert.Equal(t, 1, h.logs.FilterMessage("order updates rolled back").Len())
	assert.Equal(t, paymentdomain.OutcomeStoreFailure, scanString(t, h.db, `SELECT outcome FROM payment_notifications`))
}

func TestReconcileTransactionalCommits(t *testing.T) {
	cfg := defaultConfig()
	cfg.Reconcile.WriteMode = config.WriteModeTransactional
	h := newHarness(t, cfg, nil)

	outcome, err := h.svc.Reconcile(context.Background(), successNotification())
	require.NoError(t, err)

	assert.True(t, outcome.Persisted)
	assert.Equal(t, int64(1), outcome.ParentRows)
	assert.Equal(t, int64(2), outcome.ChildRows)
	assert.Equal(t, "paid", scanString(t, h.db, `SELECT payment_status FROM parent_orders WHERE id = 'order123'`))
}

func TestReconcileMarksReplay(t *testing.T) {
	h := newHarness(t, defaultConfig(), nil)

	first, err := h.svc.Reconcile(context.Background(), successNotification())
	require.NoError(t, err)
	assert.False(t, first.Replay)

	second, err := h.svc.Reconcile(context.Background(), successNotification())
	require.NoError(t, err)
	assert.True(t, second.Replay)
	assert.True(t, second.Persisted)

	var count int64
	require.NoError(t, h.db.Raw(`SELECT COUNT(1) FROM payment_notifications`).Scan(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestReconcileWithoutTransactionIDIsNotReplay(t *testing.T) {
	h := newHarness(t, defaultConfig(), nil)

	for _, token := range []string{"a", "b", "b"} {
		n := &paymentdomain.PaymentNotification{
			Provider:           "paymob",
			Transport:          paymentdomain.TransportRedirect,
			MerchantOrderToken: token,
		}
		outcome, err := h.svc.Reconcile(context.Background(), n)
		require.NoError(t, err)
		assert.False(t, outcome.Replay, token)
	}

	var count int64
	require.NoError(t, h.db.Raw(`SELECT COUNT(1) FROM payment_notifications`).Scan(&count).Error)
	assert.Equal(t, int64(3), count)
	assert.Zero(t, h.logs.FilterMessage("notification replay detected").Len())
}

func TestReconcileRejectsNilNotification(t *testing.T) {
	h := newHarness(t, defaultConfig(), nil)
	_, err := h.svc.Reconcile(context.Background(), nil)
	assert.ErrorIs(t, err, paymentdomain.ErrMalformedPayload)
}

type mockOrderRepository struct {
	mock.Mock
}

func (m *mockOrderRepository) UpdateParentOrder(ctx context.Context, db *gorm.DB, orderID string, update paymentdomain.ParentUpdate) (int64, error) {
	args := m.Called(ctx, db, orderID, update)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockOrderRepository) UpdateChildOrders(ctx context.Context, db *gorm.DB, parentID string, update paymentdomain.ChildUpdate) (int64, error) {
	args := m.Called(ctx, db, parentID, update)
	return args.Get(0).(int64), args.Error(1)
}
