package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrecon/internal/clock"
	"github.com/smallbiznis/payrecon/internal/config"
	"github.com/smallbiznis/payrecon/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/payrecon/internal/observability/metrics"
	"github.com/smallbiznis/payrecon/internal/orderlock"
	paymentdomain "github.com/smallbiznis/payrecon/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Cfg           config.Config
	Clock         clock.Clock
	GenID         *snowflake.Node
	Orders        paymentdomain.OrderRepository
	Notifications paymentdomain.NotificationRepository
	Guard         *orderlock.Guard         `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics      `optional:"true"`
	StoreMetrics  *obsmetrics.StoreMetrics `optional:"true"`
}

// Service is the reconciler: it turns one normalized notification into
// updates of the parent order and its child orders.
type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	cfg           config.ReconcileConfig
	clock         clock.Clock
	genID         *snowflake.Node
	orders        paymentdomain.OrderRepository
	notifications paymentdomain.NotificationRepository
	guard         *orderlock.Guard
	obsMetrics    *obsmetrics.Metrics
	storeMetrics  *obsmetrics.StoreMetrics
}

func NewService(p Params) *Service {
	cfg := p.Cfg.Reconcile
	if cfg.ParentOrdersTable == "" {
		cfg.ParentOrdersTable = "parent_orders"
	}
	if cfg.ChildOrdersTable == "" {
		cfg.ChildOrdersTable = "orders"
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}

	return &Service{
		db:            p.DB,
		log:           p.Log.Named("payment.service"),
		cfg:           cfg,
		clock:         clk,
		genID:         p.GenID,
		orders:        p.Orders,
		notifications: p.Notifications,
		guard:         p.Guard,
		obsMetrics:    p.ObsMetrics,
		storeMetrics:  p.StoreMetrics,
	}
}

func (s *Service) Reconcile(ctx context.Context, notification *paymentdomain.PaymentNotification) (*paymentdomain.Outcome, error) {
	if notification == nil {
		return nil, paymentdomain.ErrMalformedPayload
	}

	orderID := paymentdomain.DeriveOrderIdentifier(notification.MerchantOrderToken)
	transition := paymentdomain.Transition(notification.Success)
	amount := paymentdomain.AmountFromCents(notification.AmountCents)
	now := s.clock.Now()

	outcome := &paymentdomain.Outcome{
		OrderID:       orderID,
		PaymentStatus: transition.PaymentStatus,
		OrderStatus:   transition.OrderStatus,
		Success:       notification.Success,
	}

	log := logger.WithOrder(logger.WithContext(ctx, s.log), orderID).With(
		zap.String("provider", notification.Provider),
		zap.String("transport", string(notification.Transport)),
		zap.String("transaction_id", notification.ExternalTransactionID),
		zap.Bool("success", notification.Success),
	)

	if orderID == "" {
		log.Warn("payment notification without order identifier, nothing persisted")
		s.storeMetrics.IncMissingOrder()
		s.recordNotification(ctx, log, notification, outcome, paymentdomain.OutcomeNoOrder, now)
		s.obsMetrics.RecordNotification(ctx, notification.Provider, string(notification.Transport), paymentdomain.OutcomeNoOrder)
		return outcome, nil
	}

	release, lockResult := s.guard.Acquire(ctx, orderID)
	defer release()
	if lockResult != orderlock.ResultDisabled {
		s.obsMetrics.RecordOrderLock(ctx, lockResult)
	}

	parent := paymentdomain.ParentUpdate{
		PaymentStatus:        transition.PaymentStatus,
		PaymentTransactionID: notification.ExternalTransactionID,
		PaymentAmount:        amount,
		UpdatedAt:            now,
	}
	child := paymentdomain.ChildUpdate{
		PaymentStatus:        transition.PaymentStatus,
		Status:               transition.OrderStatus,
		PaymentTransactionID: notification.ExternalTransactionID,
		PaymentAmount:        amount,
		UpdatedAt:            now,
	}

	if s.cfg.Transactional() {
		s.writeTransactional(ctx, log, outcome, parent, child)
	} else {
		s.writeBestEffort(ctx, log, outcome, parent, child)
	}
	outcome.Persisted = len(outcome.Failures) == 0

	result := outcomeLabel(outcome)
	s.recordNotification(ctx, log, notification, outcome, result, now)
	s.obsMetrics.RecordNotification(ctx, notification.Provider, string(notification.Transport), result)

	log.Info("payment notification reconciled",
		zap.String("payment_status", outcome.PaymentStatus),
		zap.String("order_status", outcome.OrderStatus),
		zap.Int64("parent_rows", outcome.ParentRows),
		zap.Int64("child_rows", outcome.ChildRows),
		zap.Int("failures", len(outcome.Failures)),
		zap.Bool("replay", outcome.Replay),
	)
	return outcome, nil
}

// writeBestEffort attempts both updates independently; neither failure stops the other.
func (s *Service) writeBestEffort(ctx context.Context, log *zap.Logger, outcome *paymentdomain.Outcome, parent paymentdomain.ParentUpdate, child paymentdomain.ChildUpdate) {
	rows, err := s.updateParent(ctx, s.db, outcome.OrderID, parent)
	if err != nil {
		s.fail(log, outcome, s.cfg.ParentOrdersTable, err)
	} else {
		outcome.ParentRows = rows
		log.Info("parent order updated", zap.String("table", s.cfg.ParentOrdersTable), zap.Int64("rows", rows))
	}

	rows, err = s.updateChildren(ctx, s.db, outcome.OrderID, child)
	if err != nil {
		s.fail(log, outcome, s.cfg.ChildOrdersTable, err)
	} else {
		outcome.ChildRows = rows
		log.Info("child orders updated", zap.String("table", s.cfg.ChildOrdersTable), zap.Int64("rows", rows))
	}
}

// writeTransactional applies both updates atomically; a failure rolls both back.
func (s *Service) writeTransactional(ctx context.Context, log *zap.Logger, outcome *paymentdomain.Outcome, parent paymentdomain.ParentUpdate, child paymentdomain.ChildUpdate) {
	var parentRows, childRows int64
	var failedTable string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := s.updateParent(ctx, tx, outcome.OrderID, parent)
		if err != nil {
			failedTable = s.cfg.ParentOrdersTable
			return err
		}
		parentRows = rows

		rows, err = s.updateChildren(ctx, tx, outcome.OrderID, child)
		if err != nil {
			failedTable = s.cfg.ChildOrdersTable
			return err
		}
		childRows = rows
		return nil
	})
	if err != nil {
		if failedTable == "" {
			failedTable = s.cfg.ParentOrdersTable + "+" + s.cfg.ChildOrdersTable
		}
		s.fail(log, outcome, failedTable, err)
		log.Warn("order updates rolled back")
		return
	}

	outcome.ParentRows = parentRows
	outcome.ChildRows = childRows
	log.Info("order updates committed",
		zap.Int64("parent_rows", parentRows),
		zap.Int64("child_rows", childRows),
	)
}

func (s *Service) updateParent(ctx context.Context, db *gorm.DB, orderID string, update paymentdomain.ParentUpdate) (int64, error) {
	start := time.Now()
	rows, err := s.orders.UpdateParentOrder(ctx, db, orderID, update)
	s.storeMetrics.ObserveWrite(s.cfg.ParentOrdersTable, rows, err, time.Since(start))
	return rows, err
}

func (s *Service) updateChildren(ctx context.Context, db *gorm.DB, orderID string, update paymentdomain.ChildUpdate) (int64, error) {
	start := time.Now()
	rows, err := s.orders.UpdateChildOrders(ctx, db, orderID, update)
	s.storeMetrics.ObserveWrite(s.cfg.ChildOrdersTable, rows, err, time.Since(start))
	return rows, err
}

func (s *Service) fail(log *zap.Logger, outcome *paymentdomain.Outcome, table string, err error) {
	failure := &paymentdomain.StoreWriteFailure{Table: table, OrderID: outcome.OrderID, Err: err}
	outcome.Failures = append(outcome.Failures, failure)
	log.Error("order update failed",
		zap.String("table", table),
		zap.String("reason", obsmetrics.ClassifyStoreReason(err)),
		zap.Error(failure),
	)
}

// recordNotification appends to the notification log. Failures here never affect the response.
func (s *Service) recordNotification(ctx context.Context, log *zap.Logger, n *paymentdomain.PaymentNotification, outcome *paymentdomain.Outcome, result string, now time.Time) {
	if s.notifications == nil || s.genID == nil {
		return
	}

	record := &paymentdomain.NotificationRecord{
		ID:                 s.genID.Generate(),
		Provider:           strings.ToLower(strings.TrimSpace(n.Provider)),
		Transport:          string(n.Transport),
		TransactionID:      n.ExternalTransactionID,
		MerchantOrderToken: n.MerchantOrderToken,
		OrderID:            outcome.OrderID,
		Success:            n.Success,
		AmountCents:        n.AmountCents,
		Currency:           n.Currency,
		Outcome:            result,
		ReceivedAt:         now,
	}
	if len(n.RawPayload) > 0 {
		record.Payload = datatypes.JSON(n.RawPayload)
	}

	inserted, err := s.notifications.InsertNotification(ctx, s.db, record)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Warn("notification log write failed", zap.Error(err))
		return
	}
	if !inserted {
		outcome.Replay = true
		s.storeMetrics.IncReplay(record.Provider)
		log.Info("notification replay detected")
	}
}

func outcomeLabel(outcome *paymentdomain.Outcome) string {
	switch {
	case len(outcome.Failures) > 0:
		return paymentdomain.OutcomeStoreFailure
	case outcome.Success:
		return paymentdomain.OutcomePaid
	default:
		return paymentdomain.OutcomeFailed
	}
}

var _ paymentdomain.Reconciler = (*Service)(nil)
