package domain

import (
	"context"

	"gorm.io/gorm"
)

// OrderRepository writes payment results into the order tables.
type OrderRepository interface {
	UpdateParentOrder(ctx context.Context, db *gorm.DB, orderID string, update ParentUpdate) (int64, error)
	UpdateChildOrders(ctx context.Context, db *gorm.DB, parentID string, update ChildUpdate) (int64, error)
}

// NotificationRepository appends to the notification log.
type NotificationRepository interface {
	InsertNotification(ctx context.Context, db *gorm.DB, record *NotificationRecord) (bool, error)
}

type PaymentAdapter interface {
	Verify(ctx context.Context, delivery Delivery) error
	Parse(ctx context.Context, delivery Delivery) (*PaymentNotification, error)
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PaymentAdapter, error)
}

// Reconciler applies one normalized notification to the order tables.
type Reconciler interface {
	Reconcile(ctx context.Context, notification *PaymentNotification) (*Outcome, error)
}

type Service interface {
	IngestWebhook(ctx context.Context, provider string, delivery Delivery) (*Outcome, error)
}
