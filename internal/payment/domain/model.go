package domain

import (
	"net/http"
	"net/url"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Transport is how a notification reached the service.
type Transport string

const (
	// TransportCallback is the gateway's server-to-server POST.
	TransportCallback Transport = "callback"
	// TransportRedirect is the customer's browser returning with a query string.
	TransportRedirect Transport = "redirect"
)

const (
	PaymentStatusPaid   = "paid"
	PaymentStatusFailed = "failed"

	OrderStatusPending       = "pending"
	OrderStatusPaymentFailed = "payment_failed"
)

// Outcome values recorded on the notification log and metrics.
const (
	OutcomePaid         = "paid"
	OutcomeFailed       = "failed"
	OutcomeNoOrder      = "no_order"
	OutcomeStoreFailure = "store_failure"
)

// PaymentNotification is the canonical shape every adapter normalizes into.
type PaymentNotification struct {
	Provider              string
	Transport             Transport
	ExternalTransactionID string
	Success               bool
	AmountCents           int64
	Currency              string
	MerchantOrderToken    string
	RawPayload            []byte
}

// Delivery is the raw transport input handed to an adapter.
type Delivery struct {
	Transport Transport
	Body      []byte
	Query     url.Values
	Headers   http.Header
}

// StatusTransition holds the status pair written for one outcome.
type StatusTransition struct {
	PaymentStatus string
	OrderStatus   string
}

// ParentUpdate is the column set written to the parent order row.
type ParentUpdate struct {
	PaymentStatus        string
	PaymentTransactionID string
	PaymentAmount        float64
	UpdatedAt            time.Time
}

// ChildUpdate is the column set written to every child order of a parent.
type ChildUpdate struct {
	PaymentStatus        string
	Status               string
	PaymentTransactionID string
	PaymentAmount        float64
	UpdatedAt            time.Time
}

// Outcome reports what one reconciliation did.
type Outcome struct {
	OrderID       string
	PaymentStatus string
	OrderStatus   string
	Success       bool
	Persisted     bool
	ParentRows    int64
	ChildRows     int64
	Failures      []error
	Replay        bool
}

// NotificationRecord is one row of the notification log.
type NotificationRecord struct {
	ID                 snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider           string         `json:"provider" gorm:"type:text;not null"`
	Transport          string         `json:"transport" gorm:"type:text;not null"`
	TransactionID      string         `json:"transaction_id" gorm:"type:text"`
	MerchantOrderToken string         `json:"merchant_order_token" gorm:"type:text;not null"`
	OrderID            string         `json:"order_id" gorm:"type:text;not null;index"`
	Success            bool           `json:"success" gorm:"not null"`
	AmountCents        int64          `json:"amount_cents" gorm:"not null"`
	Currency           string         `json:"currency" gorm:"type:text;not null"`
	Payload            datatypes.JSON `json:"payload" gorm:"type:jsonb"`
	Outcome            string         `json:"outcome" gorm:"type:text;not null"`
	ReceivedAt         time.Time      `json:"received_at" gorm:"not null"`
}

func (NotificationRecord) TableName() string { return "payment_notifications" }

// AdapterConfig carries provider settings resolved from configuration.
type AdapterConfig struct {
	Provider string
	Config   map[string]any
}
