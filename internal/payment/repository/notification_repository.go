package repository

import (
	"context"

	"github.com/smallbiznis/payrecon/internal/payment/domain"
	"gorm.io/gorm"
)

type notificationRepo struct{}

func ProvideNotificationRepository() domain.NotificationRepository {
	return &notificationRepo{}
}

// InsertNotification reports false when the (provider, transaction_id, success)
// delivery was already recorded. Deliveries without a transaction id are stored
// with a NULL transaction_id and never count as replays.
func (r *notificationRepo) InsertNotification(ctx context.Context, db *gorm.DB, record *domain.NotificationRecord) (bool, error) {
	insert := `INSERT INTO payment_notifications (
			id, provider, transport, transaction_id, merchant_order_token, order_id,
			success, amount_cents, currency, payload, outcome, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if db.Dialector.Name() == "mysql" {
		insert = "INSERT IGNORE" + insert[len("INSERT"):]
	} else {
		insert += ` ON CONFLICT (provider, transaction_id, success) DO NOTHING`
	}

	var transactionID any
	if record.TransactionID != "" {
		transactionID = record.TransactionID
	}

	res := db.WithContext(ctx).Exec(insert,
		record.ID,
		record.Provider,
		record.Transport,
		transactionID,
		record.MerchantOrderToken,
		record.OrderID,
		record.Success,
		record.AmountCents,
		record.Currency,
		record.Payload,
		record.Outcome,
		record.ReceivedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
