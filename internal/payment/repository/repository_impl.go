package repository

import (
	"context"
	"fmt"
	"regexp"

	"github.com/smallbiznis/payrecon/internal/payment/domain"
	"gorm.io/gorm"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Tables names the externally owned order tables.
type Tables struct {
	Parent string
	Child  string
}

func DefaultTables() Tables {
	return Tables{Parent: "parent_orders", Child: "orders"}
}

type orderRepo struct {
	tables Tables
}

// NewOrderRepository validates table names once since they are interpolated into SQL.
func NewOrderRepository(tables Tables) (domain.OrderRepository, error) {
	defaults := DefaultTables()
	if tables.Parent == "" {
		tables.Parent = defaults.Parent
	}
	if tables.Child == "" {
		tables.Child = defaults.Child
	}
	for _, name := range []string{tables.Parent, tables.Child} {
		if !tableNamePattern.MatchString(name) {
			return nil, fmt.Errorf("%w: table name %q", domain.ErrInvalidConfig, name)
		}
	}
	return &orderRepo{tables: tables}, nil
}

func (r *orderRepo) UpdateParentOrder(ctx context.Context, db *gorm.DB, orderID string, update domain.ParentUpdate) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE `+r.tables.Parent+`
		 SET payment_status = ?, payment_transaction_id = ?, payment_amount = ?, updated_at = ?
		 WHERE id = ?`,
		update.PaymentStatus,
		update.PaymentTransactionID,
		update.PaymentAmount,
		update.UpdatedAt,
		orderID,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *orderRepo) UpdateChildOrders(ctx context.Context, db *gorm.DB, parentID string, update domain.ChildUpdate) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE `+r.tables.Child+`
		 SET payment_status = ?, status = ?, payment_transaction_id = ?, payment_amount = ?, updated_at = ?
		 WHERE parent_order_id = ?`,
		update.PaymentStatus,
		update.Status,
		update.PaymentTransactionID,
		update.PaymentAmount,
		update.UpdatedAt,
		parentID,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
