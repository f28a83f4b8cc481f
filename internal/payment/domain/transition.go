package domain

import "strings"

// DeriveOrderIdentifier returns the portion of a merchant token before the first
// underscore, or the whole token when it has none.
func DeriveOrderIdentifier(token string) string {
	if idx := strings.IndexByte(token, '_'); idx >= 0 {
		return token[:idx]
	}
	return token
}

func Transition(success bool) StatusTransition {
	if success {
		return StatusTransition{PaymentStatus: PaymentStatusPaid, OrderStatus: OrderStatusPending}
	}
	return StatusTransition{PaymentStatus: PaymentStatusFailed, OrderStatus: OrderStatusPaymentFailed}
}

// AmountFromCents converts minor units to currency units.
func AmountFromCents(cents int64) float64 {
	return float64(cents) / 100
}
