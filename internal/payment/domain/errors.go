package domain

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedPayload = errors.New("invalid_payload")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrProviderNotFound = errors.New("provider_not_found")
	ErrInvalidProvider  = errors.New("invalid_provider")
	ErrInvalidConfig    = errors.New("invalid_config")
	ErrStoreWrite       = errors.New("store_write_failed")
)

// StoreWriteFailure describes one failed order-table write. It is logged and
// reported on the Outcome, never returned to the caller.
type StoreWriteFailure struct {
	Table   string
	OrderID string
	Err     error
}

func (e *StoreWriteFailure) Error() string {
	return fmt.Sprintf("%s: update %s for order %q: %v", ErrStoreWrite, e.Table, e.OrderID, e.Err)
}

func (e *StoreWriteFailure) Unwrap() []error {
	return []error{ErrStoreWrite, e.Err}
}
