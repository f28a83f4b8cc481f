package paymob

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"strings"

	paymentdomain "github.com/smallbiznis/payrecon/internal/payment/domain"
)

// signedFields is the ordered field list of Paymob's transaction HMAC.
var signedFields = []string{
	"amount_cents",
	"created_at",
	"currency",
	"error_occured",
	"has_parent_transaction",
	"id",
	"integration_id",
	"is_3d_secure",
	"is_auth",
	"is_capture",
	"is_refunded",
	"is_standalone_payment",
	"is_voided",
	"order.id",
	"owner",
	"pending",
	"source_data.pan",
	"source_data.sub_type",
	"source_data.type",
	"success",
}

// Verify checks the hmac query parameter when a secret is configured.
func (a *Adapter) Verify(ctx context.Context, delivery paymentdomain.Delivery) error {
	if a.hmacSecret == "" {
		return nil
	}

	received := strings.ToLower(strings.TrimSpace(delivery.Query.Get(querySignature)))
	if received == "" {
		return paymentdomain.ErrInvalidSignature
	}

	var message string
	switch delivery.Transport {
	case paymentdomain.TransportCallback:
		values, err := callbackValues(delivery.Body)
		if err != nil {
			return err
		}
		message = concatFields(func(field string) string { return values.lookup(field) })
	case paymentdomain.TransportRedirect:
		message = concatFields(func(field string) string {
			if field == "order.id" {
				return delivery.Query.Get("order")
			}
			return delivery.Query.Get(field)
		})
	default:
		return paymentdomain.ErrMalformedPayload
	}

	expected := Sign(a.hmacSecret, message)
	if !hmac.Equal([]byte(received), []byte(expected)) {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

// Sign returns the lowercase hex SHA-512 HMAC of message.
func Sign(secret, message string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	_, _ = mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

func concatFields(lookup func(field string) string) string {
	var b strings.Builder
	for _, field := range signedFields {
		b.WriteString(lookup(field))
	}
	return b.String()
}

type objectValues map[string]any

func callbackValues(body []byte) (objectValues, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var envelope struct {
		Obj map[string]any `json:"obj"`
	}
	if err := decoder.Decode(&envelope); err != nil || envelope.Obj == nil {
		return nil, paymentdomain.ErrMalformedPayload
	}
	return objectValues(envelope.Obj), nil
}

func (v objectValues) lookup(path string) string {
	var current any = map[string]any(v)
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current = m[part]
	}
	switch typed := current.(type) {
	case nil:
		return ""
	case string:
		return typed
	case bool:
		if typed {
			return "true"
		}
		return "false"
	case json.Number:
		return typed.String()
	default:
		return ""
	}
}
