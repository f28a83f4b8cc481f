package paymob

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"

	paymentdomain "github.com/smallbiznis/payrecon/internal/payment/domain"
)

const ProviderName = "paymob"

// Redirect query keys that make up a normalized notification.
const (
	queryID              = "id"
	querySuccess         = "success"
	queryAmountCents     = "amount_cents"
	queryMerchantOrderID = "merchant_order_id"
	queryCurrency        = "currency"
	querySignature       = "hmac"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return ProviderName
}

// NewAdapter accepts an optional "hmac_secret"; without it signatures are not checked.
func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	secret, err := readOptionalString(cfg.Config, "hmac_secret")
	if err != nil {
		return nil, err
	}
	return &Adapter{hmacSecret: strings.TrimSpace(secret)}, nil
}

type Adapter struct {
	hmacSecret string
}

type callbackEnvelope struct {
	Obj json.RawMessage `json:"obj"`
}

type callbackObject struct {
	ID          json.RawMessage `json:"id"`
	Success     json.RawMessage `json:"success"`
	AmountCents json.RawMessage `json:"amount_cents"`
	Currency    json.RawMessage `json:"currency"`
	Order       json.RawMessage `json:"order"`
}

type callbackOrder struct {
	MerchantOrderID json.RawMessage `json:"merchant_order_id"`
}

func (a *Adapter) Parse(ctx context.Context, delivery paymentdomain.Delivery) (*paymentdomain.PaymentNotification, error) {
	switch delivery.Transport {
	case paymentdomain.TransportCallback:
		return parseCallback(delivery.Body)
	case paymentdomain.TransportRedirect:
		return parseRedirect(delivery)
	default:
		return nil, paymentdomain.ErrMalformedPayload
	}
}

func parseCallback(body []byte) (*paymentdomain.PaymentNotification, error) {
	var envelope callbackEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, paymentdomain.ErrMalformedPayload
	}
	if isAbsent(envelope.Obj) {
		return nil, paymentdomain.ErrMalformedPayload
	}

	var obj callbackObject
	if err := json.Unmarshal(envelope.Obj, &obj); err != nil {
		return nil, paymentdomain.ErrMalformedPayload
	}

	transactionID, err := scalarString(obj.ID)
	if err != nil {
		return nil, err
	}
	amount, err := amountCents(obj.AmountCents)
	if err != nil {
		return nil, err
	}
	currency, err := scalarString(obj.Currency)
	if err != nil {
		return nil, err
	}

	var token string
	if !isAbsent(obj.Order) {
		var order callbackOrder
		// "order" may also be a bare numeric id in some payload versions
		if err := json.Unmarshal(obj.Order, &order); err == nil {
			if token, err = scalarString(order.MerchantOrderID); err != nil {
				return nil, err
			}
		}
	}

	return &paymentdomain.PaymentNotification{
		Provider:              ProviderName,
		Transport:             paymentdomain.TransportCallback,
		ExternalTransactionID: transactionID,
		Success:               truthy(obj.Success),
		AmountCents:           amount,
		Currency:              strings.ToUpper(currency),
		MerchantOrderToken:    token,
		RawPayload:            body,
	}, nil
}

func parseRedirect(delivery paymentdomain.Delivery) (*paymentdomain.PaymentNotification, error) {
	query := delivery.Query
	if !hasAny(query, queryID, querySuccess, queryAmountCents, queryMerchantOrderID) {
		return nil, paymentdomain.ErrMalformedPayload
	}

	var amount int64
	if raw := strings.TrimSpace(query.Get(queryAmountCents)); raw != "" {
		parsed, err := parseAmount(raw)
		if err != nil {
			return nil, err
		}
		amount = parsed
	}

	notification := &paymentdomain.PaymentNotification{
		Provider:              ProviderName,
		Transport:             paymentdomain.TransportRedirect,
		ExternalTransactionID: query.Get(queryID),
		Success:               query.Get(querySuccess) == "true",
		AmountCents:           amount,
		Currency:              strings.ToUpper(strings.TrimSpace(query.Get(queryCurrency))),
		MerchantOrderToken:    query.Get(queryMerchantOrderID),
	}
	notification.RawPayload = redirectPayload(notification)
	return notification, nil
}

// redirectPayload reshapes a redirect into the callback body so the notification
// log stores one format. The signature is not kept.
func redirectPayload(n *paymentdomain.PaymentNotification) []byte {
	payload, err := json.Marshal(map[string]any{
		"obj": map[string]any{
			"id":           n.ExternalTransactionID,
			"success":      n.Success,
			"amount_cents": n.AmountCents,
			"currency":     n.Currency,
			"order": map[string]any{
				"merchant_order_id": n.MerchantOrderToken,
			},
		},
	})
	if err != nil {
		return nil
	}
	return payload
}

func hasAny(values map[string][]string, keys ...string) bool {
	for _, key := range keys {
		if _, ok := values[key]; ok {
			return true
		}
	}
	return false
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// scalarString accepts a JSON string or number; absent values are empty.
func scalarString(raw json.RawMessage) (string, error) {
	if isAbsent(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", paymentdomain.ErrMalformedPayload
}

func truthy(raw json.RawMessage) bool {
	if isAbsent(raw) {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.EqualFold(strings.TrimSpace(s), "true")
	}
	return false
}

func amountCents(raw json.RawMessage) (int64, error) {
	value, err := scalarString(raw)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(value) == "" {
		return 0, nil
	}
	return parseAmount(value)
}

func parseAmount(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if cents, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if cents < 0 {
			return 0, paymentdomain.ErrMalformedPayload
		}
		return cents, nil
	}
	// gateways occasionally send 12345.0
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 || f != float64(int64(f)) {
		return 0, paymentdomain.ErrMalformedPayload
	}
	return int64(f), nil
}

func readOptionalString(cfg map[string]any, key string) (string, error) {
	if cfg == nil {
		return "", nil
	}
	value, ok := cfg[key]
	if !ok || value == nil {
		return "", nil
	}
	s, ok := value.(string)
	if !ok {
		return "", paymentdomain.ErrInvalidConfig
	}
	return s, nil
}

var _ paymentdomain.AdapterFactory = (*Factory)(nil)
var _ paymentdomain.PaymentAdapter = (*Adapter)(nil)
