package webhook

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/payrecon/internal/observability/logger"
	"github.com/smallbiznis/payrecon/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/payrecon/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Reconciler paymentdomain.Reconciler
	Adapters   *adapters.Registry
}

type Service struct {
	log        *zap.Logger
	reconciler paymentdomain.Reconciler
	adapters   *adapters.Registry
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		log:        p.Log.Named("payment.webhook"),
		reconciler: p.Reconciler,
		adapters:   p.Adapters,
	}
}

// IngestWebhook verifies and normalizes one delivery with the provider's
// adapter and hands the notification to the reconciler.
func (s *Service) IngestWebhook(ctx context.Context, provider string, delivery paymentdomain.Delivery) (*paymentdomain.Outcome, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return nil, paymentdomain.ErrInvalidProvider
	}
	if s.adapters == nil || !s.adapters.ProviderExists(provider) {
		return nil, paymentdomain.ErrProviderNotFound
	}

	log := logger.WithContext(ctx, s.log).With(
		zap.String("provider", provider),
		zap.String("transport", string(delivery.Transport)),
	)

	adapter, err := s.adapters.Adapter(provider)
	if err != nil {
		log.Error("payment adapter unavailable", zap.Error(err))
		return nil, err
	}

	if err := adapter.Verify(ctx, delivery); err != nil {
		if errors.Is(err, paymentdomain.ErrInvalidSignature) {
			log.Warn("payment notification signature rejected")
		}
		return nil, err
	}

	notification, err := adapter.Parse(ctx, delivery)
	if err != nil {
		log.Warn("payment notification rejected", zap.Error(err))
		return nil, err
	}
	notification.Provider = provider
	notification.Transport = delivery.Transport

	log.Info("payment notification received",
		zap.String("transaction_id", notification.ExternalTransactionID),
		zap.String("merchant_order_id", notification.MerchantOrderToken),
		zap.Bool("success", notification.Success),
		zap.Int64("amount_cents", notification.AmountCents),
	)

	if s.reconciler == nil {
		return nil, errors.New("reconciler_unavailable")
	}
	return s.reconciler.Reconcile(ctx, notification)
}
