package payment

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrecon/internal/config"
	"github.com/smallbiznis/payrecon/internal/payment/adapters"
	"github.com/smallbiznis/payrecon/internal/payment/adapters/paymob"
	paymentdomain "github.com/smallbiznis/payrecon/internal/payment/domain"
	"github.com/smallbiznis/payrecon/internal/payment/repository"
	paymentservice "github.com/smallbiznis/payrecon/internal/payment/service"
	"github.com/smallbiznis/payrecon/internal/payment/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(provideOrderRepository),
	fx.Provide(repository.ProvideNotificationRepository),
	fx.Provide(provideRegistry),
	fx.Provide(provideNode),
	fx.Provide(
		paymentservice.NewService,
		func(s *paymentservice.Service) paymentdomain.Reconciler { return s },
	),
	fx.Provide(webhook.NewService),
)

func provideOrderRepository(cfg config.Config) (paymentdomain.OrderRepository, error) {
	return repository.NewOrderRepository(repository.Tables{
		Parent: cfg.Reconcile.ParentOrdersTable,
		Child:  cfg.Reconcile.ChildOrdersTable,
	})
}

func provideRegistry(cfg config.Config, log *zap.Logger) *adapters.Registry {
	log = log.Named("payment.adapters")
	registry := adapters.NewRegistry(paymob.NewFactory())
	if cfg.Paymob.HMACSecret != "" {
		registry.WithConfig(paymentdomain.AdapterConfig{
			Provider: paymob.ProviderName,
			Config:   map[string]any{"hmac_secret": cfg.Paymob.HMACSecret},
		})
	} else if cfg.IsProduction() {
		log.Warn("paymob hmac secret not configured, callbacks are accepted unsigned")
	}
	log.Info("payment adapters registered",
		zap.Strings("providers", registry.Providers()),
		zap.Bool("paymob_signed", cfg.Paymob.HMACSecret != ""),
	)
	return registry
}

func provideNode(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
