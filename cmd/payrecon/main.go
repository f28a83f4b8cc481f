package main

import (
	"github.com/smallbiznis/payrecon/internal/clock"
	"github.com/smallbiznis/payrecon/internal/config"
	"github.com/smallbiznis/payrecon/internal/migration"
	"github.com/smallbiznis/payrecon/internal/observability"
	"github.com/smallbiznis/payrecon/internal/orderlock"
	"github.com/smallbiznis/payrecon/internal/payment"
	"github.com/smallbiznis/payrecon/internal/server"
	"github.com/smallbiznis/payrecon/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		db.Module,
		migration.Module,
		clock.Module,
		orderlock.Module,

		// Payments
		payment.Module,
		server.Module,
	)
	app.Run()
}
