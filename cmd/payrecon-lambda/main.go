package main

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/smallbiznis/payrecon/internal/clock"
	"github.com/smallbiznis/payrecon/internal/config"
	"github.com/smallbiznis/payrecon/internal/lambdahttp"
	"github.com/smallbiznis/payrecon/internal/migration"
	"github.com/smallbiznis/payrecon/internal/observability"
	"github.com/smallbiznis/payrecon/internal/orderlock"
	"github.com/smallbiznis/payrecon/internal/payment"
	"github.com/smallbiznis/payrecon/internal/server"
	"github.com/smallbiznis/payrecon/pkg/db"
	"go.uber.org/fx"
)

const startTimeout = 15 * time.Second

func main() {
	var srv *server.Server
	app := fx.New(
		config.Module,
		observability.Module,
		db.Module,
		migration.Module,
		clock.Module,
		orderlock.Module,
		payment.Module,
		server.HandlerModule,
		fx.Populate(&srv),
	)

	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		panic(err)
	}

	lambda.Start(lambdahttp.New(srv.Engine()).Invoke)
}
