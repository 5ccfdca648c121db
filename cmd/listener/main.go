package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/fx"

	"github.com/ariefcatur/go-courier-orders/internal/app"
	"github.com/ariefcatur/go-courier-orders/internal/config"
)

// listener only consumes lifecycle events. It exits non-zero when a
// subscription fails.
func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := fx.New(
		fx.NopLogger,
		config.Module,
		app.CoreModule,
		app.ListenerModule(true),
	)
	run(ctx, a)
}
