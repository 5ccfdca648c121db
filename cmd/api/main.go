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

// api serves the order routes and runs the event listener next to them. A
// failed listener does not take the HTTP side down.
func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := fx.New(
		fx.NopLogger,
		config.Module,
		app.CoreModule,
		app.APIModule,
		app.ListenerModule(false),
	)
	run(ctx, a)
}
