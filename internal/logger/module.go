package logger

import (
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/ariefcatur/go-courier-orders/internal/config"
)

// Module wires the zerolog logger for dependency injection.
var Module = fx.Provide(func(cfg *config.Config) zerolog.Logger {
	return New(cfg.ServiceName, cfg.LogLevel)
})
