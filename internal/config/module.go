package config

import "go.uber.org/fx"

// Module provides *Config read from the environment and process flags.
var Module = fx.Provide(Load)
