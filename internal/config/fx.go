package config

import "go.uber.org/fx"

// Module wires application and engine configuration.
var Module = fx.Module("config",
	fx.Provide(
		Load,
		NewDBConfig,
		NewEngineConfigHolder,
	),
)
