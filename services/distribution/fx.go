package distribution

import "go.uber.org/fx"

var Module = fx.Module("distribution",
	fx.Provide(
		NewLedger,
		NewService,
	),
)

// WorkerModule additionally wires the queue handler; only the worker
// process mounts it.
var WorkerModule = fx.Module("distribution.worker",
	fx.Provide(
		NewLedger,
		NewService,
		NewHandler,
	),
)
