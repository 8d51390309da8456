package rankbonus

import "go.uber.org/fx"

var Module = fx.Module("rankbonus",
	fx.Provide(NewService),
)

var WorkerModule = fx.Module("rankbonus.worker",
	fx.Provide(
		NewService,
		NewHandler,
	),
)
