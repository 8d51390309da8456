package commission

import "go.uber.org/fx"

var Module = fx.Module("commission",
	fx.Provide(NewService),
)
