package subscription

import (
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.directory",
	fx.Provide(NewDirectory),
)
