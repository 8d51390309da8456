package migrate

import (
	"accrualplane/services/commission"
	"accrualplane/services/distribution"
	"accrualplane/services/rankbonus"
	"accrualplane/services/referral"
	"accrualplane/services/subscription"
	"accrualplane/services/task"
	"accrualplane/services/wallet"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Module keeps the schema current at startup. The subscription and
// referral tables are owned by the membership service; migrating them here
// as well keeps single-binary deployments and local setups self-contained.
var Module = fx.Module("migrate",
	fx.Invoke(run),
)

func run(db *gorm.DB) error {
	return db.AutoMigrate(
		&subscription.Subscription{},
		&referral.Edge{},
		&distribution.Record{},
		&commission.Record{},
		&rankbonus.Record{},
		&wallet.Wallet{},
		&task.Job{},
	)
}
