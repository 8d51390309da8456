package distribution

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record is one settled daily accrual. The unique index is the exactly-once
// guarantee: a (subscriber, subscription, day) triple can exist at most
// once no matter how many times the run replays.
type Record struct {
	ID               string          `gorm:"column:id;primaryKey"`
	SubscriberID     string          `gorm:"column:subscriber_id;uniqueIndex:idx_distribution_once;index"`
	SubscriptionID   string          `gorm:"column:subscription_id;uniqueIndex:idx_distribution_once"`
	PlanID           string          `gorm:"column:plan_id;index"`
	Amount           decimal.Decimal `gorm:"column:amount;type:numeric(30,12);not null"`
	DistributionDate string          `gorm:"column:distribution_date;type:varchar(10);uniqueIndex:idx_distribution_once;index"`
	CreatedAt        time.Time       `gorm:"column:created_at"`
}

func (Record) TableName() string {
	return "distribution_records"
}
