package commission

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record is one commission earned by an ancestor from a single downline
// accrual. The unique index makes fanout replays collapse into no-ops: a
// given accrual event pays a given earner at a given level exactly once.
type Record struct {
	ID                 string          `gorm:"column:id;primaryKey"`
	EarnerID           string          `gorm:"column:earner_id;uniqueIndex:idx_commission_once;index"`
	SourceSubscriberID string          `gorm:"column:source_subscriber_id;index"`
	SourceEventID      string          `gorm:"column:source_event_id;uniqueIndex:idx_commission_once"`
	Level              int             `gorm:"column:level;uniqueIndex:idx_commission_once"`
	Rate               decimal.Decimal `gorm:"column:rate;type:numeric(10,6);not null"`
	Amount             decimal.Decimal `gorm:"column:amount;type:numeric(30,12);not null"`
	AccrualDate        string          `gorm:"column:accrual_date;type:varchar(10);index"`
	CreatedAt          time.Time       `gorm:"column:created_at"`
}

func (Record) TableName() string {
	return "commission_records"
}
