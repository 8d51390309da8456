package rankbonus

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	// StatusEvaluatedNoRank records that the subscriber was measured for
	// the month and reached no rank. Terminal for that month.
	StatusEvaluatedNoRank Status = "evaluated_no_rank"
	// StatusPaid records a settled bonus. Terminal for that month.
	StatusPaid Status = "paid"
)

// Record is one monthly rank evaluation. The unique index holds the
// once-per-month guarantee: re-evaluating a settled month returns the
// existing outcome instead of paying again.
type Record struct {
	ID           string          `gorm:"column:id;primaryKey"`
	SubscriberID string          `gorm:"column:subscriber_id;uniqueIndex:idx_rank_bonus_once;index"`
	Month        string          `gorm:"column:month;type:varchar(7);uniqueIndex:idx_rank_bonus_once;index"`
	Rank         string          `gorm:"column:rank"`
	Status       Status          `gorm:"column:status;type:varchar(20);not null"`
	TokenAAmount decimal.Decimal `gorm:"column:token_a_amount;type:numeric(30,12);not null"`
	TokenBAmount decimal.Decimal `gorm:"column:token_b_amount;type:numeric(30,12);not null"`
	DirectCount  int             `gorm:"column:direct_count"`
	GroupCount   int             `gorm:"column:group_count"`
	MaxDepth     int             `gorm:"column:max_depth"`
	CreatedAt    time.Time       `gorm:"column:created_at"`
}

func (Record) TableName() string {
	return "rank_bonus_records"
}
