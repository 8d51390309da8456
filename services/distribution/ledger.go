package distribution

import (
	"context"

	"accrualplane/pkg/errutil"
	"accrualplane/services/wallet"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ledger struct {
	db *gorm.DB
}

// NewLedger exposes the distribution records as the wallet's authoritative
// balance source.
func NewLedger(db *gorm.DB) wallet.Ledger {
	return &ledger{db: db}
}

func (l *ledger) SumBySubscriber(ctx context.Context, subscriberID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := l.db.WithContext(ctx).
		Model(&Record{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("subscriber_id = ?", subscriberID).
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, errutil.Unavailable("failed to fold distribution ledger", err)
	}
	return total, nil
}
