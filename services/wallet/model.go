package wallet

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet caches the accrual-token balance per subscriber. The cache is
// derived state: the distribution ledger is authoritative, and Reconcile
// rewrites the cache from it whenever the two drift apart.
type Wallet struct {
	SubscriberID     string          `gorm:"column:subscriber_id;primaryKey"`
	TokenBalance     decimal.Decimal `gorm:"column:token_balance;type:numeric(30,12);not null;default:0"`
	LastReconciledAt *time.Time      `gorm:"column:last_reconciled_at"`
	CreatedAt        time.Time       `gorm:"column:created_at"`
	UpdatedAt        time.Time       `gorm:"column:updated_at"`
}

func (Wallet) TableName() string {
	return "wallets"
}
