package wallet

import (
	"context"
	"time"

	"accrualplane/pkg/errutil"
	"accrualplane/pkg/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// driftTolerance absorbs accumulated rounding noise between the cached
// balance and the ledger fold. Anything beyond it is treated as real drift
// and corrected in favor of the ledger.
var driftTolerance = decimal.New(1, -9)

// Ledger is the authoritative record of accrual amounts. The distribution
// service provides the implementation; the wallet only folds it.
type Ledger interface {
	SumBySubscriber(ctx context.Context, subscriberID string) (decimal.Decimal, error)
}

// ReconcileResult reports one reconciliation pass over a single wallet.
type ReconcileResult struct {
	SubscriberID string          `json:"subscriber_id"`
	LedgerTotal  decimal.Decimal `json:"ledger_total"`
	CachedBefore decimal.Decimal `json:"cached_before"`
	Drift        decimal.Decimal `json:"drift"`
	Corrected    bool            `json:"corrected"`
}

type Service interface {
	// Credit adds amount to the subscriber's cached balance, creating the
	// wallet row on first touch. It must run inside the same transaction
	// as the ledger insert it mirrors.
	Credit(ctx context.Context, tx *gorm.DB, subscriberID string, amount decimal.Decimal) error
	// Balance returns the cached wallet; a subscriber with no wallet row
	// yet reads as a zero balance.
	Balance(ctx context.Context, subscriberID string) (*Wallet, error)
	// Reconcile folds the ledger and overwrites the cache when the two
	// disagree beyond tolerance. Converges in one pass: a second call on
	// an unchanged ledger reports no drift.
	Reconcile(ctx context.Context, subscriberID string) (*ReconcileResult, error)
}

type service struct {
	db      *gorm.DB
	wallets repository.Repository[Wallet]
	ledger  Ledger
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Ledger Ledger
}

func NewService(p ServiceParams) Service {
	return &service{
		db:      p.DB,
		wallets: repository.ProvideStore[Wallet](p.DB),
		ledger:  p.Ledger,
	}
}

func (s *service) Credit(ctx context.Context, tx *gorm.DB, subscriberID string, amount decimal.Decimal) error {
	if tx == nil {
		tx = s.db
	}
	now := time.Now()
	err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "subscriber_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"token_balance": gorm.Expr("token_balance + ?", amount),
				"updated_at":    now,
			}),
		}).
		Create(&Wallet{
			SubscriberID: subscriberID,
			TokenBalance: amount,
			CreatedAt:    now,
			UpdatedAt:    now,
		}).Error
	if err != nil {
		return errutil.Unavailable("failed to credit wallet", err)
	}
	return nil
}

func (s *service) Balance(ctx context.Context, subscriberID string) (*Wallet, error) {
	w, err := s.wallets.FindOne(ctx, &Wallet{SubscriberID: subscriberID})
	if err != nil {
		return nil, errutil.Unavailable("failed to load wallet", err)
	}
	if w == nil {
		return &Wallet{SubscriberID: subscriberID, TokenBalance: decimal.Zero}, nil
	}
	return w, nil
}

func (s *service) Reconcile(ctx context.Context, subscriberID string) (*ReconcileResult, error) {
	total, err := s.ledger.SumBySubscriber(ctx, subscriberID)
	if err != nil {
		return nil, err
	}

	cached, err := s.Balance(ctx, subscriberID)
	if err != nil {
		return nil, err
	}

	result := &ReconcileResult{
		SubscriberID: subscriberID,
		LedgerTotal:  total,
		CachedBefore: cached.TokenBalance,
		Drift:        total.Sub(cached.TokenBalance),
	}
	if result.Drift.Abs().LessThanOrEqual(driftTolerance) {
		return result, nil
	}

	now := time.Now()
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "subscriber_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"token_balance":      total,
				"last_reconciled_at": now,
				"updated_at":         now,
			}),
		}).
		Create(&Wallet{
			SubscriberID:     subscriberID,
			TokenBalance:     total,
			LastReconciledAt: &now,
			CreatedAt:        now,
			UpdatedAt:        now,
		}).Error
	if err != nil {
		return nil, errutil.Unavailable("failed to rewrite wallet balance", err)
	}
	result.Corrected = true

	zap.L().Warn("wallet drifted from ledger, corrected",
		zap.String("subscriber_id", subscriberID),
		zap.String("cached", result.CachedBefore.String()),
		zap.String("ledger", total.String()),
		zap.String("drift", result.Drift.String()),
	)
	return result, nil
}
