package subscription

import (
	"context"
	"time"

	"accrualplane/pkg/db/option"
	"accrualplane/pkg/errutil"
	"accrualplane/pkg/repository"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Directory is the read side of the membership service's subscription
// store. The accrual engine consumes it; it never writes subscriptions,
// with the single exception of the overdue-expiry sweep.
type Directory interface {
	ListActive(ctx context.Context, asOf time.Time) ([]*Subscription, error)
	ListActiveBySubscriber(ctx context.Context, subscriberID string, asOf time.Time) ([]*Subscription, error)
	CountActive(ctx context.Context, asOf time.Time) (int64, error)
	ExpireOverdue(ctx context.Context, asOf time.Time) (int64, error)
}

type directory struct {
	db   *gorm.DB
	subs repository.Repository[Subscription]
}

type DirectoryParams struct {
	fx.In
	DB *gorm.DB
}

func NewDirectory(p DirectoryParams) Directory {
	return &directory{
		db:   p.DB,
		subs: repository.ProvideStore[Subscription](p.DB),
	}
}

func (d *directory) ListActive(ctx context.Context, asOf time.Time) ([]*Subscription, error) {
	subs, err := d.subs.Find(ctx, &Subscription{Status: StatusActive},
		option.ApplyOperator(option.Condition{
			Field:    "end_date",
			Operator: option.GTE,
			Value:    asOf,
		}),
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "created_at",
			OrderBy: "asc",
			Allow:   map[string]bool{"created_at": true},
		}),
	)
	if err != nil {
		return nil, errutil.Unavailable("failed to list active subscriptions", err)
	}
	return subs, nil
}

func (d *directory) ListActiveBySubscriber(ctx context.Context, subscriberID string, asOf time.Time) ([]*Subscription, error) {
	subs, err := d.subs.Find(ctx, &Subscription{SubscriberID: subscriberID, Status: StatusActive},
		option.ApplyOperator(option.Condition{
			Field:    "end_date",
			Operator: option.GTE,
			Value:    asOf,
		}),
	)
	if err != nil {
		return nil, errutil.Unavailable("failed to list subscriber subscriptions", err)
	}
	return subs, nil
}

func (d *directory) CountActive(ctx context.Context, asOf time.Time) (int64, error) {
	var count int64
	err := d.db.WithContext(ctx).
		Model(&Subscription{}).
		Where("status = ? AND end_date >= ?", StatusActive, asOf).
		Count(&count).Error
	if err != nil {
		return 0, errutil.Unavailable("failed to count active subscriptions", err)
	}
	return count, nil
}

// ExpireOverdue flips active subscriptions whose end_date has passed to
// expired. The daily scheduler runs it ahead of distribution so an expired
// subscription can never accrue another day.
func (d *directory) ExpireOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	res := d.db.WithContext(ctx).
		Model(&Subscription{}).
		Where("status = ? AND end_date < ?", StatusActive, asOf).
		Updates(map[string]any{
			"status":     StatusExpired,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return 0, errutil.Unavailable("failed to expire overdue subscriptions", res.Error)
	}

	if res.RowsAffected > 0 {
		zap.L().Info("expired overdue subscriptions",
			zap.Int64("count", res.RowsAffected),
			zap.Time("as_of", asOf),
		)
	}

	return res.RowsAffected, nil
}
