package commission

import (
	"context"
	"testing"
	"time"

	"accrualplane/pkg/config"
	"accrualplane/services/allocation"
	"accrualplane/services/referral"
	"accrualplane/services/subscription"
	"accrualplane/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fixture struct {
	db  *gorm.DB
	svc Service
}

// newFixture wires a real graph, directory and snapshot over sqlite with a
// four-deep chain: root ← a ← b ← c. Plans gate how deep each may earn.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t, &Record{}, &referral.Edge{}, &subscription.Subscription{})

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	snap, err := allocation.NewSnapshot(cfg)
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	now := time.Now()
	edges := []*referral.Edge{
		{ID: "e-1", ReferrerID: "b", ReferredID: "c", Depth: 1, BranchRoot: "c"},
		{ID: "e-2", ReferrerID: "a", ReferredID: "c", Depth: 2, BranchRoot: "b"},
		{ID: "e-3", ReferrerID: "root", ReferredID: "c", Depth: 3, BranchRoot: "a"},
	}
	require.NoError(t, db.Create(edges).Error)

	subs := []*subscription.Subscription{
		// b may only earn one level below themselves.
		{ID: "s-b", SubscriberID: "b", PlanID: "starter", Status: subscription.StatusActive, EndDate: now.AddDate(1, 0, 0)},
		// a holds no active plan at all.
		{ID: "s-a", SubscriberID: "a", PlanID: "vip", Status: subscription.StatusExpired, EndDate: now.AddDate(0, 0, -1)},
		// root earns on the full depth.
		{ID: "s-root", SubscriberID: "root", PlanID: "vip", Status: subscription.StatusActive, EndDate: now.AddDate(1, 0, 0)},
	}
	require.NoError(t, db.Create(subs).Error)

	svc := NewService(ServiceParams{
		DB:       db,
		Snapshot: snap,
		Graph:    referral.NewGraph(referral.GraphParams{DB: db}),
		Subs:     subscription.NewDirectory(subscription.DirectoryParams{DB: db}),
		Node:     node,
	})
	return &fixture{db: db, svc: svc}
}

func event() AccrualEvent {
	return AccrualEvent{
		EventID:      "accrual-1",
		SubscriberID: "c",
		PlanID:       "vip",
		AccrualDate:  time.Now().Format("2006-01-02"),
	}
}

func TestPropagateGatesOnOwnTier(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.Propagate(context.Background(), event())
	require.NoError(t, err)
	require.Equal(t, 2, result.Created)
	require.Equal(t, 1, result.Skipped)
	require.Zero(t, result.Failed)

	var records []Record
	require.NoError(t, f.db.Order("level asc").Find(&records).Error)
	require.Len(t, records, 2)

	// b earns level 1 at 10% of the base value.
	require.Equal(t, "b", records[0].EarnerID)
	require.Equal(t, 1, records[0].Level)
	require.True(t, records[0].Amount.Equal(decimal.RequireFromString("0.044")), "got %s", records[0].Amount)

	// a is ineligible at level 2, yet root still earns level 3.
	require.Equal(t, "root", records[1].EarnerID)
	require.Equal(t, 3, records[1].Level)
	require.True(t, records[1].Amount.Equal(decimal.RequireFromString("0.022")), "got %s", records[1].Amount)
}

func TestPropagateReplayIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Propagate(ctx, event())
	require.NoError(t, err)
	require.Equal(t, 2, first.Created)

	second, err := f.svc.Propagate(ctx, event())
	require.NoError(t, err)
	require.Zero(t, second.Created)
	require.Equal(t, 3, second.Skipped)

	var count int64
	require.NoError(t, f.db.Model(&Record{}).Count(&count).Error)
	require.Equal(t, int64(2), count)
}

func TestPropagateStopsPastRateTable(t *testing.T) {
	f := newFixture(t)

	// An ancestor beyond the deepest rate band ends the walk.
	require.NoError(t, f.db.Create(&referral.Edge{
		ID: "e-deep", ReferrerID: "ancient", ReferredID: "c", Depth: 16, BranchRoot: "a",
	}).Error)

	result, err := f.svc.Propagate(context.Background(), event())
	require.NoError(t, err)
	require.Equal(t, 2, result.Created)

	var count int64
	require.NoError(t, f.db.Model(&Record{}).Where("earner_id = ?", "ancient").Count(&count).Error)
	require.Zero(t, count)
}

func TestPropagateUnknownPlan(t *testing.T) {
	f := newFixture(t)

	bad := event()
	bad.PlanID = "ghost"
	_, err := f.svc.Propagate(context.Background(), bad)
	require.Error(t, err)
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Propagate(ctx, event())
	require.NoError(t, err)

	summary, err := f.svc.Summary(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, int64(1), summary.Entries)
	require.True(t, summary.TotalEarned.Equal(decimal.RequireFromString("0.044")))
	require.Len(t, summary.ByLevel, 1)
	require.Equal(t, 1, summary.ByLevel[0].Level)

	// An earner with no records reads as an empty summary, not an error.
	summary, err = f.svc.Summary(ctx, "a")
	require.NoError(t, err)
	require.Zero(t, summary.Entries)
	require.True(t, summary.TotalEarned.IsZero())
}
