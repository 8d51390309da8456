package distribution

import (
	"context"
	"testing"
	"time"

	"accrualplane/pkg/config"
	"accrualplane/services/allocation"
	"accrualplane/services/commission"
	"accrualplane/services/referral"
	"accrualplane/services/subscription"
	"accrualplane/services/testutil"
	"accrualplane/services/wallet"

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
	db       *gorm.DB
	svc      Service
	wallets  wallet.Service
	snapshot *allocation.Snapshot
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t,
		&Record{},
		&commission.Record{},
		&referral.Edge{},
		&subscription.Subscription{},
		&wallet.Wallet{},
	)

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	snap, err := allocation.NewSnapshot(cfg)
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	graph := referral.NewGraph(referral.GraphParams{DB: db})
	subs := subscription.NewDirectory(subscription.DirectoryParams{DB: db})
	wallets := wallet.NewService(wallet.ServiceParams{DB: db, Ledger: NewLedger(db)})
	commissions := commission.NewService(commission.ServiceParams{
		DB:       db,
		Snapshot: snap,
		Graph:    graph,
		Subs:     subs,
		Node:     node,
	})

	svc := NewService(ServiceParams{
		DB:          db,
		Snapshot:    snap,
		Subs:        subs,
		Wallets:     wallets,
		Commissions: commissions,
		Node:        node,
	})
	return &fixture{db: db, svc: svc, wallets: wallets, snapshot: snap}
}

func (f *fixture) seedSubscription(t *testing.T, id, subscriber, plan string) {
	t.Helper()
	now := time.Now()
	require.NoError(t, f.db.Create(&subscription.Subscription{
		ID:           id,
		SubscriberID: subscriber,
		PlanID:       plan,
		Status:       subscription.StatusActive,
		StartDate:    now.AddDate(0, -1, 0),
		EndDate:      now.AddDate(1, 0, 0),
	}).Error)
}

func TestRunCreditsEachActiveSubscription(t *testing.T) {
	f := newFixture(t)
	f.seedSubscription(t, "s-1", "alice", "starter")
	f.seedSubscription(t, "s-2", "bob", "vip")

	summary, err := f.svc.Run(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(2), summary.Created)
	require.Zero(t, summary.Skipped)
	require.Zero(t, summary.Failed)

	daily, err := f.snapshot.DailyTokens("vip")
	require.NoError(t, err)

	w, err := f.wallets.Balance(context.Background(), "bob")
	require.NoError(t, err)
	require.True(t, w.TokenBalance.Equal(daily), "got %s want %s", w.TokenBalance, daily)
}

func TestRunIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.seedSubscription(t, "s-1", "alice", "starter")
	asOf := time.Now()
	ctx := context.Background()

	first, err := f.svc.Run(ctx, asOf)
	require.NoError(t, err)
	require.Equal(t, int64(1), first.Created)

	// Replaying the same day neither double-writes nor double-credits.
	second, err := f.svc.Run(ctx, asOf)
	require.NoError(t, err)
	require.Zero(t, second.Created)
	require.Equal(t, int64(1), second.Skipped)

	var count int64
	require.NoError(t, f.db.Model(&Record{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	daily, err := f.snapshot.DailyTokens("starter")
	require.NoError(t, err)
	w, err := f.wallets.Balance(ctx, "alice")
	require.NoError(t, err)
	require.True(t, w.TokenBalance.Equal(daily))
}

func TestRunOverDaysIsLinear(t *testing.T) {
	f := newFixture(t)
	f.seedSubscription(t, "s-1", "alice", "starter")
	ctx := context.Background()

	start := time.Now()
	for day := 0; day < 3; day++ {
		_, err := f.svc.Run(ctx, start.AddDate(0, 0, day))
		require.NoError(t, err)
	}

	daily, err := f.snapshot.DailyTokens("starter")
	require.NoError(t, err)

	w, err := f.wallets.Balance(ctx, "alice")
	require.NoError(t, err)
	require.True(t, w.TokenBalance.Equal(daily.Mul(decimal.NewFromInt(3))), "got %s", w.TokenBalance)
}

func TestRunExcludesUnknownPlan(t *testing.T) {
	f := newFixture(t)
	f.seedSubscription(t, "s-1", "alice", "starter")
	f.seedSubscription(t, "s-2", "bob", "ghost")

	summary, err := f.svc.Run(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(1), summary.Created)
	require.Equal(t, int64(1), summary.Failed)

	// The unknown plan neither wrote a record nor touched a wallet.
	w, err := f.wallets.Balance(context.Background(), "bob")
	require.NoError(t, err)
	require.True(t, w.TokenBalance.IsZero())
}

func TestRunFansOutCommissions(t *testing.T) {
	f := newFixture(t)
	f.seedSubscription(t, "s-1", "alice", "vip")
	f.seedSubscription(t, "s-2", "ref", "vip")
	require.NoError(t, f.db.Create(&referral.Edge{
		ID: "e-1", ReferrerID: "ref", ReferredID: "alice", Depth: 1, BranchRoot: "alice",
	}).Error)

	_, err := f.svc.Run(context.Background(), time.Now())
	require.NoError(t, err)

	var records []commission.Record
	require.NoError(t, f.db.Where("earner_id = ?", "ref").Find(&records).Error)
	require.Len(t, records, 1)
	require.Equal(t, 1, records[0].Level)
	require.True(t, records[0].Amount.Equal(decimal.RequireFromString("0.044")))
}

func TestRunRepaysFanoutLostToGraphOutage(t *testing.T) {
	f := newFixture(t)
	f.seedSubscription(t, "s-1", "alice", "vip")
	f.seedSubscription(t, "s-2", "ref", "vip")
	asOf := time.Now()
	ctx := context.Background()

	// The graph is down while the day settles: accruals commit, fanout
	// fails.
	require.NoError(t, f.db.Migrator().DropTable(&referral.Edge{}))

	summary, err := f.svc.Run(ctx, asOf)
	require.NoError(t, err)
	require.Equal(t, int64(2), summary.Created)

	var count int64
	require.NoError(t, f.db.Model(&commission.Record{}).Count(&count).Error)
	require.Zero(t, count)

	// Graph comes back; replaying the settled day repays the fanout even
	// though every accrual is skipped.
	require.NoError(t, f.db.AutoMigrate(&referral.Edge{}))
	require.NoError(t, f.db.Create(&referral.Edge{
		ID: "e-1", ReferrerID: "ref", ReferredID: "alice", Depth: 1, BranchRoot: "alice",
	}).Error)

	summary, err = f.svc.Run(ctx, asOf)
	require.NoError(t, err)
	require.Zero(t, summary.Created)
	require.Equal(t, int64(2), summary.Skipped)

	var records []commission.Record
	require.NoError(t, f.db.Where("earner_id = ?", "ref").Find(&records).Error)
	require.Len(t, records, 1)
	require.Equal(t, 1, records[0].Level)

	// A third replay changes nothing: already-paid levels are no-ops.
	_, err = f.svc.Run(ctx, asOf)
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&commission.Record{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	f.seedSubscription(t, "s-1", "alice", "starter")
	f.seedSubscription(t, "s-2", "bob", "vip")
	asOf := time.Now()
	date := asOf.Format("2006-01-02")
	ctx := context.Background()

	status, err := f.svc.Status(ctx, date)
	require.NoError(t, err)
	require.Zero(t, status.Records)
	require.Equal(t, int64(2), status.ActiveSubscriptions)
	require.False(t, status.Complete)

	_, err = f.svc.Run(ctx, asOf)
	require.NoError(t, err)

	status, err = f.svc.Status(ctx, date)
	require.NoError(t, err)
	require.Equal(t, int64(2), status.Records)
	require.InDelta(t, 100.0, status.CoveragePct, 1e-9)
	require.True(t, status.Complete)
}

func TestStatusRejectsBadDate(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Status(context.Background(), "31-12-2025")
	require.Error(t, err)
}

func TestLedgerSum(t *testing.T) {
	f := newFixture(t)
	f.seedSubscription(t, "s-1", "alice", "starter")
	ctx := context.Background()

	_, err := f.svc.Run(ctx, time.Now())
	require.NoError(t, err)

	daily, err := f.snapshot.DailyTokens("starter")
	require.NoError(t, err)

	total, err := NewLedger(f.db).SumBySubscriber(ctx, "alice")
	require.NoError(t, err)
	require.True(t, total.Equal(daily))

	total, err = NewLedger(f.db).SumBySubscriber(ctx, "nobody")
	require.NoError(t, err)
	require.True(t, total.IsZero())
}
