package rankbonus

import (
	"context"
	"fmt"
	"testing"

	"accrualplane/pkg/config"
	"accrualplane/services/allocation"
	"accrualplane/services/referral"
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

func newService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t, &Record{}, &referral.Edge{})

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	snap, err := allocation.NewSnapshot(cfg)
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(ServiceParams{
		DB:       db,
		Snapshot: snap,
		Graph:    referral.NewGraph(referral.GraphParams{DB: db}),
		Node:     node,
	})
	return svc, db
}

// seedDownline gives root `direct` children, each heading their own branch,
// and one grandchild under the first branch when depth 2 is wanted.
func seedDownline(t *testing.T, db *gorm.DB, root string, direct, depth int) {
	t.Helper()
	var edges []*referral.Edge
	for i := 0; i < direct; i++ {
		child := fmt.Sprintf("%s-child-%d", root, i)
		edges = append(edges, &referral.Edge{
			ID:         fmt.Sprintf("%s-e1-%d", root, i),
			ReferrerID: root,
			ReferredID: child,
			Depth:      1,
			BranchRoot: child,
		})
	}
	if depth >= 2 && direct > 0 {
		edges = append(edges, &referral.Edge{
			ID:         root + "-e2",
			ReferrerID: root,
			ReferredID: root + "-grandchild",
			Depth:      2,
			BranchRoot: root + "-child-0",
		})
	}
	require.NoError(t, db.Create(edges).Error)
}

func TestEvaluatePaysMatchingRank(t *testing.T) {
	svc, db := newService(t)
	seedDownline(t, db, "root", 5, 2)

	record, err := svc.Evaluate(context.Background(), "root", "2026-07")
	require.NoError(t, err)
	require.Equal(t, StatusPaid, record.Status)
	require.Equal(t, "silver", record.Rank)
	require.Equal(t, 5, record.DirectCount)
	require.Equal(t, 5, record.GroupCount)
	require.Equal(t, 2, record.MaxDepth)

	// The bonus settles half per denomination, exactly.
	bonus := decimal.NewFromInt(2484)
	require.True(t, record.TokenAAmount.Add(record.TokenBAmount).Equal(bonus))
	require.True(t, record.TokenAAmount.Equal(decimal.NewFromInt(1242)))
}

func TestEvaluateNoRankIsTerminal(t *testing.T) {
	svc, db := newService(t)
	seedDownline(t, db, "root", 2, 1)
	ctx := context.Background()

	record, err := svc.Evaluate(ctx, "root", "2026-07")
	require.NoError(t, err)
	require.Equal(t, StatusEvaluatedNoRank, record.Status)
	require.Empty(t, record.Rank)
	require.True(t, record.TokenAAmount.IsZero())

	// Growing the downline later never reopens a settled month.
	for i := 2; i < 6; i++ {
		child := fmt.Sprintf("root-child-%d", i)
		require.NoError(t, db.Create(&referral.Edge{
			ID: fmt.Sprintf("late-%d", i), ReferrerID: "root", ReferredID: child, Depth: 1, BranchRoot: child,
		}).Error)
	}

	again, err := svc.Evaluate(ctx, "root", "2026-07")
	require.NoError(t, err)
	require.Equal(t, record.ID, again.ID)
	require.Equal(t, StatusEvaluatedNoRank, again.Status)

	// The next month sees the grown downline.
	next, err := svc.Evaluate(ctx, "root", "2026-08")
	require.NoError(t, err)
	require.Equal(t, StatusPaid, next.Status)
}

func TestEvaluateIdempotentPayout(t *testing.T) {
	svc, db := newService(t)
	seedDownline(t, db, "root", 12, 2)
	ctx := context.Background()

	first, err := svc.Evaluate(ctx, "root", "2026-07")
	require.NoError(t, err)
	require.Equal(t, StatusPaid, first.Status)

	second, err := svc.Evaluate(ctx, "root", "2026-07")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&Record{}).Where("subscriber_id = ?", "root").Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestEvaluateRejectsBadMonth(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Evaluate(context.Background(), "root", "July 2026")
	require.Error(t, err)
}

func TestEvaluateAllSweepsManyReferrers(t *testing.T) {
	svc, db := newService(t)
	for i := 0; i < 10; i++ {
		seedDownline(t, db, fmt.Sprintf("ref-%d", i), 5, 2)
	}

	summary, err := svc.EvaluateAll(context.Background(), "2026-07")
	require.NoError(t, err)
	require.Equal(t, int64(10), summary.Evaluated)
	require.Equal(t, int64(10), summary.Paid)
	require.Zero(t, summary.Failed)

	var count int64
	require.NoError(t, db.Model(&Record{}).Count(&count).Error)
	require.Equal(t, int64(10), count)
}

func TestEvaluateAll(t *testing.T) {
	svc, db := newService(t)
	seedDownline(t, db, "big", 12, 2)
	seedDownline(t, db, "small", 1, 1)

	summary, err := svc.EvaluateAll(context.Background(), "2026-07")
	require.NoError(t, err)
	require.Equal(t, int64(2), summary.Evaluated)
	require.Equal(t, int64(1), summary.Paid)
	require.Zero(t, summary.Failed)

	var paid []Record
	require.NoError(t, db.Where("status = ?", StatusPaid).Find(&paid).Error)
	require.Len(t, paid, 1)
	require.Equal(t, "big", paid[0].SubscriberID)
}
