package subscription

import (
	"context"
	"testing"
	"time"

	"accrualplane/services/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func seedDirectory(t *testing.T) (Directory, time.Time) {
	t.Helper()
	db := testutil.NewTestDB(t, &Subscription{})
	now := time.Now()

	rows := []*Subscription{
		{ID: "sub-1", SubscriberID: "alice", PlanID: "vip", Status: StatusActive, StartDate: now.AddDate(0, -1, 0), EndDate: now.AddDate(0, 11, 0)},
		{ID: "sub-2", SubscriberID: "bob", PlanID: "starter", Status: StatusActive, StartDate: now.AddDate(0, -2, 0), EndDate: now.AddDate(0, 10, 0)},
		{ID: "sub-3", SubscriberID: "carol", PlanID: "starter", Status: StatusActive, StartDate: now.AddDate(-1, -1, 0), EndDate: now.AddDate(0, 0, -3)},
		{ID: "sub-4", SubscriberID: "dave", PlanID: "vip", Status: StatusCancelled, StartDate: now.AddDate(0, -1, 0), EndDate: now.AddDate(0, 11, 0)},
	}
	require.NoError(t, db.Create(rows).Error)

	return NewDirectory(DirectoryParams{DB: db}), now
}

func TestListActive(t *testing.T) {
	dir, now := seedDirectory(t)

	subs, err := dir.ListActive(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	for _, sub := range subs {
		require.Equal(t, StatusActive, sub.Status)
		require.False(t, sub.EndDate.Before(now))
	}
}

func TestListActiveBySubscriber(t *testing.T) {
	dir, now := seedDirectory(t)

	subs, err := dir.ListActiveBySubscriber(context.Background(), "alice", now)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	require.Equal(t, "vip", subs[0].PlanID)

	// Overdue subscription reads as inactive even before the sweep runs.
	subs, err = dir.ListActiveBySubscriber(context.Background(), "carol", now)
	require.NoError(t, err)
	require.Empty(t, subs)
}

func TestCountActive(t *testing.T) {
	dir, now := seedDirectory(t)

	count, err := dir.CountActive(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
}

func TestExpireOverdue(t *testing.T) {
	dir, now := seedDirectory(t)

	flipped, err := dir.ExpireOverdue(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, int64(1), flipped)

	// Second sweep finds nothing left to flip.
	flipped, err = dir.ExpireOverdue(context.Background(), now)
	require.NoError(t, err)
	require.Zero(t, flipped)

	count, err := dir.CountActive(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
}
