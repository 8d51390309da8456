package wallet

import (
	"context"
	"testing"

	"accrualplane/services/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type ledgerStub struct {
	totals map[string]decimal.Decimal
}

func (l *ledgerStub) SumBySubscriber(ctx context.Context, subscriberID string) (decimal.Decimal, error) {
	return l.totals[subscriberID], nil
}

func TestCreditCreatesAndIncrements(t *testing.T) {
	db := testutil.NewTestDB(t, &Wallet{})
	svc := NewService(ServiceParams{DB: db, Ledger: &ledgerStub{}})
	ctx := context.Background()

	require.NoError(t, svc.Credit(ctx, nil, "alice", decimal.RequireFromString("1.25")))
	require.NoError(t, svc.Credit(ctx, nil, "alice", decimal.RequireFromString("0.75")))

	w, err := svc.Balance(ctx, "alice")
	require.NoError(t, err)
	require.True(t, w.TokenBalance.Equal(decimal.NewFromInt(2)), "got %s", w.TokenBalance)
}

func TestBalanceUnknownSubscriber(t *testing.T) {
	db := testutil.NewTestDB(t, &Wallet{})
	svc := NewService(ServiceParams{DB: db, Ledger: &ledgerStub{}})

	w, err := svc.Balance(context.Background(), "nobody")
	require.NoError(t, err)
	require.True(t, w.TokenBalance.IsZero())
}

func TestReconcileRepairsDrift(t *testing.T) {
	db := testutil.NewTestDB(t, &Wallet{})
	ledger := &ledgerStub{totals: map[string]decimal.Decimal{
		"alice": decimal.RequireFromString("10.5"),
	}}
	svc := NewService(ServiceParams{DB: db, Ledger: ledger})
	ctx := context.Background()

	// Cache holds a corrupted figure.
	require.NoError(t, svc.Credit(ctx, nil, "alice", decimal.NewFromInt(7)))

	result, err := svc.Reconcile(ctx, "alice")
	require.NoError(t, err)
	require.True(t, result.Corrected)
	require.True(t, result.Drift.Equal(decimal.RequireFromString("3.5")), "got %s", result.Drift)

	w, err := svc.Balance(ctx, "alice")
	require.NoError(t, err)
	require.True(t, w.TokenBalance.Equal(decimal.RequireFromString("10.5")))
	require.NotNil(t, w.LastReconciledAt)

	// The fixpoint: an unchanged ledger yields no further correction.
	result, err = svc.Reconcile(ctx, "alice")
	require.NoError(t, err)
	require.False(t, result.Corrected)
	require.True(t, result.Drift.IsZero())
}

func TestReconcileCreatesMissingWallet(t *testing.T) {
	db := testutil.NewTestDB(t, &Wallet{})
	ledger := &ledgerStub{totals: map[string]decimal.Decimal{
		"bob": decimal.RequireFromString("4.2"),
	}}
	svc := NewService(ServiceParams{DB: db, Ledger: ledger})

	result, err := svc.Reconcile(context.Background(), "bob")
	require.NoError(t, err)
	require.True(t, result.Corrected)

	w, err := svc.Balance(context.Background(), "bob")
	require.NoError(t, err)
	require.True(t, w.TokenBalance.Equal(decimal.RequireFromString("4.2")))
}

func TestReconcileToleratesRoundingNoise(t *testing.T) {
	db := testutil.NewTestDB(t, &Wallet{})
	ledger := &ledgerStub{totals: map[string]decimal.Decimal{
		"carol": decimal.RequireFromString("1.0000000000005"),
	}}
	svc := NewService(ServiceParams{DB: db, Ledger: ledger})
	ctx := context.Background()

	require.NoError(t, svc.Credit(ctx, nil, "carol", decimal.NewFromInt(1)))

	result, err := svc.Reconcile(ctx, "carol")
	require.NoError(t, err)
	require.False(t, result.Corrected)
}
