package rankbonus

import (
	"context"
	"sync/atomic"
	"time"

	"accrualplane/pkg/errutil"
	"accrualplane/pkg/repository"
	"accrualplane/services/allocation"
	"accrualplane/services/referral"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const monthLayout = "2006-01"

// sweepConcurrency bounds the per-subscriber workers of one monthly sweep.
const sweepConcurrency = 4

var two = decimal.NewFromInt(2)

// Summary is the outcome of one monthly evaluation sweep.
type Summary struct {
	Month     string `json:"month"`
	Evaluated int64  `json:"evaluated"`
	Paid      int64  `json:"paid"`
	Failed    int64  `json:"failed"`
}

type Service interface {
	// Evaluate measures the subscriber's downline shape for a month and
	// settles the matching bonus, if any. The first evaluation of a month
	// is terminal; later calls return the recorded outcome unchanged.
	Evaluate(ctx context.Context, subscriberID, month string) (*Record, error)
	// EvaluateAll sweeps every subscriber that has a downline.
	EvaluateAll(ctx context.Context, month string) (*Summary, error)
}

type service struct {
	db       *gorm.DB
	records  repository.Repository[Record]
	snapshot *allocation.Snapshot
	graph    referral.Graph
	node     *snowflake.Node
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Snapshot *allocation.Snapshot
	Graph    referral.Graph
	Node     *snowflake.Node
}

func NewService(p ServiceParams) Service {
	return &service{
		db:       p.DB,
		records:  repository.ProvideStore[Record](p.DB),
		snapshot: p.Snapshot,
		graph:    p.Graph,
		node:     p.Node,
	}
}

func (s *service) Evaluate(ctx context.Context, subscriberID, month string) (*Record, error) {
	if _, err := time.Parse(monthLayout, month); err != nil {
		return nil, errutil.BadRequest("invalid month, expected YYYY-MM", err)
	}

	existing, err := s.records.FindOne(ctx, &Record{SubscriberID: subscriberID, Month: month})
	if err != nil {
		return nil, errutil.Unavailable("failed to load rank bonus record", err)
	}
	if existing != nil {
		return existing, nil
	}

	downline, err := s.graph.DownlineOf(ctx, subscriberID)
	if err != nil {
		return nil, err
	}

	direct, groups, maxDepth := measure(downline)

	record := &Record{
		ID:           s.node.Generate().String(),
		SubscriberID: subscriberID,
		Month:        month,
		Status:       StatusEvaluatedNoRank,
		TokenAAmount: decimal.Zero,
		TokenBAmount: decimal.Zero,
		DirectCount:  direct,
		GroupCount:   groups,
		MaxDepth:     maxDepth,
		CreatedAt:    time.Now(),
	}

	if threshold := s.snapshot.Classify(direct, groups, maxDepth); threshold != nil {
		// The bonus settles half in each token denomination.
		half := threshold.Bonus.DivRound(two, 12)
		record.Rank = threshold.Rank
		record.Status = StatusPaid
		record.TokenAAmount = half
		record.TokenBAmount = threshold.Bonus.Sub(half)
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(record)
	if res.Error != nil {
		return nil, errutil.Unavailable("failed to write rank bonus record", res.Error)
	}
	if res.RowsAffected == 0 {
		// Lost a concurrent race for the month; the winner's outcome holds.
		existing, err := s.records.FindOne(ctx, &Record{SubscriberID: subscriberID, Month: month})
		if err != nil {
			return nil, errutil.Unavailable("failed to reload rank bonus record", err)
		}
		return existing, nil
	}

	if record.Status == StatusPaid {
		zap.L().Info("rank bonus settled",
			zap.String("subscriber_id", subscriberID),
			zap.String("month", month),
			zap.String("rank", record.Rank),
			zap.String("token_a", record.TokenAAmount.String()),
			zap.String("token_b", record.TokenBAmount.String()),
		)
	}
	return record, nil
}

func (s *service) EvaluateAll(ctx context.Context, month string) (*Summary, error) {
	if _, err := time.Parse(monthLayout, month); err != nil {
		return nil, errutil.BadRequest("invalid month, expected YYYY-MM", err)
	}

	referrers, err := s.graph.Referrers(ctx)
	if err != nil {
		return nil, err
	}

	var evaluated, paid, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, id := range referrers {
		id := id
		g.Go(func() error {
			record, err := s.Evaluate(gctx, id, month)
			if err != nil {
				failed.Add(1)
				zap.L().Error("rank evaluation failed",
					zap.String("subscriber_id", id),
					zap.String("month", month),
					zap.Error(err),
				)
				return nil
			}
			evaluated.Add(1)
			if record.Status == StatusPaid {
				paid.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := &Summary{
		Month:     month,
		Evaluated: evaluated.Load(),
		Paid:      paid.Load(),
		Failed:    failed.Load(),
	}

	zap.L().Info("monthly rank evaluation finished",
		zap.String("month", month),
		zap.Int64("evaluated", summary.Evaluated),
		zap.Int64("paid", summary.Paid),
		zap.Int64("failed", summary.Failed),
	)
	return summary, nil
}

// measure derives the downline shape: direct referral count, distinct
// depth-1 branches with members, and the deepest level reached.
func measure(downline []*referral.Edge) (direct, groups, maxDepth int) {
	branches := make(map[string]struct{})
	for _, edge := range downline {
		if edge.Depth == 1 {
			direct++
		}
		if edge.BranchRoot != "" {
			branches[edge.BranchRoot] = struct{}{}
		}
		if edge.Depth > maxDepth {
			maxDepth = edge.Depth
		}
	}
	return direct, len(branches), maxDepth
}
