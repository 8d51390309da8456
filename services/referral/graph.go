package referral

import (
	"context"

	"accrualplane/pkg/db/option"
	"accrualplane/pkg/errutil"
	"accrualplane/pkg/repository"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Graph is the membership service's referral adjacency, read-only here.
// Each call observes one consistent snapshot of the edge table; the engine
// never walks the tree itself, it consumes pre-resolved ordered chains.
type Graph interface {
	// AncestorsOf returns the subscriber's upward chain ordered by
	// ascending depth (1 = direct referrer).
	AncestorsOf(ctx context.Context, subscriberID string) ([]*Edge, error)
	// DownlineOf returns every subscriber transitively referred by the
	// given one, with depth and branch root.
	DownlineOf(ctx context.Context, subscriberID string) ([]*Edge, error)
	// Referrers returns the distinct subscriber IDs that have at least one
	// downline member, for batch rank evaluation.
	Referrers(ctx context.Context) ([]string, error)
}

type graph struct {
	db    *gorm.DB
	edges repository.Repository[Edge]
}

type GraphParams struct {
	fx.In
	DB *gorm.DB
}

func NewGraph(p GraphParams) Graph {
	return &graph{
		db:    p.DB,
		edges: repository.ProvideStore[Edge](p.DB),
	}
}

func (g *graph) AncestorsOf(ctx context.Context, subscriberID string) ([]*Edge, error) {
	edges, err := g.edges.Find(ctx, &Edge{ReferredID: subscriberID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "depth",
			OrderBy: "asc",
			Allow:   map[string]bool{"depth": true},
		}),
	)
	if err != nil {
		return nil, errutil.Unavailable("failed to resolve ancestor chain", err)
	}
	return edges, nil
}

func (g *graph) DownlineOf(ctx context.Context, subscriberID string) ([]*Edge, error) {
	edges, err := g.edges.Find(ctx, &Edge{ReferrerID: subscriberID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "depth",
			OrderBy: "asc",
			Allow:   map[string]bool{"depth": true},
		}),
	)
	if err != nil {
		return nil, errutil.Unavailable("failed to resolve downline", err)
	}
	return edges, nil
}

func (g *graph) Referrers(ctx context.Context) ([]string, error) {
	var ids []string
	err := g.db.WithContext(ctx).
		Model(&Edge{}).
		Distinct("referrer_id").
		Pluck("referrer_id", &ids).Error
	if err != nil {
		return nil, errutil.Unavailable("failed to list referrers", err)
	}
	return ids, nil
}
