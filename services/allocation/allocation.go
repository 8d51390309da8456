package allocation

import (
	"fmt"
	"sort"

	"accrualplane/pkg/config"
	"accrualplane/pkg/errutil"

	"github.com/shopspring/decimal"
)

// ErrUnknownPlan is returned when a subscription references a plan the
// allocation table does not know. The owning subscription is excluded from
// the run; it never aborts the batch.
func ErrUnknownPlan(planID string) error {
	return errutil.UnprocessableEntity(fmt.Sprintf("unknown plan %q", planID), nil)
}

var daysPerYear = decimal.NewFromInt(365)

// Plan is one row of the allocation table.
type Plan struct {
	ID              string
	Name            string
	YearlyTokens    decimal.Decimal
	CommissionDepth int
	DailyBaseValue  decimal.Decimal
}

// RateBand assigns one commission rate to an inclusive level range.
type RateBand struct {
	FromLevel int
	ToLevel   int
	Rate      decimal.Decimal
}

// RankThreshold is one row of the rank table. Thresholds are matched
// highest rank first; all three minimums must hold.
type RankThreshold struct {
	Rank      string
	MinDirect int
	MinGroups int
	MinDepth  int
	Bonus     decimal.Decimal
}

// Snapshot is an immutable view of the business parameter tables. A batch
// run captures one snapshot up front and computes everything against it,
// so concurrent config changes cannot split a run across two rule sets.
type Snapshot struct {
	plans map[string]Plan
	rates []RateBand
	ranks []RankThreshold
}

// NewSnapshot freezes the parameter tables out of the live config.
func NewSnapshot(cfg *config.Config) (*Snapshot, error) {
	s := &Snapshot{plans: make(map[string]Plan, len(cfg.Plans))}

	for _, p := range cfg.Plans {
		yearly, err := decimal.NewFromString(p.YearlyTokens)
		if err != nil {
			return nil, fmt.Errorf("plan %s: invalid yearly tokens %q: %w", p.ID, p.YearlyTokens, err)
		}
		base, err := decimal.NewFromString(p.DailyBaseValue)
		if err != nil {
			return nil, fmt.Errorf("plan %s: invalid daily base value %q: %w", p.ID, p.DailyBaseValue, err)
		}
		s.plans[p.ID] = Plan{
			ID:              p.ID,
			Name:            p.Name,
			YearlyTokens:    yearly,
			CommissionDepth: p.CommissionDepth,
			DailyBaseValue:  base,
		}
	}

	for _, r := range cfg.CommissionRates {
		rate, err := decimal.NewFromString(r.Rate)
		if err != nil {
			return nil, fmt.Errorf("rate band %d-%d: invalid rate %q: %w", r.FromLevel, r.ToLevel, r.Rate, err)
		}
		s.rates = append(s.rates, RateBand{FromLevel: r.FromLevel, ToLevel: r.ToLevel, Rate: rate})
	}
	sort.Slice(s.rates, func(i, j int) bool { return s.rates[i].FromLevel < s.rates[j].FromLevel })

	// The fanout walk stops at the first zero-rate level, which is only
	// sound when rates never increase with depth. Reject a table that
	// breaks that ordering instead of silently skipping ancestors.
	for i, band := range s.rates {
		if band.FromLevel > band.ToLevel {
			return nil, fmt.Errorf("rate band %d-%d: inverted level range", band.FromLevel, band.ToLevel)
		}
		if i > 0 {
			prev := s.rates[i-1]
			if band.FromLevel <= prev.ToLevel {
				return nil, fmt.Errorf("rate band %d-%d: overlaps band %d-%d", band.FromLevel, band.ToLevel, prev.FromLevel, prev.ToLevel)
			}
			if band.Rate.GreaterThan(prev.Rate) {
				return nil, fmt.Errorf("rate band %d-%d: rate %s exceeds shallower band's %s", band.FromLevel, band.ToLevel, band.Rate, prev.Rate)
			}
		}
	}

	for _, r := range cfg.Ranks {
		bonus, err := decimal.NewFromString(r.Bonus)
		if err != nil {
			return nil, fmt.Errorf("rank %s: invalid bonus %q: %w", r.Rank, r.Bonus, err)
		}
		s.ranks = append(s.ranks, RankThreshold{
			Rank:      r.Rank,
			MinDirect: r.MinDirect,
			MinGroups: r.MinGroups,
			MinDepth:  r.MinDepth,
			Bonus:     bonus,
		})
	}
	// Highest bonus first; classification takes the first threshold met.
	sort.Slice(s.ranks, func(i, j int) bool { return s.ranks[i].Bonus.GreaterThan(s.ranks[j].Bonus) })

	return s, nil
}

// Plan looks up a plan by ID.
func (s *Snapshot) Plan(planID string) (Plan, error) {
	p, ok := s.plans[planID]
	if !ok {
		return Plan{}, ErrUnknownPlan(planID)
	}
	return p, nil
}

// DailyTokens returns the day's entitlement for a plan: yearly / 365,
// carried at decimal precision so a year of accruals sums back to the
// yearly amount within rounding tolerance.
func (s *Snapshot) DailyTokens(planID string) (decimal.Decimal, error) {
	p, err := s.Plan(planID)
	if err != nil {
		return decimal.Zero, err
	}
	return p.YearlyTokens.DivRound(daysPerYear, 12), nil
}

// CommissionDepth returns how many downline levels the plan's holder may
// earn on. Zero for unknown plans: an ancestor without a recognized active
// plan earns nothing, which is a data condition rather than an error.
func (s *Snapshot) CommissionDepth(planID string) int {
	if p, ok := s.plans[planID]; ok {
		return p.CommissionDepth
	}
	return 0
}

// Rate returns the commission rate for a level, zero beyond the table.
func (s *Snapshot) Rate(level int) decimal.Decimal {
	for _, band := range s.rates {
		if level >= band.FromLevel && level <= band.ToLevel {
			return band.Rate
		}
	}
	return decimal.Zero
}

// Ranks returns the rank thresholds ordered highest to lowest.
func (s *Snapshot) Ranks() []RankThreshold {
	return s.ranks
}

// Classify matches a downline shape against the rank table and returns the
// first threshold met, or nil when no rank is reached.
func (s *Snapshot) Classify(direct, groups, maxDepth int) *RankThreshold {
	for i := range s.ranks {
		t := s.ranks[i]
		if direct >= t.MinDirect && groups >= t.MinGroups && maxDepth >= t.MinDepth {
			return &t
		}
	}
	return nil
}
