package referral

import (
	"time"
)

// Edge is one referrer→referred relationship. Depth is the shortest-path
// distance in the referral tree; depth 1 is a direct referral. BranchRoot
// is the depth-1 ancestor under the referrer whose subtree contains the
// referred subscriber, used to partition a downline into groups.
type Edge struct {
	ID         string    `gorm:"column:id;primaryKey"`
	ReferrerID string    `gorm:"column:referrer_id;index:idx_referral_pair;not null"`
	ReferredID string    `gorm:"column:referred_id;index:idx_referral_pair;not null"`
	Depth      int       `gorm:"column:depth;not null"`
	BranchRoot string    `gorm:"column:branch_root;index"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (Edge) TableName() string {
	return "referral_edges"
}
