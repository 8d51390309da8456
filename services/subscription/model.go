package subscription

import (
	"time"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

func (s Status) String() string {
	switch s {
	case StatusActive, StatusExpired, StatusCancelled:
		return string(s)
	default:
		return ""
	}
}

// Subscription is created by the purchase flow and read-only to the accrual
// engine. Only active rows whose end_date has not passed are eligible for
// the daily entitlement.
type Subscription struct {
	ID           string    `gorm:"column:id;primaryKey"`
	SubscriberID string    `gorm:"column:subscriber_id;index;not null"`
	PlanID       string    `gorm:"column:plan_id;index;not null"`
	PlanName     string    `gorm:"column:plan_name"`
	Status       Status    `gorm:"column:status;type:varchar(20);index;not null"`
	StartDate    time.Time `gorm:"column:start_date"`
	EndDate      time.Time `gorm:"column:end_date;index"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}
