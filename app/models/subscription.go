package models

import "time"

const (
	SubscriptionStatusActive  = "ACTIVE"
	SubscriptionStatusExpired = "EXPIRED"
)

// Subscription holds the single active subscription per user. It is only
// mutated by a completed order (create-or-extend) or by the expiry job.
type Subscription struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex" json:"user_id"`
	PlanID    uint      `gorm:"not null" json:"plan_id"`
	Status    string    `gorm:"type:varchar(16);not null;default:'ACTIVE';index" json:"status"`
	EndDate   time.Time `gorm:"not null;index" json:"end_date"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// DaysRemaining returns the whole days left until the subscription ends,
// never negative.
func (s *Subscription) DaysRemaining(now time.Time) int {
	if !s.EndDate.After(now) {
		return 0
	}
	return int(s.EndDate.Sub(now).Hours()/24) + 1
}
