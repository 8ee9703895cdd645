package models

import "time"

// Plan is a purchasable subscription plan. Price 0 marks the free tier,
// which can never go through checkout.
type Plan struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"type:varchar(100);not null" json:"name"`
	Price        float64   `gorm:"type:decimal(12,2);not null" json:"price"`
	Currency     string    `gorm:"type:varchar(8);not null;default:'ETB'" json:"currency"`
	DurationDays int       `gorm:"not null;default:30" json:"duration_days"`
	DeviceLimit  int       `gorm:"not null;default:1" json:"device_limit"`
	IsActive     bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsFree reports whether the plan is the non-payable free tier.
func (p *Plan) IsFree() bool {
	return p.Price == 0
}
