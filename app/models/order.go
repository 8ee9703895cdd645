package models

import "time"

// Payment gateway identifiers used across order-related models.
const (
	GatewayTelebirr = "telebirr"
	GatewayStripe   = "stripe"
)

// Order statuses. PENDING is the only non-terminal state; an order is
// mutated to exactly one of the terminal states and never leaves it.
const (
	OrderStatusPending   = "PENDING"
	OrderStatusCompleted = "COMPLETED"
	OrderStatusFailed    = "FAILED"
	OrderStatusCancelled = "CANCELLED"
)

// Order tracks one checkout attempt and its resolution. ExternalOrderID is
// the merchant-visible id shared with the gateway; the gateway reports it
// back in callbacks.
type Order struct {
	ID                    uint      `gorm:"primaryKey" json:"id"`
	ExternalOrderID       string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"external_order_id"`
	UserID                uint      `gorm:"not null;index" json:"user_id"`
	CustomerEmail         string    `gorm:"type:varchar(200);default:''" json:"customer_email"`
	PlanID                uint      `gorm:"not null" json:"plan_id"`
	Amount                float64   `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency              string    `gorm:"type:varchar(8);not null;default:'ETB'" json:"currency"`
	Gateway               string    `gorm:"type:varchar(20);not null;index" json:"gateway"`
	Status                string    `gorm:"type:varchar(16);not null;default:'PENDING';index:idx_orders_status_created,priority:1" json:"status"`
	ExternalTransactionID string    `gorm:"type:varchar(191);default:''" json:"external_transaction_id"`
	GatewaySessionID      string    `gorm:"type:varchar(191);default:''" json:"gateway_session_id"`
	CreatedAt             time.Time `gorm:"autoCreateTime;index:idx_orders_status_created,priority:2" json:"created_at"`
	UpdatedAt             time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal reports whether the order has reached an absorbing state.
func (o *Order) IsTerminal() bool {
	return o.Status != OrderStatusPending
}
