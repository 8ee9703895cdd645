package repository

import (
	"time"

	"github.com/enutrac/payments/app/models"
)

// OrderRepository defines the database operations for payment orders.
// UpdateStatusIfPending is the single mutation path for order status: it is
// a conditional update that only fires while the order is still PENDING, so
// concurrent callbacks and sweeper runs linearize on the database row.
type OrderRepository interface {
	Create(order *models.Order) error
	GetByID(id uint) (*models.Order, error)
	GetByExternalOrderID(externalOrderID string) (*models.Order, error)
	GetByUserID(userID uint, limit int) ([]models.Order, error)
	SetGatewaySession(id uint, sessionID string) error
	// UpdateStatusIfPending sets the order to a terminal status only if it
	// is still PENDING. Returns true when this call performed the write.
	UpdateStatusIfPending(externalOrderID, toStatus, externalTxID string) (bool, error)
	// FailStalePending transitions every PENDING order created before the
	// cutoff to FAILED and returns the number of rows affected.
	FailStalePending(cutoff time.Time) (int64, error)
}

// SubscriptionRepository defines the database operations for subscriptions.
type SubscriptionRepository interface {
	GetByUserID(userID uint) (*models.Subscription, error)
	// UpsertActive creates or replaces the user's subscription row with an
	// ACTIVE subscription on the given plan ending at endDate.
	UpsertActive(userID, planID uint, endDate time.Time) (*models.Subscription, error)
	// ExpireOverdue flips ACTIVE subscriptions whose endDate has passed to
	// EXPIRED and returns the number of rows affected.
	ExpireOverdue(now time.Time) (int64, error)
	// ListExpiringBetween returns ACTIVE subscriptions ending in [from, to].
	ListExpiringBetween(from, to time.Time) ([]models.Subscription, error)
}

// PlanRepository defines read access to subscription plans.
type PlanRepository interface {
	GetByID(id uint) (*models.Plan, error)
	GetActive() ([]models.Plan, error)
}

// SettingRepository defines the interface for runtime settings.
type SettingRepository interface {
	GetValue(key string) (string, error)
	SetValue(key, value string) error
}
