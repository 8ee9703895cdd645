package repository

import (
	"time"

	"github.com/enutrac/payments/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// subscriptionRepository implements the SubscriptionRepository interface
type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository instance
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) GetByUserID(userID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("user_id = ?", userID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// UpsertActive relies on the unique index on user_id so concurrent
// activations collapse into a single row.
func (r *subscriptionRepository) UpsertActive(userID, planID uint, endDate time.Time) (*models.Subscription, error) {
	sub := &models.Subscription{
		UserID:  userID,
		PlanID:  planID,
		Status:  models.SubscriptionStatusActive,
		EndDate: endDate,
	}
	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"plan_id",
			"status",
			"end_date",
			"updated_at",
		}),
	}).Create(sub).Error
	if err != nil {
		return nil, err
	}

	// Ensure ID is populated after upsert.
	if err := r.db.Where("user_id = ?", userID).First(sub).Error; err != nil {
		return nil, err
	}
	return sub, nil
}

func (r *subscriptionRepository) ExpireOverdue(now time.Time) (int64, error) {
	tx := r.db.Model(&models.Subscription{}).
		Where("status = ? AND end_date < ?", models.SubscriptionStatusActive, now).
		Update("status", models.SubscriptionStatusExpired)
	return tx.RowsAffected, tx.Error
}

func (r *subscriptionRepository) ListExpiringBetween(from, to time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where("status = ? AND end_date BETWEEN ? AND ?",
		models.SubscriptionStatusActive, from, to).
		Find(&subs).Error
	return subs, err
}
