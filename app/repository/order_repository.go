package repository

import (
	"time"

	"github.com/enutrac/payments/app/models"
	"gorm.io/gorm"
)

// orderRepository implements the OrderRepository interface
type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new order repository instance
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(order *models.Order) error {
	return r.db.Create(order).Error
}

func (r *orderRepository) GetByID(id uint) (*models.Order, error) {
	var order models.Order
	if err := r.db.First(&order, id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) GetByExternalOrderID(externalOrderID string) (*models.Order, error) {
	var order models.Order
	err := r.db.Where("external_order_id = ?", externalOrderID).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) GetByUserID(userID uint, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	var orders []models.Order
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func (r *orderRepository) SetGatewaySession(id uint, sessionID string) error {
	return r.db.Model(&models.Order{}).
		Where("id = ?", id).
		Update("gateway_session_id", sessionID).Error
}

// UpdateStatusIfPending is a compare-and-set on the status column. The
// WHERE clause carries the PENDING predicate, so two racing callers cannot
// both observe "still pending": the database applies exactly one write and
// the loser sees RowsAffected == 0.
func (r *orderRepository) UpdateStatusIfPending(externalOrderID, toStatus, externalTxID string) (bool, error) {
	updates := map[string]interface{}{"status": toStatus}
	if externalTxID != "" {
		updates["external_transaction_id"] = externalTxID
	}
	tx := r.db.Model(&models.Order{}).
		Where("external_order_id = ? AND status = ?", externalOrderID, models.OrderStatusPending).
		Updates(updates)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// FailStalePending uses the same PENDING-only predicate as the dispatcher,
// so overlapping sweep runs and in-flight callbacks never double-write.
func (r *orderRepository) FailStalePending(cutoff time.Time) (int64, error) {
	tx := r.db.Model(&models.Order{}).
		Where("status = ? AND created_at < ?", models.OrderStatusPending, cutoff).
		Update("status", models.OrderStatusFailed)
	return tx.RowsAffected, tx.Error
}
