package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"kelasku_app/internal/models"
)

// TransactionStore is the durable record of purchase intents. All status
// mutation goes through the conditional Mark* operations: each one is an
// atomic compare-and-set guarded on status = pending, and the returned
// bool is the "did I win the race" signal. Only the winner of a paid CAS
// may run activation and notification.
type TransactionStore interface {
	Create(ctx context.Context, trx *models.Transaction) error
	FindByID(ctx context.Context, id uint) (*models.Transaction, error)
	FindByReference(ctx context.Context, reference string) (*models.Transaction, error)

	// SaveRawPayload overwrites the stored callback snapshot. It runs on
	// every delivery, independent of whether the status changes.
	SaveRawPayload(ctx context.Context, id uint, payload json.RawMessage) error

	MarkPaid(ctx context.Context, id uint, paidAt time.Time) (bool, error)
	MarkExpired(ctx context.Context, id uint, expiredAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, id uint, notes string) (bool, error)

	RecordCallback(ctx context.Context, history *models.PaymentCallbackHistory) error

	// FindStalePending lists gateway transactions still pending past the
	// cutoff, for the expiry sweep
	FindStalePending(ctx context.Context, cutoff time.Time) ([]models.Transaction, error)
}

// GormTransactionStore implements TransactionStore on PostgreSQL
type GormTransactionStore struct {
	db *gorm.DB
}

// NewGormTransactionStore creates a transaction store backed by gorm
func NewGormTransactionStore(db *gorm.DB) *GormTransactionStore {
	return &GormTransactionStore{db: db}
}

func (s *GormTransactionStore) Create(ctx context.Context, trx *models.Transaction) error {
	return s.db.WithContext(ctx).Create(trx).Error
}

func (s *GormTransactionStore) FindByID(ctx context.Context, id uint) (*models.Transaction, error) {
	var trx models.Transaction
	err := s.db.WithContext(ctx).Preload("User").Preload("Course").First(&trx, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &trx, nil
}

func (s *GormTransactionStore) FindByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	var trx models.Transaction
	err := s.db.WithContext(ctx).Preload("User").Preload("Course").
		Where("reference = ?", reference).First(&trx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &trx, nil
}

func (s *GormTransactionStore) SaveRawPayload(ctx context.Context, id uint, payload json.RawMessage) error {
	return s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ?", id).
		Update("raw_payload", payload).Error
}

func (s *GormTransactionStore) MarkPaid(ctx context.Context, id uint, paidAt time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, models.TransactionStatusPending).
		Updates(map[string]interface{}{
			"status":  models.TransactionStatusPaid,
			"paid_at": paidAt,
		})
	return res.RowsAffected == 1, res.Error
}

func (s *GormTransactionStore) MarkExpired(ctx context.Context, id uint, expiredAt time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, models.TransactionStatusPending).
		Updates(map[string]interface{}{
			"status":     models.TransactionStatusExpired,
			"expired_at": expiredAt,
		})
	return res.RowsAffected == 1, res.Error
}

func (s *GormTransactionStore) MarkFailed(ctx context.Context, id uint, notes string) (bool, error) {
	updates := map[string]interface{}{
		"status": models.TransactionStatusFailed,
	}
	if notes != "" {
		updates["notes"] = notes
	}
	res := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, models.TransactionStatusPending).
		Updates(updates)
	return res.RowsAffected == 1, res.Error
}

func (s *GormTransactionStore) RecordCallback(ctx context.Context, history *models.PaymentCallbackHistory) error {
	return s.db.WithContext(ctx).Create(history).Error
}

func (s *GormTransactionStore) FindStalePending(ctx context.Context, cutoff time.Time) ([]models.Transaction, error) {
	var stale []models.Transaction
	err := s.db.WithContext(ctx).
		Where("status = ? AND payment_method = ? AND created_at < ?",
			models.TransactionStatusPending, models.PaymentMethodGateway, cutoff).
		Find(&stale).Error
	return stale, err
}
