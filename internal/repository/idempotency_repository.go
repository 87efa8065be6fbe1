package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/celery8911/InnerLedger/internal/models"
)

// IdempotencyRepository stores idempotency keys for the relay
type IdempotencyRepository interface {
	// Find returns the live record for (sender, key) or ErrNotFound
	Find(ctx context.Context, sender, key string, now time.Time) (*models.IdempotencyRecord, error)
	// Save inserts the record; an existing (sender, key) row is replaced
	Save(ctx context.Context, rec *models.IdempotencyRecord) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type idempotencyRepository struct {
	db *gorm.DB
}

func NewIdempotencyRepository(db *gorm.DB) IdempotencyRepository {
	return &idempotencyRepository{db: db}
}

func (r *idempotencyRepository) Find(ctx context.Context, sender, key string, now time.Time) (*models.IdempotencyRecord, error) {
	var rec models.IdempotencyRecord
	err := r.db.WithContext(ctx).
		Where("sender = ? AND key = ? AND expires_at > ?", sender, key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *idempotencyRepository) Save(ctx context.Context, rec *models.IdempotencyRecord) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sender"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"tx_hash", "expires_at"}),
	}).Create(rec).Error
}

func (r *idempotencyRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&models.IdempotencyRecord{})
	return res.RowsAffected, res.Error
}
