package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/celery8911/InnerLedger/internal/models"
)

// ErrNotFound no matching row
var ErrNotFound = errors.New("record not found")

// RelayStats aggregate counts per status
type RelayStats struct {
	Status models.RelayTransactionStatus `json:"status"`
	Count  int64                         `json:"count"`
}

// RelayTransactionRepository defines the interface for relay audit data access
type RelayTransactionRepository interface {
	Create(ctx context.Context, tx *models.RelayTransaction) error
	GetByTxHash(ctx context.Context, txHash string) (*models.RelayTransaction, error)
	MarkMined(ctx context.Context, txHash string, status models.RelayTransactionStatus, blockNumber, gasUsed uint64) error
	MarkStatus(ctx context.Context, txHash string, status models.RelayTransactionStatus, errMsg string) error
	FindBySender(ctx context.Context, sender string, limit int) ([]*models.RelayTransaction, error)
	CountByStatus(ctx context.Context, since time.Time) ([]RelayStats, error)
}

type relayTransactionRepository struct {
	db *gorm.DB
}

// NewRelayTransactionRepository creates a new RelayTransactionRepository instance
func NewRelayTransactionRepository(db *gorm.DB) RelayTransactionRepository {
	return &relayTransactionRepository{db: db}
}

func (r *relayTransactionRepository) Create(ctx context.Context, tx *models.RelayTransaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *relayTransactionRepository) GetByTxHash(ctx context.Context, txHash string) (*models.RelayTransaction, error) {
	var tx models.RelayTransaction
	err := r.db.WithContext(ctx).Where("tx_hash = ?", txHash).First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *relayTransactionRepository) MarkMined(ctx context.Context, txHash string, status models.RelayTransactionStatus, blockNumber, gasUsed uint64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&models.RelayTransaction{}).
		Where("tx_hash = ?", txHash).
		Updates(map[string]interface{}{
			"status":       status,
			"block_number": blockNumber,
			"gas_used":     gasUsed,
			"confirmed_at": now,
		}).Error
}

func (r *relayTransactionRepository) MarkStatus(ctx context.Context, txHash string, status models.RelayTransactionStatus, errMsg string) error {
	return r.db.WithContext(ctx).Model(&models.RelayTransaction{}).
		Where("tx_hash = ?", txHash).
		Updates(map[string]interface{}{
			"status": status,
			"error":  errMsg,
		}).Error
}

func (r *relayTransactionRepository) FindBySender(ctx context.Context, sender string, limit int) ([]*models.RelayTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var txs []*models.RelayTransaction
	err := r.db.WithContext(ctx).
		Where("sender = ?", sender).
		Order("created_at DESC").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

func (r *relayTransactionRepository) CountByStatus(ctx context.Context, since time.Time) ([]RelayStats, error) {
	var stats []RelayStats
	err := r.db.WithContext(ctx).Model(&models.RelayTransaction{}).
		Select("status, count(*) as count").
		Where("created_at >= ?", since).
		Group("status").
		Scan(&stats).Error
	return stats, err
}
