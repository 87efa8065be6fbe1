package models

import (
	"time"
)

// RelayTransactionStatus lifecycle of a relayed request
type RelayTransactionStatus string

const (
	RelayStatusSubmitted RelayTransactionStatus = "submitted" // accepted by the node
	RelayStatusConfirmed RelayTransactionStatus = "confirmed" // mined, status 1
	RelayStatusReverted  RelayTransactionStatus = "reverted"  // mined, status 0 (bad signature, stale nonce, expired...)
	RelayStatusFailed    RelayTransactionStatus = "failed"    // node refused the transaction
	RelayStatusUnknown   RelayTransactionStatus = "unknown"   // no receipt before the watcher gave up
)

// RelayTransaction audit row for one relay attempt that reached the chain step
type RelayTransaction struct {
	ID             string                 `json:"id" gorm:"primaryKey;size:36"` // UUID
	Sender         string                 `json:"sender" gorm:"not null;index;size:42"`
	Target         string                 `json:"target" gorm:"not null;size:42"`
	Gas            uint64                 `json:"gas" gorm:"not null"`
	Deadline       uint64                 `json:"deadline" gorm:"not null"`
	TxHash         string                 `json:"tx_hash" gorm:"index;size:66"`
	Status         RelayTransactionStatus `json:"status" gorm:"not null;default:submitted;index"`
	Error          string                 `json:"error,omitempty" gorm:"type:text"`
	BlockNumber    *uint64                `json:"block_number,omitempty"`
	GasUsed        *uint64                `json:"gas_used,omitempty"`
	IdempotencyKey string                 `json:"idempotency_key,omitempty" gorm:"size:128"`
	ClientIP       string                 `json:"-" gorm:"size:64"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

// TableName 指定表名
func (RelayTransaction) TableName() string {
	return "relay_transactions"
}

// IdempotencyRecord remembers the hash returned for (sender, key)
type IdempotencyRecord struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	Sender    string    `json:"sender" gorm:"not null;uniqueIndex:idx_idem_sender_key;size:42"`
	Key       string    `json:"key" gorm:"not null;uniqueIndex:idx_idem_sender_key;size:128"`
	TxHash    string    `json:"tx_hash" gorm:"not null;size:66"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null;index"`
	CreatedAt time.Time `json:"created_at"`
}

func (IdempotencyRecord) TableName() string {
	return "relay_idempotency_keys"
}

// Expired reports whether the record no longer dedupes requests
func (r *IdempotencyRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
