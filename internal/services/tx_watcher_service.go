package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/celery8911/InnerLedger/internal/events"
	"github.com/celery8911/InnerLedger/internal/metrics"
	"github.com/celery8911/InnerLedger/internal/models"
	"github.com/celery8911/InnerLedger/internal/repository"
)

// TxStatus current knowledge about a relayed transaction
type TxStatus struct {
	TxHash      string                        `json:"txHash"`
	Status      models.RelayTransactionStatus `json:"status"`
	Sender      string                        `json:"sender,omitempty"`
	BlockNumber uint64                        `json:"blockNumber,omitempty"`
	GasUsed     uint64                        `json:"gasUsed,omitempty"`
	Error       string                        `json:"error,omitempty"`
	ExplorerURL string                        `json:"explorerUrl,omitempty"`
}

// WatcherBackoff receipt polling schedule
type WatcherBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultWatcherBackoff Monad blocks are ~1s; give up after two minutes.
var DefaultWatcherBackoff = WatcherBackoff{
	InitialInterval: time.Second,
	MaxInterval:     10 * time.Second,
	MaxElapsedTime:  2 * time.Minute,
}

// TxWatcherService waits for receipts of relayed transactions and reports the final status.
type TxWatcherService struct {
	receipts ReceiptReader
	txRepo   repository.RelayTransactionRepository
	bus      *events.Bus
	schedule WatcherBackoff
	logger   *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	inflight map[common.Hash]struct{}
}

// NewTxWatcherService txRepo and bus may be nil.
func NewTxWatcherService(receipts ReceiptReader, txRepo repository.RelayTransactionRepository, bus *events.Bus, schedule WatcherBackoff, logger *logrus.Logger) *TxWatcherService {
	if schedule.InitialInterval == 0 {
		schedule = DefaultWatcherBackoff
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TxWatcherService{
		receipts: receipts,
		txRepo:   txRepo,
		bus:      bus,
		schedule: schedule,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		inflight: make(map[common.Hash]struct{}),
	}
}

// Track starts a watcher for hash unless one is already running.
func (w *TxWatcherService) Track(hash common.Hash, sender string) {
	w.mu.Lock()
	if _, ok := w.inflight[hash]; ok || w.ctx.Err() != nil {
		w.mu.Unlock()
		return
	}
	w.inflight[hash] = struct{}{}
	w.wg.Add(1)
	w.mu.Unlock()

	metrics.ActiveWatchers.Inc()
	go func() {
		defer func() {
			w.mu.Lock()
			delete(w.inflight, hash)
			w.mu.Unlock()
			metrics.ActiveWatchers.Dec()
			w.wg.Done()
		}()
		w.watch(hash, strings.ToLower(sender))
	}()
}

// Pending number of transactions still awaiting a receipt.
func (w *TxWatcherService) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.inflight)
}

// Stop cancels every watcher and waits for them to exit.
func (w *TxWatcherService) Stop() {
	// under mu so no Track can Add after Wait has started
	w.mu.Lock()
	w.cancel()
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *TxWatcherService) watch(hash common.Hash, sender string) {
	start := time.Now()
	receipt, err := w.WaitForReceipt(w.ctx, hash)
	if err != nil {
		if w.ctx.Err() != nil {
			return
		}
		w.logger.WithError(err).WithField("tx_hash", hash.Hex()).Warn("⚠️ no receipt before watcher deadline")
		metrics.TxConfirmations.WithLabelValues(string(models.RelayStatusUnknown)).Inc()
		w.markStatus(hash, models.RelayStatusUnknown, err.Error())
		w.bus.Emit(events.RelayEvent{Type: events.RelayUnknown, TxHash: hash.Hex(), Sender: sender, Error: err.Error()})
		return
	}

	status := models.RelayStatusConfirmed
	evtType := events.RelayConfirmed
	if receipt.Status != types.ReceiptStatusSuccessful {
		// the forwarder reverts on a bad signature, stale nonce or expired deadline
		status = models.RelayStatusReverted
		evtType = events.RelayReverted
	}
	var block uint64
	if receipt.BlockNumber != nil {
		block = receipt.BlockNumber.Uint64()
	}

	metrics.TxConfirmations.WithLabelValues(string(status)).Inc()
	metrics.TxConfirmationDuration.Observe(time.Since(start).Seconds())
	w.logger.WithFields(logrus.Fields{
		"tx_hash":  hash.Hex(),
		"status":   status,
		"block":    block,
		"gas_used": receipt.GasUsed,
	}).Info("relayed transaction mined")

	if w.txRepo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := w.txRepo.MarkMined(ctx, hash.Hex(), status, block, receipt.GasUsed); err != nil {
			w.logger.WithError(err).Warn("failed to update relay audit row")
		}
		cancel()
	}
	w.bus.Emit(events.RelayEvent{
		Type:        evtType,
		TxHash:      hash.Hex(),
		Sender:      sender,
		BlockNumber: block,
		GasUsed:     receipt.GasUsed,
	})
}

// WaitForReceipt polls with exponential backoff until the receipt exists, ctx ends or the schedule's
// max elapsed time passes.
func (w *TxWatcherService) WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.schedule.InitialInterval
	b.MaxInterval = w.schedule.MaxInterval
	b.MaxElapsedTime = w.schedule.MaxElapsedTime

	var receipt *types.Receipt
	attempts := 0
	op := func() error {
		attempts++
		r, err := w.receipts.TransactionReceipt(ctx, hash)
		if err != nil {
			return err
		}
		if r == nil {
			return ethereum.NotFound
		}
		receipt = r
		return nil
	}
	notify := func(err error, next time.Duration) {
		if !errors.Is(err, ethereum.NotFound) {
			w.logger.WithError(err).WithField("tx_hash", hash.Hex()).Debug("receipt query failed, retrying")
		}
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, fmt.Errorf("receipt for %s after %d attempts: %w", hash.Hex(), attempts, err)
	}
	return receipt, nil
}

// Status answers from the audit log when present, otherwise from a single receipt lookup.
func (w *TxWatcherService) Status(ctx context.Context, hash common.Hash) (*TxStatus, error) {
	if w.txRepo != nil {
		row, err := w.txRepo.GetByTxHash(ctx, hash.Hex())
		switch {
		case err == nil:
			st := &TxStatus{TxHash: row.TxHash, Status: row.Status, Sender: row.Sender, Error: row.Error}
			if row.BlockNumber != nil {
				st.BlockNumber = *row.BlockNumber
			}
			if row.GasUsed != nil {
				st.GasUsed = *row.GasUsed
			}
			return st, nil
		case !errors.Is(err, repository.ErrNotFound):
			w.logger.WithError(err).Warn("audit lookup failed, falling back to chain")
		}
	}

	receipt, err := w.receipts.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) || (err == nil && receipt == nil) {
		return &TxStatus{TxHash: hash.Hex(), Status: models.RelayStatusSubmitted}, nil
	}
	if err != nil {
		return nil, err
	}
	st := &TxStatus{TxHash: hash.Hex(), Status: models.RelayStatusConfirmed, GasUsed: receipt.GasUsed}
	if receipt.Status != types.ReceiptStatusSuccessful {
		st.Status = models.RelayStatusReverted
	}
	if receipt.BlockNumber != nil {
		st.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return st, nil
}

func (w *TxWatcherService) markStatus(hash common.Hash, status models.RelayTransactionStatus, msg string) {
	if w.txRepo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.txRepo.MarkStatus(ctx, hash.Hex(), status, msg); err != nil {
		w.logger.WithError(err).Warn("failed to update relay audit row")
	}
}
