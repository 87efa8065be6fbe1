package services_test

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/celery8911/InnerLedger/internal/events"
	"github.com/celery8911/InnerLedger/internal/mocks"
	"github.com/celery8911/InnerLedger/internal/models"
	"github.com/celery8911/InnerLedger/internal/repository"
	"github.com/celery8911/InnerLedger/internal/services"
)

var fastBackoff = services.WatcherBackoff{
	InitialInterval: time.Millisecond,
	MaxInterval:     2 * time.Millisecond,
	MaxElapsedTime:  200 * time.Millisecond,
}

type recordingSink struct {
	mu     sync.Mutex
	events []events.RelayEvent
	seen   chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{seen: make(chan struct{}, 16)}
}

func (r *recordingSink) Deliver(evt events.RelayEvent) error {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
	r.seen <- struct{}{}
	return nil
}

func (r *recordingSink) waitFor(t *testing.T, n int) []events.RelayEvent {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.seen:
		case <-time.After(2 * time.Second):
			t.Fatalf("expected %d events, got %d", n, i)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.RelayEvent(nil), r.events...)
}

func TestWaitForReceipt_RetriesUntilMined(t *testing.T) {
	receipts := mocks.NewMockReceiptReaderForTest(t)
	hash := common.HexToHash("0xaa")

	gomock.InOrder(
		receipts.EXPECT().TransactionReceipt(gomock.Any(), hash).Return(nil, ethereum.NotFound).Times(2),
		receipts.EXPECT().TransactionReceipt(gomock.Any(), hash).Return(nil, errors.New("rpc timeout")),
		receipts.EXPECT().TransactionReceipt(gomock.Any(), hash).Return(&types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(7)}, nil),
	)

	w := services.NewTxWatcherService(receipts, nil, nil, fastBackoff, quietLogger())
	defer w.Stop()

	r, err := w.WaitForReceipt(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, int64(7), r.BlockNumber.Int64())
}

func TestWaitForReceipt_GivesUp(t *testing.T) {
	receipts := mocks.NewMockReceiptReaderForTest(t)
	receipts.EXPECT().TransactionReceipt(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()

	w := services.NewTxWatcherService(receipts, nil, nil, fastBackoff, quietLogger())
	defer w.Stop()

	_, err := w.WaitForReceipt(context.Background(), common.HexToHash("0xbb"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ethereum.NotFound)
}

func TestTrack_RevertedReceipt(t *testing.T) {
	receipts := mocks.NewMockReceiptReaderForTest(t)
	txRepo := mocks.NewMockRelayTransactionRepositoryForTest(t)
	sink := newRecordingSink()
	hash := common.HexToHash("0xcc")

	receipts.EXPECT().TransactionReceipt(gomock.Any(), hash).Return(&types.Receipt{
		Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(9), GasUsed: 30000,
	}, nil)
	txRepo.EXPECT().MarkMined(gomock.Any(), hash.Hex(), models.RelayStatusReverted, uint64(9), uint64(30000)).Return(nil)

	w := services.NewTxWatcherService(receipts, txRepo, events.NewBus(quietLogger(), sink), fastBackoff, quietLogger())
	w.Track(hash, "0xABC")

	evts := sink.waitFor(t, 1)
	w.Stop()
	require.Len(t, evts, 1)
	assert.Equal(t, events.RelayReverted, evts[0].Type)
	assert.Equal(t, "0xabc", evts[0].Sender)
	assert.Equal(t, uint64(9), evts[0].BlockNumber)
	assert.Equal(t, 0, w.Pending())
}

func TestTrack_UnknownAfterDeadline(t *testing.T) {
	receipts := mocks.NewMockReceiptReaderForTest(t)
	txRepo := mocks.NewMockRelayTransactionRepositoryForTest(t)
	sink := newRecordingSink()
	hash := common.HexToHash("0xdd")

	receipts.EXPECT().TransactionReceipt(gomock.Any(), hash).Return(nil, ethereum.NotFound).AnyTimes()
	txRepo.EXPECT().MarkStatus(gomock.Any(), hash.Hex(), models.RelayStatusUnknown, gomock.Any()).Return(nil)

	w := services.NewTxWatcherService(receipts, txRepo, events.NewBus(quietLogger(), sink), fastBackoff, quietLogger())
	w.Track(hash, "0xabc")

	evts := sink.waitFor(t, 1)
	w.Stop()
	assert.Equal(t, events.RelayUnknown, evts[0].Type)
	assert.NotEmpty(t, evts[0].Error)
}

func TestTrack_DeduplicatesAndStops(t *testing.T) {
	receipts := mocks.NewMockReceiptReaderForTest(t)
	receipts.EXPECT().TransactionReceipt(gomock.Any(), gomock.Any()).Return(nil, ethereum.NotFound).AnyTimes()

	w := services.NewTxWatcherService(receipts, nil, nil, services.WatcherBackoff{
		InitialInterval: 10 * time.Millisecond, MaxInterval: 10 * time.Millisecond, MaxElapsedTime: time.Minute,
	}, quietLogger())

	hash := common.HexToHash("0xee")
	w.Track(hash, "0xabc")
	w.Track(hash, "0xabc")
	assert.Equal(t, 1, w.Pending())

	w.Stop()
	assert.Equal(t, 0, w.Pending())

	w.Track(common.HexToHash("0xef"), "0xabc")
	assert.Equal(t, 0, w.Pending(), "a stopped watcher accepts no new work")
}

func TestTrack_ConcurrentWithStop(t *testing.T) {
	receipts := mocks.NewMockReceiptReaderForTest(t)
	receipts.EXPECT().TransactionReceipt(gomock.Any(), gomock.Any()).Return(nil, ethereum.NotFound).AnyTimes()
	w := services.NewTxWatcherService(receipts, nil, nil, fastBackoff, quietLogger())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w.Track(common.BigToHash(big.NewInt(int64(i+1))), "0xabc")
		}(i)
	}
	w.Stop()
	wg.Wait()

	// every Track either ran to completion before Stop returned or was refused
	w.Stop()
	assert.Equal(t, 0, w.Pending())
}

func TestStatus_PrefersAuditLog(t *testing.T) {
	receipts := mocks.NewMockReceiptReaderForTest(t)
	txRepo := mocks.NewMockRelayTransactionRepositoryForTest(t)
	hash := common.HexToHash("0x11")
	block := uint64(42)

	txRepo.EXPECT().GetByTxHash(gomock.Any(), hash.Hex()).Return(&models.RelayTransaction{
		TxHash: hash.Hex(), Status: models.RelayStatusConfirmed, Sender: "0xabc", BlockNumber: &block,
	}, nil)

	w := services.NewTxWatcherService(receipts, txRepo, nil, fastBackoff, quietLogger())
	defer w.Stop()

	st, err := w.Status(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, models.RelayStatusConfirmed, st.Status)
	assert.Equal(t, uint64(42), st.BlockNumber)
	assert.Equal(t, "0xabc", st.Sender)
}

func TestStatus_FallsBackToChain(t *testing.T) {
	receipts := mocks.NewMockReceiptReaderForTest(t)
	txRepo := mocks.NewMockRelayTransactionRepositoryForTest(t)
	pending := common.HexToHash("0x12")
	mined := common.HexToHash("0x13")

	txRepo.EXPECT().GetByTxHash(gomock.Any(), gomock.Any()).Return(nil, repository.ErrNotFound).Times(2)
	receipts.EXPECT().TransactionReceipt(gomock.Any(), pending).Return(nil, ethereum.NotFound)
	receipts.EXPECT().TransactionReceipt(gomock.Any(), mined).Return(&types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(3)}, nil)

	w := services.NewTxWatcherService(receipts, txRepo, nil, fastBackoff, quietLogger())
	defer w.Stop()

	st, err := w.Status(context.Background(), pending)
	require.NoError(t, err)
	assert.Equal(t, models.RelayStatusSubmitted, st.Status)

	st, err = w.Status(context.Background(), mined)
	require.NoError(t, err)
	assert.Equal(t, models.RelayStatusReverted, st.Status)
	assert.Equal(t, uint64(3), st.BlockNumber)
}
