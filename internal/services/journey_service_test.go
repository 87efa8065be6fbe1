package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celery8911/InnerLedger/internal/clients"
	"github.com/celery8911/InnerLedger/internal/services"
)

type stubLedger struct {
	records []clients.LedgerRecord
	badges  uint64
	err     error
}

func (s *stubLedger) RecordCount(context.Context, common.Address) (uint64, error) {
	return uint64(len(s.records)), s.err
}

func (s *stubLedger) Journey(context.Context, common.Address) ([]clients.LedgerRecord, error) {
	return s.records, s.err
}

func (s *stubLedger) BadgeBalance(context.Context, common.Address) (uint64, error) {
	return s.badges, nil
}

type stubIndex struct {
	enabled bool
	records []clients.IndexedRecord
	err     error
}

func (s *stubIndex) Enabled() bool { return s.enabled }

func (s *stubIndex) RecordsByUser(context.Context, string, int) ([]clients.IndexedRecord, error) {
	return s.records, s.err
}

func TestJourney_NewestFirstWithHeatmap(t *testing.T) {
	user := common.HexToAddress("0x00000000000000000000000000000000000000Aa")
	day1 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	h1 := common.HexToHash("0x01")
	h2 := common.HexToHash("0x02")
	h3 := common.HexToHash("0x03")

	ledger := &stubLedger{
		badges: 1,
		records: []clients.LedgerRecord{
			{User: user, Emotion: "calm", ContentHash: h1, Timestamp: uint64(day1.Unix())},
			{User: user, Emotion: "joy", ContentHash: h2, Timestamp: uint64(day1.Add(2 * time.Hour).Unix())},
			{User: user, Emotion: "sad", ContentHash: h3, Timestamp: uint64(day1.Add(24 * time.Hour).Unix())},
		},
	}
	index := &stubIndex{enabled: true, records: []clients.IndexedRecord{
		{ContentHash: h2.Hex(), TransactionHash: "0xtx2"},
	}}

	view, err := services.NewJourneyService(ledger, index, quietLogger()).Journey(context.Background(), user)
	require.NoError(t, err)

	assert.Equal(t, "0x00000000000000000000000000000000000000aa", view.Address)
	assert.Equal(t, uint64(3), view.RecordCount)
	assert.Equal(t, uint64(1), view.BadgeBalance)
	require.Len(t, view.Entries, 3)
	assert.Equal(t, "sad", view.Entries[0].Emotion)
	assert.Equal(t, "joy", view.Entries[1].Emotion)
	assert.Equal(t, "0xtx2", view.Entries[1].TxHash)
	assert.Empty(t, view.Entries[2].TxHash)
	assert.Equal(t, map[string]int{"2025-03-01": 2, "2025-03-02": 1}, view.CountsByDay)
}

func TestJourney_IndexFailureIsNotFatal(t *testing.T) {
	ledger := &stubLedger{records: []clients.LedgerRecord{{Emotion: "calm", Timestamp: 1}}}
	index := &stubIndex{enabled: true, err: errors.New("subgraph down")}

	view, err := services.NewJourneyService(ledger, index, quietLogger()).Journey(context.Background(), common.Address{})
	require.NoError(t, err)
	assert.Len(t, view.Entries, 1)
}

func TestJourney_LedgerErrorPropagates(t *testing.T) {
	ledger := &stubLedger{err: errors.New("rpc down")}
	_, err := services.NewJourneyService(ledger, nil, quietLogger()).Journey(context.Background(), common.Address{})
	assert.Error(t, err)
}

func TestRecords_DisabledIndex(t *testing.T) {
	svc := services.NewJourneyService(&stubLedger{}, &stubIndex{}, quietLogger())
	_, err := svc.Records(context.Background(), common.Address{}, 10)
	assert.True(t, services.IsSubgraphDisabled(err))

	_, err = services.NewJourneyService(&stubLedger{}, nil, quietLogger()).Records(context.Background(), common.Address{}, 10)
	assert.True(t, services.IsSubgraphDisabled(err))
}
