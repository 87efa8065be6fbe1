package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/celery8911/InnerLedger/internal/clients"
)

// LedgerReader on-chain journey reads. Implemented by clients.LedgerClient.
type LedgerReader interface {
	RecordCount(ctx context.Context, user common.Address) (uint64, error)
	Journey(ctx context.Context, user common.Address) ([]clients.LedgerRecord, error)
	BadgeBalance(ctx context.Context, user common.Address) (uint64, error)
}

// RecordIndex indexed RecordCreated events. Implemented by clients.SubgraphClient.
type RecordIndex interface {
	Enabled() bool
	RecordsByUser(ctx context.Context, user string, first int) ([]clients.IndexedRecord, error)
}

// JourneyEntry a ledger record with the transaction that wrote it, when the index knows it
type JourneyEntry struct {
	clients.LedgerRecord
	Day    string `json:"day"` // UTC yyyy-mm-dd
	TxHash string `json:"txHash,omitempty"`
}

// JourneyView everything the journey page shows for one address
type JourneyView struct {
	Address      string         `json:"address"`
	RecordCount  uint64         `json:"recordCount"`
	BadgeBalance uint64         `json:"badgeBalance"`
	Entries      []JourneyEntry `json:"entries"`
	CountsByDay  map[string]int `json:"countsByDay"`
}

// JourneyService assembles journey data from the ledger and, optionally, the subgraph.
type JourneyService struct {
	ledger LedgerReader
	index  RecordIndex
	logger *logrus.Logger
}

// NewJourneyService index may be nil.
func NewJourneyService(ledger LedgerReader, index RecordIndex, logger *logrus.Logger) *JourneyService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &JourneyService{ledger: ledger, index: index, logger: logger}
}

// Journey newest entry first.
func (j *JourneyService) Journey(ctx context.Context, user common.Address) (*JourneyView, error) {
	records, err := j.ledger.Journey(ctx, user)
	if err != nil {
		return nil, err
	}
	badges, err := j.ledger.BadgeBalance(ctx, user)
	if err != nil {
		j.logger.WithError(err).WithField("user", user.Hex()).Warn("badge balance read failed")
	}

	txByHash := j.txHashes(ctx, user)

	view := &JourneyView{
		Address:      strings.ToLower(user.Hex()),
		RecordCount:  uint64(len(records)),
		BadgeBalance: badges,
		Entries:      make([]JourneyEntry, 0, len(records)),
		CountsByDay:  make(map[string]int),
	}
	for _, r := range records {
		day := time.Unix(int64(r.Timestamp), 0).UTC().Format("2006-01-02")
		view.CountsByDay[day]++
		view.Entries = append(view.Entries, JourneyEntry{
			LedgerRecord: r,
			Day:          day,
			TxHash:       txByHash[strings.ToLower(r.ContentHash.Hex())],
		})
	}
	sort.SliceStable(view.Entries, func(a, b int) bool {
		return view.Entries[a].Timestamp > view.Entries[b].Timestamp
	})
	return view, nil
}

func (j *JourneyService) txHashes(ctx context.Context, user common.Address) map[string]string {
	if j.index == nil || !j.index.Enabled() {
		return nil
	}
	indexed, err := j.index.RecordsByUser(ctx, user.Hex(), 1000)
	if err != nil {
		j.logger.WithError(err).Warn("subgraph lookup failed, journey served without tx hashes")
		return nil
	}
	out := make(map[string]string, len(indexed))
	for _, r := range indexed {
		if r.ContentHash != "" {
			out[strings.ToLower(r.ContentHash)] = r.TransactionHash
		}
	}
	return out
}

// Records indexed records straight from the subgraph.
func (j *JourneyService) Records(ctx context.Context, user common.Address, first int) ([]clients.IndexedRecord, error) {
	if j.index == nil || !j.index.Enabled() {
		return nil, clients.ErrSubgraphDisabled
	}
	return j.index.RecordsByUser(ctx, user.Hex(), first)
}

// IsSubgraphDisabled helper for handlers mapping to 503
func IsSubgraphDisabled(err error) bool {
	return errors.Is(err, clients.ErrSubgraphDisabled)
}
