package clients

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/celery8911/InnerLedger/internal/contracts"
)

// LedgerRecord one journal anchor stored by the ledger
type LedgerRecord struct {
	User        common.Address `json:"user"`
	Emotion     string         `json:"emotion"`
	ContentHash common.Hash    `json:"contentHash"`
	Timestamp   uint64         `json:"timestamp"`
}

// LedgerClient reads the InnerLedger and GrowthSBT contracts.
type LedgerClient struct {
	caller ethereum.ContractCaller
	ledger common.Address
	sbt    common.Address
}

func NewLedgerClient(caller ethereum.ContractCaller, ledger, sbt common.Address) *LedgerClient {
	return &LedgerClient{caller: caller, ledger: ledger, sbt: sbt}
}

func (l *LedgerClient) call(ctx context.Context, parsed abi.ABI, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := l.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	return parsed.Unpack(method, out)
}

// RecordCount number of records user has anchored
func (l *LedgerClient) RecordCount(ctx context.Context, user common.Address) (uint64, error) {
	res, err := l.call(ctx, contracts.InnerLedger, l.ledger, "getRecordCount", user)
	if err != nil {
		return 0, err
	}
	n, ok := res[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("getRecordCount: unexpected type %T", res[0])
	}
	return n.Uint64(), nil
}

// Journey every record of user, oldest first
func (l *LedgerClient) Journey(ctx context.Context, user common.Address) ([]LedgerRecord, error) {
	res, err := l.call(ctx, contracts.InnerLedger, l.ledger, "getJourney", user)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		User        common.Address
		Emotion     string
		ContentHash [32]byte
		Timestamp   *big.Int
	}
	if err := contracts.InnerLedger.Methods["getJourney"].Outputs.Copy(&raw, res); err != nil {
		return nil, fmt.Errorf("decode getJourney: %w", err)
	}

	records := make([]LedgerRecord, 0, len(raw))
	for _, r := range raw {
		records = append(records, LedgerRecord{
			User:        r.User,
			Emotion:     r.Emotion,
			ContentHash: common.Hash(r.ContentHash),
			Timestamp:   r.Timestamp.Uint64(),
		})
	}
	return records, nil
}

// BadgeBalance GrowthSBT badges held by user
func (l *LedgerClient) BadgeBalance(ctx context.Context, user common.Address) (uint64, error) {
	if l.sbt == (common.Address{}) {
		return 0, nil
	}
	res, err := l.call(ctx, contracts.GrowthSBT, l.sbt, "balanceOf", user)
	if err != nil {
		return 0, err
	}
	n, ok := res[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("balanceOf: unexpected type %T", res[0])
	}
	return n.Uint64(), nil
}
