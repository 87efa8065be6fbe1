// Package testutil provides an in-memory forwarder chain for relay tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/celery8911/InnerLedger/internal/contracts"
	"github.com/celery8911/InnerLedger/internal/metatx"
)

// FakeChain emulates one ERC2771 forwarder: it keeps per-sender nonces, checks the
// EIP-712 signature and deadline of executed requests and records receipts.
// A request failing those checks still produces a transaction, with a reverted receipt.
type FakeChain struct {
	mu sync.Mutex

	Domain  metatx.Domain
	Balance *big.Int
	// SendErr, when set, is returned by SendTransaction without recording anything
	SendErr error
	Now     func() time.Time

	nonces        map[common.Address]*big.Int
	accountNonces map[common.Address]uint64
	receipts      map[common.Hash]*types.Receipt
	executed      []metatx.ExecuteTuple
	sends         int
	calls         int
	block         uint64
}

func NewFakeChain(domain metatx.Domain) *FakeChain {
	return &FakeChain{
		Domain:        domain,
		Balance:       new(big.Int).Mul(big.NewInt(10), big.NewInt(1e18)),
		Now:           time.Now,
		nonces:        make(map[common.Address]*big.Int),
		accountNonces: make(map[common.Address]uint64),
		receipts:      make(map[common.Hash]*types.Receipt),
		block:         100,
	}
}

// SetNonce seeds the forwarder nonce of owner.
func (f *FakeChain) SetNonce(owner common.Address, n int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonces[owner] = big.NewInt(n)
}

// Nonce current forwarder nonce of owner.
func (f *FakeChain) Nonce(owner common.Address) *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.nonceLocked(owner))
}

func (f *FakeChain) nonceLocked(owner common.Address) *big.Int {
	n, ok := f.nonces[owner]
	if !ok {
		n = big.NewInt(0)
		f.nonces[owner] = n
	}
	return n
}

// Sends number of SendTransaction calls that reached the chain.
func (f *FakeChain) Sends() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends
}

// Calls number of eth_call reads.
func (f *FakeChain) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Executed successfully executed requests, in order.
func (f *FakeChain) Executed() []metatx.ExecuteTuple {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]metatx.ExecuteTuple(nil), f.executed...)
}

func (f *FakeChain) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(msg.Data) < 4 {
		return nil, errors.New("execution reverted")
	}
	method, err := contracts.Forwarder.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	switch method.Name {
	case "nonces":
		owner := args[0].(common.Address)
		return method.Outputs.Pack(new(big.Int).Set(f.nonceLocked(owner)))
	case "verify":
		tuple, err := decodeTuple(args)
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(f.validLocked(tuple))
	case "eip712Domain":
		return method.Outputs.Pack(
			[1]byte{0x0f},
			f.Domain.Name,
			f.Domain.Version,
			f.Domain.ChainID,
			f.Domain.VerifyingContract,
			[32]byte{},
			[]*big.Int{},
		)
	}
	return nil, fmt.Errorf("method %s not emulated", method.Name)
}

func decodeTuple(args []interface{}) (metatx.ExecuteTuple, error) {
	var tuple metatx.ExecuteTuple
	if len(args) != 1 {
		return tuple, errors.New("expected one tuple argument")
	}
	converted, ok := abi.ConvertType(args[0], new(metatx.ExecuteTuple)).(*metatx.ExecuteTuple)
	if !ok {
		return tuple, errors.New("cannot decode request tuple")
	}
	return *converted, nil
}

func (f *FakeChain) validLocked(t metatx.ExecuteTuple) bool {
	if t.Deadline.Uint64() < uint64(f.Now().Unix()) {
		return false
	}
	req := &metatx.ForwardRequestData{
		ForwardRequest: metatx.ForwardRequest{
			From:     t.From,
			To:       t.To,
			Value:    t.Value,
			Gas:      t.Gas,
			Nonce:    new(big.Int).Set(f.nonceLocked(t.From)),
			Deadline: t.Deadline.Uint64(),
			Data:     t.Data,
		},
		Signature: t.Signature,
	}
	return metatx.Verify(f.Domain, req)
}

func (f *FakeChain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accountNonces[account], nil
}

func (f *FakeChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *FakeChain) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.Balance), nil
}

// SendTransaction executes forwarder.execute synchronously and stores the receipt.
func (f *FakeChain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return f.SendErr
	}

	sender, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if tx.Nonce() != f.accountNonces[sender] {
		return fmt.Errorf("nonce too low: have %d, want %d", tx.Nonce(), f.accountNonces[sender])
	}
	f.accountNonces[sender]++
	f.sends++
	f.block++

	status := types.ReceiptStatusFailed
	if data := tx.Data(); len(data) >= 4 {
		if method, err := contracts.Forwarder.MethodById(data[:4]); err == nil && method.Name == "execute" {
			if args, err := method.Inputs.Unpack(data[4:]); err == nil {
				if tuple, err := decodeTuple(args); err == nil && f.validLocked(tuple) {
					status = types.ReceiptStatusSuccessful
					n := f.nonceLocked(tuple.From)
					n.Add(n, big.NewInt(1))
					f.executed = append(f.executed, tuple)
				}
			}
		}
	}

	f.receipts[tx.Hash()] = &types.Receipt{
		Status:      status,
		TxHash:      tx.Hash(),
		BlockNumber: new(big.Int).SetUint64(f.block),
		GasUsed:     21000,
	}
	return nil
}

// TransactionReceipt returns ethereum.NotFound for unknown hashes.
func (f *FakeChain) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}
