package clients

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/celery8911/InnerLedger/internal/contracts"
	"github.com/celery8911/InnerLedger/internal/metatx"
)

// ChainBackend is the part of ethclient.Client used for forwarder reads and relayed writes.
type ChainBackend interface {
	ethereum.ContractCaller
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// TxSigningStrategy signs the relayer's outer transaction hash.
type TxSigningStrategy interface {
	Address() common.Address
	// SignHash returns a 65 byte [R || S || V] signature with V in {0,1}
	SignHash(ctx context.Context, hash []byte) ([]byte, error)
	Name() string
}

// ErrInsufficientRelayerFunds means the relayer cannot pay for the outer transaction.
var ErrInsufficientRelayerFunds = errors.New("insufficient relayer funds for gas")

// ForwarderOptions gas policy for relayed transactions
type ForwarderOptions struct {
	GasPrice            *big.Int // fixed price, nil = suggested + bump
	GasPriceBumpPercent int64
	GasOverhead         uint64
}

// ForwarderClient talks to the ERC2771 forwarder.
type ForwarderClient struct {
	backend   ChainBackend
	address   common.Address
	chainID   *big.Int
	strategy  TxSigningStrategy
	opts      ForwarderOptions
	logger    *logrus.Logger
	sendMutex sync.Mutex
}

// NewForwarderClient strategy may be nil for read-only use.
func NewForwarderClient(backend ChainBackend, address common.Address, chainID *big.Int, strategy TxSigningStrategy, opts ForwarderOptions, logger *logrus.Logger) *ForwarderClient {
	if opts.GasPriceBumpPercent == 0 {
		opts.GasPriceBumpPercent = 20
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ForwarderClient{
		backend:  backend,
		address:  address,
		chainID:  chainID,
		strategy: strategy,
		opts:     opts,
		logger:   logger,
	}
}

func (f *ForwarderClient) Address() common.Address { return f.address }

// CanSubmit reports whether a relayer credential is attached.
func (f *ForwarderClient) CanSubmit() bool { return f.strategy != nil }

// RelayerAddress returns the gas paying account, zero when read-only.
func (f *ForwarderClient) RelayerAddress() common.Address {
	if f.strategy == nil {
		return common.Address{}
	}
	return f.strategy.Address()
}

func (f *ForwarderClient) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contracts.Forwarder.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := f.backend.CallContract(ctx, ethereum.CallMsg{To: &f.address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	res, err := contracts.Forwarder.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return res, nil
}

// Nonces reads the forwarder nonce of owner.
func (f *ForwarderClient) Nonces(ctx context.Context, owner common.Address) (*big.Int, error) {
	res, err := f.call(ctx, "nonces", owner)
	if err != nil {
		return nil, err
	}
	nonce, ok := res[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("nonces: unexpected type %T", res[0])
	}
	return nonce, nil
}

// Verify asks the forwarder whether req would pass its signature, deadline and target checks.
func (f *ForwarderClient) Verify(ctx context.Context, req *metatx.ForwardRequestData) (bool, error) {
	res, err := f.call(ctx, "verify", req.Tuple())
	if err != nil {
		return false, err
	}
	ok, _ := res[0].(bool)
	return ok, nil
}

// Domain reads the forwarder's ERC-5267 eip712Domain().
func (f *ForwarderClient) Domain(ctx context.Context) (metatx.Domain, error) {
	res, err := f.call(ctx, "eip712Domain")
	if err != nil {
		return metatx.Domain{}, err
	}
	if len(res) < 5 {
		return metatx.Domain{}, fmt.Errorf("eip712Domain: %d return values", len(res))
	}
	name, _ := res[1].(string)
	version, _ := res[2].(string)
	chainID, _ := res[3].(*big.Int)
	verifying, _ := res[4].(common.Address)
	return metatx.Domain{Name: name, Version: version, ChainID: chainID, VerifyingContract: verifying}, nil
}

// Execute submits forwarder.execute(req) from the relayer account and returns the tx hash
// once the node accepted it. No retry: a failed send is returned to the caller.
func (f *ForwarderClient) Execute(ctx context.Context, req *metatx.ForwardRequestData) (common.Hash, error) {
	if f.strategy == nil {
		return common.Hash{}, errors.New("forwarder client has no relayer credential")
	}
	calldata, err := contracts.Forwarder.Pack("execute", req.Tuple())
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack execute: %w", err)
	}

	// one relayer account, one nonce sequence
	f.sendMutex.Lock()
	defer f.sendMutex.Unlock()

	from := f.strategy.Address()
	tx, err := f.buildUnsignedTransaction(ctx, from, req, calldata)
	if err != nil {
		return common.Hash{}, err
	}
	if err := f.validateGasBalance(ctx, from, tx); err != nil {
		return common.Hash{}, err
	}

	signer := types.NewEIP155Signer(f.chainID)
	sigHash := signer.Hash(tx)
	signature, err := f.strategy.SignHash(ctx, sigHash.Bytes())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign with %s: %w", f.strategy.Name(), err)
	}
	signedTx, err := tx.WithSignature(signer, signature)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to apply signature: %w", err)
	}
	if sender, err := types.Sender(signer, signedTx); err == nil && sender != from {
		return common.Hash{}, fmt.Errorf("%s signature recovers to %s, expected relayer %s", f.strategy.Name(), sender.Hex(), from.Hex())
	}

	if err := f.backend.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, err
	}

	f.logger.WithFields(logrus.Fields{
		"tx_hash":   signedTx.Hash().Hex(),
		"sender":    req.From.Hex(),
		"nonce":     signedTx.Nonce(),
		"gas_limit": signedTx.Gas(),
		"gas_price": signedTx.GasPrice().String(),
		"signer":    f.strategy.Name(),
	}).Info("forward request submitted")

	return signedTx.Hash(), nil
}

func (f *ForwarderClient) buildUnsignedTransaction(ctx context.Context, from common.Address, req *metatx.ForwardRequestData, calldata []byte) (*types.Transaction, error) {
	nonce, err := f.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := f.gasPrice(ctx)
	if err != nil {
		return nil, err
	}

	to := f.address
	value := req.Value
	if value == nil {
		value = big.NewInt(0)
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      req.Gas.Uint64() + f.opts.GasOverhead,
		GasPrice: gasPrice,
		Data:     calldata,
	}), nil
}

func (f *ForwarderClient) gasPrice(ctx context.Context) (*big.Int, error) {
	if f.opts.GasPrice != nil {
		return new(big.Int).Set(f.opts.GasPrice), nil
	}
	suggested, err := f.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	price := new(big.Int).Mul(suggested, big.NewInt(100+f.opts.GasPriceBumpPercent))
	return price.Div(price, big.NewInt(100)), nil
}

func (f *ForwarderClient) validateGasBalance(ctx context.Context, from common.Address, tx *types.Transaction) error {
	balance, err := f.backend.BalanceAt(ctx, from, nil)
	if err != nil {
		return fmt.Errorf("failed to query balance: %w", err)
	}
	required := tx.Cost()
	if balance.Cmp(required) < 0 {
		f.logger.WithFields(logrus.Fields{
			"relayer":  from.Hex(),
			"balance":  balance.String(),
			"required": required.String(),
		}).Error("relayer balance too low")
		return fmt.Errorf("%w: balance %s wei, required %s wei", ErrInsufficientRelayerFunds, balance, required)
	}
	return nil
}
