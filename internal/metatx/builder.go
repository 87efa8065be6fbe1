package metatx

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/celery8911/InnerLedger/internal/contracts"
)

// NonceReader reads the forwarder's replay counter for an account.
type NonceReader interface {
	Nonces(ctx context.Context, owner common.Address) (*big.Int, error)
}

// ChainReadError means a request could not be built because a chain read failed.
type ChainReadError struct {
	Op  string
	Err error
}

func (e *ChainReadError) Error() string {
	return fmt.Sprintf("chain read %s failed: %v", e.Op, e.Err)
}

func (e *ChainReadError) Unwrap() error { return e.Err }

// Builder assembles unsigned forward requests targeting the ledger.
type Builder struct {
	nonces    NonceReader
	forwarder common.Address
	ledger    common.Address
	gas       uint64
	validity  time.Duration
	now       func() time.Time
}

// BuilderOption customizes a Builder.
type BuilderOption func(*Builder)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

// WithGas overrides DefaultGas.
func WithGas(gas uint64) BuilderOption {
	return func(b *Builder) { b.gas = gas }
}

// WithValidity overrides the one hour deadline window.
func WithValidity(d time.Duration) BuilderOption {
	return func(b *Builder) { b.validity = d }
}

func NewBuilder(nonces NonceReader, forwarder, ledger common.Address, opts ...BuilderOption) *Builder {
	b := &Builder{
		nonces:    nonces,
		forwarder: forwarder,
		ledger:    ledger,
		gas:       DefaultGas,
		validity:  time.Hour,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Forwarder returns the forwarder the builder reads nonces from.
func (b *Builder) Forwarder() common.Address { return b.forwarder }

// BuildCreateRecord builds a request that calls createRecord(emotion, contentHash) on the ledger
// as user. The nonce is read from the forwarder on every call.
func (b *Builder) BuildCreateRecord(ctx context.Context, user common.Address, emotion string, contentHash [32]byte) (*ForwardRequest, error) {
	data, err := contracts.InnerLedger.Pack("createRecord", emotion, contentHash)
	if err != nil {
		return nil, fmt.Errorf("encode createRecord: %w", err)
	}
	return b.Build(ctx, user, data)
}

// Build wraps arbitrary ledger calldata into a forward request for user.
func (b *Builder) Build(ctx context.Context, user common.Address, data []byte) (*ForwardRequest, error) {
	nonce, err := b.nonces.Nonces(ctx, user)
	if err != nil {
		return nil, &ChainReadError{Op: "nonces", Err: err}
	}
	if nonce == nil {
		return nil, &ChainReadError{Op: "nonces", Err: fmt.Errorf("empty result")}
	}

	return &ForwardRequest{
		From:     user,
		To:       b.ledger,
		Value:    big.NewInt(0),
		Gas:      new(big.Int).SetUint64(b.gas),
		Nonce:    nonce,
		Deadline: uint64(b.now().Add(b.validity).Unix()),
		Data:     data,
	}, nil
}
