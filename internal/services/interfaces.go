package services

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/celery8911/InnerLedger/internal/metatx"
)

// ChainForwarder submits a signed forward request on chain. Implemented by clients.ForwarderClient.
type ChainForwarder interface {
	Execute(ctx context.Context, req *metatx.ForwardRequestData) (common.Hash, error)
}

// ReceiptReader is the part of ethclient.Client the tx watcher needs.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}
