package mocks

import (
	"testing"

	"go.uber.org/mock/gomock"
)

// NewMockChainForwarderForTest creates a new mock ChainForwarder for testing
func NewMockChainForwarderForTest(t *testing.T) *MockChainForwarder {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	return NewMockChainForwarder(ctrl)
}

// NewMockReceiptReaderForTest creates a new mock ReceiptReader for testing
func NewMockReceiptReaderForTest(t *testing.T) *MockReceiptReader {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	return NewMockReceiptReader(ctrl)
}

// NewMockRelayTransactionRepositoryForTest creates a new mock RelayTransactionRepository for testing
func NewMockRelayTransactionRepositoryForTest(t *testing.T) *MockRelayTransactionRepository {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	return NewMockRelayTransactionRepository(ctrl)
}

// NewMockIdempotencyRepositoryForTest creates a new mock IdempotencyRepository for testing
func NewMockIdempotencyRepositoryForTest(t *testing.T) *MockIdempotencyRepository {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	return NewMockIdempotencyRepository(ctrl)
}
