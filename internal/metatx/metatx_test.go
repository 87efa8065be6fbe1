package metatx_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/celery8911/InnerLedger/internal/contracts"
	"github.com/celery8911/InnerLedger/internal/metatx"
	"github.com/celery8911/InnerLedger/internal/mocks"
)

var (
	forwarderAddr = common.HexToAddress("0x6Fd7b0D88e8b812aa2Cb4F394ee2660FC2FeA4A5")
	ledgerAddr    = common.HexToAddress("0x0379201C1014ece6FEc1bFE4E6371C484748406a")
)

func newUser(t *testing.T) *metatx.PrivateKeySigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return metatx.NewPrivateKeySigner(key)
}

func TestBuildCreateRecord(t *testing.T) {
	ctrl := gomock.NewController(t)
	nonces := mocks.NewMockNonceReader(ctrl)
	user := newUser(t)
	fixed := time.Unix(1_700_000_000, 0)

	nonces.EXPECT().Nonces(gomock.Any(), user.Address()).Return(big.NewInt(7), nil).Times(1)

	b := metatx.NewBuilder(nonces, forwarderAddr, ledgerAddr, metatx.WithClock(func() time.Time { return fixed }))
	var contentHash [32]byte
	copy(contentHash[:], crypto.Keccak256([]byte("ciphertext")))

	req, err := b.BuildCreateRecord(context.Background(), user.Address(), "calm", contentHash)
	require.NoError(t, err)

	assert.Equal(t, user.Address(), req.From)
	assert.Equal(t, ledgerAddr, req.To)
	assert.Equal(t, int64(0), req.Value.Int64())
	assert.Equal(t, int64(450000), req.Gas.Int64())
	assert.Equal(t, int64(7), req.Nonce.Int64())
	assert.Equal(t, uint64(fixed.Unix()+3600), req.Deadline)

	args, err := contracts.InnerLedger.Methods["createRecord"].Inputs.Unpack(req.Data[4:])
	require.NoError(t, err)
	assert.Equal(t, "calm", args[0])
	assert.Equal(t, contentHash, args[1])
}

func TestBuild_ReadsNonceEveryTime(t *testing.T) {
	ctrl := gomock.NewController(t)
	nonces := mocks.NewMockNonceReader(ctrl)
	user := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	gomock.InOrder(
		nonces.EXPECT().Nonces(gomock.Any(), user).Return(big.NewInt(0), nil),
		nonces.EXPECT().Nonces(gomock.Any(), user).Return(big.NewInt(1), nil),
	)

	b := metatx.NewBuilder(nonces, forwarderAddr, ledgerAddr)
	first, err := b.Build(context.Background(), user, nil)
	require.NoError(t, err)
	second, err := b.Build(context.Background(), user, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(0), first.Nonce.Int64())
	assert.Equal(t, int64(1), second.Nonce.Int64())
}

func TestBuild_ChainReadError(t *testing.T) {
	ctrl := gomock.NewController(t)
	nonces := mocks.NewMockNonceReader(ctrl)
	rpcErr := errors.New("connection refused")
	nonces.EXPECT().Nonces(gomock.Any(), gomock.Any()).Return(nil, rpcErr)

	b := metatx.NewBuilder(nonces, forwarderAddr, ledgerAddr)
	_, err := b.BuildCreateRecord(context.Background(), common.Address{}, "sad", [32]byte{})

	var readErr *metatx.ChainReadError
	require.ErrorAs(t, err, &readErr)
	assert.ErrorIs(t, err, rpcErr)
}

func TestSignAndRecover(t *testing.T) {
	user := newUser(t)
	domain := metatx.NewDomain(metatx.MonadTestnetChainID, forwarderAddr)
	req := &metatx.ForwardRequest{
		From:     user.Address(),
		To:       ledgerAddr,
		Value:    big.NewInt(0),
		Gas:      big.NewInt(450000),
		Nonce:    big.NewInt(3),
		Deadline: 1_700_003_600,
		Data:     []byte{0xde, 0xad, 0xbe, 0xef},
	}

	signed, err := metatx.NewSigner(domain, user).Sign(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, signed.Signature, 65)
	assert.Contains(t, []byte{27, 28}, signed.Signature[64])

	recovered, err := metatx.RecoverSigner(domain, &signed.ForwardRequest, signed.Signature)
	require.NoError(t, err)
	assert.Equal(t, user.Address(), recovered)
	assert.True(t, metatx.Verify(domain, signed))
}

func TestVerify_FailsWhenTamperedOrWrongDomain(t *testing.T) {
	user := newUser(t)
	domain := metatx.NewDomain(metatx.MonadTestnetChainID, forwarderAddr)
	req := &metatx.ForwardRequest{
		From: user.Address(), To: ledgerAddr,
		Value: big.NewInt(0), Gas: big.NewInt(450000), Nonce: big.NewInt(0),
		Deadline: 1_700_003_600,
	}
	signed, err := metatx.NewSigner(domain, user).Sign(context.Background(), req)
	require.NoError(t, err)

	tampered := *signed
	tampered.Gas = big.NewInt(499999)
	assert.False(t, metatx.Verify(domain, &tampered))

	otherChain := metatx.NewDomain(1, forwarderAddr)
	assert.False(t, metatx.Verify(otherChain, signed))

	staleNonce := *signed
	staleNonce.Nonce = big.NewInt(1)
	assert.False(t, metatx.Verify(domain, &staleNonce))
}

type decliningSigner struct{ addr common.Address }

func (d decliningSigner) Address() common.Address { return d.addr }

func (d decliningSigner) SignTypedData(context.Context, apitypes.TypedData) ([]byte, error) {
	return nil, metatx.ErrSigningDeclined
}

type brokenSigner struct{ addr common.Address }

func (b brokenSigner) Address() common.Address { return b.addr }

func (b brokenSigner) SignTypedData(context.Context, apitypes.TypedData) ([]byte, error) {
	return nil, errors.New("device disconnected")
}

func TestSign_Errors(t *testing.T) {
	from := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	domain := metatx.NewDomain(metatx.MonadTestnetChainID, forwarderAddr)
	req := &metatx.ForwardRequest{From: from, To: ledgerAddr, Value: big.NewInt(0), Gas: big.NewInt(1), Nonce: big.NewInt(0)}

	_, err := metatx.NewSigner(domain, decliningSigner{from}).Sign(context.Background(), req)
	assert.ErrorIs(t, err, metatx.ErrSigningDeclined)

	_, err = metatx.NewSigner(domain, brokenSigner{from}).Sign(context.Background(), req)
	var failed *metatx.SigningFailedError
	assert.ErrorAs(t, err, &failed)

	_, err = metatx.NewSigner(domain, newUser(t)).Sign(context.Background(), req)
	assert.ErrorAs(t, err, &failed, "a key cannot sign for another account")

	noNonce := *req
	noNonce.Nonce = nil
	_, err = metatx.NewSigner(domain, decliningSigner{from}).Sign(context.Background(), &noNonce)
	assert.ErrorAs(t, err, &failed)
}

func TestCheckDomain(t *testing.T) {
	expected := metatx.NewDomain(metatx.MonadTestnetChainID, forwarderAddr)
	assert.NoError(t, metatx.CheckDomain(expected, metatx.NewDomain(10143, forwarderAddr)))

	onChain := metatx.Domain{Name: "ERC2771Forwarder", Version: "1", ChainID: big.NewInt(10143), VerifyingContract: ledgerAddr}
	err := metatx.CheckDomain(expected, onChain)
	var mismatch *metatx.DomainMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, []string{"name", "verifyingContract"}, mismatch.Fields)
}

func TestWireRequest_Parse(t *testing.T) {
	user := newUser(t)
	domain := metatx.NewDomain(metatx.MonadTestnetChainID, forwarderAddr)
	req := &metatx.ForwardRequest{
		From: user.Address(), To: ledgerAddr,
		Value: big.NewInt(0), Gas: big.NewInt(450000), Nonce: big.NewInt(0),
		Deadline: 1_700_003_600, Data: []byte{1, 2, 3},
	}
	signed, err := metatx.NewSigner(domain, user).Sign(context.Background(), req)
	require.NoError(t, err)

	wire := signed.ToWire()
	assert.Equal(t, "0", wire.Value)
	assert.Equal(t, "450000", wire.Gas)
	assert.Equal(t, "0x010203", wire.Data)

	parsed, err := wire.Parse()
	require.NoError(t, err)
	assert.Nil(t, parsed.Nonce)
	assert.Equal(t, signed.Signature, parsed.Signature)
	assert.Equal(t, signed.Deadline, parsed.Deadline)

	wire.Value = ""
	parsed, err = wire.Parse()
	require.NoError(t, err)
	assert.Equal(t, int64(0), parsed.Value.Int64())

	for name, mutate := range map[string]func(w *metatx.WireRequest){
		"gas":       func(w *metatx.WireRequest) { w.Gas = "1e6" },
		"value":     func(w *metatx.WireRequest) { w.Value = "-1" },
		"data":      func(w *metatx.WireRequest) { w.Data = "0x123" },
		"signature": func(w *metatx.WireRequest) { w.Signature = "" },
		"from":      func(w *metatx.WireRequest) { w.From = "0x1234" },
		"deadline":  func(w *metatx.WireRequest) { w.Deadline = metatx.MaxDeadline + 1 },
	} {
		t.Run(name, func(t *testing.T) {
			w := *signed.ToWire()
			mutate(&w)
			_, err := w.Parse()
			var perr *metatx.ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, name, perr.Field)
		})
	}
}
