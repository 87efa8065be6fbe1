package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celery8911/InnerLedger/internal/metatx"
	"github.com/celery8911/InnerLedger/internal/testutil"
)

var (
	forwarderAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
	ledgerAddr    = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func fakeDial(chain *testutil.FakeChain) dialFunc {
	return func(context.Context, string) (chainClient, func(), error) {
		return chain, func() {}, nil
	}
}

func run(t *testing.T, chain *testutil.FakeChain, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(fakeDial(chain))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	base := []string{"--forwarder", forwarderAddr.Hex(), "--ledger", ledgerAddr.Hex(), "--rpc-url", "http://fake"}
	root.SetArgs(append(args, base...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func newChain() *testutil.FakeChain {
	return testutil.NewFakeChain(metatx.NewDomain(metatx.MonadTestnetChainID, forwarderAddr))
}

func TestNonceCommand(t *testing.T) {
	chain := newChain()
	user := common.HexToAddress("0x00000000000000000000000000000000000000Aa")
	chain.SetNonce(user, 7)

	out, err := run(t, chain, "nonce", user.Hex(), "-o", "json")
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "7", got["nonce"])
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", got["address"])

	out, err = run(t, chain, "nonce", user.Hex())
	require.NoError(t, err)
	assert.Contains(t, out, "Forwarder nonce")

	_, err = run(t, chain, "nonce", "not-an-address")
	assert.ErrorContains(t, err, "invalid address")
}

func TestDomainCommand(t *testing.T) {
	chain := newChain()
	out, err := run(t, chain, "domain", "-o", "json")
	require.NoError(t, err)
	var report domainReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.MatchesOnChain)
	assert.Equal(t, "10143", report.ChainID)

	chain.Domain.Version = "2"
	out, err = run(t, chain, "domain", "-o", "json")
	assert.ErrorContains(t, err, "domain mismatch in version")
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, []string{"version"}, report.MismatchedFields)
}

func TestRecordAndVerify(t *testing.T) {
	chain := newChain()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	user := crypto.PubkeyToAddress(key.PublicKey)
	chain.SetNonce(user, 3)

	var envelope metatx.RelayEnvelope
	var idemHeader string
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/relay", r.URL.Path)
		idemHeader = r.Header.Get("Idempotency-Key")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&envelope))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"hash":"0xabc"}`))
	}))
	defer relay.Close()

	saved := filepath.Join(t.TempDir(), "signed.json")
	t.Setenv("INNERLEDGER_KEY", "0x"+common.Bytes2Hex(crypto.FromECDSA(key)))

	out, err := run(t, chain, "record",
		"--emotion", "calm", "--content", "walked by the sea",
		"--relay-url", relay.URL, "--save", saved, "--idempotency-key", "k-1", "-o", "json")
	require.NoError(t, err)

	var report recordReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "0xabc", report.TxHash)
	assert.Equal(t, "3", report.Nonce)
	assert.Equal(t, crypto.Keccak256Hash([]byte("walked by the sea")).Hex(), report.ContentHash)
	assert.Equal(t, "k-1", idemHeader)
	assert.Equal(t, "k-1", envelope.IdempotencyKey)
	require.NotNil(t, envelope.ForwardRequest)
	assert.Equal(t, user.Hex(), envelope.ForwardRequest.From)
	assert.Equal(t, ledgerAddr.Hex(), envelope.ForwardRequest.To)

	t.Run("offline", func(t *testing.T) {
		out, err := run(t, chain, "verify", saved, "--offline", "-o", "json")
		require.NoError(t, err)
		var v verifyReport
		require.NoError(t, json.Unmarshal([]byte(out), &v))
		require.NotNil(t, v.OfflineValid)
		assert.True(t, *v.OfflineValid)
		assert.Equal(t, user.Hex(), v.Signer)
	})

	t.Run("on chain", func(t *testing.T) {
		_, err := run(t, chain, "verify", saved)
		require.NoError(t, err)

		// once the forwarder nonce moves on the signature is stale
		chain.SetNonce(user, 4)
		_, err = run(t, chain, "verify", saved, "--nonce", "3")
		assert.ErrorContains(t, err, "does not verify")
	})

	t.Run("wrong nonce offline", func(t *testing.T) {
		_, err := run(t, chain, "verify", saved, "--offline", "--nonce", "9")
		assert.ErrorContains(t, err, "does not verify")
	})
}

func TestRecordRequiresKeyAndFields(t *testing.T) {
	chain := newChain()
	_, err := run(t, chain, "record", "--emotion", "calm")
	assert.ErrorContains(t, err, "--emotion and --content are required")

	_, err = run(t, chain, "record", "--emotion", "calm", "--content", "x")
	assert.ErrorContains(t, err, "no signing key")
}

func TestRecordRelayRejection(t *testing.T) {
	chain := newChain()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"Rate limit exceeded. Please try again later."}`))
	}))
	defer relay.Close()

	_, err = run(t, chain, "record", "--emotion", "calm", "--content", "x",
		"--key", common.Bytes2Hex(crypto.FromECDSA(key)), "--relay-url", relay.URL)
	assert.ErrorContains(t, err, "Rate limit exceeded")
}

func TestRecordRefusesForeignDomain(t *testing.T) {
	chain := newChain()
	chain.Domain.Name = "SomeOtherForwarder"
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	var hits atomic.Int32
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"hash":"0x01"}`))
	}))
	defer relay.Close()

	keyHex := common.Bytes2Hex(crypto.FromECDSA(key))
	_, err = run(t, chain, "record", "--emotion", "calm", "--content", "x", "--key", keyHex, "--relay-url", relay.URL)
	require.Error(t, err)
	var mismatch *metatx.DomainMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, []string{"name"}, mismatch.Fields)
	assert.Zero(t, hits.Load(), "nothing is relayed")

	out, err := run(t, chain, "record", "--emotion", "calm", "--content", "x", "--key", keyHex,
		"--dry-run", "--skip-domain-check")
	require.NoError(t, err)
	assert.Contains(t, out, "Content hash")
}

func TestVerifyRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err := run(t, newChain(), "verify", path, "--offline")
	assert.ErrorContains(t, err, "not valid JSON")
}
