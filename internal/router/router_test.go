package router_test

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celery8911/InnerLedger/internal/app"
	"github.com/celery8911/InnerLedger/internal/clients"
	"github.com/celery8911/InnerLedger/internal/config"
	"github.com/celery8911/InnerLedger/internal/metatx"
	"github.com/celery8911/InnerLedger/internal/router"
	"github.com/celery8911/InnerLedger/internal/testutil"
)

var (
	forwarderAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
	ledgerAddr    = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stack struct {
	chain  *testutil.FakeChain
	server *httptest.Server
	user   *metatx.PrivateKeySigner
	domain metatx.Domain
}

func newStack(t *testing.T, configure func(*config.Config)) *stack {
	t.Helper()
	relayerKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Contracts.Forwarder = forwarderAddr.Hex()
	cfg.Contracts.InnerLedger = ledgerAddr.Hex()
	cfg.Relayer.PrivateKey = hex.EncodeToString(crypto.FromECDSA(relayerKey))
	cfg.Relay.WatchTransactions = true
	if configure != nil {
		configure(cfg)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	domain := metatx.NewDomain(cfg.Chain.ChainID, forwarderAddr)
	chain := testutil.NewFakeChain(domain)

	c, err := app.NewServiceContainer(context.Background(), cfg, logger, app.Options{Chain: chain})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	srv := httptest.NewServer(router.SetupRouter(c))
	t.Cleanup(srv.Close)

	userKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &stack{chain: chain, server: srv, user: metatx.NewPrivateKeySigner(userKey), domain: domain}
}

// sign builds and signs a CreateRecord the way a wallet would, reading the nonce from the forwarder.
func (s *stack) sign(t *testing.T, to common.Address) *metatx.ForwardRequestData {
	t.Helper()
	ctx := context.Background()
	reader := clients.NewForwarderClient(s.chain, forwarderAddr, s.domain.ChainID, nil, clients.ForwarderOptions{}, nil)
	req, err := metatx.NewBuilder(reader, forwarderAddr, to).
		BuildCreateRecord(ctx, s.user.Address(), "calm", crypto.Keccak256Hash([]byte("note")))
	require.NoError(t, err)
	signed, err := metatx.NewSigner(s.domain, s.user).Sign(ctx, req)
	require.NoError(t, err)
	return signed
}

func (s *stack) getJSON(t *testing.T, path string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(s.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestGaslessRecordEndToEnd(t *testing.T) {
	s := newStack(t, nil)
	relay := clients.NewRelayClient(s.server.URL)
	ctx := context.Background()

	hash, err := relay.Relay(ctx, s.sign(t, ledgerAddr))
	require.NoError(t, err)
	assert.Len(t, hash, 66)

	executed := s.chain.Executed()
	require.Len(t, executed, 1)
	assert.Equal(t, s.user.Address(), executed[0].From)
	assert.Equal(t, ledgerAddr, executed[0].To)

	var nonce struct {
		Nonce string `json:"nonce"`
	}
	assert.Equal(t, http.StatusOK, s.getJSON(t, "/api/forwarder/nonce/"+s.user.Address().Hex(), &nonce))
	assert.Equal(t, "1", nonce.Nonce)

	var status struct {
		Status      string `json:"status"`
		BlockNumber uint64 `json:"blockNumber"`
	}
	assert.Equal(t, http.StatusOK, s.getJSON(t, "/api/relay/tx/"+hash, &status))
	assert.Equal(t, "confirmed", status.Status)
	assert.NotZero(t, status.BlockNumber)

	// a second record signs over the next nonce
	_, err = relay.Relay(ctx, s.sign(t, ledgerAddr))
	require.NoError(t, err)
	assert.Len(t, s.chain.Executed(), 2)
}

func TestRelayRejectionsEndToEnd(t *testing.T) {
	s := newStack(t, nil)
	relay := clients.NewRelayClient(s.server.URL)

	_, err := relay.Relay(context.Background(), s.sign(t, common.HexToAddress("0x9999999999999999999999999999999999999999")))
	var relayErr *clients.RelayError
	require.True(t, errors.As(err, &relayErr))
	assert.Equal(t, http.StatusForbidden, relayErr.StatusCode)
	assert.Equal(t, "Target contract not allowed", relayErr.Message)
	assert.Equal(t, 0, s.chain.Sends())
}

func TestUnconfiguredRelayer(t *testing.T) {
	s := newStack(t, func(cfg *config.Config) { cfg.Relayer.PrivateKey = "" })

	_, err := clients.NewRelayClient(s.server.URL).Relay(context.Background(), s.sign(t, ledgerAddr))
	var relayErr *clients.RelayError
	require.True(t, errors.As(err, &relayErr))
	assert.Equal(t, http.StatusInternalServerError, relayErr.StatusCode)
	assert.Equal(t, "Relayer not configured", relayErr.Message)

	var health map[string]interface{}
	assert.Equal(t, http.StatusServiceUnavailable, s.getJSON(t, "/health", &health))

	// reads keep working without a relayer credential
	var domain struct {
		Name           string `json:"name"`
		MatchesOnChain bool   `json:"matchesOnChain"`
	}
	assert.Equal(t, http.StatusOK, s.getJSON(t, "/api/forwarder/domain", &domain))
	assert.Equal(t, metatx.DomainName, domain.Name)
	assert.True(t, domain.MatchesOnChain)
}

func TestRoutesAndNoRoute(t *testing.T) {
	s := newStack(t, nil)

	var pong map[string]string
	assert.Equal(t, http.StatusOK, s.getJSON(t, "/ping", &pong))
	assert.Equal(t, "pong", pong["message"])

	var health map[string]interface{}
	assert.Equal(t, http.StatusOK, s.getJSON(t, "/health", &health))

	var missing map[string]string
	assert.Equal(t, http.StatusNotFound, s.getJSON(t, "/api/nope", &missing))
	assert.Equal(t, "API endpoint not found", missing["error"])

	// admin routes need a token even from loopback
	resp, err := http.Get(s.server.URL + "/api/admin/relayer")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	s := newStack(t, nil)

	req, err := http.NewRequest(http.MethodOptions, s.server.URL+"/api/relay", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type,Idempotency-Key")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
