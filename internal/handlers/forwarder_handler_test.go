package handlers_test

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celery8911/InnerLedger/internal/clients"
	"github.com/celery8911/InnerLedger/internal/handlers"
	"github.com/celery8911/InnerLedger/internal/metatx"
	"github.com/celery8911/InnerLedger/internal/testutil"
)

var forwarderAddr = common.HexToAddress("0x6Fd7b0D88e8b812aa2Cb4F394ee2660FC2FeA4A5")

func forwarderRouter(h *handlers.ForwarderHandler) *gin.Engine {
	r := gin.New()
	r.GET("/api/forwarder/nonce/:address", h.NonceHandler)
	r.GET("/api/forwarder/domain", h.DomainHandler)
	return r
}

func TestForwarderHandler_Nonce(t *testing.T) {
	domain := metatx.NewDomain(metatx.MonadTestnetChainID, forwarderAddr)
	chain := testutil.NewFakeChain(domain)
	chain.SetNonce(senderAddr, 4)
	fc := clients.NewForwarderClient(chain, forwarderAddr, domain.ChainID, nil, clients.ForwarderOptions{}, quietLogger())
	r := forwarderRouter(handlers.NewForwarderHandler(fc, domain, time.Second, quietLogger()))

	w := do(r, http.MethodGet, "/api/forwarder/nonce/"+senderAddr.Hex(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "4", resp["nonce"])
	assert.Equal(t, strings.ToLower(senderAddr.Hex()), resp["address"])

	w = do(r, http.MethodGet, "/api/forwarder/nonce/0x123", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid address", errorBody(t, w))
}

func TestForwarderHandler_NonceWithoutForwarder(t *testing.T) {
	domain := metatx.NewDomain(metatx.MonadTestnetChainID, forwarderAddr)
	r := forwarderRouter(handlers.NewForwarderHandler(nil, domain, time.Second, quietLogger()))
	assert.Equal(t, http.StatusServiceUnavailable, do(r, http.MethodGet, "/api/forwarder/nonce/"+senderAddr.Hex(), nil).Code)
}

func TestForwarderHandler_Domain(t *testing.T) {
	domain := metatx.NewDomain(metatx.MonadTestnetChainID, forwarderAddr)
	fc := clients.NewForwarderClient(testutil.NewFakeChain(domain), forwarderAddr, domain.ChainID, nil, clients.ForwarderOptions{}, quietLogger())

	r := forwarderRouter(handlers.NewForwarderHandler(fc, domain, time.Second, quietLogger()))
	w := do(r, http.MethodGet, "/api/forwarder/domain", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "InnerLedgerForwarder", resp["name"])
	assert.Equal(t, "1", resp["version"])
	assert.Equal(t, "10143", resp["chainId"])
	assert.Equal(t, forwarderAddr.Hex(), resp["verifyingContract"])
	assert.Equal(t, true, resp["matchesOnChain"])

	configured := domain
	configured.Version = "2"
	r = forwarderRouter(handlers.NewForwarderHandler(fc, configured, time.Second, quietLogger()))
	w = do(r, http.MethodGet, "/api/forwarder/domain", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp = map[string]interface{}{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["matchesOnChain"])
	assert.Contains(t, resp["mismatchedFields"], "version")
}
