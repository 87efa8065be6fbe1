package handlers

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/celery8911/InnerLedger/internal/metatx"
)

// ForwarderReader read side of the forwarder. Implemented by clients.ForwarderClient.
type ForwarderReader interface {
	Nonces(ctx context.Context, owner common.Address) (*big.Int, error)
	Domain(ctx context.Context) (metatx.Domain, error)
}

// ForwarderHandler exposes the values a browser needs before signing.
type ForwarderHandler struct {
	forwarder   ForwarderReader
	expected    metatx.Domain
	readTimeout time.Duration
	logger      *logrus.Logger
}

func NewForwarderHandler(forwarder ForwarderReader, expected metatx.Domain, readTimeout time.Duration, logger *logrus.Logger) *ForwarderHandler {
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ForwarderHandler{forwarder: forwarder, expected: expected, readTimeout: readTimeout, logger: logger}
}

// NonceHandler GET /api/forwarder/nonce/:address
func (h *ForwarderHandler) NonceHandler(c *gin.Context) {
	owner, err := addressParam(c, "address")
	if err != nil {
		respondWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	if h.forwarder == nil {
		respondWithError(c, http.StatusServiceUnavailable, "Forwarder not configured")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.readTimeout)
	defer cancel()
	nonce, err := h.forwarder.Nonces(ctx, owner)
	if err != nil {
		h.logger.WithError(err).WithField("owner", owner.Hex()).Warn("nonce read failed")
		respondWithError(c, http.StatusBadGateway, "Failed to read nonce")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address": strings.ToLower(owner.Hex()),
		"nonce":   nonce.String(),
	})
}

// DomainHandler GET /api/forwarder/domain
//
// Returns the configured signing domain and whether the forwarder agrees with it.
func (h *ForwarderHandler) DomainHandler(c *gin.Context) {
	resp := gin.H{
		"name":              h.expected.Name,
		"version":           h.expected.Version,
		"chainId":           bigString(h.expected.ChainID),
		"verifyingContract": h.expected.VerifyingContract.Hex(),
	}
	if h.forwarder == nil {
		c.JSON(http.StatusOK, resp)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.readTimeout)
	defer cancel()
	onChain, err := h.forwarder.Domain(ctx)
	if err != nil {
		h.logger.WithError(err).Warn("eip712Domain read failed")
		resp["onChainError"] = "Failed to read forwarder domain"
		c.JSON(http.StatusOK, resp)
		return
	}

	resp["matchesOnChain"] = true
	var mismatch *metatx.DomainMismatchError
	if err := metatx.CheckDomain(h.expected, onChain); errors.As(err, &mismatch) {
		resp["matchesOnChain"] = false
		resp["mismatchedFields"] = mismatch.Fields
	}
	c.JSON(http.StatusOK, resp)
}

func bigString(b *big.Int) string {
	if b == nil {
		return "0"
	}
	return b.String()
}
