package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/celery8911/InnerLedger/internal/metatx"
	"github.com/celery8911/InnerLedger/internal/ratelimit"
	"github.com/celery8911/InnerLedger/internal/services"
)

// maxRelayBody bounds the relay request body; a createRecord request is well under 4 KiB.
const maxRelayBody = 64 << 10

// TxStatusReader answers GET /api/relay/tx/:hash. Implemented by services.TxWatcherService.
type TxStatusReader interface {
	Status(ctx context.Context, hash common.Hash) (*services.TxStatus, error)
}

// ExplorerLinker builds block explorer links. Implemented by config.DeploymentRegistry.
type ExplorerLinker interface {
	ExplorerTxURL(chainID int64, txHash string) string
}

// RelayHandler serves the relay endpoint and transaction status lookups.
type RelayHandler struct {
	relay        *services.RelayService
	status       TxStatusReader
	explorer     ExplorerLinker
	chainID      int64
	writeTimeout time.Duration
	logger       *logrus.Logger
}

// NewRelayHandler status and explorer may be nil.
func NewRelayHandler(relay *services.RelayService, status TxStatusReader, explorer ExplorerLinker, chainID int64, writeTimeout time.Duration, logger *logrus.Logger) *RelayHandler {
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RelayHandler{
		relay:        relay,
		status:       status,
		explorer:     explorer,
		chainID:      chainID,
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

// RelayHandler POST /api/relay
//
// Body {forwardRequest: {...}, idempotencyKey?}. 200 {hash} or {error} with the status of the
// first gate that rejected the request.
func (h *RelayHandler) RelayHandler(c *gin.Context) {
	var env metatx.RelayEnvelope
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRelayBody+1))
	if err != nil || len(body) > maxRelayBody || json.Unmarshal(body, &env) != nil {
		if !h.relay.Configured() {
			respondWithError(c, http.StatusInternalServerError, services.ErrRelayerNotConfigured.Error())
			return
		}
		respondWithError(c, http.StatusBadRequest, services.ErrInvalidRequest.Error())
		return
	}

	key := strings.TrimSpace(env.IdempotencyKey)
	if key == "" {
		key = strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.writeTimeout)
	defer cancel()

	res, err := h.relay.Relay(ctx, services.RelayInput{
		Request:        env.ForwardRequest,
		IdempotencyKey: key,
		AuthSubject:    authenticatedAddress(c),
		ClientIP:       c.ClientIP(),
	})
	if err != nil {
		var relayErr *services.RelayError
		if !errors.As(err, &relayErr) {
			h.logger.WithError(err).Error("unclassified relay error")
			respondWithError(c, http.StatusInternalServerError, services.ErrSubmissionFailed.Error())
			return
		}
		if relayErr.Status == http.StatusTooManyRequests {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(relayErr.RetryAfter.Seconds()))))
		}
		respondWithError(c, relayErr.Status, relayErr.Message)
		return
	}

	setRateLimitHeaders(c, res.Limit)
	if res.Replayed {
		c.Header("Idempotent-Replayed", "true")
	}
	c.JSON(http.StatusOK, gin.H{"hash": res.Hash.Hex()})
}

func setRateLimitHeaders(c *gin.Context, d ratelimit.Decision) {
	if d.Limit == 0 {
		return
	}
	c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining()))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}

// TxStatusHandler GET /api/relay/tx/:hash
func (h *RelayHandler) TxStatusHandler(c *gin.Context) {
	hash, ok := hashParam(c, "hash")
	if !ok {
		respondWithError(c, http.StatusBadRequest, "Invalid transaction hash")
		return
	}
	if h.status == nil {
		respondWithError(c, http.StatusServiceUnavailable, "Transaction tracking is disabled")
		return
	}

	st, err := h.status.Status(c.Request.Context(), hash)
	if err != nil {
		h.logger.WithError(err).WithField("tx_hash", hash.Hex()).Warn("status lookup failed")
		respondWithError(c, http.StatusBadGateway, "Status lookup failed")
		return
	}
	if h.explorer != nil {
		st.ExplorerURL = h.explorer.ExplorerTxURL(h.chainID, st.TxHash)
	}
	c.JSON(http.StatusOK, st)
}
