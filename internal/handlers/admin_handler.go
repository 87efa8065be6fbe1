package handlers

import (
	"context"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/celery8911/InnerLedger/internal/repository"
	"github.com/celery8911/InnerLedger/internal/services"
)

// BalanceChecker relayer balance probe. Implemented by services.MonitoringService.
type BalanceChecker interface {
	CheckBalance(ctx context.Context) (*big.Int, error)
	IsLow(balance *big.Int) bool
}

// AdminHandler operator endpoints. Mounted behind admin JWT and the IP allow-list.
type AdminHandler struct {
	relay    *services.RelayService
	relayer  common.Address
	chainID  int64
	balances BalanceChecker
	txRepo   repository.RelayTransactionRepository
	logger   *logrus.Logger
}

func NewAdminHandler(relay *services.RelayService, relayer common.Address, chainID int64, balances BalanceChecker, txRepo repository.RelayTransactionRepository, logger *logrus.Logger) *AdminHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AdminHandler{relay: relay, relayer: relayer, chainID: chainID, balances: balances, txRepo: txRepo, logger: logger}
}

// RelayerInfoHandler GET /api/admin/relayer
func (h *AdminHandler) RelayerInfoHandler(c *gin.Context) {
	policy := h.relay.Policy()
	resp := gin.H{
		"configured": h.relay.Configured(),
		"chainId":    h.chainID,
		"limits": gin.H{
			"maxGas":            policy.MaxGas,
			"ledger":            policy.Ledger.Hex(),
			"requireSenderAuth": policy.RequireSenderAuth,
			"idempotencyTTL":    policy.IdempotencyTTL.String(),
		},
	}
	if h.relayer != (common.Address{}) {
		resp["address"] = h.relayer.Hex()
	}
	if h.balances != nil && h.relayer != (common.Address{}) {
		balance, err := h.balances.CheckBalance(c.Request.Context())
		if err != nil {
			h.logger.WithError(err).Warn("relayer balance read failed")
			resp["balanceError"] = "Failed to read balance"
		} else {
			resp["balanceWei"] = balance.String()
			resp["balance"] = services.FormatEther(balance)
			resp["low"] = h.balances.IsLow(balance)
		}
	}
	c.JSON(http.StatusOK, resp)
}

// ResetRateLimitHandler DELETE /api/admin/ratelimit/:address
func (h *AdminHandler) ResetRateLimitHandler(c *gin.Context) {
	sender, err := addressParam(c, "address")
	if err != nil {
		respondWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	key := strings.ToLower(sender.Hex())
	if err := h.relay.Limiter().Reset(c.Request.Context(), key); err != nil {
		h.logger.WithError(err).WithField("sender", key).Error("rate limit reset failed")
		respondWithError(c, http.StatusServiceUnavailable, "Rate limit store unavailable")
		return
	}
	h.logger.WithFields(logrus.Fields{
		"sender": key,
		"admin":  c.GetString(ContextAdminUsername),
	}).Info("rate limit window reset")
	c.JSON(http.StatusOK, gin.H{"success": true, "address": key})
}

// RelayStatsHandler GET /api/admin/relay/stats?hours=24
func (h *AdminHandler) RelayStatsHandler(c *gin.Context) {
	if h.txRepo == nil {
		respondWithError(c, http.StatusServiceUnavailable, "Audit log not configured")
		return
	}
	hours, err := strconv.Atoi(c.DefaultQuery("hours", "24"))
	if err != nil || hours <= 0 {
		respondWithError(c, http.StatusBadRequest, "hours must be a positive integer")
		return
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	stats, err := h.txRepo.CountByStatus(c.Request.Context(), since)
	if err != nil {
		h.logger.WithError(err).Error("relay stats query failed")
		respondWithError(c, http.StatusInternalServerError, "Failed to load relay stats")
		return
	}
	c.JSON(http.StatusOK, gin.H{"since": since.UTC(), "stats": stats})
}

// SenderHistoryHandler GET /api/admin/relay/sender/:address?limit=50
func (h *AdminHandler) SenderHistoryHandler(c *gin.Context) {
	if h.txRepo == nil {
		respondWithError(c, http.StatusServiceUnavailable, "Audit log not configured")
		return
	}
	sender, err := addressParam(c, "address")
	if err != nil {
		respondWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		respondWithError(c, http.StatusBadRequest, "limit must be between 1 and 500")
		return
	}
	rows, err := h.txRepo.FindBySender(c.Request.Context(), strings.ToLower(sender.Hex()), limit)
	if err != nil {
		h.logger.WithError(err).Error("sender history query failed")
		respondWithError(c, http.StatusInternalServerError, "Failed to load sender history")
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": strings.ToLower(sender.Hex()), "transactions": rows})
}
