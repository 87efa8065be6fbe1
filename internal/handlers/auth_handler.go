package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/celery8911/InnerLedger/internal/dto"
	"github.com/celery8911/InnerLedger/internal/services"
)

// AuthHandler wallet sign-in. Binds a relay sender to the wallet that proved control of it.
type AuthHandler struct {
	auth   *services.WalletAuthService
	logger *logrus.Logger
}

func NewAuthHandler(auth *services.WalletAuthService, logger *logrus.Logger) *AuthHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AuthHandler{auth: auth, logger: logger}
}

// GenerateNonceHandler GET /api/auth/nonce
func (h *AuthHandler) GenerateNonceHandler(c *gin.Context) {
	if !h.auth.Enabled() {
		c.JSON(http.StatusServiceUnavailable, dto.AuthResponse{Success: false, Message: services.ErrAuthDisabled.Error()})
		return
	}
	challenge, err := h.auth.Challenge()
	if err != nil {
		h.logger.WithError(err).Error("failed to issue challenge")
		c.JSON(http.StatusInternalServerError, dto.AuthResponse{Success: false, Message: "Failed to generate nonce"})
		return
	}
	c.JSON(http.StatusOK, challenge)
}

// AuthenticateHandler POST /api/auth/login
func (h *AuthHandler) AuthenticateHandler(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.AuthResponse{Success: false, Message: "Invalid request format"})
		return
	}

	token, expires, err := h.auth.Login(req.Address, req.Message, req.Signature)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, services.ErrAuthDisabled):
			status = http.StatusServiceUnavailable
		case errors.Is(err, services.ErrUnknownChallenge), errors.Is(err, services.ErrBadSignature):
			status = http.StatusUnauthorized
		}
		h.logger.WithFields(logrus.Fields{
			"address": req.Address,
			"error":   err.Error(),
		}).Warn("wallet login rejected")
		c.JSON(status, dto.AuthResponse{Success: false, Message: err.Error()})
		return
	}

	claims, err := h.auth.Validate(token)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.AuthResponse{Success: false, Message: "Failed to issue token"})
		return
	}
	c.JSON(http.StatusOK, dto.AuthResponse{
		Success:   true,
		Token:     token,
		Address:   claims.Address,
		ExpiresAt: expires.Unix(),
		Message:   "Authentication successful",
	})
}

// MeHandler GET /api/auth/me
func (h *AuthHandler) MeHandler(c *gin.Context) {
	address := authenticatedAddress(c)
	if address == "" {
		respondWithError(c, http.StatusUnauthorized, "Authentication required")
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": address, "chainId": c.GetInt64(ContextChainID)})
}
