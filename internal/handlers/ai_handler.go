package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/celery8911/InnerLedger/internal/clients"
	"github.com/celery8911/InnerLedger/internal/metrics"
)

// Reflector produces the short reflection shown after a record is written. Implemented by clients.AIClient.
type Reflector interface {
	Configured() bool
	Reflect(ctx context.Context, userInput string) (string, error)
}

// AIHandler proxies reflection requests so the API key never reaches the browser
type AIHandler struct {
	ai     Reflector
	logger *logrus.Logger
}

func NewAIHandler(ai Reflector, logger *logrus.Logger) *AIHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AIHandler{ai: ai, logger: logger}
}

type understandRequest struct {
	UserInput string `json:"userInput"`
}

// UnderstandHandler POST /api/ai/understand
func (h *AIHandler) UnderstandHandler(c *gin.Context) {
	if !h.ai.Configured() {
		metrics.AIRequests.WithLabelValues("not_configured").Inc()
		respondWithError(c, http.StatusInternalServerError, clients.ErrAIKeyMissing.Error())
		return
	}

	var req understandRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.UserInput) == "" {
		metrics.AIRequests.WithLabelValues("invalid").Inc()
		respondWithError(c, http.StatusBadRequest, "Input required")
		return
	}

	text, err := h.ai.Reflect(c.Request.Context(), req.UserInput)
	switch {
	case errors.Is(err, clients.ErrAITimeout):
		metrics.AIRequests.WithLabelValues("timeout").Inc()
		respondWithError(c, http.StatusGatewayTimeout, err.Error())
	case err != nil:
		metrics.AIRequests.WithLabelValues("error").Inc()
		h.logger.WithError(err).Warn("AI API Error")
		respondWithError(c, http.StatusInternalServerError, err.Error())
	default:
		metrics.AIRequests.WithLabelValues("ok").Inc()
		c.JSON(http.StatusOK, gin.H{"aiResponse": text})
	}
}
