package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/celery8911/InnerLedger/internal/services"
)

// JourneyHandler read-only views of a user's ledger history
type JourneyHandler struct {
	journeys *services.JourneyService
	logger   *logrus.Logger
}

func NewJourneyHandler(journeys *services.JourneyService, logger *logrus.Logger) *JourneyHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &JourneyHandler{journeys: journeys, logger: logger}
}

// JourneyHandler GET /api/journey/:address
func (h *JourneyHandler) JourneyHandler(c *gin.Context) {
	user, err := addressParam(c, "address")
	if err != nil {
		respondWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	view, err := h.journeys.Journey(c.Request.Context(), user)
	if err != nil {
		h.logger.WithError(err).WithField("user", user.Hex()).Warn("journey read failed")
		respondWithError(c, http.StatusBadGateway, "Failed to read journey")
		return
	}
	c.JSON(http.StatusOK, view)
}

// RecordsHandler GET /api/records/:address?first=N
func (h *JourneyHandler) RecordsHandler(c *gin.Context) {
	user, err := addressParam(c, "address")
	if err != nil {
		respondWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	first, err := strconv.Atoi(c.DefaultQuery("first", "100"))
	if err != nil || first <= 0 || first > 1000 {
		respondWithError(c, http.StatusBadRequest, "first must be between 1 and 1000")
		return
	}

	records, err := h.journeys.Records(c.Request.Context(), user, first)
	if err != nil {
		if services.IsSubgraphDisabled(err) {
			respondWithError(c, http.StatusServiceUnavailable, "Subgraph not configured")
			return
		}
		h.logger.WithError(err).Warn("subgraph query failed")
		respondWithError(c, http.StatusBadGateway, "Subgraph query failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}
