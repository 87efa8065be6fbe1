package handlers

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/celery8911/InnerLedger/internal/services"
)

// WebSocketHandler subscribes a browser to confirmation pushes for a sender or a tx hash
type WebSocketHandler struct {
	pushService *services.WebSocketPushService
}

func NewWebSocketHandler(pushService *services.WebSocketPushService) *WebSocketHandler {
	return &WebSocketHandler{pushService: pushService}
}

// HandleWebSocket GET /ws?address=0x..&tx=0x..
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	address := strings.TrimSpace(c.Query("address"))
	tx := strings.TrimSpace(c.Query("tx"))
	if address == "" && tx == "" {
		respondWithError(c, http.StatusBadRequest, "address or tx required")
		return
	}
	if address != "" && !common.IsHexAddress(address) {
		respondWithError(c, http.StatusBadRequest, errBadAddress.Error())
		return
	}
	if tx != "" && !isHexHash(tx) {
		respondWithError(c, http.StatusBadRequest, "Invalid transaction hash")
		return
	}
	h.pushService.HandleWebSocket(c.Writer, c.Request, address, tx)
}
