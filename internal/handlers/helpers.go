// Package handlers implements the gin HTTP handlers of the relay backend.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// Context keys set by the auth middleware.
const (
	ContextUserAddress   = "user_address"
	ContextChainID       = "chain_id"
	ContextAdminUsername = "admin_username"
	ContextAdminRole     = "admin_role"
)

var errBadAddress = errors.New("Invalid address")

// respondWithError writes the {error} body every failure path of the API uses
func respondWithError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{"error": message})
}

// addressParam reads and validates an address path parameter.
func addressParam(c *gin.Context, name string) (common.Address, error) {
	raw := strings.TrimSpace(c.Param(name))
	if !common.IsHexAddress(raw) {
		return common.Address{}, errBadAddress
	}
	return common.HexToAddress(raw), nil
}

// hashParam reads a 32 byte hex path parameter.
func hashParam(c *gin.Context, name string) (common.Hash, bool) {
	raw := strings.TrimSpace(c.Param(name))
	if !isHexHash(raw) {
		return common.Hash{}, false
	}
	return common.HexToHash(raw), true
}

func isHexHash(raw string) bool {
	if !strings.HasPrefix(raw, "0x") || len(raw) != 66 {
		return false
	}
	for _, r := range raw[2:] {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}

// authenticatedAddress the lowercase wallet address from a verified token, or ""
func authenticatedAddress(c *gin.Context) string {
	return c.GetString(ContextUserAddress)
}

func statusFor(ok bool) int {
	if ok {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}
