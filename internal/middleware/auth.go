package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/celery8911/InnerLedger/internal/dto"
	"github.com/celery8911/InnerLedger/internal/handlers"
)

// WalletTokenValidator parses wallet JWTs. Implemented by services.WalletAuthService.
type WalletTokenValidator interface {
	Validate(tokenString string) (*dto.WalletClaims, error)
}

// AuthMiddleware wallet JWT
type AuthMiddleware struct {
	tokens WalletTokenValidator
	logger *logrus.Logger
}

// NewAuthMiddleware create wallet JWT middleware
func NewAuthMiddleware(tokens WalletTokenValidator, logger *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		tokens: tokens,
		logger: logger,
	}
}

// bearerToken returns the token and an error code when the header is unusable
func bearerToken(c *gin.Context) (string, string) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", "MISSING_AUTH_HEADER"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "INVALID_AUTH_FORMAT"
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", "EMPTY_TOKEN"
	}
	return token, ""
}

var authMessages = map[string]string{
	"MISSING_AUTH_HEADER": "Authentication required",
	"INVALID_AUTH_FORMAT": "Invalid authorization format",
	"EMPTY_TOKEN":         "Empty token",
	"INVALID_TOKEN":       "Invalid or expired token",
}

func (a *AuthMiddleware) reject(c *gin.Context, code string, err error) {
	fields := logrus.Fields{
		"path":   c.Request.URL.Path,
		"method": c.Request.Method,
		"code":   code,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	a.logger.WithFields(fields).Warn("JWT auth failed")

	c.JSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error":   authMessages[code],
		"code":    code,
	})
	c.Abort()
}

// RequireAuth rejects the request without a valid wallet token
func (a *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, code := bearerToken(c)
		if code != "" {
			a.reject(c, code, nil)
			return
		}

		claims, err := a.tokens.Validate(tokenString)
		if err != nil {
			a.reject(c, "INVALID_TOKEN", err)
			return
		}

		a.store(c, claims)
		c.Next()
	}
}

// OptionalAuth attaches the wallet identity when a valid token is present and never rejects
func (a *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, code := bearerToken(c)
		if code != "" {
			c.Next()
			return
		}

		claims, err := a.tokens.Validate(tokenString)
		if err != nil {
			a.logger.WithFields(logrus.Fields{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
				"error":  err.Error(),
			}).Debug("JWT ignored - token verify failed")
			c.Next()
			return
		}

		a.store(c, claims)
		c.Next()
	}
}

func (a *AuthMiddleware) store(c *gin.Context, claims *dto.WalletClaims) {
	c.Set(handlers.ContextUserAddress, strings.ToLower(claims.Address))
	c.Set(handlers.ContextChainID, claims.ChainID)

	a.logger.WithFields(logrus.Fields{
		"path":         c.Request.URL.Path,
		"method":       c.Request.Method,
		"user_address": claims.Address,
		"chain_id":     claims.ChainID,
	}).Debug("JWT success")
}
