package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/celery8911/InnerLedger/internal/dto"
	"github.com/celery8911/InnerLedger/internal/handlers"
)

// AdminTokenValidator parses admin JWTs. Implemented by services.AdminAuthService.
type AdminTokenValidator interface {
	Validate(tokenString string) (*dto.AdminClaims, error)
}

// AdminAuthMiddleware 管理员认证中间件
type AdminAuthMiddleware struct {
	tokens AdminTokenValidator
	logger *logrus.Logger
}

// NewAdminAuthMiddleware 创建管理员认证中间件
func NewAdminAuthMiddleware(tokens AdminTokenValidator, logger *logrus.Logger) *AdminAuthMiddleware {
	return &AdminAuthMiddleware{
		tokens: tokens,
		logger: logger,
	}
}

// RequireAdminAuth 要求管理员认证
func (a *AdminAuthMiddleware) RequireAdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, code := bearerToken(c)
		if code != "" {
			a.logger.WithFields(logrus.Fields{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
				"code":   code,
			}).Warn("Admin auth failed")

			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   authMessages[code],
				"code":    code,
			})
			c.Abort()
			return
		}

		// 验证管理员 JWT token
		claims, err := a.tokens.Validate(tokenString)
		if err != nil {
			a.logger.WithFields(logrus.Fields{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
				"error":  err.Error(),
			}).Warn("Admin auth failed - invalid token")

			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Invalid or expired token",
				"code":    "INVALID_TOKEN",
			})
			c.Abort()
			return
		}

		// 检查角色
		if claims.Role != "admin" {
			a.logger.WithFields(logrus.Fields{
				"path": c.Request.URL.Path,
				"role": claims.Role,
			}).Warn("Admin auth failed - insufficient permissions")

			c.JSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "Insufficient permissions",
				"code":    "INSUFFICIENT_PERMISSIONS",
			})
			c.Abort()
			return
		}

		c.Set(handlers.ContextAdminUsername, claims.Username)
		c.Set(handlers.ContextAdminRole, claims.Role)
		c.Next()
	}
}
