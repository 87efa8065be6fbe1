package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/celery8911/InnerLedger/internal/dto"
	"github.com/celery8911/InnerLedger/internal/services"
)

// AdminLoginResponse 管理员登录响应
type AdminLoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message"`
}

// AdminAuthHandler 管理员认证处理器
type AdminAuthHandler struct {
	auth   *services.AdminAuthService
	logger *logrus.Logger
}

// NewAdminAuthHandler 创建管理员认证处理器
func NewAdminAuthHandler(auth *services.AdminAuthService, logger *logrus.Logger) *AdminAuthHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if !auth.Enabled() {
		logger.Warn("⚠️ admin credentials not configured, admin login is disabled")
	}
	return &AdminAuthHandler{auth: auth, logger: logger}
}

// AdminLoginHandler 管理员登录处理
func (h *AdminAuthHandler) AdminLoginHandler(c *gin.Context) {
	var req dto.AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, AdminLoginResponse{Success: false, Message: "Invalid request format"})
		return
	}

	token, err := h.auth.Login(req.Username, req.Password, req.TOTPCode)
	if err != nil {
		status := http.StatusUnauthorized
		message := err.Error()
		if errors.Is(err, services.ErrAuthDisabled) {
			status = http.StatusServiceUnavailable
		} else if !errors.Is(err, services.ErrInvalidCredential) && !errors.Is(err, services.ErrInvalidTOTP) {
			status = http.StatusInternalServerError
			message = "Failed to generate token"
		}
		h.logger.WithFields(logrus.Fields{
			"username":  req.Username,
			"client_ip": c.ClientIP(),
			"error":     err.Error(),
		}).Warn("admin login rejected")
		c.JSON(status, AdminLoginResponse{Success: false, Message: message})
		return
	}

	h.logger.WithField("username", req.Username).Info("admin login")
	c.JSON(http.StatusOK, AdminLoginResponse{Success: true, Token: token, Message: "Login successful"})
}
