package dto

import "github.com/golang-jwt/jwt/v5"

// ==================== Wallet auth DTOs ====================

// ChallengeResponse message the wallet must personal_sign
type ChallengeResponse struct {
	Success   bool   `json:"success"`
	Nonce     string `json:"nonce"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
	ExpiresAt int64  `json:"expiresAt"`
}

// LoginRequest signed challenge
type LoginRequest struct {
	Address   string `json:"address" binding:"required"`   // wallet address
	Message   string `json:"message" binding:"required"`   // challenge message as issued
	Signature string `json:"signature" binding:"required"` // EIP-191 personal signature, 0x hex
}

// AuthResponse Authentication response structure
type AuthResponse struct {
	Success   bool   `json:"success"`
	Token     string `json:"token,omitempty"`
	Address   string `json:"address,omitempty"`
	ExpiresAt int64  `json:"expiresAt,omitempty"`
	Message   string `json:"message"`
}

// WalletClaims JWT claims of a signed-in wallet. Subject is the lowercase address.
type WalletClaims struct {
	Address string `json:"address"`
	ChainID int64  `json:"chain_id"`
	jwt.RegisteredClaims
}

// ==================== Admin auth DTOs ====================

// AdminLoginRequest 管理员登录请求
type AdminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	TOTPCode string `json:"totp_code" binding:"required"`
}

// AdminClaims 管理员 JWT Claims
type AdminClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}
