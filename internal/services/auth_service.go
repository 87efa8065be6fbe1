package services

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/celery8911/InnerLedger/internal/dto"
	"github.com/celery8911/InnerLedger/internal/metatx"
)

var (
	ErrAuthDisabled      = errors.New("authentication is not configured")
	ErrUnknownChallenge  = errors.New("challenge unknown, used or expired")
	ErrBadSignature      = errors.New("signature does not match address")
	ErrInvalidToken      = errors.New("invalid or expired token")
	ErrInvalidCredential = errors.New("Invalid credentials")
	ErrInvalidTOTP       = errors.New("Invalid TOTP code")
)

const (
	walletIssuer   = "innerledger-relayer"
	adminIssuer    = "innerledger-relayer-admin"
	challengeTTL   = 5 * time.Minute
	maxChallenges  = 10000
	challengeTitle = "InnerLedger Authentication"
)

func signHS256(secret []byte, claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return s, nil
}

func parseHS256(secret []byte, tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

// WalletAuthService issues sign-in challenges and wallet JWTs. A wallet token binds relay
// requests to their sender when relay.requireSenderAuth is on.
type WalletAuthService struct {
	secret  []byte
	ttl     time.Duration
	chainID int64
	now     func() time.Time

	mu         sync.Mutex
	challenges map[string]time.Time // nonce -> expiry
}

func NewWalletAuthService(secret string, ttl time.Duration, chainID int64) *WalletAuthService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &WalletAuthService{
		secret:     []byte(secret),
		ttl:        ttl,
		chainID:    chainID,
		now:        time.Now,
		challenges: make(map[string]time.Time),
	}
}

// Enabled reports whether a signing secret is configured.
func (w *WalletAuthService) Enabled() bool { return len(w.secret) > 0 }

// Challenge creates a single-use sign-in message.
func (w *WalletAuthService) Challenge() (*dto.ChallengeResponse, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	nonce := hex.EncodeToString(raw)
	now := w.now()
	expires := now.Add(challengeTTL)

	w.mu.Lock()
	w.pruneLocked(now)
	if len(w.challenges) >= maxChallenges {
		w.mu.Unlock()
		return nil, errors.New("too many outstanding challenges")
	}
	w.challenges[nonce] = expires
	w.mu.Unlock()

	return &dto.ChallengeResponse{
		Success:   true,
		Nonce:     nonce,
		Message:   fmt.Sprintf("%s\nChain ID: %d\nNonce: %s\nTimestamp: %d", challengeTitle, w.chainID, nonce, now.Unix()),
		Timestamp: now.Unix(),
		ExpiresAt: expires.Unix(),
	}, nil
}

func (w *WalletAuthService) pruneLocked(now time.Time) {
	for n, exp := range w.challenges {
		if !now.Before(exp) {
			delete(w.challenges, n)
		}
	}
}

// consume marks the challenge embedded in message as used.
func (w *WalletAuthService) consume(message string) bool {
	nonce := ""
	for _, line := range strings.Split(message, "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), "Nonce: "); ok {
			nonce = v
			break
		}
	}
	if nonce == "" {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	exp, ok := w.challenges[nonce]
	if !ok {
		return false
	}
	delete(w.challenges, nonce)
	return w.now().Before(exp)
}

// Login verifies the personal signature over an issued challenge and returns a token.
func (w *WalletAuthService) Login(address, message, signature string) (string, time.Time, error) {
	if !w.Enabled() {
		return "", time.Time{}, ErrAuthDisabled
	}
	if !common.IsHexAddress(address) {
		return "", time.Time{}, fmt.Errorf("%w: not an address", ErrBadSignature)
	}
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	signer, err := metatx.RecoverAddress(accounts.TextHash([]byte(message)), sig)
	if err != nil || signer != common.HexToAddress(address) {
		return "", time.Time{}, ErrBadSignature
	}
	if !w.consume(message) {
		return "", time.Time{}, ErrUnknownChallenge
	}

	now := w.now()
	expires := now.Add(w.ttl)
	subject := strings.ToLower(signer.Hex())
	token, err := signHS256(w.secret, dto.WalletClaims{
		Address: subject,
		ChainID: w.chainID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    walletIssuer,
			Subject:   subject,
		},
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expires, nil
}

// Validate parses a wallet token.
func (w *WalletAuthService) Validate(tokenString string) (*dto.WalletClaims, error) {
	if !w.Enabled() {
		return nil, ErrAuthDisabled
	}
	claims := &dto.WalletClaims{}
	if err := parseHS256(w.secret, tokenString, claims); err != nil {
		return nil, err
	}
	if claims.Issuer != walletIssuer {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// AdminAuthService 管理员认证: bcrypt password + TOTP, issues admin JWTs
type AdminAuthService struct {
	username     string
	passwordHash []byte
	totpSecret   string
	secret       []byte
	now          func() time.Time
}

func NewAdminAuthService(username, passwordHash, totpSecret, jwtSecret string) *AdminAuthService {
	if username == "" {
		username = "admin"
	}
	return &AdminAuthService{
		username:     username,
		passwordHash: []byte(passwordHash),
		totpSecret:   totpSecret,
		secret:       []byte(jwtSecret),
		now:          time.Now,
	}
}

// Enabled every credential and the signing secret are configured.
func (a *AdminAuthService) Enabled() bool {
	return len(a.passwordHash) > 0 && a.totpSecret != "" && len(a.secret) > 0
}

// Login checks the credentials and returns an admin token valid for 24 hours.
func (a *AdminAuthService) Login(username, password, code string) (string, error) {
	if !a.Enabled() {
		return "", ErrAuthDisabled
	}
	if username != a.username {
		return "", ErrInvalidCredential
	}
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return "", ErrInvalidCredential
	}
	if !totp.Validate(code, a.totpSecret) {
		return "", ErrInvalidTOTP
	}

	now := a.now()
	return signHS256(a.secret, dto.AdminClaims{
		Username: username,
		Role:     "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    adminIssuer,
			Subject:   username,
		},
	})
}

// Validate parses an admin token.
func (a *AdminAuthService) Validate(tokenString string) (*dto.AdminClaims, error) {
	if len(a.secret) == 0 {
		return nil, ErrAuthDisabled
	}
	claims := &dto.AdminClaims{}
	if err := parseHS256(a.secret, tokenString, claims); err != nil {
		return nil, err
	}
	if claims.Issuer != adminIssuer {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
