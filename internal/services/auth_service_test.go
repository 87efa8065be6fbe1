package services_test

import (
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/celery8911/InnerLedger/internal/services"
)

func personalSign(t *testing.T, message string) (string, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), hexutil.Encode(sig)
}

func TestWalletAuth_ChallengeLoginValidate(t *testing.T) {
	svc := services.NewWalletAuthService("test-secret", time.Hour, 10143)

	ch, err := svc.Challenge()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ch.Message, "InnerLedger Authentication\nChain ID: 10143\nNonce: "+ch.Nonce))

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey)
	sig, err := crypto.Sign(accounts.TextHash([]byte(ch.Message)), key)
	require.NoError(t, err)

	token, expires, err := svc.Login(address.Hex(), ch.Message, hexutil.Encode(sig))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(address.Hex()), claims.Address)
	assert.Equal(t, strings.ToLower(address.Hex()), claims.Subject)
	assert.Equal(t, int64(10143), claims.ChainID)

	_, _, err = svc.Login(address.Hex(), ch.Message, hexutil.Encode(sig))
	assert.ErrorIs(t, err, services.ErrUnknownChallenge, "a challenge is single use")
}

func TestWalletAuth_RejectsWrongSigner(t *testing.T) {
	svc := services.NewWalletAuthService("test-secret", time.Hour, 10143)
	ch, err := svc.Challenge()
	require.NoError(t, err)

	_, sig := personalSign(t, ch.Message)
	other, _ := personalSign(t, "unrelated")

	_, _, err = svc.Login(other, ch.Message, sig)
	assert.ErrorIs(t, err, services.ErrBadSignature)
}

func TestWalletAuth_RejectsUnissuedChallenge(t *testing.T) {
	svc := services.NewWalletAuthService("test-secret", time.Hour, 10143)
	msg := "InnerLedger Authentication\nChain ID: 10143\nNonce: deadbeef\nTimestamp: 1"
	addr, sig := personalSign(t, msg)

	_, _, err := svc.Login(addr, msg, sig)
	assert.ErrorIs(t, err, services.ErrUnknownChallenge)
}

func TestWalletAuth_Disabled(t *testing.T) {
	svc := services.NewWalletAuthService("", 0, 10143)
	assert.False(t, svc.Enabled())
	_, _, err := svc.Login("0x0000000000000000000000000000000000000001", "m", "0x00")
	assert.ErrorIs(t, err, services.ErrAuthDisabled)
	_, err = svc.Validate("anything")
	assert.ErrorIs(t, err, services.ErrAuthDisabled)
}

func TestWalletAuth_RejectsAdminToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "InnerLedger", AccountName: "admin"})
	require.NoError(t, err)

	admin := services.NewAdminAuthService("", string(hash), key.Secret(), "shared-secret")
	code, err := totp.GenerateCode(key.Secret(), time.Now())
	require.NoError(t, err)
	token, err := admin.Login("admin", "pw", code)
	require.NoError(t, err)

	wallet := services.NewWalletAuthService("shared-secret", time.Hour, 10143)
	_, err = wallet.Validate(token)
	assert.ErrorIs(t, err, services.ErrInvalidToken)
}

func TestAdminAuth_Login(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "InnerLedger", AccountName: "ops"})
	require.NoError(t, err)

	svc := services.NewAdminAuthService("ops", string(hash), key.Secret(), "admin-secret")
	require.True(t, svc.Enabled())

	code, err := totp.GenerateCode(key.Secret(), time.Now())
	require.NoError(t, err)

	_, err = svc.Login("root", "correct horse", code)
	assert.ErrorIs(t, err, services.ErrInvalidCredential)
	_, err = svc.Login("ops", "wrong", code)
	assert.ErrorIs(t, err, services.ErrInvalidCredential)
	_, err = svc.Login("ops", "correct horse", "000000x")
	assert.ErrorIs(t, err, services.ErrInvalidTOTP)

	token, err := svc.Login("ops", "correct horse", code)
	require.NoError(t, err)
	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Username)
	assert.Equal(t, "admin", claims.Role)

	_, err = svc.Validate(token + "x")
	assert.ErrorIs(t, err, services.ErrInvalidToken)
}

func TestAdminAuth_DisabledWithoutCredentials(t *testing.T) {
	svc := services.NewAdminAuthService("", "", "", "secret")
	assert.False(t, svc.Enabled())
	_, err := svc.Login("admin", "pw", "123456")
	assert.ErrorIs(t, err, services.ErrAuthDisabled)
}
