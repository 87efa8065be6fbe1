package services

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/celery8911/InnerLedger/internal/clients"
	"github.com/celery8911/InnerLedger/internal/config"
)

// ===== Signing strategies for the relayer's outer transaction =====

// PrivateKeySigningStrategy signs with a key held in process memory
type PrivateKeySigningStrategy struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func NewPrivateKeySigningStrategy(hexKey string) (*PrivateKeySigningStrategy, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid relayer private key: %w", err)
	}
	return &PrivateKeySigningStrategy{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

func (s *PrivateKeySigningStrategy) Address() common.Address { return s.address }

func (s *PrivateKeySigningStrategy) SignHash(ctx context.Context, hash []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return crypto.Sign(hash, s.key)
}

func (s *PrivateKeySigningStrategy) Name() string {
	return "PrivateKey"
}

// KMSSigner is the KMS call the strategy needs. Implemented by clients.KMSClient.
type KMSSigner interface {
	SignWithKMS(ctx context.Context, keyAlias, k1, hashHex string, chainID int64) (*clients.KMSSignResponse, error)
}

// KMSSigningStrategy signs through the remote key service; the key never enters this process
type KMSSigningStrategy struct {
	kms      KMSSigner
	keyAlias string
	k1       string
	address  common.Address
	chainID  int64
}

func NewKMSSigningStrategy(kms KMSSigner, keyAlias, k1 string, address common.Address, chainID int64) *KMSSigningStrategy {
	return &KMSSigningStrategy{kms: kms, keyAlias: keyAlias, k1: k1, address: address, chainID: chainID}
}

func (s *KMSSigningStrategy) Address() common.Address { return s.address }

func (s *KMSSigningStrategy) SignHash(ctx context.Context, hash []byte) ([]byte, error) {
	resp, err := s.kms.SignWithKMS(ctx, s.keyAlias, s.k1, hexutil.Encode(hash), s.chainID)
	if err != nil {
		return nil, err
	}
	sig, err := hexutil.Decode(ensure0x(resp.Signature))
	if err != nil {
		return nil, fmt.Errorf("KMS returned malformed signature: %w", err)
	}
	return normalizeRecoveryID(sig, s.chainID)
}

func (s *KMSSigningStrategy) Name() string {
	return "KMS"
}

// normalizeRecoveryID accepts v as 0/1, 27/28 or EIP-155 and returns 0/1.
func normalizeRecoveryID(sig []byte, chainID int64) ([]byte, error) {
	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("signature has %d bytes, want %d", len(sig), crypto.SignatureLength)
	}
	out := make([]byte, len(sig))
	copy(out, sig)
	v := int64(out[crypto.RecoveryIDOffset])
	switch {
	case v <= 1:
	case v == 27 || v == 28:
		v -= 27
	case chainID > 0 && v >= chainID*2+35:
		v -= chainID*2 + 35
	default:
		return nil, fmt.Errorf("unsupported recovery id %d", v)
	}
	if v > 1 {
		return nil, fmt.Errorf("unsupported recovery id %d", out[crypto.RecoveryIDOffset])
	}
	out[crypto.RecoveryIDOffset] = byte(v)
	return out, nil
}

func ensure0x(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s
	}
	return "0x" + s
}

// ErrNoRelayerCredential no key, secret or KMS alias configured
var ErrNoRelayerCredential = errors.New("no relayer credential configured")

// SecretFetcher reads a secret by id. Implemented by clients.SecretsManagerClient.
type SecretFetcher interface {
	GetSecretString(ctx context.Context, secretID string) (string, error)
}

// NewRelayerSigningStrategy picks the strategy the configuration asks for: KMS when enabled,
// otherwise the private key, fetched from Secrets Manager when only a secret id is set.
func NewRelayerSigningStrategy(ctx context.Context, cfg *config.Config, kms KMSSigner, secrets SecretFetcher, logger *logrus.Logger) (clients.TxSigningStrategy, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	r := cfg.Relayer

	if r.KMSEnabled {
		if kms == nil || r.KMSKeyAlias == "" {
			return nil, fmt.Errorf("%w: KMS enabled without key alias or KMS client", ErrNoRelayerCredential)
		}
		if !common.IsHexAddress(r.Address) {
			return nil, fmt.Errorf("KMS signing needs RELAYER_ADDRESS, got %q", r.Address)
		}
		logger.WithFields(logrus.Fields{"alias": r.KMSKeyAlias, "address": r.Address}).Info("🔐 relayer signs through KMS")
		return NewKMSSigningStrategy(kms, r.KMSKeyAlias, r.KMSK1, common.HexToAddress(r.Address), cfg.Chain.ChainID), nil
	}

	key := r.PrivateKey
	if key == "" && r.SecretID != "" {
		if secrets == nil {
			return nil, fmt.Errorf("%w: RELAYER_SECRET_ID set without a secrets client", ErrNoRelayerCredential)
		}
		secret, err := secrets.GetSecretString(ctx, r.SecretID)
		if err != nil {
			return nil, fmt.Errorf("load relayer key from Secrets Manager: %w", err)
		}
		key = secret
	}
	if key == "" {
		return nil, ErrNoRelayerCredential
	}

	strategy, err := NewPrivateKeySigningStrategy(key)
	if err != nil {
		return nil, err
	}
	if r.Address != "" && !strings.EqualFold(r.Address, strategy.Address().Hex()) {
		logger.WithFields(logrus.Fields{
			"configured": r.Address,
			"derived":    strategy.Address().Hex(),
		}).Warn("⚠️ RELAYER_ADDRESS does not match the private key, using the key's address")
	}
	logger.WithField("address", strategy.Address().Hex()).Info("🔑 relayer signs with local private key")
	return strategy, nil
}
