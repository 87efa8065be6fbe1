package metatx

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// ErrSigningDeclined is returned when the key holder refuses to sign.
var ErrSigningDeclined = errors.New("signing declined")

// SigningFailedError wraps any other failure of the signing capability.
type SigningFailedError struct {
	Err error
}

func (e *SigningFailedError) Error() string {
	return fmt.Sprintf("signing failed: %v", e.Err)
}

func (e *SigningFailedError) Unwrap() error { return e.Err }

// TypedDataSigner is anything able to produce an EIP-712 signature for an account:
// a local key, a wallet bridge, a remote signer. Implementations return an error
// wrapping ErrSigningDeclined when the user rejects the request.
type TypedDataSigner interface {
	Address() common.Address
	SignTypedData(ctx context.Context, td apitypes.TypedData) ([]byte, error)
}

// Signer attaches EIP-712 signatures to forward requests.
type Signer struct {
	domain Domain
	signer TypedDataSigner
}

func NewSigner(domain Domain, signer TypedDataSigner) *Signer {
	return &Signer{domain: domain, signer: signer}
}

// Domain returns the domain signatures are produced under.
func (s *Signer) Domain() Domain { return s.domain }

// Sign produces a signed request. The request is not modified.
func (s *Signer) Sign(ctx context.Context, req *ForwardRequest) (*ForwardRequestData, error) {
	td, err := TypedData(s.domain, req)
	if err != nil {
		return nil, &SigningFailedError{Err: err}
	}
	if s.signer.Address() != req.From {
		return nil, &SigningFailedError{Err: fmt.Errorf("signer %s cannot sign for %s", s.signer.Address().Hex(), req.From.Hex())}
	}

	sig, err := s.signer.SignTypedData(ctx, td)
	if err != nil {
		if errors.Is(err, ErrSigningDeclined) {
			return nil, err
		}
		return nil, &SigningFailedError{Err: err}
	}
	if len(sig) != crypto.SignatureLength {
		return nil, &SigningFailedError{Err: fmt.Errorf("signature has %d bytes, want %d", len(sig), crypto.SignatureLength)}
	}

	return &ForwardRequestData{ForwardRequest: *req, Signature: sig}, nil
}

// PrivateKeySigner signs with an in-process ECDSA key.
type PrivateKeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func NewPrivateKeySigner(key *ecdsa.PrivateKey) *PrivateKeySigner {
	return &PrivateKeySigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

// PrivateKeySignerFromHex accepts a hex key with or without 0x.
func PrivateKeySignerFromHex(hexKey string) (*PrivateKeySigner, error) {
	key, err := crypto.HexToECDSA(trim0x(hexKey))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewPrivateKeySigner(key), nil
}

func (p *PrivateKeySigner) Address() common.Address { return p.address }

// SignTypedData signs the EIP-712 digest and returns r||s||v with v in {27,28}.
func (p *PrivateKeySigner) SignTypedData(ctx context.Context, td apitypes.TypedData) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(hash, p.key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// RecoverSigner returns the address whose key produced sig over req under domain.
func RecoverSigner(domain Domain, req *ForwardRequest, sig []byte) (common.Address, error) {
	digest, err := Digest(domain, req)
	if err != nil {
		return common.Address{}, err
	}
	return RecoverAddress(digest.Bytes(), sig)
}

// RecoverAddress recovers the signer of a 65 byte signature over hash. Both v encodings
// (0/1 and 27/28) are accepted.
func RecoverAddress(hash []byte, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature has %d bytes, want %d", len(sig), crypto.SignatureLength)
	}
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(hash, normalized)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify reports whether sig over req was produced by req.From.
func Verify(domain Domain, req *ForwardRequestData) bool {
	signer, err := RecoverSigner(domain, &req.ForwardRequest, req.Signature)
	return err == nil && signer == req.From
}

func trim0x(s string) string {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s[2:]
	}
	return s
}
