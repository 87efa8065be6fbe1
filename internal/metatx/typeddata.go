package metatx

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	DomainName    = "InnerLedgerForwarder"
	DomainVersion = "1"
	// MonadTestnetChainID is the chain the public deployment lives on
	MonadTestnetChainID = 10143

	primaryType = "ForwardRequest"
)

// Domain is the EIP-712 domain of the forwarder. It must match the forwarder's
// constructor arguments exactly or every signature fails on-chain.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// NewDomain returns the InnerLedger forwarder domain on chainID.
func NewDomain(chainID int64, forwarder common.Address) Domain {
	return Domain{
		Name:              DomainName,
		Version:           DomainVersion,
		ChainID:           big.NewInt(chainID),
		VerifyingContract: forwarder,
	}
}

func (d Domain) String() string {
	return fmt.Sprintf("%s v%s chain=%s contract=%s", d.Name, d.Version, d.ChainID, d.VerifyingContract.Hex())
}

var forwardRequestTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	primaryType: {
		{Name: "from", Type: "address"},
		{Name: "to", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "gas", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint48"},
		{Name: "data", Type: "bytes"},
	},
}

// TypedData assembles the EIP-712 payload for req under domain.
// The request must carry a nonce.
func TypedData(domain Domain, req *ForwardRequest) (apitypes.TypedData, error) {
	if req == nil {
		return apitypes.TypedData{}, fmt.Errorf("nil forward request")
	}
	if req.Nonce == nil {
		return apitypes.TypedData{}, fmt.Errorf("forward request has no nonce")
	}
	if domain.ChainID == nil {
		return apitypes.TypedData{}, fmt.Errorf("domain has no chain id")
	}
	data := req.Data
	if data == nil {
		data = []byte{}
	}

	return apitypes.TypedData{
		Types:       forwardRequestTypes,
		PrimaryType: primaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(domain.ChainID)),
			VerifyingContract: domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"from":     req.From.Hex(),
			"to":       req.To.Hex(),
			"value":    bigOrZero(req.Value).String(),
			"gas":      bigOrZero(req.Gas).String(),
			"nonce":    req.Nonce.String(),
			"deadline": new(big.Int).SetUint64(req.Deadline).String(),
			"data":     hexutil.Encode(data),
		},
	}, nil
}

// Digest returns keccak256("\x19\x01" || domainSeparator || hashStruct(req)),
// the hash the forwarder recovers the signer from.
func Digest(domain Domain, req *ForwardRequest) (common.Hash, error) {
	td, err := TypedData(domain, req)
	if err != nil {
		return common.Hash{}, err
	}
	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return common.Hash{}, fmt.Errorf("hash typed data: %w", err)
	}
	return common.BytesToHash(hash), nil
}

// DomainMismatchError lists the fields where the configured and on-chain domains differ.
type DomainMismatchError struct {
	Fields   []string
	Expected Domain
	OnChain  Domain
}

func (e *DomainMismatchError) Error() string {
	return fmt.Sprintf("eip712 domain mismatch on %s: configured {%s}, forwarder reports {%s}",
		strings.Join(e.Fields, ","), e.Expected, e.OnChain)
}

// CheckDomain compares the domain a signer will use with the one the forwarder reports
// through ERC-5267 eip712Domain().
func CheckDomain(expected, onChain Domain) error {
	var fields []string
	if expected.Name != onChain.Name {
		fields = append(fields, "name")
	}
	if expected.Version != onChain.Version {
		fields = append(fields, "version")
	}
	if expected.ChainID == nil || onChain.ChainID == nil || expected.ChainID.Cmp(onChain.ChainID) != 0 {
		fields = append(fields, "chainId")
	}
	if expected.VerifyingContract != onChain.VerifyingContract {
		fields = append(fields, "verifyingContract")
	}
	if len(fields) > 0 {
		return &DomainMismatchError{Fields: fields, Expected: expected, OnChain: onChain}
	}
	return nil
}
