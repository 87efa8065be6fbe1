// Package metatx builds, signs and encodes ERC-2771 forward requests for the
// InnerLedger forwarder.
package metatx

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	// DefaultGas covers the ledger write plus a possible badge mint
	DefaultGas = 450000
	// MaxDeadline is the largest value a uint48 deadline can hold
	MaxDeadline = 1<<48 - 1
)

// ForwardRequest is the message a user signs to have the forwarder call To on their behalf.
type ForwardRequest struct {
	From     common.Address
	To       common.Address
	Value    *big.Int
	Gas      *big.Int
	Nonce    *big.Int
	Deadline uint64
	Data     []byte
}

// ForwardRequestData is a signed ForwardRequest, the payload handed to the relay.
type ForwardRequestData struct {
	ForwardRequest
	Signature []byte
}

// ExecuteTuple is the struct the forwarder's execute and verify functions take.
// The nonce is not part of it: the forwarder substitutes its own stored nonce for From.
type ExecuteTuple struct {
	From      common.Address
	To        common.Address
	Value     *big.Int
	Gas       *big.Int
	Deadline  *big.Int
	Data      []byte
	Signature []byte
}

// Tuple converts the signed request into the argument of execute.
func (r *ForwardRequestData) Tuple() ExecuteTuple {
	return ExecuteTuple{
		From:      r.From,
		To:        r.To,
		Value:     bigOrZero(r.Value),
		Gas:       bigOrZero(r.Gas),
		Deadline:  new(big.Int).SetUint64(r.Deadline),
		Data:      r.Data,
		Signature: r.Signature,
	}
}

// WireRequest is the JSON form exchanged between relay client and relay service.
// Amounts are decimal strings so values above 2^53 survive JSON number handling.
type WireRequest struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Value     string `json:"value"`
	Gas       string `json:"gas"`
	Deadline  uint64 `json:"deadline"`
	Data      string `json:"data"`
	Signature string `json:"signature"`
}

// RelayEnvelope is the body of POST /api/relay.
type RelayEnvelope struct {
	ForwardRequest *WireRequest `json:"forwardRequest"`
	IdempotencyKey string       `json:"idempotencyKey,omitempty"`
}

// ToWire encodes a signed request for transport.
func (r *ForwardRequestData) ToWire() *WireRequest {
	return &WireRequest{
		From:      r.From.Hex(),
		To:        r.To.Hex(),
		Value:     bigOrZero(r.Value).String(),
		Gas:       bigOrZero(r.Gas).String(),
		Deadline:  r.Deadline,
		Data:      hexutil.Encode(r.Data),
		Signature: hexutil.Encode(r.Signature),
	}
}

// ParseError reports which wire field failed to decode.
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse decodes a wire request. The nonce is left nil: it is not transported.
// Missing value defaults to zero; every other field must be well formed.
func (w *WireRequest) Parse() (*ForwardRequestData, error) {
	if w == nil {
		return nil, &ParseError{Field: "forwardRequest", Err: fmt.Errorf("missing")}
	}
	if !common.IsHexAddress(w.From) {
		return nil, &ParseError{Field: "from", Err: fmt.Errorf("not an address: %q", w.From)}
	}
	if !common.IsHexAddress(w.To) {
		return nil, &ParseError{Field: "to", Err: fmt.Errorf("not an address: %q", w.To)}
	}

	value := big.NewInt(0)
	if strings.TrimSpace(w.Value) != "" {
		v, ok := parseUint(w.Value)
		if !ok {
			return nil, &ParseError{Field: "value", Err: fmt.Errorf("not an unsigned integer: %q", w.Value)}
		}
		value = v
	}
	gas, ok := parseUint(w.Gas)
	if !ok {
		return nil, &ParseError{Field: "gas", Err: fmt.Errorf("not an unsigned integer: %q", w.Gas)}
	}
	if w.Deadline > MaxDeadline {
		return nil, &ParseError{Field: "deadline", Err: fmt.Errorf("exceeds uint48")}
	}

	data, err := decodeHex(w.Data)
	if err != nil {
		return nil, &ParseError{Field: "data", Err: err}
	}
	sig, err := decodeHex(w.Signature)
	if err != nil {
		return nil, &ParseError{Field: "signature", Err: err}
	}
	if len(sig) == 0 {
		return nil, &ParseError{Field: "signature", Err: fmt.Errorf("missing")}
	}

	return &ForwardRequestData{
		ForwardRequest: ForwardRequest{
			From:     common.HexToAddress(w.From),
			To:       common.HexToAddress(w.To),
			Value:    value,
			Gas:      gas,
			Deadline: w.Deadline,
			Data:     data,
		},
		Signature: sig,
	}, nil
}

// MarshalJSON lets a signed request be saved and reloaded in wire form, nonce included.
func (r *ForwardRequestData) MarshalJSON() ([]byte, error) {
	type withNonce struct {
		*WireRequest
		Nonce string `json:"nonce,omitempty"`
	}
	out := withNonce{WireRequest: r.ToWire()}
	if r.Nonce != nil {
		out.Nonce = r.Nonce.String()
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *ForwardRequestData) UnmarshalJSON(b []byte) error {
	var in struct {
		WireRequest
		Nonce string `json:"nonce"`
	}
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	parsed, err := in.WireRequest.Parse()
	if err != nil {
		return err
	}
	if in.Nonce != "" {
		n, ok := parseUint(in.Nonce)
		if !ok {
			return &ParseError{Field: "nonce", Err: fmt.Errorf("not an unsigned integer: %q", in.Nonce)}
		}
		parsed.Nonce = n
	}
	*r = *parsed
	return nil
}

// ParseAmount decodes a decimal uint256 as carried in wire requests.
func ParseAmount(s string) (*big.Int, bool) {
	return parseUint(s)
}

func parseUint(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 || n.BitLen() > 256 {
		return nil, false
	}
	return n, true
}

func decodeHex(s string) ([]byte, error) {
	if s == "" || s == "0x" {
		return []byte{}, nil
	}
	return hexutil.Decode(s)
}

func bigOrZero(b *big.Int) *big.Int {
	if b == nil {
		return big.NewInt(0)
	}
	return b
}
