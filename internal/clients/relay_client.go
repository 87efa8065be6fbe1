package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/celery8911/InnerLedger/internal/metatx"
)

// DefaultRelayPath is where the relay service accepts signed requests.
const DefaultRelayPath = "/api/relay"

// MaxResponseBody caps how much of a peer's response body the HTTP clients read.
const MaxResponseBody = 1 << 20

// ErrResponseTooLarge is returned when a peer sends more than MaxResponseBody bytes.
var ErrResponseTooLarge = errors.New("response body too large")

func readBody(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, MaxResponseBody+1))
	if err != nil {
		return nil, err
	}
	if len(body) > MaxResponseBody {
		return nil, fmt.Errorf("%w: over %d bytes", ErrResponseTooLarge, MaxResponseBody)
	}
	return body, nil
}

// RelayError is a non-2xx answer from the relay service.
type RelayError struct {
	StatusCode int
	Message    string
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("relay rejected request (%d): %s", e.StatusCode, e.Message)
}

// RelayClient posts signed forward requests to the relay service. It makes exactly one
// attempt per call; retrying would risk paying for the same request twice.
type RelayClient struct {
	endpoint   string
	httpClient *http.Client
}

// RelayClientOption customizes a RelayClient.
type RelayClientOption func(*RelayClient)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) RelayClientOption {
	return func(r *RelayClient) { r.httpClient = c }
}

// NewRelayClient baseURL is the relay host; DefaultRelayPath is appended unless the URL
// already names a path.
func NewRelayClient(baseURL string, opts ...RelayClientOption) *RelayClient {
	endpoint := strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(endpoint, DefaultRelayPath) {
		endpoint += DefaultRelayPath
	}
	rc := &RelayClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// Relay submits req and returns the transaction hash reported by the relay.
func (c *RelayClient) Relay(ctx context.Context, req *metatx.ForwardRequestData) (string, error) {
	return c.RelayWithKey(ctx, req, "")
}

// RelayWithKey attaches an idempotency key so a repeated call returns the first hash.
func (c *RelayClient) RelayWithKey(ctx context.Context, req *metatx.ForwardRequestData, idempotencyKey string) (string, error) {
	body, err := json.Marshal(metatx.RelayEnvelope{
		ForwardRequest: req.ToWire(),
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return "", fmt.Errorf("encode relay request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create relay request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("relay request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := readBody(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read relay response: %w", err)
	}

	var out struct {
		Hash  string `json:"hash"`
		Error string `json:"error"`
	}
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := out.Error
		if decodeErr != nil || msg == "" {
			msg = "Relay failed"
		}
		return "", &RelayError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode relay response: %w", decodeErr)
	}
	if out.Hash == "" {
		return "", fmt.Errorf("relay response has no hash")
	}
	return out.Hash, nil
}
