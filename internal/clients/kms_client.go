package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/celery8911/InnerLedger/internal/config"
)

// KMSClient client for the remote key service holding the relayer key
type KMSClient struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// KMSSignRequest dual-layer decryption signature request
type KMSSignRequest struct {
	KeyAlias string `json:"key_alias"`
	ChainID  int64  `json:"chain_id"`
	Data     string `json:"data"` // hash to sign (hex)
	K1       string `json:"k1"`   // transport key K1 (base64)
}

// KMSSignResponse signature response
type KMSSignResponse struct {
	Success   bool   `json:"success"`
	Signature string `json:"signature,omitempty"`
	Error     string `json:"error,omitempty"`
}

// KMSKeyInfo stored key metadata
type KMSKeyInfo struct {
	KeyAlias      string    `json:"key_alias"`
	ChainID       int64     `json:"chain_id"`
	PublicAddress string    `json:"public_address"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// KMSGetKeysResponse key listing
type KMSGetKeysResponse struct {
	Success bool         `json:"success"`
	Count   int          `json:"count"`
	Keys    []KMSKeyInfo `json:"keys"`
	Error   string       `json:"error,omitempty"`
}

// NewKMSClient Create KMS client
func NewKMSClient(cfg config.KMSConfig) *KMSClient {
	timeout := 30 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	return &KMSClient{
		baseURL:   strings.TrimRight(cfg.ServiceURL, "/"),
		authToken: cfg.AuthToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SignWithKMS signs a hex encoded hash with the key stored under keyAlias
func (c *KMSClient) SignWithKMS(ctx context.Context, keyAlias, k1, hashHex string, chainID int64) (*KMSSignResponse, error) {
	req := KMSSignRequest{
		KeyAlias: keyAlias,
		ChainID:  chainID,
		Data:     hashHex,
		K1:       k1,
	}

	response, err := c.makeRequest(ctx, http.MethodPost, "/api/v1/dual-layer/sign", req)
	if err != nil {
		return nil, fmt.Errorf("KMS request failed: %w", err)
	}

	var signResp KMSSignResponse
	if err := json.Unmarshal(response, &signResp); err != nil {
		return nil, fmt.Errorf("parse KMS response failed: %w", err)
	}
	if !signResp.Success {
		return nil, fmt.Errorf("KMS signing failed: %s", signResp.Error)
	}
	return &signResp, nil
}

// GetKeyByAlias looks up key metadata, used to check the configured relayer address
func (c *KMSClient) GetKeyByAlias(ctx context.Context, keyAlias string, chainID int64) (*KMSKeyInfo, error) {
	response, err := c.makeRequest(ctx, http.MethodGet, "/api/v1/keys", nil)
	if err != nil {
		return nil, fmt.Errorf("get KMS keys failed: %w", err)
	}

	var keysResp KMSGetKeysResponse
	if err := json.Unmarshal(response, &keysResp); err != nil {
		return nil, fmt.Errorf("parse KMS key response failed: %w", err)
	}
	if !keysResp.Success {
		return nil, fmt.Errorf("get KMS keys failed: %s", keysResp.Error)
	}

	for _, key := range keysResp.Keys {
		if key.KeyAlias == keyAlias && key.ChainID == chainID {
			return &key, nil
		}
	}
	return nil, fmt.Errorf("key not found: alias=%s, chainID=%d", keyAlias, chainID)
}

// HealthCheck KMS service check
func (c *KMSClient) HealthCheck(ctx context.Context) error {
	response, err := c.makeRequest(ctx, http.MethodGet, "/api/v1/health", nil)
	if err != nil {
		return fmt.Errorf("KMS health check failed: %w", err)
	}

	var healthResp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(response, &healthResp); err != nil {
		return fmt.Errorf("parse KMS health response failed: %w", err)
	}
	if healthResp.Status != "healthy" {
		return fmt.Errorf("KMS service status: %s", healthResp.Status)
	}
	return nil
}

func (c *KMSClient) makeRequest(ctx context.Context, method, path string, data interface{}) ([]byte, error) {
	var body io.Reader
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode request failed: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create HTTP request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "innerledger-relayer/1.0")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
		req.Header.Set("X-Service-Name", "innerledger-relayer")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := readBody(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP request failed: status=%d, body=%s", resp.StatusCode, string(responseBody))
	}
	return responseBody, nil
}
