package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// ErrSubgraphDisabled is returned when no subgraph endpoint is configured.
var ErrSubgraphDisabled = errors.New("subgraph endpoint not configured")

// IndexedRecord RecordCreated entity as indexed by the subgraph
type IndexedRecord struct {
	ID              string `json:"id"`
	User            string `json:"user"`
	ContentHash     string `json:"contentHash"`
	Timestamp       uint64 `json:"timestamp"`
	TransactionHash string `json:"transactionHash"`
	BlockNumber     uint64 `json:"blockNumber"`
}

// SubgraphClient queries the InnerLedger subgraph.
type SubgraphClient struct {
	url        string
	httpClient *http.Client
}

func NewSubgraphClient(url string, timeout time.Duration) *SubgraphClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SubgraphClient{url: url, httpClient: &http.Client{Timeout: timeout}}
}

func (s *SubgraphClient) Enabled() bool { return s.url != "" }

const recordsByUserQuery = `query ($user: Bytes!, $first: Int!) {
  recordCreateds(where: { user: $user }, first: $first, orderBy: timestamp, orderDirection: desc) {
    id
    user
    contentHash
    timestamp
    transactionHash
    blockNumber
  }
}`

// RecordsByUser newest first. user is sent lowercase, as the subgraph stores Bytes.
func (s *SubgraphClient) RecordsByUser(ctx context.Context, user string, first int) ([]IndexedRecord, error) {
	if first <= 0 || first > 1000 {
		first = 100
	}
	body, err := s.query(ctx, recordsByUserQuery, map[string]interface{}{
		"user":  strings.ToLower(user),
		"first": first,
	})
	if err != nil {
		return nil, err
	}

	items := gjson.GetBytes(body, "data.recordCreateds").Array()
	records := make([]IndexedRecord, 0, len(items))
	for _, item := range items {
		records = append(records, IndexedRecord{
			ID:              item.Get("id").String(),
			User:            item.Get("user").String(),
			ContentHash:     strings.ToLower(item.Get("contentHash").String()),
			Timestamp:       parseGraphInt(item.Get("timestamp")),
			TransactionHash: item.Get("transactionHash").String(),
			BlockNumber:     parseGraphInt(item.Get("blockNumber")),
		})
	}
	return records, nil
}

func (s *SubgraphClient) query(ctx context.Context, query string, variables map[string]interface{}) ([]byte, error) {
	if !s.Enabled() {
		return nil, ErrSubgraphDisabled
	}
	payload, err := json.Marshal(map[string]interface{}{"query": query, "variables": variables})
	if err != nil {
		return nil, fmt.Errorf("encode subgraph query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create subgraph request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("subgraph request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read subgraph response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("subgraph returned status %d: %s", resp.StatusCode, string(body))
	}
	if errs := gjson.GetBytes(body, "errors"); errs.Exists() && len(errs.Array()) > 0 {
		return nil, fmt.Errorf("subgraph errors: %s", errs.Array()[0].Get("message").String())
	}
	return body, nil
}

// BigInt fields come back as strings
func parseGraphInt(v gjson.Result) uint64 {
	if v.Type == gjson.Number {
		return v.Uint()
	}
	n, _ := strconv.ParseUint(v.String(), 10, 64)
	return n
}
