package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celery8911/InnerLedger/internal/config"
)

func newTestAIClient(url string) *AIClient {
	c := NewAIClient(config.AIConfig{APIKey: "sk-test", BaseURL: url, Model: "gpt-4o-mini", MaxTokens: 60, MaxRetries: 2})
	c.backoff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }
	return c
}

func TestAIClient_Reflect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"you noticed the rain"}}]}`))
	}))
	defer srv.Close()

	text, err := newTestAIClient(srv.URL).Reflect(context.Background(), "rain")
	require.NoError(t, err)
	assert.Equal(t, "you noticed the rain", text)
}

func TestAIClient_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	text, err := newTestAIClient(srv.URL).Reflect(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(3), hits.Load())
}

func TestAIClient_OversizedResponse(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"pad":"` + strings.Repeat("a", MaxResponseBody) + `","choices":[{"message":{"content":"late"}}]}`))
	}))
	defer srv.Close()

	_, err := newTestAIClient(srv.URL).Reflect(context.Background(), "x")
	assert.ErrorIs(t, err, ErrResponseTooLarge)
	assert.Equal(t, int32(1), hits.Load(), "an oversized answer is not retried")
}

func TestAIClient_MissingKey(t *testing.T) {
	_, err := NewAIClient(config.AIConfig{}).Reflect(context.Background(), "x")
	assert.ErrorIs(t, err, ErrAIKeyMissing)
}
