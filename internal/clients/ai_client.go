package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"

	"github.com/celery8911/InnerLedger/internal/config"
)

var (
	// ErrAIKeyMissing no API key configured
	ErrAIKeyMissing = errors.New("Missing OPENAI_API_KEY")
	// ErrAITimeout the completion did not finish in time
	ErrAITimeout = errors.New("Request timed out.")
)

const reflectionPrompt = "你是一个温和的正念陪伴者。请简短地复述用户注意到的内容，表达理解，不做评判。字数控制在50字以内。语气要平静、包容。"

// AIClient OpenAI compatible chat completions client used for short reflections.
type AIClient struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	maxRetries uint64
	httpClient *http.Client
	backoff    func() backoff.BackOff
}

func NewAIClient(cfg config.AIConfig) *AIClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &AIClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		maxRetries: uint64(cfg.MaxRetries),
		httpClient: &http.Client{Timeout: timeout},
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			return b
		},
	}
}

func (a *AIClient) Configured() bool { return a.apiKey != "" }

// Reflect returns a short, non-judgemental restatement of what the user noticed.
func (a *AIClient) Reflect(ctx context.Context, userInput string) (string, error) {
	if !a.Configured() {
		return "", ErrAIKeyMissing
	}

	payload, err := json.Marshal(map[string]interface{}{
		"model": a.model,
		"messages": []map[string]string{
			{"role": "system", "content": reflectionPrompt},
			{"role": "user", "content": userInput},
		},
		"max_tokens": a.maxTokens,
	})
	if err != nil {
		return "", err
	}

	var content string
	operation := func() error {
		text, err := a.complete(ctx, payload)
		if err != nil {
			return err
		}
		content = text
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(a.backoff(), a.maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		if isTimeout(err) {
			return "", ErrAITimeout
		}
		return "", err
	}
	return content, nil
}

func (a *AIClient) complete(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := readBody(resp.Body)
	if err != nil {
		if errors.Is(err, ErrResponseTooLarge) {
			return "", backoff.Permanent(err)
		}
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(body, "error.message").String()
		if msg == "" {
			msg = fmt.Sprintf("AI service returned status %d", resp.StatusCode)
		}
		err := errors.New(msg)
		// only rate limits and server errors are worth another attempt
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", err
		}
		return "", backoff.Permanent(err)
	}

	choice := gjson.GetBytes(body, "choices.0.message.content")
	if !choice.Exists() {
		return "", backoff.Permanent(errors.New("AI response has no choices"))
	}
	return choice.String(), nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timed out")
}
