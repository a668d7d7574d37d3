// Package chat forwards chat-completion requests to OpenRouter using the
// server's API key.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/imrishuroy/storefront-payments/internal/apperr"
)

const (
	DefaultBaseURL  = "https://openrouter.ai/api/v1"
	completionsPath = "/chat/completions"
	maxResponse     = 4 << 20
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

// Response is the upstream reply, passed through to the caller as is.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Client calls the chat-completions endpoint.
type Client struct {
	apiKey       string
	baseURL      string
	defaultModel string
	referer      string
	client       *http.Client
	logger       *zap.Logger
}

// NewClient creates a client. An empty apiKey yields a client whose calls
// fail with a config error.
func NewClient(apiKey, baseURL, defaultModel, referer string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		defaultModel: defaultModel,
		referer:      referer,
		client:       &http.Client{Timeout: 60 * time.Second},
		logger:       logger,
	}
}

// Complete forwards messages to the upstream model. Non-2xx upstream
// replies are returned as a Response, not an error; only transport
// failures and missing configuration are errors.
func (c *Client) Complete(ctx context.Context, model string, messages []Message) (*Response, error) {
	if c.apiKey == "" {
		return nil, apperr.Config("OPENROUTER_API_KEY")
	}
	if model == "" {
		model = c.defaultModel
	}

	body, err := json.Marshal(completionRequest{Model: model, Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("chat upstream request failed", zap.String("model", model), zap.Error(err))
		return nil, apperr.Provider(apperr.CodeChatFailed, "chat service is unavailable", err, nil)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return nil, apperr.Provider(apperr.CodeChatFailed, "chat service is unavailable",
			fmt.Errorf("read chat response: %w", err), map[string]any{"http_status": resp.StatusCode})
	}
	if resp.StatusCode >= 300 {
		c.logger.Warn("chat upstream returned an error",
			zap.String("model", model),
			zap.Int("status", resp.StatusCode),
		)
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/json"
	}
	return &Response{StatusCode: resp.StatusCode, ContentType: ct, Body: respBody}, nil
}
