package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"orgpulse/config"
)

// Sentinel errors distinguishing the failure modes callers must handle.
var (
	ErrTransport     = errors.New("llm: transport failure")
	ErrAPI           = errors.New("llm: api error")
	ErrEmptyResponse = errors.New("llm: no content in response")
	ErrTimeout       = errors.New("llm: stage timeout")
)

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options tune a single chat call.
type Options struct {
	JSON      bool
	MaxTokens int
}

// Provider is the gateway contract: one chat completion in, raw text out.
// The returned string is untrusted and may not be valid JSON; every caller
// parses it explicitly and treats parse failure as a stage failure.
type Provider interface {
	Chat(ctx context.Context, model string, messages []Message, opts Options) (string, error)
}

// Client talks to an OpenRouter-compatible chat-completions API.
type Client struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewClient builds a client from config. A missing API key is tolerated
// here so the rest of the server can run; Chat fails until one is set.
func NewClient(cfg config.LLMConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Client{cfg: cfg, client: &http.Client{Timeout: timeout}}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Chat performs one completion call. Errors wrap the package sentinels so
// callers can branch on failure mode with errors.Is.
func (c *Client) Chat(ctx context.Context, model string, messages []Message, opts Options) (string, error) {
	if c.cfg.APIKey == "" {
		return "", fmt.Errorf("%w: api key not configured (llm.api_key)", ErrAPI)
	}
	if model == "" {
		model = c.cfg.Routing.Fallback
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.cfg.MaxTokens
	}
	reqBody := chatRequest{Model: model, Messages: messages, MaxTokens: maxTokens}
	if opts.JSON {
		reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	baseURL := c.cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: status %d: %s", ErrAPI, resp.StatusCode, string(b))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode: %v", ErrAPI, err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("%w: %s", ErrAPI, out.Error.Message)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return out.Choices[0].Message.Content, nil
}
