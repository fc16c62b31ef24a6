// Package tts wraps the ElevenLabs text-to-speech API.
package tts

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

// ErrNotConfigured is returned when the API key or voice id is missing.
var ErrNotConfigured = errors.New("tts: api key or voice id not configured")

// Client synthesizes speech from text. The returned bytes are an mp3
// stream (audio/mpeg).
type Client struct {
	cfg     config.TTSConfig
	client  *http.Client
	baseURL string
}

func NewClient(cfg config.TTSConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		baseURL: "https://api.elevenlabs.io",
	}
}

type speechRequest struct {
	Text         string `json:"text"`
	ModelID      string `json:"model_id"`
	OutputFormat string `json:"output_format"`
}

// Synthesize converts text into audio bytes.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if c.cfg.APIKey == "" || c.cfg.VoiceID == "" {
		return nil, ErrNotConfigured
	}
	modelID := c.cfg.ModelID
	if modelID == "" {
		modelID = "eleven_multilingual_v2"
	}
	format := c.cfg.OutputFormat
	if format == "" {
		format = "mp3_44100_128"
	}
	body, err := json.Marshal(speechRequest{Text: text, ModelID: modelID, OutputFormat: format})
	if err != nil {
		return nil, fmt.Errorf("tts: marshal: %w", err)
	}

	url := c.baseURL + "/v1/text-to-speech/" + c.cfg.VoiceID
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("tts: request: %w", err)
	}
	req.Header.Set("xi-api-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("tts: request failed: %d: %s", resp.StatusCode, string(b))
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tts: read audio: %w", err)
	}
	return audio, nil
}
