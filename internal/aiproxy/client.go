// Package aiproxy forwards task planning, report, chat, and theme requests
// to an OpenAI-compatible chat/completions endpoint under quota control.
package aiproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	defaultTimeout     = 60 * time.Second
	defaultTemperature = 0.7
	maxResponseBytes   = 4 << 20
)

var (
	// ErrNotConfigured indicates a missing upstream endpoint or key.
	ErrNotConfigured = errors.New("aiproxy: upstream not configured")
	// ErrUpstream indicates a non-2xx or unusable upstream response.
	ErrUpstream = errors.New("aiproxy: upstream request failed")
	// ErrUpstreamTimeout indicates the upstream did not answer in time.
	ErrUpstreamTimeout = errors.New("aiproxy: upstream timed out")
	// ErrMalformedContent indicates assistant content that is not the expected JSON.
	ErrMalformedContent = errors.New("aiproxy: malformed assistant content")
)

// Config configures the upstream endpoint.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client calls chat/completions.
type Client struct {
	cfg    Config
	client *http.Client
}

// NewClient constructs a Client.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	return &Client{cfg: cfg, client: httpClient}
}

// Complete sends a system and a user message and returns the assistant text.
func (c *Client) Complete(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	if c.cfg.BaseURL == "" || c.cfg.APIKey == "" {
		return "", ErrNotConfigured
	}
	body, errBody := c.requestBody(system, user, jsonMode)
	if errBody != nil {
		return "", errBody
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, errReq := http.NewRequestWithContext(requestCtx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if errReq != nil {
		return "", fmt.Errorf("aiproxy: build request: %w", errReq)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, errDo := c.client.Do(req)
	if errDo != nil {
		var netErr net.Error
		if errors.Is(errDo, context.DeadlineExceeded) || (errors.As(errDo, &netErr) && netErr.Timeout()) {
			return "", ErrUpstreamTimeout
		}
		return "", fmt.Errorf("%w: %v", ErrUpstream, errDo)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, errRead := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if errRead != nil {
		if errors.Is(errRead, context.DeadlineExceeded) {
			return "", ErrUpstreamTimeout
		}
		return "", fmt.Errorf("%w: read response: %v", ErrUpstream, errRead)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}
	content := gjson.GetBytes(raw, "choices.0.message.content")
	if !content.Exists() || strings.TrimSpace(content.String()) == "" {
		return "", fmt.Errorf("%w: empty completion", ErrUpstream)
	}
	return content.String(), nil
}

func (c *Client) requestBody(system, user string, jsonMode bool) ([]byte, error) {
	body := []byte(`{}`)
	var errSet error
	set := func(path string, value any) {
		if errSet != nil {
			return
		}
		body, errSet = sjson.SetBytes(body, path, value)
	}
	set("model", c.cfg.Model)
	set("temperature", defaultTemperature)
	set("messages.0.role", "system")
	set("messages.0.content", system)
	set("messages.1.role", "user")
	set("messages.1.content", user)
	if jsonMode {
		set("response_format.type", "json_object")
	}
	if errSet != nil {
		return nil, fmt.Errorf("aiproxy: build body: %w", errSet)
	}
	return body, nil
}

// StripFences removes a surrounding markdown code fence, with or without a
// language tag.
func StripFences(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimLeft(s, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ParseJSONContent strips fences from assistant content and returns it as
// validated JSON.
func ParseJSONContent(content string) (json.RawMessage, error) {
	s := StripFences(content)
	if s == "" || !gjson.Valid(s) {
		return nil, ErrMalformedContent
	}
	return json.RawMessage(s), nil
}
