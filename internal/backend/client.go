// ==============================================================================
// BACKEND CLIENT - internal/backend/client.go
// ==============================================================================
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cfdclient/pkg/config"
	"cfdclient/pkg/errors"
	"cfdclient/pkg/logger"
)

// TokenStore persists the single backend credential across restarts, the
// same way a browser keeps one token in local storage.
type TokenStore interface {
	Load() (token, issuedFor string, err error)
	Save(token, issuedFor string) error
	Clear() error
}

// Client talks to the CasinoFound backend API. Transport failures map to
// ErrNetwork, 401 responses to ErrUnauthorized, and every other non-success
// status to a RemoteError carrying the status code.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenStore
	logger     logger.Logger
}

// NewClient builds a backend client over the given token store.
func NewClient(cfg config.BackendConfig, tokens TokenStore, log logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		tokens: tokens,
		logger: log,
	}
}

// Tokens exposes the credential store for the auth flow.
func (c *Client) Tokens() TokenStore {
	return c.tokens
}

// errorEnvelope is the backend's failure shape: {"success": false, "error": "..."}.
type errorEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// do runs one request. A nil body sends no payload; a non-nil out decodes the
// success response into it. The bearer token is attached when the store has
// one.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if token, _, err := c.tokens.Load(); err == nil && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(errors.ErrNetwork, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(errors.ErrNetwork, err.Error())
	}

	c.logger.Debug("Backend request completed", map[string]interface{}{
		"method":      method,
		"path":        path,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	if resp.StatusCode == http.StatusUnauthorized {
		return errors.ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope errorEnvelope
		message := fmt.Sprintf("status %d", resp.StatusCode)
		if json.Unmarshal(respBody, &envelope) == nil {
			if envelope.Error != "" {
				message = envelope.Error
			} else if envelope.Message != "" {
				message = envelope.Message
			}
		}
		return &errors.RemoteError{Code: resp.StatusCode, Message: message}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return errors.Wrap(err, "decode response")
		}
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}
