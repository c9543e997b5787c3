// Package api is the HTTP transport to the blog REST API.
//
// Every failure is returned as *apperr.Error whose message is ready for
// presentation. A 401 response additionally fires the handlers registered
// with OnUnauthorized, whichever call received it.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ButyrinIA/blogsync/internal/apperr"
	"github.com/ButyrinIA/blogsync/internal/config"
	"github.com/ButyrinIA/blogsync/internal/logging"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

const maxResponseBytes = 4 << 20

// TokenSource supplies the bearer token for outgoing requests; "" means none.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type Client struct {
	baseURL  string
	http     *http.Client
	dialer   *websocket.Dialer
	tokens   TokenSource
	pageSize int
	log      *slog.Logger

	mu           sync.RWMutex
	unauthorized []func()
}

func New(cfg config.APIConfig, tokens TokenSource, logger *slog.Logger) *Client {
	pageSize := cfg.ListPageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout: cfg.Timeout,
		},
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.Timeout,
		},
		tokens:   tokens,
		pageSize: pageSize,
		log:      logging.Or(logger).With("component", "api"),
	}
}

// OnUnauthorized registers fn to run whenever the API answers 401.
func (c *Client) OnUnauthorized(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unauthorized = append(c.unauthorized, fn)
}

func (c *Client) signalUnauthorized() {
	c.mu.RLock()
	handlers := append([]func(){}, c.unauthorized...)
	c.mu.RUnlock()
	for _, fn := range handlers {
		fn()
	}
}

func (c *Client) token(ctx context.Context) string {
	if c.tokens == nil {
		return ""
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		c.log.Warn("Failed to read token", "error", err)
		return ""
	}
	return token
}

// do sends the request and returns the raw body of a 2xx response.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in any) ([]byte, error) {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Start", strconv.FormatInt(time.Now().UnixMilli(), 10))
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token := c.token(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("Request failed", "method", method, "path", path, "error", err)
		return nil, apperr.Normalize(0, nil, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperr.Normalize(resp.StatusCode, nil, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := apperr.Normalize(resp.StatusCode, raw, nil)
		c.log.Debug("Request rejected", "method", method, "path", path, "status", resp.StatusCode, "error", apiErr.Message)
		if resp.StatusCode == http.StatusUnauthorized {
			c.signalUnauthorized()
		}
		return nil, apiErr
	}
	return raw, nil
}

func malformed(field string, err error) error {
	msg := "Malformed response from server"
	if field != "" {
		msg += ": missing " + field
	}
	return &apperr.Error{Kind: apperr.Transport, Message: msg, Err: err}
}

// decodeField unmarshals body[field] into out and reports whether the field
// was present. An empty field name decodes the whole body.
func decodeField(body []byte, field string, out any) (bool, error) {
	raw := body
	if field != "" {
		res := gjson.GetBytes(body, field)
		if !res.Exists() || res.Type == gjson.Null {
			return false, nil
		}
		raw = []byte(res.Raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, malformed("", err)
	}
	return true, nil
}

// requireField is decodeField for payloads the caller cannot do without.
func requireField(body []byte, field string, out any) error {
	ok, err := decodeField(body, field, out)
	if err != nil {
		return err
	}
	if !ok {
		return malformed(field, nil)
	}
	return nil
}
