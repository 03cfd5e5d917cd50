// Package rest calls the remote procedures over the HTTP RPC gateway.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/Veraticus/pocket-ledger/internal/remote"
)

// Client is a remote.Backend over HTTP. Each call is one POST to
// /rpc/<procedure>.
type Client struct {
	http    *http.Client
	logger  *slog.Logger
	baseURL string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying transport. The caller is then
// responsible for authentication.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// New returns a client that authenticates every request with a bearer token
// from ts.
func New(baseURL string, ts oauth2.TokenSource, opts ...Option) *Client {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	if ts != nil {
		httpClient.Transport = &oauth2.Transport{Source: oauth2.ReuseTokenSource(nil, ts)}
	}

	c := &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "rest", "url", c.baseURL)
	return c
}

// ApplyBatch implements remote.Backend.
func (c *Client) ApplyBatch(ctx context.Context, ops []remote.Operation) error {
	return c.call(ctx, remote.ProcApplyBatch, ops)
}

// CreateTransfer implements remote.Backend.
func (c *Client) CreateTransfer(ctx context.Context, p remote.TransferPayload) error {
	return c.call(ctx, remote.ProcCreateTransfer, p)
}

// EditTransfer implements remote.Backend.
func (c *Client) EditTransfer(ctx context.Context, p remote.TransferPayload) error {
	return c.call(ctx, remote.ProcEditTransfer, p)
}

// RevertTransfer implements remote.Backend.
func (c *Client) RevertTransfer(ctx context.Context, id string) error {
	return c.call(ctx, remote.ProcRevertTransfer, remote.RevertRequest{ID: id})
}

func (c *Client) call(ctx context.Context, proc string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", proc, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc/"+proc, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", proc, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", proc, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", proc, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.logger.Debug("remote call succeeded", "proc", proc, "status", resp.StatusCode)
		return nil
	}
	return decodeError(proc, resp.StatusCode, respBody)
}

// decodeError maps a non-2xx response to an error. A body carrying a SQLSTATE
// becomes a remote.Error; anything else stays a plain, retryable error.
func decodeError(proc string, status int, body []byte) error {
	var re remote.Error
	if err := json.Unmarshal(body, &re); err == nil && re.Code != "" {
		return &re
	}
	return fmt.Errorf("%s returned HTTP %d: %s", proc, status, strings.TrimSpace(string(body)))
}
