// Package anchor talks to the blockchain anchoring service that records
// certificate file hashes.
package anchor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"certhub/internal/platform/config"
	"certhub/pkg/platform/circuit"
	"certhub/pkg/platform/sentinel"
)

var (
	// ErrDisabled is returned when no anchoring service is configured.
	ErrDisabled = fmt.Errorf("anchor service not configured: %w", sentinel.ErrUnavailable)
	// ErrCircuitOpen is returned while recent calls keep failing.
	ErrCircuitOpen = fmt.Errorf("anchor service circuit open: %w", sentinel.ErrUnavailable)
)

// Receipt is the anchoring service's acknowledgement of a recorded hash.
type Receipt struct {
	Network    string
	TxHash     string
	AnchoredAt time.Time
}

type anchorRequest struct {
	Hash    string `json:"hash"`
	Network string `json:"network"`
}

type anchorResponse struct {
	TxHash     string    `json:"tx_hash"`
	Network    string    `json:"network"`
	AnchoredAt time.Time `json:"anchored_at"`
}

type verifyResponse struct {
	Verified bool `json:"verified"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type Client struct {
	http    *resty.Client
	network string
	logger  *slog.Logger
	enabled bool
	breaker *circuit.Breaker
}

type Option func(*Client)

func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

func New(cfg config.Anchor, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	httpClient := resty.New().
		SetBaseURL(cfg.URL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(3*time.Second).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		httpClient.SetAuthToken(cfg.APIKey)
	}
	httpClient.AddRetryCondition(func(r *resty.Response, err error) bool {
		return err != nil || r.StatusCode() >= http.StatusInternalServerError
	})
	c := &Client{
		http:    httpClient,
		network: cfg.Network,
		logger:  logger,
		enabled: cfg.Enabled(),
		breaker: circuit.New("anchor"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Enabled() bool {
	return c != nil && c.enabled
}

func (c *Client) Network() string {
	if c == nil {
		return ""
	}
	return c.network
}

// Anchor records hash on chain and returns the transaction receipt.
func (c *Client) Anchor(ctx context.Context, hash string) (*Receipt, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	if hash == "" {
		return nil, errors.New("anchor: empty hash")
	}
	if !c.breaker.Allow() {
		return nil, ErrCircuitOpen
	}
	var result anchorResponse
	var failure errorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(anchorRequest{Hash: hash, Network: c.network}).
		SetResult(&result).
		SetError(&failure).
		Post("/anchors")
	c.record(ctx, resp, err)
	if err != nil {
		return nil, fmt.Errorf("anchor hash: %w", err)
	}
	if resp.IsError() {
		c.logger.ErrorContext(ctx, "anchor service rejected hash",
			"status_code", resp.StatusCode(),
			"message", failure.Error,
		)
		return nil, fmt.Errorf("anchor rejected (%d): %s", resp.StatusCode(), failure.Error)
	}
	if result.TxHash == "" {
		return nil, errors.New("anchor: response missing tx_hash")
	}
	network := result.Network
	if network == "" {
		network = c.network
	}
	at := result.AnchoredAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return &Receipt{Network: network, TxHash: result.TxHash, AnchoredAt: at}, nil
}

// Verify asks the service whether txHash still records hash.
func (c *Client) Verify(ctx context.Context, hash, txHash string) (bool, error) {
	if !c.Enabled() {
		return false, ErrDisabled
	}
	if !c.breaker.Allow() {
		return false, ErrCircuitOpen
	}
	var result verifyResponse
	var failure errorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("hash", hash).
		SetResult(&result).
		SetError(&failure).
		Get("/anchors/" + txHash)
	c.record(ctx, resp, err)
	if err != nil {
		return false, fmt.Errorf("verify anchor: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return false, nil
	}
	if resp.IsError() {
		return false, fmt.Errorf("verify anchor (%d): %s", resp.StatusCode(), failure.Error)
	}
	return result.Verified, nil
}

// record feeds the breaker. Only transport errors and 5xx responses count as
// failures.
func (c *Client) record(ctx context.Context, resp *resty.Response, err error) {
	if err != nil || resp.StatusCode() >= http.StatusInternalServerError {
		if _, change := c.breaker.RecordFailure(); change.Opened {
			c.logger.WarnContext(ctx, "anchor circuit opened", "breaker", c.breaker.Name())
		}
		return
	}
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "anchor circuit closed", "breaker", c.breaker.Name())
	}
}
