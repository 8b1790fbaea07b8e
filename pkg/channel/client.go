package channel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rhuss/hive/pkg/debug"
	"github.com/rhuss/hive/pkg/observability"
)

// TransportError reports a coordinator call that did not produce a 2xx
// response. It is always retried.
type TransportError struct {
	// StatusCode is zero for connection level failures.
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("coordinator returned HTTP %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("coordinator request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ClientConfig holds coordinator client settings.
type ClientConfig struct {
	Endpoint string

	// InitialDelay is the wait before the first retry (default: 1s).
	InitialDelay time.Duration

	// Multiplier scales the delay after every failed attempt (default: 1.5).
	Multiplier float64

	// MaxDelay caps the delay. Zero leaves it uncapped.
	MaxDelay time.Duration

	// RequestTimeout bounds each individual call (default: 30s).
	RequestTimeout time.Duration

	// Signer adds a bearer token to every request when set.
	Signer *TokenSigner

	// HTTPClient allows injecting a custom client (default: http.DefaultClient).
	HTTPClient *http.Client
}

func (c *ClientConfig) defaults() {
	if c.InitialDelay == 0 {
		c.InitialDelay = time.Second
	}
	if c.Multiplier == 0 {
		c.Multiplier = 1.5
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
}

// Client posts conversation messages to the coordinator.
type Client struct {
	cfg ClientConfig

	// timer is handed to the backoff retry; nil uses a real timer.
	timer backoff.Timer
}

// NewClient creates a coordinator client.
func NewClient(cfg ClientConfig) (*Client, error) {
	cfg.defaults()
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("channel: coordinator endpoint must be set")
	}
	if cfg.Multiplier < 1 {
		return nil, fmt.Errorf("channel: delay multiplier must be >= 1, got %v", cfg.Multiplier)
	}
	if cfg.InitialDelay < 0 || cfg.MaxDelay < 0 {
		return nil, fmt.Errorf("channel: delays must not be negative")
	}
	return &Client{cfg: cfg}, nil
}

// newBackOff returns a deterministic exponential schedule that never gives
// up on its own.
func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	maxInterval := c.cfg.MaxDelay
	if maxInterval == 0 {
		maxInterval = time.Duration(math.MaxInt64)
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     c.cfg.InitialDelay,
		RandomizationFactor: 0,
		Multiplier:          c.cfg.Multiplier,
		MaxInterval:         maxInterval,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}

// Exchange posts body and returns the first 2xx response body. Failed
// attempts are retried with the same body until one succeeds or ctx is
// done. Errors are limited to ctx cancellation and requests that cannot be
// built at all.
func (c *Client) Exchange(ctx context.Context, body []byte) ([]byte, error) {
	var resp []byte
	attempt := 0

	op := func() error {
		attempt++
		var err error
		resp, err = c.post(ctx, body)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	notify := func(err error, delay time.Duration) {
		observability.CoordinatorRetriesTotal.Inc()
		slog.Warn("coordinator request failed, retrying",
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
	}

	if err := backoff.RetryNotifyWithTimer(op, backoff.WithContext(c.newBackOff(), ctx), notify, c.timer); err != nil {
		return nil, err
	}
	return resp, nil
}

// post performs a single bounded round trip.
func (c *Client) post(ctx context.Context, body []byte) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Signer != nil {
		token, err := c.cfg.Signer.Token()
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	debug.Log("channel", "posting to coordinator", "endpoint", c.cfg.Endpoint, "bytes", len(body))
	debug.Trace("channel", "outbound message", "body", string(body))

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		observability.CoordinatorRequestsTotal.WithLabelValues("error").Inc()
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	observability.CoordinatorRequestsTotal.WithLabelValues(observability.StatusClass(resp.StatusCode)).Inc()
	if err != nil {
		return nil, &TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{
			StatusCode: resp.StatusCode,
			Body:       debug.Truncate(string(respBody), 200),
			Err:        errors.New(http.StatusText(resp.StatusCode)),
		}
	}

	debug.Trace("channel", "inbound message", "body", string(respBody))
	return respBody, nil
}
