package appstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"appstore-receipt-api/pkg/logging"
)

// DefaultTimeout bounds a single verifyReceipt attempt.
const DefaultTimeout = 5 * time.Second

// Transport executes one POST and returns the raw response body. It must
// honour the deadline carried by ctx and be safe for concurrent use.
type Transport interface {
	Post(ctx context.Context, url string, body []byte) ([]byte, error)
}

// Observer receives one call per attempt. Implementations must be safe for
// concurrent use.
type Observer interface {
	ObserveAttempt(env Environment, outcome string, elapsed time.Duration)
	ObserveFallback()
}

// ValidateOptions are the per-call options of Validate and Verify.
type ValidateOptions struct {
	ExcludeOldTransactions *bool
	// SharedSecret overrides the client's default secret.
	SharedSecret *string
}

// Client validates receipts against the App Store verifyReceipt endpoints.
// It holds no mutable state and is safe for concurrent use.
type Client struct {
	transport Transport
	secret    *string
	timeout   time.Duration
	observer  Observer
}

// Option configures a Client.
type Option func(*Client)

// WithSharedSecret sets the secret sent when a call does not carry one.
func WithSharedSecret(secret string) Option {
	return func(c *Client) {
		if secret != "" {
			c.secret = &secret
		}
	}
}

// WithTimeout sets the per-attempt deadline.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

func WithObserver(observer Observer) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

// NewClient creates a client over transport.
func NewClient(transport Transport, opts ...Option) *Client {
	c := &Client{
		transport: transport,
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Validate verifies receiptData and returns the receipt of the attempt that
// succeeded.
func (c *Client) Validate(ctx context.Context, receiptData string, opts ValidateOptions) (*Receipt, error) {
	resp, err := c.Verify(ctx, receiptData, opts)
	if err != nil {
		return nil, err
	}
	return &resp.Receipt, nil
}

// Verify is Validate returning the whole decoded response. Production is
// always tried first. A 21007 answer from production is retried once against
// sandbox and the sandbox outcome is final; every other failure is returned
// as is.
func (c *Client) Verify(ctx context.Context, receiptData string, opts ValidateOptions) (*Response, error) {
	if receiptData == "" {
		return nil, ErrEmptyReceipt
	}

	req := c.newRequest(receiptData, opts)
	env := EnvironmentProduction
	for {
		resp, err := c.execute(ctx, req, env)
		if err == nil {
			return resp, nil
		}

		next, retry := fallbackEnvironment(env, err)
		if !retry {
			return nil, err
		}
		logging.Infof("Receipt is from %s, retrying against %s", next, next.URL())
		if c.observer != nil {
			c.observer.ObserveFallback()
		}
		env = next
	}
}

func (c *Client) newRequest(receiptData string, opts ValidateOptions) Request {
	secret := c.secret
	if opts.SharedSecret != nil {
		secret = opts.SharedSecret
	}
	return Request{
		ReceiptData:            receiptData,
		Password:               secret,
		ExcludeOldTransactions: opts.ExcludeOldTransactions,
	}
}

// fallbackEnvironment decides the second attempt. Only production answering
// that the receipt belongs to sandbox moves on, so there are at most two
// attempts and never sandbox before production.
func fallbackEnvironment(current Environment, err error) (Environment, bool) {
	if current != EnvironmentProduction {
		return "", false
	}
	if kind, ok := KindOf(err); ok && kind == ErrorKindSandboxReceiptSentToProduction {
		return EnvironmentSandbox, true
	}
	return "", false
}

func (c *Client) execute(ctx context.Context, req Request, env Environment) (*Response, error) {
	started := time.Now()
	resp, err := c.attempt(ctx, req, env)
	if c.observer != nil {
		c.observer.ObserveAttempt(env, outcomeOf(err), time.Since(started))
	}
	return resp, err
}

func (c *Client) attempt(ctx context.Context, req Request, env Environment) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.transport.Post(attemptCtx, env.URL(), body)
	if err != nil {
		logging.Errorf("App Store %s request failed: %v", env, err)
		return nil, &TransportError{Environment: env, Err: err}
	}

	var status Status
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, wrapJSONError(err)
	}
	if status.Status != 0 {
		return nil, newStatusError(status.Status, env)
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, wrapJSONError(err)
	}
	return &resp, nil
}

func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	if kind, ok := KindOf(err); ok {
		return kind.String()
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		if transportErr.Timeout() {
			return "timeout"
		}
		return "transport_error"
	}
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return "decode_error"
	}
	return "error"
}
