package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/watchmen-go/kernel/resilience"
)

// maxResponseBody caps how much of a response is read.
const maxResponseBody = 1 << 20

// Response is a completed exchange.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client posts JSON documents. Every attempt waits for the rate limiter
// and passes the circuit breaker; attempts are repeated by the retry
// policy.
type Client struct {
	http    *http.Client
	cfg     Config
	breaker *resilience.CircuitBreaker
	limiter *resilience.RateLimiter
}

// New creates a client from cfg.
func New(cfg Config) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	tlsCfg, err := cfg.TLS.Build()
	if err != nil {
		return nil, err
	}
	if tlsCfg != nil {
		transport.TLSClientConfig = tlsCfg
	}

	c := &Client{
		http: &http.Client{Transport: transport, Timeout: cfg.Timeout},
		cfg:  cfg,
	}
	if cfg.Breaker != nil {
		c.breaker = resilience.NewCircuitBreaker(*cfg.Breaker)
	}
	if cfg.Limiter != nil {
		c.limiter = resilience.NewRateLimiter(*cfg.Limiter)
	}
	return c, nil
}

// PostJSON encodes body and posts it to url. headers are added to the
// client headers for this call only.
func (c *Client) PostJSON(ctx context.Context, url string, body any, headers map[string]string) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: encode body: %w", err)
	}
	attempt := func(int) (*Response, error) {
		return c.attempt(ctx, url, payload, headers)
	}
	if c.cfg.Retry == nil {
		return attempt(1)
	}
	return resilience.Retry(ctx, *c.cfg.Retry, attempt)
}

// Breaker returns the circuit breaker, or nil.
func (c *Client) Breaker() *resilience.CircuitBreaker { return c.breaker }

func (c *Client) attempt(ctx context.Context, url string, payload []byte, headers map[string]string) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if c.breaker == nil {
		return c.post(ctx, url, payload, headers)
	}
	var resp *Response
	err := c.breaker.Execute(func() error {
		var err error
		resp, err = c.post(ctx, url, payload, headers)
		return err
	})
	return resp, err
}

func (c *Client) post(ctx context.Context, url string, payload []byte, headers map[string]string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("httpclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if auth := c.cfg.Auth.header(); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("read response: %w", err)}
	}

	out := &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return out, &StatusError{StatusCode: resp.StatusCode, Body: body}
	}
	return out, nil
}
