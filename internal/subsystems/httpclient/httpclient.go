// Package httpclient is a registered subsystem whose handler makes a
// resilient outbound HTTP call on behalf of a message body, demonstrating
// a handler that itself suspends on I/O (spec §5 suspension points).
// Composition mirrors the teacher's internal/providers/http/client
// package: resty for the request builder and its retries, the inner
// transport of a retryablehttp client (whose own retry settings do not
// apply, since only that transport is used), and a breaker guarding the
// outbound call independently of the kernel's own per-subsystem breaker.
package httpclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/breaker"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/message"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/router"
)

// Client wraps resty with rate limiting and circuit breaker protection,
// the same shape as the teacher's client.Client.
type Client struct {
	resty   *resty.Client
	limiter *rate.Limiter
	breaker *breaker.Breaker
	mu      sync.RWMutex
}

// NewClient builds a production-shaped outbound HTTP client.
func NewClient() *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 30 * time.Second
	retryClient.Logger = nil

	restyClient := resty.New().
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(30 * time.Second).
		SetHeader("User-Agent", "mycelia-kernel-httpclient/1.0")
	restyClient.SetTransport(retryClient.HTTPClient.Transport)

	brk := breaker.New("httpclient.outbound", breaker.Settings{
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts breaker.Counts) bool {
			return counts.ConsecutiveFailures >= 10 ||
				(counts.Calls >= 20 && float64(counts.TotalFailures)/float64(counts.Calls) > 0.7)
		},
	})

	return &Client{
		resty:   restyClient,
		limiter: rate.NewLimiter(rate.Inf, 0),
		breaker: brk,
	}
}

// SetRateLimit throttles outbound requests to rps requests per second.
func (c *Client) SetRateLimit(rps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rps <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 0)
		return
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
}

// RequestBody is the expected shape of a message body sent to
// httpclient://request.
type RequestBody struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    interface{}
}

// Do issues the request, gated by the rate limiter and circuit breaker.
func (c *Client) Do(ctx context.Context, req RequestBody) (map[string]interface{}, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("httpclient: url is required")
	}
	method := req.Method
	if method == "" {
		method = "GET"
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("httpclient: rate limit: %w", err)
	}

	var resp *resty.Response
	callErr := c.breaker.Call(func() error {
		r := c.resty.R().SetContext(ctx)
		for k, v := range req.Headers {
			r.SetHeader(k, v)
		}
		if req.Body != nil {
			r.SetBody(req.Body)
		}
		var doErr error
		resp, doErr = r.Execute(method, req.URL)
		return doErr
	})
	if callErr != nil {
		if callErr == breaker.ErrOpen {
			return nil, fmt.Errorf("httpclient: circuit open, external service unavailable")
		}
		return nil, fmt.Errorf("httpclient: request failed: %w", callErr)
	}

	headers := make(map[string]string, len(resp.Header()))
	for k, v := range resp.Header() {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	return map[string]interface{}{
		"status":     resp.StatusCode(),
		"statusText": resp.Status(),
		"body":       resp.String(),
		"headers":    headers,
		"elapsedMs":  resp.Time().Milliseconds(),
	}, nil
}

// Routes returns the route table for registering this subsystem under
// the "httpclient" scheme via Kernel.RegisterSubsystem.
func Routes(client *Client) []kernel.RouteDef {
	handler := func(msg *message.Message, params map[string]string, opts router.RouteOptions) (interface{}, error) {
		req, ok := msg.Body.(RequestBody)
		if !ok {
			return nil, fmt.Errorf("httpclient: request body must be a RequestBody")
		}
		return client.Do(context.Background(), req)
	}

	return []kernel.RouteDef{
		{Pattern: "request", Handler: handler, Metadata: router.Metadata{}},
	}
}
