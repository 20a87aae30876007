// Package httpclient provides the engine's one outbound HTTP client: a
// transport requiring TLS 1.2 or later (no certificate pinning), wrapped
// in a circuit breaker, shared by the rate
// lookup client, the remote Open Payments resource fetcher, and the
// webhook dispatcher, the way the teacher's Alpaca adapter wraps its one
// broker-API transport.
package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/ilpcore/engine/pkg/logger"
)

// Config configures a Client's transport, timeout, and breaker.
type Config struct {
	BaseURL          string
	Timeout          time.Duration
	BreakerName      string
	BreakerThreshold uint32
	BreakerTimeout   time.Duration
}

// Client is a shared JSON-over-HTTP client guarded by a circuit breaker.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *logger.Logger
}

// New builds a Client from config.
func New(config Config, log *logger.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.BreakerThreshold == 0 {
		config.BreakerThreshold = 5
	}
	if config.BreakerTimeout == 0 {
		config.BreakerTimeout = 30 * time.Second
	}

	transport := &http.Transport{
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	settings := gobreaker.Settings{
		Name:        config.BreakerName,
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > config.BreakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("http client circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	}

	return &Client{
		baseURL: config.BaseURL,
		http:    &http.Client{Timeout: config.Timeout, Transport: transport},
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  log,
	}
}

// DoJSON sends method/path with body marshaled as JSON (nil for none) and
// unmarshals a 2xx response body into out (nil to discard it).
func (c *Client) DoJSON(ctx context.Context, method, path string, headers map[string]string, body, out interface{}) (int, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, method, path, headers, body, out)
	})
	status, _ := result.(int)
	return status, err
}

func (c *Client) do(ctx context.Context, method, path string, headers map[string]string, body, out interface{}) (int, error) {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}

	if out != nil {
		if derr := json.NewDecoder(resp.Body).Decode(out); derr != nil {
			return resp.StatusCode, fmt.Errorf("decode response body: %w", derr)
		}
	}
	return resp.StatusCode, nil
}
