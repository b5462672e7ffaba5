// Package httputil builds connection-pooled HTTP clients. Trimmed from
// the teacher's multi-provider client pool (one tuned Transport per
// external API it called) down to the single shape this module's one
// outbound HTTP dependency needs: the embedding service.
package httputil

import (
	"net"
	"net/http"
	"time"
)

// ClientConfig holds HTTP client connection-pool tuning.
type ClientConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration

	DialTimeout         time.Duration
	TLSHandshakeTimeout time.Duration
	ResponseTimeout     time.Duration

	DisableKeepAlives bool
	KeepAliveInterval time.Duration
}

func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		MaxConnsPerHost:     100,
		IdleConnTimeout:     90 * time.Second,
		DialTimeout:         10 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		ResponseTimeout:     30 * time.Second,
		DisableKeepAlives:   false,
		KeepAliveInterval:   30 * time.Second,
	}
}

// EmbedderClientConfig tunes the pool for a single embedding-service host
// called at chunk-sized batches throughout a sync pass: moderate
// concurrency, a long enough response timeout for a large batch, and
// timeouts reset from the caller's Config.Timeout when one is given.
func EmbedderClientConfig(responseTimeout time.Duration) *ClientConfig {
	cfg := DefaultClientConfig()
	cfg.MaxIdleConnsPerHost = 8
	cfg.MaxConnsPerHost = 16
	if responseTimeout > 0 {
		cfg.ResponseTimeout = responseTimeout
	}
	return cfg
}

// NewOptimizedClient builds an *http.Client with a tuned Transport instead
// of relying on http.DefaultTransport's unbounded idle-connection pool.
func NewOptimizedClient(cfg *ClientConfig) *http.Client {
	if cfg == nil {
		cfg = DefaultClientConfig()
	}

	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: cfg.KeepAliveInterval,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		DisableKeepAlives:     cfg.DisableKeepAlives,
		ForceAttemptHTTP2:     true,
		ResponseHeaderTimeout: cfg.ResponseTimeout,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.ResponseTimeout,
	}
}
