// Package embedder implements core/port.Embedder against a
// `POST {base}/embed` HTTP contract, grounded on the original
// EmbeddingClient (search/client.rs): chunked requests, document/query
// instruction prefixes, count/dimension verification, and tolerance for
// both a bare-array and a `{embeddings: [...]}` response shape. Retry with
// exponential backoff is grounded on search/embeddings.rs's retry loop and
// wrapped in a circuit breaker so a persistently failing embedder trips
// open instead of retrying forever.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tansanrao/nexus/core/port"
	"github.com/tansanrao/nexus/pkg/apperr"
	"github.com/tansanrao/nexus/pkg/httputil"
	"github.com/tansanrao/nexus/pkg/logger"
	"github.com/tansanrao/nexus/pkg/ratelimit"
	"github.com/tansanrao/nexus/pkg/resilience"
)

// Config mirrors the original EmbeddingConfig fields this client needs.
type Config struct {
	BaseURL      string
	Dimension    int
	BatchSize    int
	Timeout      time.Duration
	DocPrefix    string
	QueryPrefix  string
	MaxRetries   int
	RetryBackoff time.Duration // base delay, doubled each retry

	// Backpressure: bounds outstanding embed requests so a burst of
	// large chunks doesn't queue unbounded work against a slow
	// embedder, per spec's "importer pauses dispatching new chunks
	// when outstanding embedding requests exceed a threshold".
	MaxConcurrentRequests int
	RequestsPerSecond     int
	BurstSize             int
}

// Client implements port.Embedder over HTTP.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *resilience.CircuitBreaker
	limiter *ratelimit.Limiter
}

func New(cfg Config) *Client {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 750 * time.Millisecond
	}
	breakerCfg := resilience.DefaultCircuitBreakerConfig("embedder")
	return &Client{
		cfg:     cfg,
		http:    httputil.NewOptimizedClient(httputil.EmbedderClientConfig(cfg.Timeout)),
		breaker: resilience.NewCircuitBreaker(breakerCfg),
		limiter: ratelimit.New(ratelimit.Config{
			MaxConcurrent:     cfg.MaxConcurrentRequests,
			RequestsPerSecond: cfg.RequestsPerSecond,
			BurstSize:         cfg.BurstSize,
		}),
	}
}

// Close releases the client's rate limiter goroutine.
func (c *Client) Close() {
	c.limiter.Close()
}

// EmbedBatch embeds texts with the configured document or query prefix,
// chunked to BatchSize, retrying each chunk with exponential backoff
// before giving up, all behind a circuit breaker.
func (c *Client) EmbedBatch(ctx context.Context, texts []string, kind port.EmbedKind) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	prefix := c.cfg.DocPrefix
	if kind == port.EmbedQuery {
		prefix = c.cfg.QueryPrefix
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.cfg.BatchSize {
		end := start + c.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		chunk := texts[start:end]

		release, err := c.limiter.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("wait for embedder capacity: %w", err)
		}

		var embeddings [][]float32
		err = c.breaker.Execute(func() error {
			var attemptErr error
			embeddings, attemptErr = c.embedChunkWithRetry(ctx, prefix, chunk)
			return attemptErr
		})
		release()
		if err != nil {
			return nil, err
		}
		results = append(results, embeddings...)
	}
	return results, nil
}

func (c *Client) embedChunkWithRetry(ctx context.Context, prefix string, chunk []string) ([][]float32, error) {
	backoff := c.cfg.RetryBackoff
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		embeddings, err := c.embedChunk(ctx, prefix, chunk)
		if err == nil {
			return embeddings, nil
		}
		lastErr = err
		logger.WithField("attempt", attempt).WithField("max_retries", c.cfg.MaxRetries).WithError(err).Warn("embedder request failed")

		if attempt == c.cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, apperr.Transient("embed batch", lastErr)
}

func (c *Client) embedChunk(ctx context.Context, prefix string, chunk []string) ([][]float32, error) {
	prefixed := make([]string, len(chunk))
	for i, s := range chunk {
		prefixed[i] = prefix + s
	}

	payload, err := json.Marshal(embedRequest{Inputs: prefixed, Truncate: true, Normalize: true})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/embed"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedder returned status %d: %s", resp.StatusCode, string(body))
	}

	embeddings, err := parseEmbedResponse(body)
	if err != nil {
		return nil, err
	}
	if len(embeddings) != len(chunk) {
		return nil, fmt.Errorf("embedder response count mismatch: expected %d, got %d", len(chunk), len(embeddings))
	}
	for _, e := range embeddings {
		if c.cfg.Dimension > 0 && len(e) != c.cfg.Dimension {
			return nil, fmt.Errorf("embedder vector dimension mismatch: expected %d, got %d", c.cfg.Dimension, len(e))
		}
	}
	return embeddings, nil
}

type embedRequest struct {
	Inputs    []string `json:"inputs"`
	Truncate  bool     `json:"truncate,omitempty"`
	Normalize bool     `json:"normalize,omitempty"`
}

// parseEmbedResponse tolerates two shapes the embedder deployment may return: a
// bare array of vectors, or an object wrapping them under "embeddings".
func parseEmbedResponse(body []byte) ([][]float32, error) {
	var bare [][]float32
	if err := json.Unmarshal(body, &bare); err == nil {
		return bare, nil
	}

	var wrapped struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	return wrapped.Embeddings, nil
}
