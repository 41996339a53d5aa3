package httpclient

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Config controls the shared HTTP client used by the explorer and
// backup-store clients.
type Config struct {
	MaxConcurrency int
	RequestTimeout time.Duration
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	JitterRange    [2]int // min/max pre-request jitter in milliseconds
	UserAgent      string
}

// Pool is an http.Client wrapper adding a concurrency cap, retry with
// exponential backoff, and request jitter.
type Pool struct {
	config    Config
	semaphore chan struct{}
	client    *http.Client

	totalRequests   int64
	failedRequests  int64
	retriedRequests int64
}

// NewPool creates a pool, applying defaults for zero-valued fields.
func NewPool(config Config) *Pool {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = time.Second
	}
	if config.BackoffMax <= 0 {
		config.BackoffMax = 30 * time.Second
	}
	return &Pool{
		config:    config,
		semaphore: make(chan struct{}, config.MaxConcurrency),
		client:    &http.Client{Timeout: config.RequestTimeout},
	}
}

// Do executes the request with retries. The caller owns the response
// body on success.
func (p *Pool) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	atomic.AddInt64(&p.totalRequests, 1)

	select {
	case p.semaphore <- struct{}{}:
		defer func() { <-p.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if p.config.UserAgent != "" {
		req.Header.Set("User-Agent", p.config.UserAgent)
	}
	if err := p.applyJitter(ctx); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			atomic.AddInt64(&p.retriedRequests, 1)
			backoff := p.backoff(attempt)
			log.Debug().
				Dur("backoff", backoff).
				Int("attempt", attempt).
				Str("url", req.URL.String()).
				Msg("retrying HTTP request")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}

			// Rewind the body before re-sending; the previous attempt
			// consumed it.
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("rewind request body: %w", err)
				}
				req.Body = body
			}
		}

		resp, err := p.client.Do(req.WithContext(ctx))
		if err != nil {
			lastErr = err
			if retryableError(err) && ctx.Err() == nil {
				continue
			}
			break
		}

		if retryableStatus(resp.StatusCode) && attempt < p.config.MaxRetries {
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
			continue
		}
		return resp, nil
	}

	atomic.AddInt64(&p.failedRequests, 1)
	return nil, fmt.Errorf("request failed after %d attempts: %w", p.config.MaxRetries+1, lastErr)
}

// Stats returns cumulative request counters.
func (p *Pool) Stats() (total, failed, retried int64) {
	return atomic.LoadInt64(&p.totalRequests),
		atomic.LoadInt64(&p.failedRequests),
		atomic.LoadInt64(&p.retriedRequests)
}

func (p *Pool) applyJitter(ctx context.Context) error {
	min, max := p.config.JitterRange[0], p.config.JitterRange[1]
	if max <= min || max <= 0 {
		return nil
	}
	jitter := time.Duration(min+rand.Intn(max-min)) * time.Millisecond
	select {
	case <-time.After(jitter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) backoff(attempt int) time.Duration {
	backoff := p.config.BackoffBase * time.Duration(1<<uint(attempt-1))
	if backoff > p.config.BackoffMax {
		backoff = p.config.BackoffMax
	}
	return backoff
}

func retryableError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, net.ErrClosed)
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
