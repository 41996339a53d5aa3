package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/sproutfi/basisledger/internal/httpclient"
)

// ErrUnavailable marks a transient backup-store failure, including a
// rejected call while the circuit breaker is open.
var ErrUnavailable = errors.New("backup store unavailable")

// Record is the backup store's view of a wallet. A nil LastUpdated
// means the store has no record for the wallet.
type Record struct {
	TotalDeposited float64    `json:"totalDeposited"`
	LastUpdated    *time.Time `json:"lastUpdated"`
}

// Exists reports whether the remote store actually holds a record.
func (r Record) Exists() bool {
	return r.LastUpdated != nil
}

// Config holds backup client configuration.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	MaxRetries     int
	UserAgent      string
}

// Client talks to the remote deposit-backup REST service. All calls run
// through a circuit breaker so a dead backend degrades to fast local
// failures instead of piling up 30s timeouts.
type Client struct {
	config  Config
	pool    *httpclient.Pool
	breaker *gobreaker.CircuitBreaker
}

// New creates a backup client, filling config defaults.
func New(config Config) *Client {
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 15 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "basisledger/1.0 (deposit-backup)"
	}

	pool := httpclient.NewPool(httpclient.Config{
		MaxConcurrency: 4,
		RequestTimeout: config.RequestTimeout,
		MaxRetries:     config.MaxRetries,
		BackoffBase:    500 * time.Millisecond,
		BackoffMax:     5 * time.Second,
		UserAgent:      config.UserAgent,
	})

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "backup-store",
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("backup store circuit state changed")
		},
	})

	return &Client{config: config, pool: pool, breaker: breaker}
}

// GetDeposits fetches the remote record for a wallet. A 404 or a body
// with lastUpdated=null both mean "no record" (zero Record, nil error).
func (c *Client) GetDeposits(ctx context.Context, wallet string) (Record, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequest(http.MethodGet, c.depositsURL(wallet, ""), nil)
		if err != nil {
			return Record{}, err
		}
		resp, err := c.pool.Do(ctx, req)
		if err != nil {
			return Record{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return Record{}, nil
		}
		if resp.StatusCode != http.StatusOK {
			return Record{}, fmt.Errorf("HTTP %d", resp.StatusCode)
		}

		var rec Record
		if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
			return Record{}, fmt.Errorf("decode record: %w", err)
		}
		return rec, nil
	})
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return result.(Record), nil
}

// PushDeposit records an additive deposit remotely. The transaction
// hash keys the amount server-side, so a retried push is idempotent.
func (c *Client) PushDeposit(ctx context.Context, wallet string, amount float64, txHash string) error {
	body := map[string]interface{}{"amount": amount}
	if txHash != "" {
		body["txHash"] = txHash
	}
	return c.post(ctx, c.depositsURL(wallet, ""), body)
}

// PushWithdrawal applies the withdrawal basis rule server-side.
func (c *Client) PushWithdrawal(ctx context.Context, wallet string, withdrawnValue, valueBefore float64) error {
	return c.post(ctx, c.depositsURL(wallet, "/withdraw"), map[string]interface{}{
		"withdrawnValue":           withdrawnValue,
		"totalValueBeforeWithdraw": valueBefore,
	})
}

// SyncTotal pushes a locally-known-correct total as an idempotent
// overwrite (migration/resync path).
func (c *Client) SyncTotal(ctx context.Context, wallet string, totalDeposited float64) error {
	return c.post(ctx, c.depositsURL(wallet, ""), map[string]interface{}{
		"totalDeposited": totalDeposited,
		"sync":           true,
	})
}

func (c *Client) post(ctx context.Context, url string, body map[string]interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode body: %w", err)
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.pool.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(snippet))
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (c *Client) depositsURL(wallet, suffix string) string {
	return fmt.Sprintf("%s/api/deposits/%s%s",
		strings.TrimRight(c.config.BaseURL, "/"), strings.ToLower(wallet), suffix)
}
