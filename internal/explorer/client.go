package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/sproutfi/basisledger/internal/httpclient"
	"github.com/sproutfi/basisledger/internal/models"
)

// ErrUnavailable marks a transient transfer-history failure (network
// error, timeout, non-2xx, explorer-side error). Callers must treat it
// as "try again / fall back", never as "empty history".
var ErrUnavailable = errors.New("transfer history source unavailable")

// Config holds explorer client configuration.
type Config struct {
	BaseURL        string
	TokenContract  string
	APIKey         string
	RequestTimeout time.Duration
	RateLimitRPS   float64
	MaxRetries     int
	UserAgent      string
}

// Client fetches deposit-token transfer history from a block-explorer
// style API (module=account&action=tokentx).
type Client struct {
	config  Config
	pool    *httpclient.Pool
	limiter *rate.Limiter
}

// New creates an explorer client, filling config defaults.
func New(config Config) *Client {
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 30 * time.Second
	}
	if config.RateLimitRPS == 0 {
		config.RateLimitRPS = 4.0 // free tier limit with headroom
	}
	if config.UserAgent == "" {
		config.UserAgent = "basisledger/1.0 (transfer-history)"
	}
	config.TokenContract = strings.ToLower(config.TokenContract)

	pool := httpclient.NewPool(httpclient.Config{
		MaxConcurrency: 2,
		RequestTimeout: config.RequestTimeout,
		MaxRetries:     config.MaxRetries,
		BackoffBase:    time.Second,
		BackoffMax:     10 * time.Second,
		UserAgent:      config.UserAgent,
	})

	return &Client{
		config:  config,
		pool:    pool,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimitRPS), 1),
	}
}

type tokenTxResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type tokenTxEntry struct {
	BlockNumber  string `json:"blockNumber"`
	TimeStamp    string `json:"timeStamp"`
	Hash         string `json:"hash"`
	From         string `json:"from"`
	To           string `json:"to"`
	Value        string `json:"value"`
	TokenDecimal string `json:"tokenDecimal"`
}

// TokenTransfers returns all deposit-token transfers touching the wallet,
// sorted ascending by block number. An empty history is a valid result
// with a nil error; any transport or explorer failure wraps
// ErrUnavailable.
func (c *Client) TokenTransfers(ctx context.Context, wallet string) ([]models.TransferEvent, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api?%s", strings.TrimRight(c.config.BaseURL, "/"), c.queryParams(wallet))
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.pool.Do(ctx, req)
	if err != nil {
		log.Warn().Err(err).Str("wallet", wallet).Msg("transfer history fetch failed")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	var payload tokenTxResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	if payload.Status != "1" {
		// status "0" with "No transactions found" is a legitimate empty
		// history, not a failure.
		if strings.Contains(strings.ToLower(payload.Message), "no transactions found") {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: explorer error: %s", ErrUnavailable, payload.Message)
	}

	var entries []tokenTxEntry
	if err := json.Unmarshal(payload.Result, &entries); err != nil {
		return nil, fmt.Errorf("%w: decode result: %v", ErrUnavailable, err)
	}

	events := make([]models.TransferEvent, 0, len(entries))
	for _, entry := range entries {
		events = append(events, parseEntry(entry))
	}

	// The request asks for sort=asc, but replay order is
	// correctness-critical, so never trust the source on it.
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].BlockNumber < events[j].BlockNumber
	})
	return events, nil
}

func (c *Client) queryParams(wallet string) string {
	params := url.Values{}
	params.Set("module", "account")
	params.Set("action", "tokentx")
	params.Set("address", wallet)
	params.Set("contractaddress", c.config.TokenContract)
	params.Set("startblock", "0")
	params.Set("endblock", "99999999")
	params.Set("sort", "asc")
	if c.config.APIKey != "" {
		params.Set("apikey", c.config.APIKey)
	}
	return params.Encode()
}

func parseEntry(entry tokenTxEntry) models.TransferEvent {
	block, _ := strconv.ParseUint(entry.BlockNumber, 10, 64)
	seconds, _ := strconv.ParseInt(entry.TimeStamp, 10, 64)
	decimals, err := strconv.Atoi(entry.TokenDecimal)
	if err != nil {
		decimals = 6 // deposit token default
	}
	return models.TransferEvent{
		BlockNumber:   block,
		Timestamp:     time.Unix(seconds, 0).UTC(),
		TxHash:        entry.Hash,
		From:          strings.ToLower(entry.From),
		To:            strings.ToLower(entry.To),
		RawValue:      entry.Value,
		TokenDecimals: decimals,
	}
}
