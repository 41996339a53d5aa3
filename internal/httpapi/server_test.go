package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sproutfi/basisledger/internal/backup"
	"github.com/sproutfi/basisledger/internal/basiscache"
	"github.com/sproutfi/basisledger/internal/engine"
	"github.com/sproutfi/basisledger/internal/outbox"
	"github.com/sproutfi/basisledger/internal/store"
)

const wallet = "0x1111111111111111111111111111111111111111"

type stubBackup struct{}

func (stubBackup) GetDeposits(context.Context, string) (backup.Record, error) {
	return backup.Record{}, nil
}
func (stubBackup) PushDeposit(context.Context, string, float64, string) error  { return nil }
func (stubBackup) PushWithdrawal(context.Context, string, float64, float64) error { return nil }
func (stubBackup) SyncTotal(context.Context, string, float64) error            { return nil }

func newTestServer(t *testing.T) (*Server, *engine.Engine) {
	t.Helper()
	mem := store.NewMemoryStore()
	cache := basiscache.NewMemoryCache(5 * time.Minute)
	t.Cleanup(cache.Stop)

	remote := stubBackup{}
	queue := outbox.New(mem, remote, nil)
	eng := engine.New(engine.Config{FeePercent: 15}, mem, cache, remote, queue, nil, nil)
	return NewServer(eng, queue, nil), eng
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)
	return rr
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	rr := doRequest(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestDepositThenBasis(t *testing.T) {
	s, eng := newTestServer(t)

	rr := doRequest(t, s, http.MethodPost, "/v1/wallets/"+wallet+"/deposits",
		`{"amount": 360, "txHash": "0xabc"}`)
	require.Equal(t, http.StatusAccepted, rr.Code)
	eng.WaitForPushes()

	rr = doRequest(t, s, http.MethodGet, "/v1/wallets/"+wallet+"/basis", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Wallet         string  `json:"wallet"`
		TotalDeposited float64 `json:"totalDeposited"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 360.0, resp.TotalDeposited)
}

func TestQuoteEndpoint(t *testing.T) {
	s, eng := newTestServer(t)

	doRequest(t, s, http.MethodPost, "/v1/wallets/"+wallet+"/deposits", `{"amount": 100}`)
	eng.WaitForPushes()

	rr := doRequest(t, s, http.MethodGet, "/v1/wallets/"+wallet+"/quote?value=105", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var quote struct {
		Yield        float64 `json:"yield"`
		Fee          float64 `json:"fee"`
		UserReceives float64 `json:"userReceives"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &quote))
	assert.InDelta(t, 5.0, quote.Yield, 1e-4)
	assert.InDelta(t, 0.75, quote.Fee, 1e-4)
	assert.InDelta(t, 104.25, quote.UserReceives, 1e-4)
}

func TestQuoteRequiresValue(t *testing.T) {
	s, _ := newTestServer(t)
	rr := doRequest(t, s, http.MethodGet, "/v1/wallets/"+wallet+"/quote", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestInvalidAddressIsBadRequest(t *testing.T) {
	s, _ := newTestServer(t)
	rr := doRequest(t, s, http.MethodPost, "/v1/wallets/garbage/deposits", `{"amount": 10}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestInvalidBodyIsBadRequest(t *testing.T) {
	s, _ := newTestServer(t)
	rr := doRequest(t, s, http.MethodPost, "/v1/wallets/"+wallet+"/deposits", `{broken`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWithdrawalEndpoint(t *testing.T) {
	s, eng := newTestServer(t)

	doRequest(t, s, http.MethodPost, "/v1/wallets/"+wallet+"/deposits", `{"amount": 100}`)
	eng.WaitForPushes()

	rr := doRequest(t, s, http.MethodPost, "/v1/wallets/"+wallet+"/withdrawals",
		`{"withdrawnValue": 60, "totalValueBeforeWithdraw": 120}`)
	require.Equal(t, http.StatusAccepted, rr.Code)

	rr = doRequest(t, s, http.MethodGet, "/v1/wallets/"+wallet+"/basis", "")
	var resp struct {
		TotalDeposited float64 `json:"totalDeposited"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.InDelta(t, 50.0, resp.TotalDeposited, 1e-4)
}

func TestResyncEndpoint(t *testing.T) {
	s, eng := newTestServer(t)

	doRequest(t, s, http.MethodPost, "/v1/wallets/"+wallet+"/deposits", `{"amount": 100}`)
	eng.WaitForPushes()

	rr := doRequest(t, s, http.MethodPost, "/v1/wallets/"+wallet+"/resync", "")
	assert.Equal(t, http.StatusAccepted, rr.Code)
}

func TestFlushEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	rr := doRequest(t, s, http.MethodPost, "/v1/sync/flush", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var stats outbox.FlushStats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.Zero(t, stats.Attempted)
}
