package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sproutfi/basisledger/internal/engine"
	"github.com/sproutfi/basisledger/internal/outbox"
	"github.com/sproutfi/basisledger/internal/telemetry"
)

// Server exposes the reconciliation engine over HTTP for the serve
// command. The engine itself stays an ordinary library; this is just
// packaging.
type Server struct {
	engine  *engine.Engine
	queue   *outbox.Queue
	metrics *telemetry.Metrics
	router  *mux.Router
}

// NewServer builds the router. metrics may be nil (no /metrics route).
func NewServer(eng *engine.Engine, queue *outbox.Queue, metrics *telemetry.Metrics) *Server {
	s := &Server{engine: eng, queue: queue, metrics: metrics, router: mux.NewRouter()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/wallets/{wallet}/basis", s.handleBasis).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/wallets/{wallet}/quote", s.handleQuote).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/wallets/{wallet}/deposits", s.handleDeposit).Methods(http.MethodPost)
	s.router.HandleFunc("/v1/wallets/{wallet}/withdrawals", s.handleWithdrawal).Methods(http.MethodPost)
	s.router.HandleFunc("/v1/wallets/{wallet}/reconstruct", s.handleReconstruct).Methods(http.MethodPost)
	s.router.HandleFunc("/v1/wallets/{wallet}/resync", s.handleResync).Methods(http.MethodPost)
	s.router.HandleFunc("/v1/sync/flush", s.handleFlush).Methods(http.MethodPost)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBasis(w http.ResponseWriter, r *http.Request) {
	wallet := mux.Vars(r)["wallet"]
	basis, err := s.engine.TotalDeposited(r.Context(), wallet)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"wallet":         wallet,
		"totalDeposited": basis,
	})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	wallet := mux.Vars(r)["wallet"]
	value, err := strconv.ParseFloat(r.URL.Query().Get("value"), 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "value query parameter is required"})
		return
	}

	quote, err := s.engine.Quote(r.Context(), wallet, value)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

type depositRequest struct {
	Amount float64 `json:"amount"`
	TxHash string  `json:"txHash"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	wallet := mux.Vars(r)["wallet"]

	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	if err := s.engine.RecordDeposit(r.Context(), wallet, req.Amount, req.TxHash); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

type withdrawalRequest struct {
	WithdrawnValue           float64 `json:"withdrawnValue"`
	TotalValueBeforeWithdraw float64 `json:"totalValueBeforeWithdraw"`
}

func (s *Server) handleWithdrawal(w http.ResponseWriter, r *http.Request) {
	wallet := mux.Vars(r)["wallet"]

	var req withdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	if err := s.engine.RecordWithdrawal(r.Context(), wallet, req.WithdrawnValue, req.TotalValueBeforeWithdraw); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

func (s *Server) handleReconstruct(w http.ResponseWriter, r *http.Request) {
	wallet := mux.Vars(r)["wallet"]

	basis, err := s.engine.ReconstructBasis(r.Context(), wallet, true)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"wallet":             wallet,
		"reconstructedBasis": basis,
		"reconstructedAt":    time.Now().UTC(),
	})
}

func (s *Server) handleResync(w http.ResponseWriter, r *http.Request) {
	wallet := mux.Vars(r)["wallet"]

	if err := s.engine.Resync(r.Context(), wallet); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "synced"})
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queue.Flush(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, engine.ErrInvalidInput) {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode HTTP response")
	}
}
