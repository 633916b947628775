package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/DYBL777/DYBL-Crypto42/internal/command"
	"github.com/DYBL777/DYBL-Crypto42/internal/core"
	"github.com/DYBL777/DYBL-Crypto42/internal/engine"
	"github.com/DYBL777/DYBL-Crypto42/internal/ingestion"
	"github.com/DYBL777/DYBL-Crypto42/internal/observability"
	"github.com/DYBL777/DYBL-Crypto42/internal/query"
)

// SubmitFunc hands a parsed command to the core goroutine and blocks for
// its result.
type SubmitFunc func(ctx context.Context, cmd command.Command) (core.Result, error)

// StatusFunc reads the live ledger status from the core goroutine.
type StatusFunc func(ctx context.Context) (query.StatusResponse, error)

// HTTPServer is the JSON API: command submission for low-volume callers
// (the NATS surface handles the bulk), plus read-side queries and health.
type HTTPServer struct {
	addr    string
	submit  SubmitFunc
	status  StatusFunc
	queries *query.QueryService
	health  *observability.HealthChecker
	metrics *observability.Metrics
	log     zerolog.Logger
}

func NewHTTPServer(
	addr string,
	submit SubmitFunc,
	status StatusFunc,
	queries *query.QueryService,
	health *observability.HealthChecker,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *HTTPServer {
	return &HTTPServer{
		addr:    addr,
		submit:  submit,
		status:  status,
		queries: queries,
		health:  health,
		metrics: metrics,
		log:     log,
	}
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *HTTPServer) Run(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/commands/{type}", s.handleSubmit)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/buckets", s.handleBuckets)
	mux.HandleFunc("GET /v1/operations", s.handleListOperations)
	mux.HandleFunc("GET /v1/operations/{sequence}", s.handleGetOperation)
	mux.HandleFunc("GET /v1/tickets/{id}/operations", s.handleTicketOperations)
	mux.HandleFunc("GET /v1/integrity", s.handleIntegrity)

	mux.HandleFunc("GET /healthz", s.health.LivenessHandler)
	mux.HandleFunc("GET /readyz", s.health.ReadinessHandler)
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	s.log.Info().Str("addr", s.addr).Msg("http server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

type submitResponse struct {
	Duplicate bool  `json:"duplicate"`
	Done      bool  `json:"done,omitempty"`
	Amount    int64 `json:"amount,omitempty"`
}

func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	commandType := r.PathValue("type")

	body := http.MaxBytesReader(w, r.Body, 1<<20)
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	raw := ingestion.RawCommand{
		Subject:   "http",
		Data:      data,
		Timestamp: time.Now(),
	}
	cmd, err := ingestion.ParseRawCommand(raw, commandType)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := s.submit(r.Context(), cmd)
	if err != nil {
		s.writeError(w, statusForError(err), err)
		return
	}

	s.writeJSON(w, http.StatusOK, submitResponse{
		Duplicate: res.Duplicate,
		Done:      res.Done,
		Amount:    res.Amount,
	})
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.observe("status", func() error {
		st, err := s.status(r.Context())
		if err != nil {
			s.writeError(w, http.StatusServiceUnavailable, err)
			return err
		}
		s.writeJSON(w, http.StatusOK, st)
		return nil
	})
}

func (s *HTTPServer) handleBuckets(w http.ResponseWriter, r *http.Request) {
	s.observe("buckets", func() error {
		res, err := s.queries.GetBucketBalances(r.Context())
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return err
		}
		s.writeJSON(w, http.StatusOK, res)
		return nil
	})
}

func (s *HTTPServer) handleListOperations(w http.ResponseWriter, r *http.Request) {
	s.observe("operations", func() error {
		var commandType *string
		if ct := r.URL.Query().Get("type"); ct != "" {
			commandType = &ct
		}
		limit := parseLimit(r, 100)
		after := parseAfter(r)

		ops, err := s.queries.ListOperations(r.Context(), commandType, limit, after)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return err
		}
		s.writeJSON(w, http.StatusOK, ops)
		return nil
	})
}

func (s *HTTPServer) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	s.observe("operation", func() error {
		seq, err := strconv.ParseInt(r.PathValue("sequence"), 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return err
		}

		op, err := s.queries.GetOperation(r.Context(), seq)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return err
		}
		if op == nil {
			s.writeError(w, http.StatusNotFound, errors.New("operation not found"))
			return nil
		}
		s.writeJSON(w, http.StatusOK, op)
		return nil
	})
}

func (s *HTTPServer) handleTicketOperations(w http.ResponseWriter, r *http.Request) {
	s.observe("ticket_operations", func() error {
		ticketID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return err
		}
		limit := parseLimit(r, 100)
		after := parseAfter(r)

		ops, err := s.queries.GetTicketOperations(r.Context(), ticketID, limit, after)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return err
		}
		s.writeJSON(w, http.StatusOK, ops)
		return nil
	})
}

func (s *HTTPServer) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	s.observe("integrity", func() error {
		report, err := s.queries.VerifyIntegrity(r.Context())
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return err
		}
		s.writeJSON(w, http.StatusOK, report)
		return nil
	})
}

// --- helpers ---

func statusForError(err error) int {
	switch {
	case errors.Is(err, engine.ErrTicketNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrRetryable):
		return http.StatusServiceUnavailable
	case errors.Is(err, engine.ErrWrongPhase),
		errors.Is(err, engine.ErrTooEarly),
		errors.Is(err, engine.ErrAlreadyDone),
		errors.Is(err, engine.ErrClosed),
		errors.Is(err, engine.ErrPickLocked),
		errors.Is(err, engine.ErrNotFounder),
		errors.Is(err, engine.ErrDrawCap),
		errors.Is(err, engine.ErrBadProposal):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func (s *HTTPServer) observe(endpoint string, fn func() error) {
	start := time.Now()
	err := fn()
	if s.metrics != nil {
		s.metrics.QueryRequests.WithLabelValues(endpoint).Inc()
		s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		if err != nil {
			s.metrics.QueryErrors.WithLabelValues(endpoint).Inc()
		}
	}
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("write response")
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func parseLimit(r *http.Request, def int) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			return n
		}
	}
	return def
}

func parseAfter(r *http.Request) *int64 {
	if v := r.URL.Query().Get("after"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return &n
		}
	}
	return nil
}
