package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/lumenlog/lumen/internal/dedup"
	"github.com/lumenlog/lumen/internal/observability"
	"github.com/lumenlog/lumen/internal/storage"
)

// Publisher fans accepted events out to a message broker. Nil disables
// fan-out.
type Publisher interface {
	PublishBatch(ctx context.Context, appID string, events []string) (int, error)
}

// identityRequest is the body of heartbeat and ack requests.
type identityRequest struct {
	AppID string `json:"app_id"`
}

// bulkRequest is the body of a bulk event delivery.
type bulkRequest struct {
	AppID    string   `json:"app_id"`
	Events   []string `json:"events"`
	Counters struct {
		Events   int64 `json:"events"`
		Payloads int64 `json:"payloads"`
	} `json:"counters"`
}

// Server is the collector HTTP service. It terminates connector traffic:
// heartbeats, bulk event deliveries, and final acknowledgments.
type Server struct {
	cfg       Config
	store     *storage.Store
	dedup     *dedup.Filter
	publisher Publisher
	metrics   *observability.Metrics
	limiter   *rate.Limiter
	logger    *slog.Logger

	httpServer *http.Server
}

// NewServer wires the collector service. publisher may be nil when NATS
// fan-out is disabled.
func NewServer(
	cfg Config,
	store *storage.Store,
	filter *dedup.Filter,
	publisher Publisher,
	obs *observability.Module,
	logger *slog.Logger,
) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	metrics, err := observability.NewMetrics(obs.Meter())
	if err != nil {
		return nil, fmt.Errorf("create metrics: %w", err)
	}

	s := &Server{
		cfg:       cfg,
		store:     store,
		dedup:     filter,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger.With("component", "collector"),
	}

	if cfg.RateLimit.Enabled {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", obs.MetricsHandler())
	mux.HandleFunc("POST /heartbeat", s.handleHeartbeat)
	mux.HandleFunc("POST /ack", s.handleAck)
	mux.HandleFunc("POST /bulk", s.handleBulk)

	handler := observability.HTTPMetrics(metrics)(s.throttle(s.authenticate(mux)))

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	if cfg.APIKey == "" {
		s.logger.Warn("no API key configured, accepting unauthenticated requests")
	}

	return s, nil
}

// Handler returns the server's root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving. It blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("collector listening", "addr", s.cfg.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// skipAuth lists paths exempt from authentication and rate limiting.
func skipAuth(path string) bool {
	return path == "/healthz" || path == "/metrics"
}

// authenticate rejects requests whose X-API-Key does not match the
// configured key. An empty configured key disables the check.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey != "" && !skipAuth(r.URL.Path) {
			if r.Header.Get("X-API-Key") != s.cfg.APIKey {
				writeError(w, http.StatusUnauthorized, "unknown API key")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// throttle applies the shared token bucket to ingest paths.
func (s *Server) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !skipAuth(r.URL.Path) {
			if !s.limiter.Allow() {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.AppID == "" {
		writeError(w, http.StatusBadRequest, "app_id is required")
		return
	}

	if err := s.store.TouchHeartbeat(r.Context(), req.AppID); err != nil {
		s.logger.Error("failed to record heartbeat", "app_id", req.AppID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to record heartbeat")
		return
	}

	s.metrics.Heartbeats.Add(r.Context(), 1)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAck(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.AppID == "" {
		writeError(w, http.StatusBadRequest, "app_id is required")
		return
	}

	if err := s.store.MarkAcked(r.Context(), req.AppID); err != nil {
		s.logger.Error("failed to record ack", "app_id", req.AppID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to record ack")
		return
	}

	s.metrics.Acks.Add(r.Context(), 1)
	s.logger.Info("app finalized", "app_id", req.AppID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.AppID == "" {
		writeError(w, http.StatusBadRequest, "app_id is required")
		return
	}
	if len(req.Events) == 0 {
		writeError(w, http.StatusBadRequest, "events must not be empty")
		return
	}

	// The connector's payload counter identifies a payload across retries:
	// a replay of a stored payload carries the same counter value.
	key := fmt.Sprintf("%s:%d", req.AppID, req.Counters.Payloads)
	if s.dedup.Seen(key) {
		s.metrics.DuplicatePayloads.Add(r.Context(), 1)
		s.logger.Debug("duplicate payload dropped", "app_id", req.AppID, "payload_seq", req.Counters.Payloads)
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}

	if err := s.store.InsertBatch(r.Context(), req.AppID, req.Counters.Payloads, req.Events); err != nil {
		s.logger.Error("failed to store events", "app_id", req.AppID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store events")
		return
	}

	if s.publisher != nil {
		if _, err := s.publisher.PublishBatch(r.Context(), req.AppID, req.Events); err != nil {
			// Events are already persisted; fan-out failures must not make
			// the connector retry the payload.
			s.logger.Error("failed to publish events", "app_id", req.AppID, "error", err)
		}
	}

	s.metrics.PayloadsReceived.Add(r.Context(), 1)
	s.metrics.EventsReceived.Add(r.Context(), int64(len(req.Events)))
	s.metrics.PayloadSize.Record(r.Context(), int64(len(req.Events)))

	s.logger.Debug("payload stored",
		"app_id", req.AppID,
		"events", len(req.Events),
		"payload_seq", req.Counters.Payloads,
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "accepted",
		"count":  len(req.Events),
	})
}

// decode reads a JSON body into dst, writing a 400 response on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError responds with a {"message": ...} body, the shape the connector
// surfaces in its delivery failure logs.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
