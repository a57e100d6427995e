// Package api provides the HTTP server of the reference remote progression
// service: the authoritative per-user record that devices hydrate from and
// push to.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/biszaal/expenzez-sub007/internal/domain"
	"github.com/biszaal/expenzez-sub007/internal/health"
	"github.com/biszaal/expenzez-sub007/internal/infra/metrics"
)

// maxRecordBytes bounds a PUT body.
const maxRecordBytes = 1 << 20

// RecordStore persists authoritative progression records.
type RecordStore interface {
	GetRecord(ctx context.Context, userID string) (domain.RemoteRecord, error)
	PutRecord(ctx context.Context, userID string, rec domain.RemoteRecord) error
}

// Server is the progression HTTP API server.
type Server struct {
	records        RecordStore
	checker        *health.Checker
	token          string
	metricsEnabled bool
	logger         *slog.Logger
}

// NewServer creates a new API server over records.
func NewServer(records RecordStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{records: records, logger: logger.With("component", "api")}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetHealth sets the checker behind /health/details.
func (s *Server) SetHealth(c *health.Checker) { s.checker = c }

// RequireToken makes the record routes demand "Authorization: Bearer <token>".
func (s *Server) RequireToken(token string) { s.token = token }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	})
	r.Get("/health/details", s.handleHealthDetails)

	r.Route("/v1/users/{userID}/progression", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/", s.handleGetRecord)
		r.Put("/", s.handlePutRecord)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// ─── Handlers ───────────────────────────────────────────────────────────────

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	rec, err := s.records.GetRecord(r.Context(), userID)
	switch {
	case errors.Is(err, domain.ErrProgressionNotFound):
		s.served(r, http.StatusNotFound)
		writeError(w, http.StatusNotFound, "progression not found")
		return
	case err != nil:
		s.logger.Error("get record failed", "user", userID, "error", err,
			"request_id", middleware.GetReqID(r.Context()))
		s.served(r, http.StatusInternalServerError)
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}

	s.served(r, http.StatusOK)
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handlePutRecord(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var rec domain.RemoteRecord
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRecordBytes))
	if err := dec.Decode(&rec); err != nil {
		s.served(r, http.StatusBadRequest)
		writeError(w, http.StatusBadRequest, "invalid record: "+err.Error())
		return
	}
	if err := validateRecord(userID, rec); err != nil {
		s.served(r, http.StatusBadRequest)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}

	if err := s.records.PutRecord(r.Context(), userID, rec); err != nil {
		s.logger.Error("put record failed", "user", userID, "error", err,
			"request_id", middleware.GetReqID(r.Context()))
		s.served(r, http.StatusInternalServerError)
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}

	s.logger.Debug("record stored", "user", userID,
		"points", rec.Progression.TotalPoints, "achievements", len(rec.Achievements))
	s.served(r, http.StatusNoContent)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealthDetails(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		writeJSON(w, http.StatusOK, map[string]any{"healthy": true, "checks": []health.Status{}})
		return
	}
	status := http.StatusOK
	healthy := s.checker.IsHealthy()
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"healthy": healthy,
		"checks":  s.checker.Statuses(),
	})
}

func (s *Server) served(r *http.Request, status int) {
	metrics.RecordsServed.WithLabelValues(r.Method, strconv.Itoa(status)).Inc()
}

// validateRecord rejects records that break the progression invariants.
func validateRecord(userID string, rec domain.RemoteRecord) error {
	if rec.Progression.TotalPoints < 0 {
		return errors.New("total_points must not be negative")
	}
	seen := make(map[string]bool, len(rec.Achievements))
	for _, a := range rec.Achievements {
		if a.AchievementID == "" {
			return errors.New("achievement without id")
		}
		if seen[a.AchievementID] {
			return errors.New("duplicate achievement " + a.AchievementID)
		}
		if a.UserID != "" && a.UserID != userID {
			return errors.New("achievement belongs to another user")
		}
		seen[a.AchievementID] = true
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    "error",
		},
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
			s.served(r, http.StatusUnauthorized)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
