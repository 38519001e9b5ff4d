// Package api exposes the pipeline over a small HTTP surface. Notable
// routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/permits?url= for permit extraction.
//   - GET /v1/pdf?url= for PDF analysis.
//   - GET /v1/systems/... for third-party permitting system access.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/permitdesk/permit-pipeline/internal/breaker"
	"github.com/permitdesk/permit-pipeline/internal/integrator"
	"github.com/permitdesk/permit-pipeline/internal/pipeline"
	"github.com/permitdesk/permit-pipeline/internal/telemetry"
)

// Server wires HTTP handlers to the pipeline service.
type Server struct {
	router  chi.Router
	service *pipeline.Service
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(service *pipeline.Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{service: service, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(telemetry.Middleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/permits", s.getPermits)
		r.Get("/pdf", s.getPDF)
		r.Route("/systems", func(r chi.Router) {
			r.Get("/detect", s.detectSystems)
			r.Route("/{system}", func(r chi.Router) {
				r.Get("/permits", s.systemPermits)
				r.Get("/search", s.systemSearch)
				r.Get("/applications/{application_id}", s.applicationStatus)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// getPermits handles GET /v1/permits?url= or ?address=. An address goes
// through jurisdiction resolution first.
func (s *Server) getPermits(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		address := r.URL.Query().Get("address")
		if address == "" {
			writeError(w, http.StatusBadRequest, "url or address parameter required")
			return
		}
		resolved, err := s.service.ResolveJurisdiction(r.Context(), address)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		target = resolved
	}

	data, err := s.service.FetchAndExtract(r.Context(), target)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) getPDF(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		writeError(w, http.StatusBadRequest, "url parameter required")
		return
	}
	result, err := s.service.AnalyzePDF(r.Context(), target)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) detectSystems(w http.ResponseWriter, r *http.Request) {
	client := s.service.Integrator()
	if client == nil {
		writeError(w, http.StatusServiceUnavailable, "no permitting systems configured")
		return
	}
	target := r.URL.Query().Get("url")
	if target == "" {
		writeError(w, http.StatusBadRequest, "url parameter required")
		return
	}
	detections, err := client.DetectSystems(r.Context(), target)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"systems": detections})
}

func (s *Server) systemPermits(w http.ResponseWriter, r *http.Request) {
	client := s.service.Integrator()
	if client == nil {
		writeError(w, http.StatusServiceUnavailable, "no permitting systems configured")
		return
	}
	filters := make(map[string]string)
	for key, vals := range r.URL.Query() {
		if len(vals) > 0 {
			filters[key] = vals[0]
		}
	}
	data, err := client.FetchPermitData(r.Context(), chi.URLParam(r, "system"), filters)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) systemSearch(w http.ResponseWriter, r *http.Request) {
	client := s.service.Integrator()
	if client == nil {
		writeError(w, http.StatusServiceUnavailable, "no permitting systems configured")
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q parameter required")
		return
	}
	data, err := client.SearchPermits(r.Context(), chi.URLParam(r, "system"), query)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) applicationStatus(w http.ResponseWriter, r *http.Request) {
	client := s.service.Integrator()
	if client == nil {
		writeError(w, http.StatusServiceUnavailable, "no permitting systems configured")
		return
	}
	status, err := client.GetApplicationStatus(
		r.Context(),
		chi.URLParam(r, "system"),
		chi.URLParam(r, "application_id"),
	)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// writeServiceError maps pipeline errors onto HTTP statuses. Breaker-open is
// 503 with a Retry-After hint since it is routine, not a defect.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var unresolvable pipeline.ErrUnresolvable
	var unknownSystem integrator.ErrUnknownSystem
	switch {
	case errors.As(err, &unresolvable):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &unknownSystem):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, breaker.ErrOpen):
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusServiceUnavailable, "dependency cooling down, try again later")
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusBadRequest, "request canceled")
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
