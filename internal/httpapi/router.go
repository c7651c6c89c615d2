// Package httpapi is the outward HTTP surface of the gateway: the
// /bot<TOKEN>/<METHOD> route plus health, status, and metrics endpoints.
// Every bot-route reply is the Bot API envelope {ok, result?, error_code?,
// description?} regardless of outcome.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/eventflow-im/botapi-bridge/internal/botapi"
)

// requestTimeout bounds one bot-route request end to end, long poll
// included.
const requestTimeout = 60 * time.Second

// Processor routes an authenticated method call. Implemented by
// botapi.Dispatcher; faked in tests.
type Processor interface {
	Process(ctx context.Context, token, method string, params map[string]any) botapi.Response
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	Processor Processor
	Brand     string
}

// Routes creates the HTTP router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(CorrelationMiddleware)
	r.Use(Metrics)
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":     true,
			"result": map[string]string{"name": s.Brand, "status": "running"},
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(defaultRateLimit))
		r.Get("/bot*", s.handleBot)
		r.Post("/bot*", s.handleBot)
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeEnvelope(w, botapi.Fail(404, "Not Found"))
	})

	log.Info().Msg("HTTP routes registered")
	return r
}

// handleBot parses /bot<TOKEN>/<METHOD>, extracts parameters from whatever
// transport the caller used, and forwards to the dispatcher.
func (s *Server) handleBot(w http.ResponseWriter, r *http.Request) {
	// The token may contain escaped characters; split on the escaped form
	// and unescape the token segment alone.
	rest := strings.TrimPrefix(r.URL.EscapedPath(), "/bot")
	rest = strings.Trim(rest, "/")
	if rest == "" {
		writeEnvelope(w, botapi.Fail(400, "Invalid request format"))
		return
	}

	parts := strings.Split(rest, "/")
	token, err := url.PathUnescape(parts[0])
	if err != nil {
		writeEnvelope(w, botapi.Fail(400, "Invalid request format"))
		return
	}
	method := ""
	if len(parts) > 1 {
		method = parts[1]
	}
	if method == "" {
		writeEnvelope(w, botapi.Fail(400, "Method not specified"))
		return
	}

	params := extractParams(r)

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	resp := s.Processor.Process(ctx, token, method, params)
	writeEnvelope(w, resp)
}

// writeEnvelope maps the envelope to an HTTP status: 401 only for
// authentication failures, 200 for everything else including protocol-level
// errors, matching the upstream Bot API behavior.
func writeEnvelope(w http.ResponseWriter, resp botapi.Response) {
	status := http.StatusOK
	switch resp.ErrorCode {
	case 401:
		status = http.StatusUnauthorized
	case 404:
		status = http.StatusNotFound
	}
	writeJSON(w, status, resp)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode json response")
	}
}
