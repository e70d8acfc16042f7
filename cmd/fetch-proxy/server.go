package main

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Sternrassler/resilient-fetch/pkg/auth"
	"github.com/Sternrassler/resilient-fetch/pkg/client"
	"github.com/Sternrassler/resilient-fetch/pkg/logging"
	"github.com/Sternrassler/resilient-fetch/pkg/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const requestIDHeader = "X-Request-ID"

// server exposes a fetch client over HTTP.
type server struct {
	client     *client.Client
	limiter    *ipRateLimiter
	adminToken string
	logger     zerolog.Logger
}

// newServer builds the gateway. An empty adminToken disables DELETE /cache.
func newServer(c *client.Client, limiter *ipRateLimiter, adminToken string, logger zerolog.Logger) *server {
	return &server{client: c, limiter: limiter, adminToken: adminToken, logger: logger}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.Handle("GET /fetch", s.rateLimit(http.HandlerFunc(s.fetchHandler)))
	mux.Handle("DELETE /cache", s.rateLimit(http.HandlerFunc(s.clearCacheHandler)))
	return s.requestID(mux)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// fetchHandler serves /fetch?path=... with the JSON envelope of the response.
// An incoming bearer token is forwarded and takes part in the cache key.
// Absolute URLs are refused: the configured credentials only go to the base
// URL's host.
func (s *server) fetchHandler(w http.ResponseWriter, r *http.Request) {
	logger := s.requestLogger(w, r)

	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, &client.Response{Error: "missing path parameter"})
		return
	}
	if client.IsAbsoluteURL(path) {
		logger.Warn().Str("path", path).Msg("Absolute URL rejected")
		writeJSON(w, http.StatusBadRequest, &client.Response{Error: "path must be relative to the base url"})
		return
	}

	opts := &client.Options{}
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		opts.TokenProvider = auth.Static(token)
	}

	start := time.Now()
	resp, err := s.client.Get(r.Context(), path, opts)
	if err != nil {
		var cfgErr *client.ConfigError
		status := http.StatusInternalServerError
		if errors.As(err, &cfgErr) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, &client.Response{Error: err.Error()})
		return
	}

	w.Header().Set("X-Cache", cacheStatus(resp))

	status := http.StatusOK
	if !resp.OK {
		status = http.StatusBadGateway
	}

	logger.Info().
		Str("path", path).
		Bool("ok", resp.OK).
		Int(logging.FieldStatus, resp.Status).
		Bool("from_cache", resp.FromCache).
		Bool(logging.FieldStale, resp.Stale).
		Dur("duration", time.Since(start)).
		Msg("Fetch served")

	writeJSON(w, status, resp)
}

// clearCacheHandler drops every cached entry. It requires the admin token as
// a bearer credential.
func (s *server) clearCacheHandler(w http.ResponseWriter, r *http.Request) {
	logger := s.requestLogger(w, r)

	if s.adminToken == "" {
		writeJSON(w, http.StatusForbidden, &client.Response{
			Status: http.StatusForbidden,
			Error:  "cache administration disabled",
		})
		return
	}
	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
		logger.Warn().Msg("Cache clear refused")
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeJSON(w, http.StatusUnauthorized, &client.Response{
			Status: http.StatusUnauthorized,
			Error:  "unauthorized",
		})
		return
	}

	s.client.ClearCache()
	logger.Info().Msg("Cache cleared")
	w.WriteHeader(http.StatusNoContent)
}

// requestLogger binds the request ID assigned by requestID and the caller IP.
func (s *server) requestLogger(w http.ResponseWriter, r *http.Request) zerolog.Logger {
	return logging.ForClient(s.logger, w.Header().Get(requestIDHeader), clientIP(r))
}

// requestID propagates or assigns an X-Request-ID.
func (s *server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// rateLimit rejects clients that exceed their per-IP budget.
func (s *server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(clientIP(r)) {
			s.requestLogger(w, r).Warn().Msg("Client rate limit exceeded")
			writeJSON(w, http.StatusTooManyRequests, &client.Response{
				Status: http.StatusTooManyRequests,
				Error:  "rate limit exceeded",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func cacheStatus(resp *client.Response) string {
	switch {
	case resp.Stale:
		return "STALE"
	case resp.FromCache:
		return "HIT"
	default:
		return "MISS"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
