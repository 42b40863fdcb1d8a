// Package api exposes invoice previews over HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"fieldbill/internal/database"
	"fieldbill/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Previewer runs previews and lists the journal.
type Previewer interface {
	Preview(ctx context.Context, req service.PreviewRequest) (*service.Preview, error)
	ListRuns(ctx context.Context, customerID string, limit int) ([]database.Run, error)
}

// DocumentSender delivers a generated workbook to managers.
type DocumentSender interface {
	SendDocument(ctx context.Context, filename string, data io.Reader, caption string) error
}

// Options configures the HTTP server.
type Options struct {
	Port               int
	APIKeys            []string
	RateLimitPerMinute int
	RateLimitBurst     int
	MaxJobsPerPreview  int
}

// HTTPServer serves the preview API.
type HTTPServer struct {
	server   *http.Server
	previews Previewer
	docs     DocumentSender
	logger   zerolog.Logger

	apiKeys map[string]bool
	maxJobs int

	limit      rate.Limit
	burst      int
	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
}

// NewHTTPServer builds the server. docs may be nil when Telegram is disabled.
func NewHTTPServer(opts Options, previews Previewer, docs DocumentSender, logger zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		previews: previews,
		docs:     docs,
		logger:   logger.With().Str("component", "api").Logger(),
		apiKeys:  make(map[string]bool, len(opts.APIKeys)),
		maxJobs:  opts.MaxJobsPerPreview,
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Inf,
		burst:    opts.RateLimitBurst,
	}
	for _, k := range opts.APIKeys {
		if k = strings.TrimSpace(k); k != "" {
			s.apiKeys[k] = true
		}
	}
	if opts.RateLimitPerMinute > 0 {
		s.limit = rate.Limit(float64(opts.RateLimitPerMinute) / 60)
	}
	if s.burst <= 0 {
		s.burst = 1
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/api/v1/previews", s.protect(http.HandlerFunc(s.handlePreview)))
	mux.Handle("/api/v1/previews/workbook", s.protect(http.HandlerFunc(s.handleWorkbook)))
	mux.Handle("/api/v1/previews/runs", s.protect(http.HandlerFunc(s.handleListRuns)))

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           s.withRequestID(mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
	}
	return s
}

// Handler returns the root handler, request ID middleware included.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown is called.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("api server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		logger := s.logger.With().Str("request_id", id).Logger()
		started := time.Now()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))
		logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).Dur("took", time.Since(started)).Msg("request")
	})
}

// protect checks the API key, then the client's token bucket. Buckets are keyed
// by a validated API key, or by remote IP when no keys are configured.
func (s *HTTPServer) protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := "ip:" + clientIP(r)
		if len(s.apiKeys) > 0 {
			key := r.Header.Get("x-api-key")
			if !s.validKey(key) {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			client = "key:" + key
		}
		if !s.limiterFor(client).Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) validKey(key string) bool {
	if key == "" {
		return false
	}
	for k := range s.apiKeys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			return true
		}
	}
	return false
}

func (s *HTTPServer) limiterFor(client string) *rate.Limiter {
	s.limitersMu.Lock()
	defer s.limitersMu.Unlock()
	l, ok := s.limiters[client]
	if !ok {
		l = rate.NewLimiter(s.limit, s.burst)
		s.limiters[client] = l
	}
	return l
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
