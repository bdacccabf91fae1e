package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/secaudit/headgrade/internal/eventlog"
	"github.com/secaudit/headgrade/internal/scanner"
	sharedErrors "github.com/secaudit/headgrade/internal/shared/errors"
)

// ScanService is the orchestrator surface the server needs.
type ScanService interface {
	Scan(ctx context.Context, rawURL, client string, force bool) (*eventlog.ScanRecord, error)
	Stats() scanner.Stats
}

// Config wires the server's collaborators and transport-level limits.
// RateLimit/RateBurst guard the whole API per client IP and are separate
// from the scanner's fresh-probe cool-down.
type Config struct {
	Scans     ScanService
	Logger    *zap.Logger
	RateLimit int // requests per second per IP (0 = disabled)
	RateBurst int
}

// Server is the HTTP surface: /scan, /stats and the static /healthz and
// /robots.txt responses that never touch the probe path.
type Server struct {
	cfg      Config
	mux      *http.ServeMux
	limiters *rateLimiterMap
}

func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	srv := &Server{
		cfg:      cfg,
		mux:      http.NewServeMux(),
		limiters: newRateLimiterMap(),
	}
	srv.routes()
	return srv
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	handler := s.withLogging(s.withRateLimit(s.mux))
	handler.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/scan", s.handleScan)
	s.mux.HandleFunc("/stats", s.handleStats)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/robots.txt", s.handleRobots)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, r, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}

	rawURL := r.URL.Query().Get("url")
	force := r.URL.Query().Get("force") == "1"
	client := ClientIdentity(r)

	rec, err := s.cfg.Scans.Scan(r.Context(), rawURL, client, force)
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, r, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Scans.Stats())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRobots(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("User-agent: *\nDisallow: /scan\n"))
}

// statusFor maps the scan error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, sharedErrors.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, sharedErrors.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, sharedErrors.ErrProbe):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ClientIdentity extracts the throttling identity for a request: the
// first X-Forwarded-For element, else the peer address without its port,
// else "unknown".
func ClientIdentity(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := forwarded
		if idx := strings.Index(forwarded, ","); idx > 0 {
			first = forwarded[:idx]
		}
		if trimmed := strings.TrimSpace(first); trimmed != "" {
			return trimmed
		}
	}
	if addr := strings.TrimSpace(r.RemoteAddr); addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx > 0 {
			return addr[:idx]
		}
		return addr
	}
	return "unknown"
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Health and robots stay reachable regardless of limiter state.
		if s.cfg.RateLimit <= 0 || r.URL.Path == "/healthz" || r.URL.Path == "/robots.txt" {
			next.ServeHTTP(w, r)
			return
		}

		clientIP := ClientIdentity(r)
		limiter := s.limiters.getLimiter(clientIP, s.cfg.RateLimit, s.cfg.RateBurst)
		if !limiter.Allow() {
			s.cfg.Logger.Warn("request_rate_limit_exceeded",
				zap.String("client_ip", clientIP),
				zap.String("path", r.URL.Path),
			)
			s.writeError(w, r, http.StatusTooManyRequests, errors.New("too many requests"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(lrw, r)

		s.cfg.Logger.Info("http_request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Int("status", lrw.statusCode),
			zap.Duration("duration", time.Since(start)),
			zap.Int64("bytes", lrw.bytesWritten),
		)
	})
}

// loggingResponseWriter captures status code and bytes written.
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	n, err := lrw.ResponseWriter.Write(b)
	lrw.bytesWritten += int64(n)
	return n, err
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		s.cfg.Logger.Error("request_failed",
			zap.Error(err),
			zap.Int("status", status),
			zap.String("path", r.URL.Path),
		)
		if status == http.StatusInternalServerError {
			msg = "internal server error"
		}
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

// rateLimiterMap manages per-IP request limiters with periodic cleanup.
type rateLimiterMap struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiterMap() *rateLimiterMap {
	m := &rateLimiterMap{limiters: make(map[string]*ipLimiter)}
	go m.cleanupLoop()
	return m
}

func (m *rateLimiterMap) getLimiter(ip string, rps, burst int) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if burst <= 0 {
		burst = rps
	}
	l, ok := m.limiters[ip]
	if !ok {
		l = &ipLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
		m.limiters[ip] = l
	}
	l.lastSeen = time.Now()
	return l.limiter
}

// cleanupLoop drops limiters idle for more than 5 minutes.
func (m *rateLimiterMap) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		m.mu.Lock()
		for ip, l := range m.limiters {
			if time.Since(l.lastSeen) > 5*time.Minute {
				delete(m.limiters, ip)
			}
		}
		m.mu.Unlock()
	}
}
