package api

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/solve-it-project/solveit/internal/core"
)

// authMiddleware enforces API key authentication on all endpoints except
// /health and /metrics. Read-only keys may only issue GET requests.
// Keys are read from config (server.api_keys, server.read_only_keys) or env
// (SOLVEIT_API_KEY) on every request, so reloads apply immediately.
// If no keys are configured, all requests are allowed (open mode with warning logged on startup).
func authMiddleware(next http.Handler, cfg *core.Config, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		// If no API keys configured, allow all (open mode)
		if !cfg.AuthEnabled() {
			next.ServeHTTP(w, r)
			return
		}

		// Authorization: Bearer <key>, with X-API-Key as fallback
		key := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if key == "" {
			key = r.Header.Get("X-API-Key")
		}
		if key == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "missing authentication, provide Authorization: Bearer <key> or X-API-Key header",
			})
			return
		}

		switch cfg.ValidateAPIKey(key) {
		case core.ScopeWrite:
		case core.ScopeRead:
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				logger.Warn().Str("path", r.URL.Path).Str("method", r.Method).Msg("read-only key used for write")
				writeJSON(w, http.StatusForbidden, map[string]string{"error": "read-only API key"})
				return
			}
		default:
			logger.Warn().Str("path", r.URL.Path).Str("ip", r.RemoteAddr).Msg("invalid API key")
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "invalid API key"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware implements a simple per-IP token bucket rate limiter.
type ipLimiter struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucket
}

type tokenBucket struct {
	tokens    float64
	maxTokens float64
	lastTime  time.Time
}

func (b *tokenBucket) allow(rate float64) bool {
	now := time.Now()
	elapsed := now.Sub(b.lastTime).Seconds()
	b.lastTime = now
	b.tokens += elapsed * rate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// rateLimitMiddleware limits each client IP to server.rate_limit requests per
// second with a burst of twice that. A limit of 0 disables limiting.
func rateLimitMiddleware(next http.Handler, cfg *core.Config) http.Handler {
	limiter := &ipLimiter{
		buckets: make(map[string]*tokenBucket),
	}

	// Cleanup stale buckets every 5 minutes
	go func() {
		for {
			time.Sleep(5 * time.Minute)
			limiter.mu.Lock()
			cutoff := time.Now().Add(-10 * time.Minute)
			for ip, bucket := range limiter.buckets {
				if bucket.lastTime.Before(cutoff) {
					delete(limiter.buckets, ip)
				}
			}
			limiter.mu.Unlock()
		}
	}()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestsPerSecond := cfg.Server.RateLimit
		// Skip rate limiting for health checks
		if r.URL.Path == "/health" || requestsPerSecond <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		ip := r.RemoteAddr
		if idx := strings.LastIndex(ip, ":"); idx != -1 {
			ip = ip[:idx]
		}

		limiter.mu.Lock()
		bucket, exists := limiter.buckets[ip]
		if !exists {
			bucket = &tokenBucket{
				tokens:   float64(requestsPerSecond),
				lastTime: time.Now(),
			}
			limiter.buckets[ip] = bucket
		}
		bucket.maxTokens = float64(requestsPerSecond * 2) // burst = 2x rate
		allowed := bucket.allow(float64(requestsPerSecond))
		limiter.mu.Unlock()

		if !allowed {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "rate limit exceeded, try again shortly",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers for origins listed in server.cors_origins.
// With no origins configured, cross-origin requests get no CORS headers.
func corsMiddleware(next http.Handler, cfg *core.Config) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowedOrigins := cfg.Server.CORSOrigins
		origin := r.Header.Get("Origin")
		allowed := ""
		for _, o := range allowedOrigins {
			if o == "*" || o == origin {
				allowed = origin
				break
			}
		}
		if allowed == "" {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Access-Control-Allow-Origin", allowed)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		w.Header().Set("Vary", "Origin")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
