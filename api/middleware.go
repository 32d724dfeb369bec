package api

import (
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
)

// rateLimitExcluded are the paths never subjected to rate limiting:
// health, cache management, and rate-limit introspection.
var rateLimitExcluded = map[string]bool{
	"/":                 true,
	"/cache/clear":      true,
	"/rate-limit/stats": true,
	"/cache/info":       true,
}

// rateLimitMiddleware rejects requests over the per-client limits with
// a 429 and stamps every admitted response with the current quota
// headers.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rateLimitExcluded[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		allowed, reason := s.limiter.Allow(ip)
		if !allowed {
			log.Printf("Rate limit hit for IP: %s", ip)
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"detail":    reason,
				"client_ip": ip,
			})
			return
		}

		s.limiter.Record(ip)

		stats := s.limiter.Stats(ip)
		w.Header().Set("X-RateLimit-Limit-Minute", strconv.Itoa(stats.LimitMinute))
		w.Header().Set("X-RateLimit-Remaining-Minute", strconv.Itoa(stats.RemainingMinute))
		w.Header().Set("X-RateLimit-Limit-Hour", strconv.Itoa(stats.LimitHour))
		w.Header().Set("X-RateLimit-Remaining-Hour", strconv.Itoa(stats.RemainingHour))

		next.ServeHTTP(w, r)
	})
}

// clientIP resolves the client identity for rate limiting: the first
// address in X-Forwarded-For, else X-Real-IP, else the transport peer
// address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
