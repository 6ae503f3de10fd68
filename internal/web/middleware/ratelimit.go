package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/metagraph-dev/metagraph/internal/web/ratelimit"
	"github.com/metagraph-dev/metagraph/internal/web/response"
)

// RateLimitConfig holds configuration for rate limiting middleware
type RateLimitConfig struct {
	Limiter ratelimit.Limiter
	// KeyFunc extracts the rate limit key. Requests with an empty key are
	// not limited.
	KeyFunc func(*http.Request) string
	// Logger records limiter failures. Requests are allowed when the
	// limiter fails.
	Logger *zap.Logger
}

// RateLimit rejects clients over their limit with 429 and reports the
// limiter state in X-RateLimit-* headers
func RateLimit(config RateLimitConfig) Middleware {
	keyFunc := config.KeyFunc
	if keyFunc == nil {
		keyFunc = ClientIP
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			info, err := config.Limiter.Allow(r.Context(), key)
			if err != nil {
				logger.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))

			if !info.Allowed {
				retry := int64(time.Until(info.ResetAt).Seconds() + 0.5)
				h.Set("Retry-After", strconv.FormatInt(max(retry, 1), 10))
				response.Error(w, r, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP keys requests by the address of the connected peer. Forwarding
// headers are ignored because any client can set them; use TrustedClientIP
// behind a reverse proxy.
func ClientIP(r *http.Request) string {
	if ip := peerIP(r); ip.IsValid() {
		return ip.String()
	}
	return r.RemoteAddr
}

// TrustedClientIP keys requests by the client address reported by trusted
// proxies. When the peer is one of trusted, X-Forwarded-For is read from the
// right and the first hop outside trusted is the client; X-Real-IP is the
// fallback. Requests from any other peer are keyed by the peer address.
func TrustedClientIP(trusted []netip.Prefix) func(*http.Request) string {
	if len(trusted) == 0 {
		return ClientIP
	}
	isTrusted := func(ip netip.Addr) bool {
		for _, p := range trusted {
			if p.Contains(ip) {
				return true
			}
		}
		return false
	}

	return func(r *http.Request) string {
		peer := peerIP(r)
		if !peer.IsValid() || !isTrusted(peer) {
			return ClientIP(r)
		}

		hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			ip, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			ip = ip.Unmap()
			if !isTrusted(ip) {
				return ip.String()
			}
		}
		if ip, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
			return ip.Unmap().String()
		}
		return peer.String()
	}
}

// ParseTrustedProxies parses CIDR ranges and bare addresses
func ParseTrustedProxies(values []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if strings.Contains(v, "/") {
			p, err := netip.ParsePrefix(v)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", v, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		ip, err := netip.ParseAddr(v)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", v, err)
		}
		ip = ip.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(ip, ip.BitLen()))
	}
	return prefixes, nil
}

// peerIP returns the zero Addr when RemoteAddr is not an IP address
func peerIP(r *http.Request) netip.Addr {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}
	}
	return ip.Unmap()
}
