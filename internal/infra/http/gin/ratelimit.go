package ginserver

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	gin "github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"stayvista/internal/app/services/reservation"
)

const visitorIdle = 5 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client address.
type RateLimiter struct {
	PerMinute float64
	Burst     int
	Now       func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
}

func NewRateLimiter(perMinute float64, burst int) *RateLimiter {
	return &RateLimiter{
		PerMinute: perMinute,
		Burst:     burst,
		Now:       time.Now,
		visitors:  make(map[string]*visitor),
	}
}

// Middleware rejects a client with 429 once its bucket is empty. A zero
// PerMinute disables limiting.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if r == nil || r.PerMinute <= 0 {
			c.Next()
			return
		}
		if !r.obtain(clientID(c.Request)).Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody{
				Error:     http.StatusText(http.StatusTooManyRequests),
				Kind:      reservation.KindUpstreamUnavailable,
				Retryable: true,
			})
			return
		}
		c.Next()
	}
}

func (r *RateLimiter) obtain(id string) *rate.Limiter {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.visitors == nil {
		r.visitors = make(map[string]*visitor)
	}
	for key, v := range r.visitors {
		if now.Sub(v.lastSeen) > visitorIdle {
			delete(r.visitors, key)
		}
	}
	if v, ok := r.visitors[id]; ok {
		v.lastSeen = now
		return v.limiter
	}
	burst := r.Burst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(r.PerMinute/60.0), burst)
	r.visitors[id] = &visitor{limiter: limiter, lastSeen: now}
	return limiter
}

func (r *RateLimiter) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func clientID(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		first = strings.TrimSpace(first)
		if parsed := net.ParseIP(first); parsed != nil {
			return parsed.String()
		}
		if first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
