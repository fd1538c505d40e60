package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/jordanlanch/campaigndesk/pkg/models"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// RateLimiter holds one token bucket per client IP
type RateLimiter struct {
	visitors map[string]*rate.Limiter
	mu       sync.Mutex
	r        rate.Limit // requests per second
	b        int        // burst
	stop     chan struct{}
	once     sync.Once
}

// NewRateLimiter creates a limiter allowing requestsPerMinute per IP with the given burst
func NewRateLimiter(requestsPerMinute, burst int) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*rate.Limiter),
		r:        rate.Limit(float64(requestsPerMinute) / 60.0),
		b:        burst,
		stop:     make(chan struct{}),
	}

	go rl.cleanupVisitors(3 * time.Minute)

	return rl
}

// GetLimiter returns the limiter for ip, creating it on first use
func (rl *RateLimiter) GetLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.visitors[ip]
	if !exists {
		limiter = rate.NewLimiter(rl.r, rl.b)
		rl.visitors[ip] = limiter
	}

	return limiter
}

// Stop ends the background cleanup
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) cleanupVisitors(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.prune()
		}
	}
}

// prune drops limiters that are back to a full bucket, i.e. idle clients
func (rl *RateLimiter) prune() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for ip, limiter := range rl.visitors {
		if limiter.Tokens() >= float64(rl.b) {
			delete(rl.visitors, ip)
		}
	}
}

func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

// RateLimitMiddleware rejects requests over the limit with 429
func (rl *RateLimiter) RateLimitMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if ip == "" {
				ip = c.Request().RemoteAddr
			}

			if !rl.GetLimiter(ip).Allow() {
				return tooManyRequests(c)
			}

			return next(c)
		}
	}
}

func tooManyRequests(c echo.Context) error {
	return c.JSON(http.StatusTooManyRequests, models.ErrorResponse{
		Error:   "rate_limit_exceeded",
		Message: "요청이 너무 많습니다. 잠시 후 다시 시도해 주세요.",
	})
}

// PerEndpointRateLimiter keeps a separate RateLimiter per "METHOD path" so
// sensitive routes such as login can be held to a tighter budget.
type PerEndpointRateLimiter struct {
	limiters map[string]*RateLimiter
	mu       sync.Mutex
	defaultM int
	defaultB int
}

// NewPerEndpointRateLimiter creates a limiter whose unknown endpoints use the given defaults
func NewPerEndpointRateLimiter(requestsPerMinute, burst int) *PerEndpointRateLimiter {
	return &PerEndpointRateLimiter{
		limiters: make(map[string]*RateLimiter),
		defaultM: requestsPerMinute,
		defaultB: burst,
	}
}

// SetEndpointLimit sets a custom limit for one endpoint, e.g. "POST /api/v1/auth/login"
func (perl *PerEndpointRateLimiter) SetEndpointLimit(endpoint string, requestsPerMinute, burst int) {
	perl.mu.Lock()
	defer perl.mu.Unlock()

	if old, ok := perl.limiters[endpoint]; ok {
		old.Stop()
	}
	perl.limiters[endpoint] = NewRateLimiter(requestsPerMinute, burst)
}

func (perl *PerEndpointRateLimiter) limiter(endpoint string) *RateLimiter {
	perl.mu.Lock()
	defer perl.mu.Unlock()

	limiter, ok := perl.limiters[endpoint]
	if !ok {
		limiter = NewRateLimiter(perl.defaultM, perl.defaultB)
		perl.limiters[endpoint] = limiter
	}
	return limiter
}

// Stop ends the cleanup goroutines of every endpoint limiter
func (perl *PerEndpointRateLimiter) Stop() {
	perl.mu.Lock()
	defer perl.mu.Unlock()
	for _, l := range perl.limiters {
		l.Stop()
	}
}

// RateLimitMiddleware applies the limiter registered for the matched route
func (perl *PerEndpointRateLimiter) RateLimitMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			endpoint := c.Request().Method + " " + c.Path()
			return perl.limiter(endpoint).RateLimitMiddleware()(next)(c)
		}
	}
}
