package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/openclaw/ussd-gateway-go/internal/audit"
	apperrors "github.com/openclaw/ussd-gateway-go/internal/errors"
	"github.com/openclaw/ussd-gateway-go/internal/httputil"
)

const (
	adminMaxAttempts    = 5
	adminWindowDuration = time.Minute
	adminCleanupPeriod  = 5 * time.Minute
)

type adminAttempt struct {
	count       int
	windowStart time.Time
}

// AdminRateLimiter caps admin requests per client IP so that keys
// cannot be brute forced.
type AdminRateLimiter struct {
	mu          sync.Mutex
	attempts    map[string]*adminAttempt
	lastCleanup time.Time
	limit       int
	now         func() time.Time
}

func NewAdminRateLimiter(limit int) *AdminRateLimiter {
	if limit <= 0 {
		limit = adminMaxAttempts
	}
	return &AdminRateLimiter{
		attempts:    make(map[string]*adminAttempt),
		lastCleanup: time.Now(),
		limit:       limit,
		now:         time.Now,
	}
}

func (l *AdminRateLimiter) cleanup(now time.Time) {
	if now.Sub(l.lastCleanup) < adminCleanupPeriod {
		return
	}
	l.lastCleanup = now

	for ip, attempt := range l.attempts {
		if now.Sub(attempt.windowStart) > adminWindowDuration {
			delete(l.attempts, ip)
		}
	}
}

func (l *AdminRateLimiter) isAllowed(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.cleanup(now)

	attempt, exists := l.attempts[ip]
	if !exists {
		l.attempts[ip] = &adminAttempt{count: 1, windowStart: now}
		return true
	}

	if now.Sub(attempt.windowStart) > adminWindowDuration {
		attempt.count = 1
		attempt.windowStart = now
		return true
	}

	if attempt.count >= l.limit {
		return false
	}

	attempt.count++
	return true
}

func (l *AdminRateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.isAllowed(audit.ClientIP(r)) {
			retryAfter := int(adminWindowDuration / time.Second)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			httputil.WriteError(w, apperrors.RateLimitExceeded().WithDetails(map[string]int{
				"retryAfterSeconds": retryAfter,
			}))
			return
		}

		next.ServeHTTP(w, r)
	})
}
