package bot

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/nimslack/schedbot/pkg/config"
)

// Limiter enforces the per-user request thresholds. A nil limiter (rate
// limiting disabled) allows everything.
type Limiter struct {
	perMinute rate.Limit
	perHour   rate.Limit
	minBurst  int
	hourBurst int

	mu    sync.Mutex
	users map[string]*userBuckets
}

type userBuckets struct {
	minute *rate.Limiter
	hour   *rate.Limiter
}

// NewLimiter builds a limiter from rate-limit settings, or nil when disabled
func NewLimiter(cfg config.RateLimitSettings) *Limiter {
	if !cfg.Enabled {
		return nil
	}
	return &Limiter{
		perMinute: rate.Limit(float64(cfg.RequestsPerMinute) / 60.0),
		perHour:   rate.Limit(float64(cfg.RequestsPerHour) / 3600.0),
		minBurst:  cfg.RequestsPerMinute,
		hourBurst: cfg.RequestsPerHour,
		users:     map[string]*userBuckets{},
	}
}

// Allow reports whether userID is within both the minute and hour windows
func (l *Limiter) Allow(userID string) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	b, ok := l.users[userID]
	if !ok {
		b = &userBuckets{
			minute: rate.NewLimiter(l.perMinute, l.minBurst),
			hour:   rate.NewLimiter(l.perHour, l.hourBurst),
		}
		l.users[userID] = b
	}
	l.mu.Unlock()

	return b.minute.Allow() && b.hour.Allow()
}
