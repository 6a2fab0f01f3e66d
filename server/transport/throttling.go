package transport

import (
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Throttling limits write requests per shopper session using RPS and RPM limiters
type Throttling struct {
	rps int
	rpm int

	mu       sync.Mutex
	limiters map[string]*limiterPair
}

// limiterPair holds the RPS and RPM limiters for a session
type limiterPair struct {
	rpsLimiter *rate.Limiter
	rpmLimiter *rate.Limiter
	lastUsed   time.Time
}

// NewThrottling creates a throttle. A non-positive limit disables that limiter.
func NewThrottling(rps, rpm int) *Throttling {
	return &Throttling{
		rps:      rps,
		rpm:      rpm,
		limiters: make(map[string]*limiterPair),
	}
}

func (t *Throttling) getLimiters(sessionID string) *limiterPair {
	t.mu.Lock()
	defer t.mu.Unlock()

	pair, ok := t.limiters[sessionID]
	if !ok {
		pair = &limiterPair{}
		if t.rpm > 0 {
			pair.rpmLimiter = rate.NewLimiter(rate.Limit(t.rpm)/60.0, t.rpm)
		}
		if t.rps > 0 {
			pair.rpsLimiter = rate.NewLimiter(rate.Limit(t.rps), t.rps)
		}
		t.limiters[sessionID] = pair
	}
	pair.lastUsed = time.Now()
	return pair
}

// Allow reports whether the session may make another request now.
func (t *Throttling) Allow(sessionID string) bool {
	pair := t.getLimiters(sessionID)
	if pair.rpmLimiter != nil && !pair.rpmLimiter.Allow() {
		return false
	}
	if pair.rpsLimiter != nil && !pair.rpsLimiter.Allow() {
		return false
	}
	return true
}

// Forget drops limiters unused for longer than idle and returns how many were removed.
func (t *Throttling) Forget(idle time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().Add(-idle)
	removed := 0
	for id, pair := range t.limiters {
		if pair.lastUsed.Before(cutoff) {
			delete(t.limiters, id)
			removed++
		}
	}
	return removed
}

// remoteHost returns the client address of r without its port
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// throttleKeys names the limiters charged for r. Requests without a session
// cookie are also charged to their remote address, since each of them gets
// a fresh session.
func throttleKeys(r *http.Request) []string {
	keys := []string{sessionFromContext(r.Context())}
	if sessionIssued(r.Context()) {
		keys = append(keys, "addr:"+remoteHost(r))
	}
	return keys
}

// throttled wraps next with the per-session limit. It must run inside withSession.
func (t *Transport) throttled(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if t.throttling != nil {
			sessionID := sessionFromContext(r.Context())
			allowed := true
			for _, key := range throttleKeys(r) {
				if !t.throttling.Allow(key) {
					allowed = false
					break
				}
			}
			if !allowed {
				t.logger.Warn("Throttling limit exceeded",
					zap.String("sessionID", sessionID),
					zap.String("remoteAddr", remoteHost(r)),
					zap.String("path", r.URL.Path),
				)
				w.Header().Set("Retry-After", "1")
				sendError(w, http.StatusTooManyRequests, "throttled", "too many requests", t.logger)
				return
			}
		}
		next(w, r)
	}
}
