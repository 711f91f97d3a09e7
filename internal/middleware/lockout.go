package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// maxTrackedClients bounds the failure table before stale entries are dropped.
const maxTrackedClients = 10000

// FailureLimiter tracks failed access key attempts per client IP. After
// maxFailures consecutive failures the IP is locked out for the lockout
// duration; a successful attempt resets the streak.
type FailureLimiter struct {
	mu          sync.Mutex
	maxFailures int
	lockout     time.Duration
	now         func() time.Time
	clients     map[string]*failureState
}

type failureState struct {
	consecutive int
	lastFailure time.Time
	lockedUntil time.Time
}

// NewFailureLimiter creates a FailureLimiter.
func NewFailureLimiter(maxFailures int, lockout time.Duration) *FailureLimiter {
	return &FailureLimiter{
		maxFailures: maxFailures,
		lockout:     lockout,
		now:         time.Now,
		clients:     make(map[string]*failureState),
	}
}

// CheckAllowed reports whether ip may attempt a key, and if not, how long
// until the lockout ends.
func (l *FailureLimiter) CheckAllowed(ip string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.clients[ip]
	if !ok {
		return true, 0
	}
	if remaining := st.lockedUntil.Sub(l.now()); remaining > 0 {
		return false, remaining
	}
	return true, 0
}

// RecordAttempt records an attempt (success or failure).
func (l *FailureLimiter) RecordAttempt(ip string, success bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if success {
		delete(l.clients, ip)
		return
	}
	now := l.now()
	st, ok := l.clients[ip]
	if !ok {
		if len(l.clients) >= maxTrackedClients {
			l.cleanLocked(now)
		}
		st = &failureState{}
		l.clients[ip] = st
	}
	st.consecutive++
	st.lastFailure = now
	if st.consecutive >= l.maxFailures {
		st.lockedUntil = now.Add(l.lockout)
		st.consecutive = 0
	}
}

// CleanOld removes entries whose lockout and last failure are older than
// the lockout duration.
func (l *FailureLimiter) CleanOld() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cleanLocked(l.now())
}

func (l *FailureLimiter) cleanLocked(now time.Time) {
	for ip, st := range l.clients {
		if now.After(st.lockedUntil) && now.Sub(st.lastFailure) > l.lockout {
			delete(l.clients, ip)
		}
	}
}

// clientIP returns the remote IP of the connection. Forwarding headers are
// not trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
