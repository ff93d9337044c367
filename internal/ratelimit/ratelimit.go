// Package ratelimit applies per-IP request throttling to the viewer attach
// endpoint, adapted from wingthing's relay.RateLimiter — "friends and
// family" limits meant to blunt abuse, not to be a hardened WAF.
package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type ipLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Limiter rate-limits requests per client IP.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	rate     rate.Limit
	burst    int
}

// New creates a Limiter allowing reqPerSec sustained requests per IP, with
// the given burst. It evicts IPs idle for more than 10 minutes every 5
// minutes so long-running servers don't accumulate one entry per attacker.
func New(reqPerSec float64, burst int) *Limiter {
	l := &Limiter{
		limiters: make(map[string]*ipLimiter),
		rate:     rate.Limit(reqPerSec),
		burst:    burst,
	}
	go l.evictLoop()
	return l
}

func (l *Limiter) evictLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		l.mu.Lock()
		for ip, e := range l.limiters {
			if time.Since(e.lastSeen) > 10*time.Minute {
				delete(l.limiters, ip)
			}
		}
		l.mu.Unlock()
	}
}

func (l *Limiter) entry(ip string) *ipLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.limiters[ip]
	if !ok {
		e = &ipLimiter{lim: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[ip] = e
	}
	e.lastSeen = time.Now()
	return e
}

// Allow reports whether a request from ip is within its current rate budget.
func (l *Limiter) Allow(ip string) bool {
	return l.entry(ip).lim.Allow()
}

// ClientIP extracts the request's client address, preferring
// X-Forwarded-For (as set by fly.io, Cloudflare, and similar edge proxies)
// over RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for i := 0; i < len(xff); i++ {
			if xff[i] == ',' {
				return xff[:i]
			}
		}
		return xff
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
