// Package ratelimit refuses connection floods with token buckets.
package ratelimit

import (
	"net"
	"sync"
	"time"
)

// TokenBucket implements a token bucket rate limiter
type TokenBucket struct {
	mu         sync.Mutex
	tokens     int
	capacity   int
	rate       int // tokens per second
	lastRefill time.Time
	lastUsed   time.Time
}

// NewTokenBucket creates a new token bucket with the given rate and capacity
func NewTokenBucket(rate, capacity int) *TokenBucket {
	now := time.Now()
	return &TokenBucket{
		tokens:     capacity,
		capacity:   capacity,
		rate:       rate,
		lastRefill: now,
		lastUsed:   now,
	}
}

// Allow consumes a token if one is available.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	tb.lastUsed = now
	if add := int(now.Sub(tb.lastRefill).Seconds() * float64(tb.rate)); add > 0 {
		tb.tokens = min(tb.tokens+add, tb.capacity)
		tb.lastRefill = now
	}
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

func (tb *TokenBucket) idleSince() time.Time {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.lastUsed
}

// Limiter throttles inbound connections globally and per remote IP.
// A zero rate disables that tier.
type Limiter struct {
	mu      sync.Mutex
	global  *TokenBucket
	perAddr map[string]*TokenBucket
	rate    int
	burst   int
}

// NewLimiter creates a limiter. perAddrRate and globalRate are connections
// per second; burst is the bucket capacity for both tiers.
func NewLimiter(perAddrRate, globalRate, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	l := &Limiter{perAddr: make(map[string]*TokenBucket), rate: perAddrRate, burst: burst}
	if globalRate > 0 {
		l.global = NewTokenBucket(globalRate, burst)
	}
	return l
}

// Allow reports whether a connection from addr may proceed. addr may be a
// host:port pair or a bare host.
func (l *Limiter) Allow(addr string) bool {
	if l.global != nil && !l.global.Allow() {
		return false
	}
	if l.rate <= 0 {
		return true
	}
	key := hostOf(addr)
	l.mu.Lock()
	b, ok := l.perAddr[key]
	if !ok {
		b = NewTokenBucket(l.rate, l.burst)
		l.perAddr[key] = b
	}
	l.mu.Unlock()
	return b.Allow()
}

// Prune drops per-address buckets unused for longer than idle and returns
// how many were removed.
func (l *Limiter) Prune(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, b := range l.perAddr {
		if b.idleSince().Before(cutoff) {
			delete(l.perAddr, k)
			n++
		}
	}
	return n
}

func (l *Limiter) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.perAddr)
}

func hostOf(addr string) string {
	if h, _, err := net.SplitHostPort(addr); err == nil {
		return h
	}
	return addr
}
