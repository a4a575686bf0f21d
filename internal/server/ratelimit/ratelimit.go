// Package ratelimit throttles API clients with per-endpoint token buckets.
// The scan trigger fans out into mailbox and model API calls, so it gets a
// much tighter budget than the rest of the surface.
package ratelimit

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// bucket is a token bucket refilling at a steady rate.
type bucket struct {
	mu         sync.Mutex
	capacity   float64
	refillRate float64 // tokens per second
	tokens     float64
	lastRefill time.Time
}

func newBucket(capacity int, refillRate float64) *bucket {
	return &bucket{
		capacity:   float64(capacity),
		refillRate: refillRate,
		tokens:     float64(capacity),
		lastRefill: time.Now(),
	}
}

// take refills the bucket and consumes one token if available. It returns
// whether the request is allowed, the tokens remaining, and when the bucket
// is full again.
func (b *bucket) take() (allowed bool, remaining int, resetAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.tokens = min(b.capacity, b.tokens+now.Sub(b.lastRefill).Seconds()*b.refillRate)
	b.lastRefill = now

	if b.tokens >= 1.0 {
		b.tokens -= 1.0
		allowed = true
	}

	remaining = int(b.tokens)
	resetAt = now
	if b.tokens < b.capacity {
		resetAt = now.Add(time.Duration((b.capacity - b.tokens) / b.refillRate * float64(time.Second)))
	}
	return allowed, remaining, resetAt
}

// Rule limits one endpoint. Paths match exactly; a trailing slash matches by
// prefix. Limit <= 0 means unlimited.
type Rule struct {
	Method string
	Path   string
	Limit  int
	Window time.Duration
	Burst  int
}

// Info reports the limit state for one decision.
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Config holds limiter settings.
type Config struct {
	Enabled       bool
	DefaultLimit  int
	DefaultWindow time.Duration
	Exempt        map[string]bool
	Rules         []Rule
}

// LoadConfig builds the limiter configuration from the environment, with
// endpoint rules sized for this service.
func LoadConfig() *Config {
	cfg := &Config{
		Enabled:       true,
		DefaultLimit:  300,
		DefaultWindow: time.Minute,
		Exempt:        map[string]bool{},
		Rules: []Rule{
			// One scan cycle can issue dozens of provider and model calls.
			{Method: "POST", Path: "/scan", Limit: 10, Window: time.Hour, Burst: 3},
			{Method: "POST", Path: "/oauth/google/init", Limit: 20, Window: time.Minute, Burst: 5},
			{Method: "GET", Path: "/health", Limit: 0},
		},
	}

	if v := os.Getenv("RATE_LIMIT_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Enabled = enabled
		}
	}
	if v := os.Getenv("RATE_LIMIT_DEFAULT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DefaultLimit = n
		}
	}
	for _, ip := range strings.Split(os.Getenv("RATE_LIMIT_EXEMPT"), ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			cfg.Exempt[ip] = true
		}
	}
	return cfg
}

// Limiter tracks one bucket per client and endpoint rule.
type Limiter struct {
	mu      sync.Mutex
	cfg     *Config
	buckets map[string]*bucket
	touched map[string]time.Time
	stop    chan struct{}
}

// NewLimiter creates a limiter. A nil config uses LoadConfig defaults.
func NewLimiter(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = LoadConfig()
	}
	l := &Limiter{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		touched: make(map[string]time.Time),
		stop:    make(chan struct{}),
	}
	if cfg.Enabled {
		go l.sweep()
	}
	return l
}

// Allow decides whether the client may hit the endpoint now.
func (l *Limiter) Allow(clientID, path, method string) (bool, Info) {
	if !l.cfg.Enabled || l.cfg.Exempt[clientID] {
		return true, Info{Allowed: true}
	}

	rule := l.match(path, method)
	if rule.Limit <= 0 {
		return true, Info{Allowed: true}
	}

	key := clientID + ":" + method + ":" + rule.Path
	allowed, remaining, resetAt := l.bucketFor(key, rule).take()

	info := Info{
		Allowed:   allowed,
		Limit:     rule.Limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
	if !allowed {
		info.RetryAfter = max(time.Until(resetAt), 0)
	}
	return allowed, info
}

func (l *Limiter) match(path, method string) Rule {
	for _, r := range l.cfg.Rules {
		if r.Method != method {
			continue
		}
		if r.Path == path || (strings.HasSuffix(r.Path, "/") && strings.HasPrefix(path, r.Path)) {
			return r
		}
	}
	return Rule{Path: path, Limit: l.cfg.DefaultLimit, Window: l.cfg.DefaultWindow}
}

func (l *Limiter) bucketFor(key string, rule Rule) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.touched[key] = time.Now()
	if b, ok := l.buckets[key]; ok {
		return b
	}

	capacity := rule.Burst
	if capacity <= 0 {
		capacity = rule.Limit
	}
	b := newBucket(capacity, float64(rule.Limit)/rule.Window.Seconds())
	l.buckets[key] = b
	return b
}

// sweep drops buckets idle for over an hour.
func (l *Limiter) sweep() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-time.Hour)
			l.mu.Lock()
			for key, at := range l.touched {
				if at.Before(cutoff) {
					delete(l.buckets, key)
					delete(l.touched, key)
				}
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}

// Stop terminates the background sweep.
func (l *Limiter) Stop() {
	close(l.stop)
}
