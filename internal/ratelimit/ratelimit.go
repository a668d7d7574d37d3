package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Limiter allows max requests per window for each client key. Each key gets
// a token bucket with burst=max refilled evenly across the window.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*client
	every   rate.Limit
	per     time.Duration
	burst   int
	window  time.Duration
	idle    time.Duration
	lastGC  time.Time
	nowFunc func() time.Time
}

type client struct {
	limiter *rate.Limiter
	last    time.Time
}

// New returns a Limiter for max requests per window.
func New(max int, window time.Duration) *Limiter {
	return &Limiter{
		clients: make(map[string]*client),
		every:   rate.Every(window / time.Duration(max)),
		per:     window / time.Duration(max),
		burst:   max,
		window:  window,
		idle:    2 * window,
		nowFunc: time.Now,
	}
}

// Allow reports whether key may make a request now.
func (l *Limiter) Allow(key string) bool {
	now := l.nowFunc()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.gc(now)
	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.every, l.burst)}
		l.clients[key] = c
	}
	c.last = now
	return c.limiter.AllowN(now, 1)
}

// gc drops clients idle for longer than the cleanup horizon. Caller holds mu.
func (l *Limiter) gc(now time.Time) {
	if now.Sub(l.lastGC) < l.window {
		return
	}
	l.lastGC = now
	for k, c := range l.clients {
		if now.Sub(c.last) > l.idle {
			delete(l.clients, k)
		}
	}
}

// Middleware rejects requests over the limit with 429. Clients are keyed by
// gin's resolved client address.
func Middleware(l *Limiter) gin.HandlerFunc {
	retryAfter := strconv.Itoa(int(math.Ceil(l.per.Seconds())))
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			c.Header("Retry-After", retryAfter)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests, please try again later",
				"code":  "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}
