package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Limiter throttles credential submissions per client IP.
type Limiter struct {
	rate  rate.Limit
	burst int
	idle  time.Duration
	clock func() time.Time

	mu      sync.Mutex
	clients map[string]*client
}

type client struct {
	lim  *rate.Limiter
	seen time.Time
}

func NewLimiter(perSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		rate:    rate.Limit(perSecond),
		burst:   burst,
		idle:    10 * time.Minute,
		clock:   time.Now,
		clients: make(map[string]*client),
	}
}

func (l *Limiter) Allow(key string) bool {
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()
	cl, ok := l.clients[key]
	if !ok {
		cl = &client{lim: rate.NewLimiter(l.rate, l.burst)}
		l.clients[key] = cl
	}
	cl.seen = now
	return cl.lim.AllowN(now, 1)
}

// Prune forgets clients idle for longer than the idle window.
func (l *Limiter) Prune() int {
	cutoff := l.clock().Add(-l.idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, cl := range l.clients {
		if cl.seen.Before(cutoff) {
			delete(l.clients, k)
			n++
		}
	}
	return n
}

// Throttle rejects requests over the limit with 429. A nil Limiter admits everything.
func (l *Limiter) Throttle() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l != nil && !l.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many attempts. Please wait a moment and try again."})
			return
		}
		c.Next()
	}
}
