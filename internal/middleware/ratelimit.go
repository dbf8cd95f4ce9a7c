package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/imwg-risk-server/internal/domain"
)

const (
	maxTrackedClients = 10000
	clientIdleTTL     = 10 * time.Minute
)

// RateLimit applies a token bucket per client IP. Idle clients are forgotten
// after clientIdleTTL.
func RateLimit(requestsPerSecond float64, burst int) gin.HandlerFunc {
	if burst <= 0 {
		burst = 1
	}
	limiters := expirable.NewLRU[string, *rate.Limiter](maxTrackedClients, nil, clientIdleTTL)
	var mu sync.Mutex

	limiterFor := func(client string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		if l, ok := limiters.Get(client); ok {
			return l
		}
		l := rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
		limiters.Add(client, l)
		return l
	}

	return func(c *gin.Context) {
		if !limiterFor(c.ClientIP()).Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				domain.NewAPIError(domain.MsgRateLimitExceeded, nil, c.GetString(CorrelationIDKey)))
			return
		}
		c.Next()
	}
}
