package hooks

import (
	"net"
	"net/http"
	"strconv"
	"sync"

	"golang.org/x/time/rate"

	"github.com/morezero/operations-host/pkg/reqctx"
)

// maxLimiters bounds the per-client limiter map; it is reset when exceeded.
const maxLimiters = 10000

// RateLimit applies a token bucket per client. The client is the
// authenticated subject when BearerAuth ran first, otherwise the remote IP.
type RateLimit struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewRateLimit creates a RateLimit hook allowing rps requests per second
// with the given burst.
func NewRateLimit(rps float64, burst int) *RateLimit {
	if burst < 1 {
		burst = 1
	}
	return &RateLimit{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(rps),
		burst:    burst,
	}
}

func (rl *RateLimit) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.limiters[key]
	if !ok {
		if len(rl.limiters) >= maxLimiters {
			rl.limiters = make(map[string]*rate.Limiter)
		}
		l = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = l
	}
	return l
}

// Before implements PreHook.
func (rl *RateLimit) Before(rc *reqctx.RequestContext) (*Reply, error) {
	if rl.limiter(clientKey(rc)).Allow() {
		return nil, nil
	}
	reply := NewErrorReply(http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded", rc.CorrelationID)
	reply.Header = http.Header{"Retry-After": []string{strconv.Itoa(rl.retryAfter())}}
	return reply, nil
}

func (rl *RateLimit) retryAfter() int {
	if rl.rate <= 0 {
		return 60
	}
	secs := int(1 / float64(rl.rate))
	if secs < 1 {
		secs = 1
	}
	return secs
}

func clientKey(rc *reqctx.RequestContext) string {
	if sub, ok := rc.Env(EnvSubject); ok {
		if s, ok := sub.(string); ok && s != "" {
			return "sub:" + s
		}
	}
	host, _, err := net.SplitHostPort(rc.RemoteAddr)
	if err != nil {
		return "ip:" + rc.RemoteAddr
	}
	return "ip:" + host
}
