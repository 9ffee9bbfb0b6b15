package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"Skynet/pkg/apperr"
)

type visitor struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

const maxVisitors = 10000

var (
	rlMu     sync.Mutex
	visitors = map[string]*visitor{}
	window   = 10 * time.Second
	capacity = 5

	dupMu   sync.Mutex
	lastMsg = map[string]struct {
		text string
		ts   time.Time
	}{}
	dupTTL time.Duration // 0 disables the guard

	cgMu       sync.Mutex
	clientSem  = map[string]*slotSet{}
	clientConc = 2
)

// slotSet is a client's upstream semaphore. refs counts holders and waiters
// so the entry can be dropped once nobody uses it.
type slotSet struct {
	ch   chan struct{}
	refs int
}

// SetRateLimitConfig allows cap requests per win per client and conc
// concurrent upstream calls per client. Existing buckets are dropped.
func SetRateLimitConfig(win time.Duration, cap, conc int) {
	rlMu.Lock()
	if win > 0 {
		window = win
	}
	if cap > 0 {
		capacity = cap
	}
	visitors = map[string]*visitor{}
	rlMu.Unlock()
	cgMu.Lock()
	if conc > 0 {
		clientConc = conc
	}
	clientSem = map[string]*slotSet{}
	cgMu.Unlock()
}

func SetDuplicateTTL(ttl time.Duration) {
	dupMu.Lock()
	dupTTL = ttl
	dupMu.Unlock()
}

func clientIP(c *gin.Context) string {
	ip := strings.TrimSpace(c.ClientIP())
	if ip == "" {
		host, _, _ := net.SplitHostPort(strings.TrimSpace(c.Request.RemoteAddr))
		ip = host
	}
	return ip
}

// ClientKey identifies the caller: the JWT subject when auth is on, plus the
// client IP.
func ClientKey(c *gin.Context) string {
	return c.GetString(ContextSubjectKey) + "@" + clientIP(c)
}

func limiterFor(key string, now time.Time) *rate.Limiter {
	rlMu.Lock()
	defer rlMu.Unlock()
	v := visitors[key]
	if v == nil {
		if len(visitors) >= maxVisitors {
			for k, old := range visitors {
				if now.Sub(old.lastSeen) > window {
					delete(visitors, k)
				}
			}
		}
		v = &visitor{lim: rate.NewLimiter(rate.Every(window/time.Duration(capacity)), capacity)}
		visitors[key] = v
	}
	v.lastSeen = now
	return v.lim
}

// Allow takes one token from key's bucket without waiting. Long-lived
// connections call it per message.
func Allow(key string) bool {
	return limiterFor(key, time.Now()).Allow()
}

// RateLimit is a per-client token bucket refilling capacity tokens per window.
func RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		now := time.Now()
		r := limiterFor(ClientKey(c), now).ReserveN(now, 1)
		if !r.OK() {
			abortRateLimited(c, window)
			return
		}
		if d := r.DelayFrom(now); d > 0 {
			r.CancelAt(now)
			abortRateLimited(c, d)
			return
		}
		c.Next()
	}
}

func abortRateLimited(c *gin.Context, wait time.Duration) {
	c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": apperr.ErrRateLimited.Error()})
}

// DuplicateGuard returns false when key sent the same text within the
// duplicate window.
func DuplicateGuard(key string, text string) bool {
	now := time.Now()
	text = strings.TrimSpace(text)
	dupMu.Lock()
	defer dupMu.Unlock()
	if dupTTL <= 0 {
		return true
	}
	entry, ok := lastMsg[key]
	if !ok && len(lastMsg) >= maxVisitors {
		for k, old := range lastMsg {
			if now.Sub(old.ts) >= dupTTL {
				delete(lastMsg, k)
			}
		}
	}
	if ok && entry.text == text && now.Sub(entry.ts) < dupTTL {
		return false
	}
	lastMsg[key] = struct {
		text string
		ts   time.Time
	}{text: text, ts: now}
	return true
}

// AcquireSlot blocks until key has a free upstream slot or ctx ends.
func AcquireSlot(ctx context.Context, key string) (release func(), err error) {
	cgMu.Lock()
	sem := clientSem[key]
	if sem == nil {
		sem = &slotSet{ch: make(chan struct{}, clientConc)}
		clientSem[key] = sem
	}
	sem.refs++
	cgMu.Unlock()

	done := func() {
		cgMu.Lock()
		sem.refs--
		if sem.refs == 0 && clientSem[key] == sem {
			delete(clientSem, key)
		}
		cgMu.Unlock()
	}
	if err := ctx.Err(); err != nil {
		done()
		return nil, err
	}
	select {
	case sem.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-sem.ch
				done()
			})
		}, nil
	case <-ctx.Done():
		done()
		return nil, ctx.Err()
	}
}
