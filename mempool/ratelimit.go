package mempool

import (
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v7"
	"golang.org/x/time/rate"
)

// SubmissionLimiter enforces spec.md §4.5 admission rule 7, a per-account
// hourly submission budget of N, without an unbounded per-submission
// vector. Neither implementation is a strict rolling-hour window:
// localLimiter is a token bucket (burst N, refill N per hour), so up to
// about 2N submissions can pass within one rolling hour; redisLimiter
// counts per UTC clock hour, so up to 2N can pass across an hour boundary.
type SubmissionLimiter interface {
	// Allow reports whether sender may submit another transaction right now,
	// and records the attempt if so.
	Allow(sender string) bool
}

// localLimiter backs the rolling-hour window with one token bucket per
// sender (golang.org/x/time/rate), refilling at maxPerHour/hour
// and holding a burst of maxPerHour — the single-process default.
type localLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func newLocalLimiter(maxPerHour int) *localLimiter {
	return &localLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(float64(maxPerHour) / time.Hour.Seconds()),
		burst:    maxPerHour,
	}
}

func (l *localLimiter) Allow(sender string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[sender]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burst)
		l.limiters[sender] = lim
	}
	return lim.Allow()
}

// redisLimiter implements the same rolling-hour budget against a shared
// Redis instance (github.com/go-redis/redis/v7) via a fixed-window counter:
// INCR the per-sender-per-hour-bucket key, setting a one-hour expiry on the
// first increment. This is the distributed-deployment alternative to
// localLimiter when multiple mempool processes share one account universe.
type redisLimiter struct {
	client     *redis.Client
	maxPerHour int64
	keyPrefix  string
}

// NewRedisSubmissionLimiter builds a SubmissionLimiter backed by client.
func NewRedisSubmissionLimiter(client *redis.Client, maxPerHour int, keyPrefix string) SubmissionLimiter {
	return &redisLimiter{client: client, maxPerHour: int64(maxPerHour), keyPrefix: keyPrefix}
}

func (l *redisLimiter) Allow(sender string) bool {
	bucket := time.Now().UTC().Truncate(time.Hour).Unix()
	key := l.keyPrefix + sender + ":" + strconv.FormatInt(bucket, 10)

	count, err := l.client.Incr(key).Result()
	if err != nil {
		// Fail open: a Redis outage must not halt admission entirely, since
		// the mempool's structural and balance checks still apply.
		return true
	}
	if count == 1 {
		l.client.Expire(key, time.Hour)
	}
	return count <= l.maxPerHour
}
