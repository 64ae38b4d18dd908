// internal/ratelimit/limiter.go
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter enforces the per-sender hourly send cap against Redis so the count
// holds across distributed workers.
//
// Buckets are fixed wall-clock hours (all sends between 14:00:00 and
// 14:59:59 share one bucket), not a sliding 60-minute window. A sender can
// therefore burst up to twice the cap across an hour boundary (cap at 13:59,
// cap again at 14:00). That boundary allowance is intentional; switching to
// a sliding window would change the semantics.
type Limiter struct {
	client     *redis.Client
	maxPerHour int

	// Lua script so the increment and the expiry refresh land as one atomic
	// unit. A plain INCR+EXPIRE pair can leave a bucket without a TTL if the
	// process dies between the two calls.
	incrScript *redis.Script

	now func() time.Time
}

const incrLuaScript = `
local count = redis.call("INCR", KEYS[1])
redis.call("EXPIRE", KEYS[1], ARGV[1])
return count
`

// New creates a limiter with the given hourly cap.
func New(client *redis.Client, maxPerHour int) *Limiter {
	return &Limiter{
		client:     client,
		maxPerHour: maxPerHour,
		incrScript: redis.NewScript(incrLuaScript),
		now:        time.Now,
	}
}

// Allow reports whether the sender still has budget in the current bucket.
// A missing bucket counts as zero.
func (l *Limiter) Allow(ctx context.Context, sender string) (bool, error) {
	count, err := l.client.Get(ctx, l.key(sender)).Int()
	if err == redis.Nil {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("rate limit lookup for %s: %w", sender, err)
	}
	return count < l.maxPerHour, nil
}

// Record consumes one unit of the sender's budget. Only called after a
// successful send, so a failed send never burns budget. The bucket's expiry
// is refreshed to the remainder of the current hour on every increment.
func (l *Limiter) Record(ctx context.Context, sender string) error {
	ttl := l.SecondsUntilNextWindow()
	_, err := l.incrScript.Run(ctx, l.client, []string{l.key(sender)}, ttl).Result()
	if err != nil {
		return fmt.Errorf("rate limit increment for %s: %w", sender, err)
	}
	return nil
}

// SecondsUntilNextWindow returns the seconds remaining until the top of the
// next hour, used to size the reschedule delay when the limiter denies.
func (l *Limiter) SecondsUntilNextWindow() int {
	now := l.now()
	nextHour := time.Date(now.Year(), now.Month(), now.Day(), now.Hour()+1, 0, 0, 0, now.Location())
	return int(math.Ceil(nextHour.Sub(now).Seconds()))
}

func (l *Limiter) key(sender string) string {
	now := l.now()
	return fmt.Sprintf("rate:%s:%s", sender, now.Format("2006-1-2-15"))
}
