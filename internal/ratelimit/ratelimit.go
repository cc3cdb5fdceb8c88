package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var incrWithTTLScript = redis.NewScript(`
local c = redis.call("INCR", KEYS[1])
if c == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return c
`)

// DailyBudget caps the number of turns per UTC calendar day using a
// fixed redis window. The counter key expires at midnight so unused
// budget never carries over.
type DailyBudget struct {
	redis *redis.Client
	limit int64
	now   func() time.Time
}

func NewDailyBudget(rdb *redis.Client, limit int64) *DailyBudget {
	return &DailyBudget{redis: rdb, limit: limit, now: time.Now}
}

func (d *DailyBudget) Allow(ctx context.Context) (bool, error) {
	now := d.now().UTC()
	dayStart := now.Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)
	ttl := int64(dayEnd.Sub(now).Seconds())
	if ttl < 1 {
		ttl = 1
	}

	key := fmt.Sprintf("lifelog:turns:%s", dayStart.Format("20060102"))
	used, err := incrWithTTLScript.Run(ctx, d.redis, []string{key}, ttl).Int64()
	if err != nil {
		return false, fmt.Errorf("turn budget script: %w", err)
	}
	return used <= d.limit, nil
}
