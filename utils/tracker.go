package utils

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const activityPrefix = "socialbbs:activity:"

// touchScript stores the new time only when it is later than the stored one.
var touchScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], ARGV[1])
if (not cur) or tonumber(cur) < tonumber(ARGV[2]) then
  redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
end
return 1
`)

// RedisTracker keeps per-member action timestamps in a Redis hash so they
// survive restarts and are shared between instances.
type RedisTracker struct {
	rc *redis.Client
}

func NewRedisTracker(rc *redis.Client) *RedisTracker {
	return &RedisTracker{rc: rc}
}

func activityHash(member uint) string {
	return activityPrefix + strconv.FormatUint(uint64(member), 10)
}

func (t *RedisTracker) Touch(ctx context.Context, member uint, action string, at time.Time) error {
	return touchScript.Run(ctx, t.rc, []string{activityHash(member)}, action, at.UnixNano()).Err()
}

func (t *RedisTracker) LastSeen(ctx context.Context, member uint, action string) (time.Time, bool, error) {
	v, err := t.rc.HGet(ctx, activityHash(member), action).Int64()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.Unix(0, v), true, nil
}
