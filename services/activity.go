package services

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"
)

// ActionViewing is recorded for every feed query.
const ActionViewing = "viewing"

type activityCtxKey struct{}

// Activity collects the actions performed during one request. It is flushed
// to an ActivityTracker when the request ends and never outlives it.
type Activity struct {
	mu   sync.Mutex
	seen map[string]activityMark
}

type activityMark struct {
	member uint
	action string
	at     time.Time
}

// WithActivity attaches a fresh request activity cache to ctx.
func WithActivity(ctx context.Context) (context.Context, *Activity) {
	a := &Activity{seen: map[string]activityMark{}}
	return context.WithValue(ctx, activityCtxKey{}, a), a
}

// ActivityFrom returns the request activity cache of ctx, if any.
func ActivityFrom(ctx context.Context) *Activity {
	a, _ := ctx.Value(activityCtxKey{}).(*Activity)
	return a
}

// Mark records that member performed action. Repeated marks keep the latest time.
func (a *Activity) Mark(member uint, action string, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := activityKey(member, action)
	if prev, ok := a.seen[key]; ok && prev.at.After(at) {
		return
	}
	a.seen[key] = activityMark{member: member, action: action, at: at}
}

// Len returns the number of distinct (member, action) pairs recorded.
func (a *Activity) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.seen)
}

// Flush writes every recorded mark to t and empties the cache.
func (a *Activity) Flush(ctx context.Context, t ActivityTracker) error {
	a.mu.Lock()
	marks := a.seen
	a.seen = map[string]activityMark{}
	a.mu.Unlock()

	var errs []error
	for _, m := range marks {
		if err := t.Touch(ctx, m.member, m.action, m.at); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func activityKey(member uint, action string) string {
	return strconv.FormatUint(uint64(member), 10) + ":" + action
}
