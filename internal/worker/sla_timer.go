package worker

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTimerKey = "ombudsman:sla:timers"

// DueTimer is one expired SLA deadline.
type DueTimer struct {
	CaseID string
	Due    time.Time
}

// TimerQueue stores one pending deadline per case.
type TimerQueue interface {
	ScheduleAt(ctx context.Context, due time.Time, caseID string, queueID *string) error
	PopDue(ctx context.Context, now time.Time, limit int) ([]DueTimer, error)
	Restore(ctx context.Context, t DueTimer) error
}

// popDueScript removes and returns expired members in one round trip so
// concurrent pollers never deliver the same deadline twice.
var popDueScript = redis.NewScript(`
local items = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "WITHSCORES", "LIMIT", 0, ARGV[2])
for i = 1, #items, 2 do
  redis.call("ZREM", KEYS[1], items[i])
end
return items
`)

// RedisTimerQueue keeps deadlines in a sorted set scored by unix micros.
type RedisTimerQueue struct {
	client *redis.Client
	key    string
}

// NewRedisTimerQueue builds the redis-backed queue.
func NewRedisTimerQueue(client *redis.Client, key string) *RedisTimerQueue {
	if key == "" {
		key = defaultTimerKey
	}
	return &RedisTimerQueue{client: client, key: key}
}

// ScheduleAt replaces the pending deadline of caseID.
func (q *RedisTimerQueue) ScheduleAt(ctx context.Context, due time.Time, caseID string, _ *string) error {
	return q.client.ZAdd(ctx, q.key, redis.Z{Score: float64(due.UnixMicro()), Member: caseID}).Err()
}

// PopDue removes up to limit deadlines at or before now.
func (q *RedisTimerQueue) PopDue(ctx context.Context, now time.Time, limit int) ([]DueTimer, error) {
	res, err := popDueScript.Run(ctx, q.client, []string{q.key}, now.UnixMicro(), limit).StringSlice()
	if err != nil {
		return nil, err
	}
	out := make([]DueTimer, 0, len(res)/2)
	for i := 0; i+1 < len(res); i += 2 {
		micros, err := strconv.ParseFloat(res[i+1], 64)
		if err != nil {
			continue
		}
		out = append(out, DueTimer{CaseID: res[i], Due: time.UnixMicro(int64(micros)).UTC()})
	}
	return out, nil
}

// Restore puts a deadline back unless the case was re-armed meanwhile.
func (q *RedisTimerQueue) Restore(ctx context.Context, t DueTimer) error {
	return q.client.ZAddNX(ctx, q.key, redis.Z{Score: float64(t.Due.UnixMicro()), Member: t.CaseID}).Err()
}

// MemoryTimerQueue is the in-process queue used when redis is not configured.
// Pending deadlines do not survive a restart.
type MemoryTimerQueue struct {
	mu      sync.Mutex
	pending map[string]time.Time
}

// NewMemoryTimerQueue builds an empty queue.
func NewMemoryTimerQueue() *MemoryTimerQueue {
	return &MemoryTimerQueue{pending: make(map[string]time.Time)}
}

func (q *MemoryTimerQueue) ScheduleAt(_ context.Context, due time.Time, caseID string, _ *string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending[caseID] = due.UTC()
	return nil
}

func (q *MemoryTimerQueue) PopDue(_ context.Context, now time.Time, limit int) ([]DueTimer, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []DueTimer
	for id, due := range q.pending {
		if !due.After(now) {
			out = append(out, DueTimer{CaseID: id, Due: due})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Due.Before(out[j].Due) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for _, t := range out {
		delete(q.pending, t.CaseID)
	}
	return out, nil
}

func (q *MemoryTimerQueue) Restore(_ context.Context, t DueTimer) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.pending[t.CaseID]; !ok {
		q.pending[t.CaseID] = t.Due
	}
	return nil
}
