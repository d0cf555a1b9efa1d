// Package quota enforces a per-platform daily budget of provider API calls.
package quota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/TobiSchelling/Supernova/internal/social"
)

// Limiter decides whether one more API call may be made for a platform.
type Limiter interface {
	Allow(ctx context.Context, p social.Platform) (bool, error)
}

// dayKey buckets calls per UTC calendar day.
func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Memory is a process-local Limiter with a fixed daily window.
// A limit of zero or less never denies.
type Memory struct {
	mu     sync.Mutex
	limit  int
	now    func() time.Time
	day    string
	counts map[social.Platform]int
}

// NewMemory creates an in-memory limiter. A nil now uses time.Now.
func NewMemory(limit int, now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{limit: limit, now: now, counts: make(map[social.Platform]int)}
}

// Allow counts the call and reports whether it fits in today's budget.
func (m *Memory) Allow(_ context.Context, p social.Platform) (bool, error) {
	if m.limit <= 0 {
		return true, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if d := dayKey(m.now()); d != m.day {
		m.day = d
		m.counts = make(map[social.Platform]int)
	}
	m.counts[p]++
	return m.counts[p] <= m.limit, nil
}

// keyTTL outlives the day a counter key is named after.
const keyTTL = 25 * time.Hour

// Redis shares the daily budget between processes. INCR and EXPIRE run in
// one MULTI/EXEC so a counter never exists without a TTL.
// When Redis is unreachable calls are allowed and the failure is logged.
type Redis struct {
	rdb    *redis.Client
	limit  int
	now    func() time.Time
	logger *zap.Logger
}

// NewRedis creates a Redis-backed limiter.
func NewRedis(rdb *redis.Client, limit int, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{rdb: rdb, limit: limit, now: time.Now, logger: logger}
}

// Allow counts the call in Redis and reports whether it fits in today's
// budget.
func (r *Redis) Allow(ctx context.Context, p social.Platform) (bool, error) {
	if r.limit <= 0 {
		return true, nil
	}
	if r.rdb == nil {
		return false, fmt.Errorf("redis client is nil")
	}

	key := fmt.Sprintf("supernova:quota:%s:%s", p, dayKey(r.now()))
	var incr *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, keyTTL)
		return nil
	})
	if err != nil {
		r.logger.Warn("quota store unavailable, allowing call",
			zap.String("platform", string(p)), zap.String("key", key), zap.Error(err))
		return true, nil
	}
	return incr.Val() <= int64(r.limit), nil
}
