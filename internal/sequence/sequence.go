// Package sequence issues ticket ids of the form VOC-YYYYMMDD-NNNN, where
// NNNN is a per-day counter starting at 1.
package sequence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Generator produces the next ticket id for the given moment.
type Generator interface {
	Next(ctx context.Context, now time.Time) (string, error)
}

func format(day string, seq int64) string {
	return fmt.Sprintf("VOC-%s-%04d", day, seq)
}

// RedisGenerator allocates sequence numbers through Redis INCR on a
// per-day key, so concurrent instances never collide. Keys expire after
// two days; they are only needed for the day they count.
type RedisGenerator struct {
	client *redis.Client
	prefix string
}

// NewRedisGenerator constructs a generator on the given client.
func NewRedisGenerator(client *redis.Client) *RedisGenerator {
	return &RedisGenerator{client: client, prefix: "voc:ticket_seq:"}
}

func (g *RedisGenerator) Next(ctx context.Context, now time.Time) (string, error) {
	day := now.Format("20060102")
	key := g.prefix + day
	seq, err := g.client.Incr(ctx, key).Result()
	if err != nil {
		return "", fmt.Errorf("allocate ticket sequence: %w", err)
	}
	if seq == 1 {
		g.client.Expire(ctx, key, 48*time.Hour)
	}
	return format(day, seq), nil
}

// LocalGenerator is a process-local fallback used in tests and when Redis
// is not configured. Safe for concurrent use within one process only.
type LocalGenerator struct {
	mu   sync.Mutex
	day  string
	next int64
}

// NewLocalGenerator constructs an in-process generator.
func NewLocalGenerator() *LocalGenerator {
	return &LocalGenerator{}
}

func (g *LocalGenerator) Next(ctx context.Context, now time.Time) (string, error) {
	day := now.Format("20060102")
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.day != day {
		g.day = day
		g.next = 0
	}
	g.next++
	return format(day, g.next), nil
}
