package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// NumberSource hands out queue numbers. Numbers are scoped to a
// (doctor, day) pair, start at 1, strictly increase in join order and are
// never reused within the scope.
type NumberSource interface {
	Next(ctx context.Context, doctorID string, day time.Time) (int, error)
}

const dayFormat = "2006-01-02"

func sequenceScope(doctorID string, day time.Time) string {
	return doctorID + "|" + day.UTC().Format(dayFormat)
}

// LocalNumberSource allocates queue numbers from in-process counters.
// Suitable for a single API process in front of the in-memory store.
type LocalNumberSource struct {
	mu       sync.Mutex
	counters map[string]int
}

// NewLocalNumberSource creates an in-process allocator.
func NewLocalNumberSource() *LocalNumberSource {
	return &LocalNumberSource{counters: make(map[string]int)}
}

// Next returns the next number for the doctor's day.
func (s *LocalNumberSource) Next(ctx context.Context, doctorID string, day time.Time) (int, error) {
	scope := sequenceScope(doctorID, day)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[scope]++
	return s.counters[scope], nil
}

// RedisNumberSource allocates queue numbers with INCR so several API
// processes sharing one Redis agree on the sequence. Keys expire after the
// clinic day is long over; the counter is an allocator, not the store of
// record.
type RedisNumberSource struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisNumberSource creates a Redis-backed allocator.
func NewRedisNumberSource(rdb *redis.Client) *RedisNumberSource {
	return &RedisNumberSource{rdb: rdb, ttl: 48 * time.Hour}
}

func (s *RedisNumberSource) key(doctorID string, day time.Time) string {
	return fmt.Sprintf("navbat:seq:%s:%s", doctorID, day.UTC().Format(dayFormat))
}

// Next increments the scoped counter, stamping the TTL on first use.
func (s *RedisNumberSource) Next(ctx context.Context, doctorID string, day time.Time) (int, error) {
	key := s.key(doctorID, day)
	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: allocate number: %w", err)
	}
	if n == 1 {
		if err := s.rdb.Expire(ctx, key, s.ttl).Err(); err != nil {
			return 0, fmt.Errorf("queue: set number ttl: %w", err)
		}
	}
	return int(n), nil
}

var (
	_ NumberSource = (*LocalNumberSource)(nil)
	_ NumberSource = (*RedisNumberSource)(nil)
)
