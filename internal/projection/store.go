package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("projection miss")

// Store is the interface for projection persistence (Redis-backed in production).
//
// Counters version cached keys: Bump invalidates keys and moves their
// counter forward, and SetIfCounter only fills a key while its counter still
// holds the value read before the source was loaded. An absent counter reads
// as zero.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error

	Counter(ctx context.Context, counter string) (int64, error)
	Bump(ctx context.Context, counter string, keys ...string) error
	SetIfCounter(ctx context.Context, key string, value []byte, ttl time.Duration, counter string, want int64) (bool, error)
}

// counterTTL bounds how long an idle counter is kept.
const counterTTL = 24 * time.Hour

// InMemoryStore is a simple in-memory projection store for development/testing.
type InMemoryStore struct {
	mu       sync.Mutex
	data     map[string]entry
	counters map[string]int64
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// NewInMemoryStore creates a new in-memory projection store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{data: make(map[string]entry), counters: make(map[string]int64)}
}

func (s *InMemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMiss, key)
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(s.data, key)
		return nil, fmt.Errorf("%w: %s expired", ErrMiss, key)
	}
	return e.value, nil
}

func (s *InMemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	s.mu.Lock()
	s.data[key] = entry{value: value, expiresAt: exp}
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	for _, k := range keys {
		delete(s.data, k)
	}
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) Counter(_ context.Context, counter string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[counter], nil
}

func (s *InMemoryStore) Bump(_ context.Context, counter string, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[counter]++
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

func (s *InMemoryStore) SetIfCounter(_ context.Context, key string, value []byte, ttl time.Duration, counter string, want int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counters[counter] != want {
		return false, nil
	}
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	s.data[key] = entry{value: value, expiresAt: exp}
	return true, nil
}

// RedisStore keeps projections in Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps a go-redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrMiss, key)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *RedisStore) Counter(ctx context.Context, counter string) (int64, error) {
	n, err := s.client.Get(ctx, counter).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get counter %s: %w", counter, err)
	}
	return n, nil
}

func (s *RedisStore) Bump(ctx context.Context, counter string, keys ...string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, counter)
		pipe.Expire(ctx, counter, counterTTL)
		if len(keys) > 0 {
			pipe.Del(ctx, keys...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis bump %s: %w", counter, err)
	}
	return nil
}

// setIfCounter writes KEYS[1] only while KEYS[2] still reads ARGV[3].
var setIfCounter = redis.NewScript(`
local current = redis.call("GET", KEYS[2]) or "0"
if current ~= ARGV[3] then
	return 0
end
if tonumber(ARGV[2]) > 0 then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
else
	redis.call("SET", KEYS[1], ARGV[1])
end
return 1`)

func (s *RedisStore) SetIfCounter(ctx context.Context, key string, value []byte, ttl time.Duration, counter string, want int64) (bool, error) {
	n, err := setIfCounter.Run(ctx, s.client, []string{key, counter},
		value, ttl.Milliseconds(), strconv.FormatInt(want, 10)).Int()
	if err != nil {
		return false, fmt.Errorf("redis set %s: %w", key, err)
	}
	return n == 1, nil
}

// SetJSON is a convenience helper to serialize and store a value.
func SetJSON(ctx context.Context, store Store, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal projection: %w", err)
	}
	return store.Set(ctx, key, data, ttl)
}

// GetJSON is a convenience helper to retrieve and deserialize a value.
func GetJSON(ctx context.Context, store Store, key string, dest interface{}) error {
	data, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}
