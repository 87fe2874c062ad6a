package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionIDCookie names the cookie that ties a browser to its redis entries.
const SessionIDCookie = "eventsweb_sid"

const redisKeyPrefix = "eventsweb:session:"

// RedisClient is the subset of *redis.Client the storage uses.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// NewRedisClient connects to the redis server at rawURL and checks it answers.
func NewRedisClient(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisStorage stores entries under one namespace in redis.
type RedisStorage struct {
	client    RedisClient
	namespace string
	ttl       time.Duration
}

// NewRedisStorage returns storage for namespace. A zero ttl keeps entries
// until they are removed.
func NewRedisStorage(client RedisClient, namespace string, ttl time.Duration) *RedisStorage {
	return &RedisStorage{client: client, namespace: namespace, ttl: ttl}
}

func (s *RedisStorage) key(key string) string {
	return redisKeyPrefix + s.namespace + ":" + key
}

func (s *RedisStorage) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *RedisStorage) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStorage) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// RedisSessions is a Factory keeping entries in redis. The browser only holds
// a random session id cookie, issued on the first write.
type RedisSessions struct {
	client RedisClient
	opts   CookieOptions
}

// NewRedisSessions builds a redis-backed Factory. Entries live as long as
// the session id cookie.
func NewRedisSessions(client RedisClient, opts CookieOptions) *RedisSessions {
	opts.HTTPOnly = true
	return &RedisSessions{client: client, opts: opts.withDefaults()}
}

func (f *RedisSessions) Storage(w http.ResponseWriter, r *http.Request) Storage {
	s := &browserRedisStorage{factory: f, w: w}
	if cookie, err := r.Cookie(SessionIDCookie); err == nil {
		if id, err := uuid.Parse(cookie.Value); err == nil {
			s.id = id.String()
		}
	}
	return s
}

type browserRedisStorage struct {
	factory *RedisSessions
	w       http.ResponseWriter

	mu sync.Mutex
	id string
}

func (s *browserRedisStorage) storage(create bool) *RedisStorage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id == "" {
		if !create {
			return nil
		}
		s.id = uuid.NewString()
		http.SetCookie(s.w, s.factory.opts.cookie(SessionIDCookie, s.id))
	}
	return NewRedisStorage(s.factory.client, s.id, s.factory.opts.MaxAge)
}

func (s *browserRedisStorage) Get(ctx context.Context, key string) (string, bool, error) {
	rs := s.storage(false)
	if rs == nil {
		return "", false, nil
	}
	return rs.Get(ctx, key)
}

func (s *browserRedisStorage) Set(ctx context.Context, key, value string) error {
	return s.storage(true).Set(ctx, key, value)
}

func (s *browserRedisStorage) Remove(ctx context.Context, key string) error {
	rs := s.storage(false)
	if rs == nil {
		return nil
	}
	return rs.Remove(ctx, key)
}
