package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
)

// ErrNoSession is returned when no session has been persisted.
var ErrNoSession = errors.New("auth: no persisted session")

// Store persists the session across restarts, the way the mobile client
// kept it in device storage.
type Store interface {
	Load(ctx context.Context) (*Session, error)
	Save(ctx context.Context, session *Session) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps the session in memory only.
type MemoryStore struct {
	mu      sync.Mutex
	session *Session
}

// NewMemoryStore creates an in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements Store.
func (s *MemoryStore) Load(ctx context.Context) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, ErrNoSession
	}
	copied := *s.session
	return &copied, nil
}

// Save implements Store.
func (s *MemoryStore) Save(ctx context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *session
	s.session = &copied
	return nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	return nil
}

// redisSessionKey is where the serialized session lives.
const redisSessionKey = "marketplace:session"

// RedisStore persists the session in Redis.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, key: redisSessionKey}
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context) (*Session, error) {
	raw, err := s.client.Get(ctx, s.key).Result()
	if err == redis.Nil {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	var session Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("failed to decode persisted session: %w", err)
	}
	return &session, nil
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, session *Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.client.Set(ctx, s.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

// Clear implements Store.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
