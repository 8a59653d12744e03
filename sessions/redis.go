package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/GoCodeAlone/viewhost"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps sessions in Redis as JSON documents whose TTL follows the session
// MaxAge, so expiry needs no sweeping.
type RedisStore struct {
	options *redis.Options
	prefix  string

	mu     sync.RWMutex
	client *redis.Client
}

// NewRedisStore creates a store for the given redis:// URL.
func NewRedisStore(url, keyPrefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return NewRedisStoreWithOptions(opts, keyPrefix), nil
}

func NewRedisStoreWithOptions(opts *redis.Options, keyPrefix string) *RedisStore {
	return &RedisStore{options: opts, prefix: keyPrefix}
}

// Start connects and pings the server. It is idempotent.
func (s *RedisStore) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return nil
	}

	client := redis.NewClient(s.options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("connecting to redis at %s: %w", s.options.Addr, err)
	}
	s.client = client
	return nil
}

func (s *RedisStore) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	if err != nil {
		return fmt.Errorf("closing redis client: %w", err)
	}
	return nil
}

func (s *RedisStore) conn() (*redis.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil {
		return nil, ErrStoreStopped
	}
	return s.client, nil
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) Get(ctx context.Context, id string) (*viewhost.Session, error) {
	client, err := s.conn()
	if err != nil {
		return nil, err
	}

	data, err := client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, viewhost.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading session %s: %w", id, err)
	}

	var sess viewhost.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", id, err)
	}
	return &sess, nil
}

func (s *RedisStore) Save(ctx context.Context, sess *viewhost.Session) error {
	if sess == nil || sess.ID == "" {
		return ErrInvalidSession
	}
	client, err := s.conn()
	if err != nil {
		return err
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", sess.ID, err)
	}
	if err := client.Set(ctx, s.key(sess.ID), data, sess.MaxAge).Err(); err != nil {
		return fmt.Errorf("writing session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	client, err := s.conn()
	if err != nil {
		return err
	}
	if err := client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	return nil
}
