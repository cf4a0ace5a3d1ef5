// Package unread keeps per-recipient unread notification counters in Redis
// in front of a store.Store.
package unread

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const DefaultTTL = 24 * time.Hour

// Every counter has a generation key next to it. Writers bump it; a reader
// only caches a count it loaded if the generation did not move meanwhile.

// incrIfPresent only bumps counters that were already loaded; a missing key
// is recounted from the store on the next read.
var incrIfPresent = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  redis.call('INCR', KEYS[1])
end
redis.call('INCR', KEYS[2])
redis.call('PEXPIRE', KEYS[2], ARGV[1])
return 1
`)

var dropCounter = redis.NewScript(`
redis.call('DEL', KEYS[1])
redis.call('INCR', KEYS[2])
redis.call('PEXPIRE', KEYS[2], ARGV[1])
return 1
`)

// fillIfCurrent stores a loaded count unless a writer ran since ARGV[1] was read.
var fillIfCurrent = redis.NewScript(`
local gen = redis.call('GET', KEYS[2]) or '0'
if gen ~= ARGV[1] then
  return 0
end
if redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3], 'NX') then
  return 1
end
return 0
`)

// Store decorates a store.Store. Redis failures are logged and fall back to
// the wrapped store; they never fail a write.
type Store struct {
	store.Store
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ store.Store = (*Store)(nil)

func New(inner store.Store, client *redis.Client, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = "relay:unread:"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{Store: inner, client: client, prefix: prefix, ttl: ttl}
}

func (s *Store) key(u domain.UserID) string {
	return s.prefix + string(u)
}

func (s *Store) keys(u domain.UserID) []string {
	k := s.key(u)
	return []string{k, k + ":gen"}
}

func (s *Store) SaveNotification(ctx context.Context, recipient domain.UserID, messageID string, room domain.RoomID, kind domain.NotificationKind) (string, error) {
	id, err := s.Store.SaveNotification(ctx, recipient, messageID, room, kind)
	if err != nil {
		return "", err
	}
	if err := incrIfPresent.Run(ctx, s.client, s.keys(recipient), s.ttl.Milliseconds()).Err(); err != nil {
		log.Warn().Str("module", "unread").Str("user", string(recipient)).Err(err).Msg("incr failed")
		s.invalidate(ctx, recipient)
	}
	return id, nil
}

func (s *Store) MarkNotificationsRead(ctx context.Context, recipient domain.UserID, kind domain.NotificationKind, room domain.RoomID) (int64, error) {
	n, err := s.Store.MarkNotificationsRead(ctx, recipient, kind, room)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.invalidate(ctx, recipient)
	}
	return n, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, recipient domain.UserID, id string) (*domain.Notification, error) {
	n, err := s.Store.MarkNotificationRead(ctx, recipient, id)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, recipient)
	return n, nil
}

// UnreadCount serves the counter from Redis, loading it from the store on a miss.
func (s *Store) UnreadCount(ctx context.Context, recipient domain.UserID) (int64, error) {
	n, err := s.client.Get(ctx, s.key(recipient)).Int64()
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, redis.Nil) {
		log.Warn().Str("module", "unread").Str("user", string(recipient)).Err(err).Msg("get failed")
	}

	gen, genErr := s.generation(ctx, recipient)
	n, err = s.Store.UnreadCount(ctx, recipient)
	if err != nil {
		return 0, err
	}
	if genErr == nil {
		s.fill(ctx, recipient, gen, n)
	}
	return n, nil
}

func (s *Store) generation(ctx context.Context, u domain.UserID) (string, error) {
	gen, err := s.client.Get(ctx, s.keys(u)[1]).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	if err != nil {
		log.Warn().Str("module", "unread").Str("user", string(u)).Err(err).Msg("get generation failed")
		return "", err
	}
	return gen, nil
}

func (s *Store) fill(ctx context.Context, u domain.UserID, gen string, n int64) bool {
	ok, err := fillIfCurrent.Run(ctx, s.client, s.keys(u), gen, n, s.ttl.Milliseconds()).Int()
	if err != nil {
		log.Warn().Str("module", "unread").Str("user", string(u)).Err(err).Msg("set failed")
		return false
	}
	return ok == 1
}

func (s *Store) invalidate(ctx context.Context, u domain.UserID) {
	if err := dropCounter.Run(ctx, s.client, s.keys(u), s.ttl.Milliseconds()).Err(); err != nil {
		log.Warn().Str("module", "unread").Str("user", string(u)).Err(err).Msg("del failed")
	}
}

// Close closes the wrapped store and the Redis client.
func (s *Store) Close() error {
	return errors.Join(s.Store.Close(), s.client.Close())
}

// Connect dials Redis and pings it.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}
