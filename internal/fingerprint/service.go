package fingerprint

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/simlive/internal/domain"
	"github.com/victornm/simlive/internal/event"
)

const defaultTTL = 30 * time.Second

// putScript stores the fingerprint only when its revision is newer than the cached one,
// so refreshes finishing out of order never move the cache backwards.
var putScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'rev')
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'rev', ARGV[1], 'fp', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// Source computes a fingerprint from the authoritative store.
type Source interface {
	Fingerprint(ctx context.Context, sessionID string) (domain.Fingerprint, error)
}

type Config struct {
	EventBus *event.Bus
	Source   Source
	Redis    redis.UniversalClient
	Prefix   string
	TTL      time.Duration
}

// Service caches session fingerprints in Redis so pollers do not hit the store every tick.
type Service struct {
	src    Source
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewService(c Config) *Service {
	s := &Service{
		src:    c.Source,
		redis:  c.Redis,
		prefix: c.Prefix,
		ttl:    c.TTL,
	}
	if s.ttl <= 0 {
		s.ttl = defaultTTL
	}

	c.EventBus.Subscribe(func(ctx context.Context, e event.Event) error {
		m, ok := e.(interface{ Meta() domain.EventMeta })
		if !ok {
			return nil
		}
		// A failed refresh drops the entry so the next Get reads the store instead of a stale value.
		id := m.Meta().SessionID
		if _, err := s.Refresh(ctx, id); err != nil {
			return stderrors.Join(err, s.Invalidate(ctx, id))
		}
		return nil
	}, domain.SessionEventNames...)

	return s
}

// Get returns the fingerprint of a session, computing and caching it on a miss.
func (s *Service) Get(ctx context.Context, sessionID string) (string, error) {
	fp, err := s.redis.HGet(ctx, s.key(sessionID), "fp").Result()
	if err == nil {
		return fp, nil
	}
	if !stderrors.Is(err, redis.Nil) {
		return "", fmt.Errorf("get fingerprint: %w", err)
	}

	return s.Refresh(ctx, sessionID)
}

// Refresh recomputes the fingerprint from the store and caches it.
func (s *Service) Refresh(ctx context.Context, sessionID string) (string, error) {
	f, err := s.src.Fingerprint(ctx, sessionID)
	if err != nil {
		return "", err
	}

	if _, err := s.Put(ctx, sessionID, f); err != nil {
		return "", err
	}

	return f.Sum(), nil
}

// Put caches f unless a newer revision is already cached. It reports whether f was stored.
func (s *Service) Put(ctx context.Context, sessionID string, f domain.Fingerprint) (bool, error) {
	n, err := putScript.Run(ctx, s.redis, []string{s.key(sessionID)},
		strconv.FormatInt(f.Revision, 10),
		f.Sum(),
		s.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("put fingerprint: %w", err)
	}

	return n == 1, nil
}

// Invalidate removes the cached fingerprint of a session.
func (s *Service) Invalidate(ctx context.Context, sessionID string) error {
	if err := s.redis.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("invalidate fingerprint: %w", err)
	}
	return nil
}

func (s *Service) key(sessionID string) string {
	return fmt.Sprintf("%s:%s:fingerprint", s.prefix, sessionID)
}
