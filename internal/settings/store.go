package settings

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Store persists the routing configuration.
type Store interface {
	Load(ctx context.Context) (RoutingConfig, error)
	Save(ctx context.Context, c RoutingConfig) error
}

// MemoryStore keeps the configuration in process memory.
type MemoryStore struct {
	mu  sync.RWMutex
	cfg RoutingConfig
}

func NewMemoryStore(initial RoutingConfig) *MemoryStore { return &MemoryStore{cfg: initial} }

func (s *MemoryStore) Load(ctx context.Context) (RoutingConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg, nil
}

func (s *MemoryStore) Save(ctx context.Context, c RoutingConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = c
	return nil
}

// RedisStore keeps the configuration in a Redis hash so it survives restarts.
// A missing hash loads as the fallback configuration.
type RedisStore struct {
	rdb      redis.Cmdable
	key      string
	fallback RoutingConfig
}

const (
	fieldEnabled          = "enabled"
	fieldBackendURL       = "backend_url"
	fieldAPIKey           = "api_key"
	fieldAutoReject       = "auto_reject"
	fieldForwardToBackend = "forward_to_backend"
)

func NewRedisStore(rdb redis.Cmdable, deviceID string, fallback RoutingConfig) *RedisStore {
	return &RedisStore{rdb: rdb, key: RedisKey(deviceID), fallback: fallback}
}

func RedisKey(deviceID string) string { return "callshield:settings:" + deviceID }

func (s *RedisStore) Load(ctx context.Context) (RoutingConfig, error) {
	m, err := s.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		return RoutingConfig{}, fmt.Errorf("settings: load %s: %w", s.key, err)
	}
	if len(m) == 0 {
		return s.fallback, nil
	}
	return decodeHash(m, s.fallback), nil
}

func (s *RedisStore) Save(ctx context.Context, c RoutingConfig) error {
	if err := s.rdb.HSet(ctx, s.key, encodeHash(c)).Err(); err != nil {
		return fmt.Errorf("settings: save %s: %w", s.key, err)
	}
	return nil
}

func encodeHash(c RoutingConfig) map[string]any {
	return map[string]any{
		fieldEnabled:          strconv.FormatBool(c.Enabled),
		fieldBackendURL:       c.BackendURL,
		fieldAPIKey:           c.APIKey,
		fieldAutoReject:       strconv.FormatBool(c.AutoReject),
		fieldForwardToBackend: strconv.FormatBool(c.ForwardToBackend),
	}
}

func decodeHash(m map[string]string, fallback RoutingConfig) RoutingConfig {
	c := fallback
	c.Enabled = parseBool(m[fieldEnabled], fallback.Enabled)
	if v, ok := m[fieldBackendURL]; ok && v != "" {
		c.BackendURL = v
	}
	if v, ok := m[fieldAPIKey]; ok {
		c.APIKey = v
	}
	c.AutoReject = parseBool(m[fieldAutoReject], fallback.AutoReject)
	c.ForwardToBackend = parseBool(m[fieldForwardToBackend], fallback.ForwardToBackend)
	return c
}

func parseBool(s string, def bool) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return b
}
