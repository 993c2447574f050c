package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/threadview/threadview/pkg/persistence"

	"github.com/go-redis/redis/v8"
)

// Config holds Redis-specific configuration.
type Config struct {
	Addr     string `json:"addr"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
}

// Plugin implements the KV port on Redis. Keys are namespaced so a
// shared instance can host multiple deployments.
type Plugin struct {
	client     *redis.Client
	namespace  string
	defaultTTL time.Duration
}

// NewPlugin creates a new Redis persistence plugin.
func NewPlugin(config persistence.PluginConfig) (persistence.KV, error) {
	var cfg Config
	if len(config.Config) > 0 {
		if err := json.Unmarshal(config.Config, &cfg); err != nil {
			return nil, err
		}
	}
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}

	namespace := strings.TrimSpace(config.Namespace)
	if namespace == "" {
		namespace = "tv"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Plugin{
		client:     client,
		namespace:  namespace,
		defaultTTL: config.DefaultTTL,
	}, nil
}

// NewPluginWithClient wraps an existing client; used by tests and by
// callers that share one connection pool across components.
func NewPluginWithClient(client *redis.Client, namespace string, defaultTTL time.Duration) *Plugin {
	if strings.TrimSpace(namespace) == "" {
		namespace = "tv"
	}
	return &Plugin{client: client, namespace: namespace, defaultTTL: defaultTTL}
}

func (p *Plugin) key(key string) string {
	return p.namespace + ":" + key
}

func (p *Plugin) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := p.client.Get(ctx, p.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (p *Plugin) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = p.defaultTTL
	}
	return p.client.Set(ctx, p.key(key), value, ttl).Err()
}

func (p *Plugin) Delete(ctx context.Context, key string) error {
	return p.client.Del(ctx, p.key(key)).Err()
}

// Clear removes all keys in the namespace with a cursor scan; SCAN
// keeps this safe on instances shared with other data.
func (p *Plugin) Clear(ctx context.Context) error {
	var cursor uint64
	pattern := p.namespace + ":*"
	for {
		keys, next, err := p.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := p.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Health checks if Redis is reachable.
func (p *Plugin) Health(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close releases the Redis connection.
func (p *Plugin) Close() error {
	return p.client.Close()
}

func init() {
	persistence.RegisterProvider("redis", NewPlugin)
}
