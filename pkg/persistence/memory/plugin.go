package memory

import (
	"context"
	"sync"
	"time"

	"github.com/threadview/threadview/pkg/persistence"
)

type entry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// Plugin implements the KV port in process memory. It exists for tests
// and single-node dev setups; snapshots do not survive a restart.
type Plugin struct {
	mu         sync.RWMutex
	entries    map[string]entry
	defaultTTL time.Duration
	now        func() time.Time
}

// NewPlugin creates a new in-memory persistence plugin.
func NewPlugin(config persistence.PluginConfig) (persistence.KV, error) {
	return &Plugin{
		entries:    make(map[string]entry),
		defaultTTL: config.DefaultTTL,
		now:        time.Now,
	}, nil
}

func (p *Plugin) Get(ctx context.Context, key string) ([]byte, error) {
	p.mu.RLock()
	e, ok := p.entries[key]
	p.mu.RUnlock()

	if !ok {
		return nil, persistence.ErrNotFound
	}
	if !e.expiresAt.IsZero() && p.now().After(e.expiresAt) {
		p.mu.Lock()
		delete(p.entries, key)
		p.mu.Unlock()
		return nil, persistence.ErrNotFound
	}

	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (p *Plugin) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = p.defaultTTL
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = p.now().Add(ttl)
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[key] = entry{value: stored, expiresAt: expiresAt}
	return nil
}

func (p *Plugin) Delete(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, key)
	return nil
}

func (p *Plugin) Clear(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = make(map[string]entry)
	return nil
}

// Health always returns nil for in-memory storage.
func (p *Plugin) Health(ctx context.Context) error {
	return nil
}

// Close is a no-op for in-memory storage.
func (p *Plugin) Close() error {
	return nil
}

func init() {
	persistence.RegisterProvider("memory", NewPlugin)
}
