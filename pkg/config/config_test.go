package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "env: dev\n")

	c, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if c.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", c.Port)
	}
	if c.RedisAddr != "localhost:6379" {
		t.Errorf("expected default redis addr, got %s", c.RedisAddr)
	}
	if c.PersistenceProvider != "memory" {
		t.Errorf("expected default persistence memory, got %s", c.PersistenceProvider)
	}
	if c.StreamHeartbeatSeconds != 15 {
		t.Errorf("expected default heartbeat 15, got %d", c.StreamHeartbeatSeconds)
	}
	if c.StreamBufferSize != 256 {
		t.Errorf("expected default buffer 256, got %d", c.StreamBufferSize)
	}
	if c.SnapshotTTLSeconds != 86400 {
		t.Errorf("expected default snapshot TTL, got %d", c.SnapshotTTLSeconds)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("dev config should validate: %v", err)
	}
}

func TestLoadConfigValues(t *testing.T) {
	path := writeConfig(t, `
port: 9090
redisAddr: redis:6380
persistenceProvider: redis
snapshotTTLSeconds: 120
env: prod
agentAuthProvider: static
agentAuthConfig: '{"token":"a"}'
clientAuthProvider: static
clientAuthConfig: '{"token":"c"}'
rateLimit:
  ingest:
    requestsPerMinute: 600
    burstSize: 50
streamBufferSize: 64
`)

	c, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if c.Port != 9090 {
		t.Errorf("expected port 9090, got %d", c.Port)
	}
	if c.PersistenceProvider != "redis" {
		t.Errorf("expected redis provider, got %s", c.PersistenceProvider)
	}
	if c.RateLimit.Ingest.RequestsPerMinute != 600 || c.RateLimit.Ingest.BurstSize != 50 {
		t.Errorf("unexpected ingest bucket: %+v", c.RateLimit.Ingest)
	}
	if c.StreamBufferSize != 64 {
		t.Errorf("expected buffer 64, got %d", c.StreamBufferSize)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("config should validate: %v", err)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	path := writeConfig(t, "port: 9090\n")

	t.Setenv("PORT", "7070")
	t.Setenv("PERSISTENCE_PROVIDER", "redis")

	c, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if c.Port != 7070 {
		t.Errorf("expected env override port 7070, got %d", c.Port)
	}
	if c.PersistenceProvider != "redis" {
		t.Errorf("expected env override provider redis, got %s", c.PersistenceProvider)
	}
}

func TestLoadConfigOptionalMissingFile(t *testing.T) {
	c, err := LoadConfigOptional(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfigOptional: %v", err)
	}
	if c.Port != 8080 {
		t.Errorf("expected defaults for missing file, got port %d", c.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "dev without auth providers",
			mutate: func(c *Config) { c.Env = "dev" },
		},
		{
			name:    "prod without auth providers",
			mutate:  func(c *Config) { c.Env = "prod" },
			wantErr: true,
		},
		{
			name: "prod with auth providers",
			mutate: func(c *Config) {
				c.Env = "prod"
				c.AgentAuthProvider = "jwks"
				c.ClientAuthProvider = "jwks"
			},
		},
		{
			name: "unknown persistence provider",
			mutate: func(c *Config) {
				c.PersistenceProvider = "dynamo"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := LoadConfigOptional("")
			if err != nil {
				t.Fatalf("LoadConfigOptional: %v", err)
			}
			tt.mutate(c)
			err = c.Validate()
			if tt.wantErr && err == nil {
				t.Errorf("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}
