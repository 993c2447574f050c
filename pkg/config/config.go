package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type RateLimitBucketConfig struct {
	RequestsPerMinute int `yaml:"requestsPerMinute"`
	BurstSize         int `yaml:"burstSize"`
}

type RateLimitConfig struct {
	Ingest RateLimitBucketConfig `yaml:"ingest"`
	Resume RateLimitBucketConfig `yaml:"resume"`
	Admin  RateLimitBucketConfig `yaml:"admin"`
}

type Config struct {
	Port          int    `yaml:"port"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDB"`

	// PersistenceProvider selects the snapshot store plugin (memory, redis).
	PersistenceProvider string `yaml:"persistenceProvider"`
	SnapshotNamespace   string `yaml:"snapshotNamespace"`
	SnapshotTTLSeconds  int    `yaml:"snapshotTTLSeconds"`

	Timezone  string `yaml:"timezone"`
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
	Env       string `yaml:"env"`

	// AgentAuthConfig and ClientAuthConfig are raw JSON passed to the
	// selected auth provider factory.
	AgentAuthProvider  string `yaml:"agentAuthProvider"`
	AgentAuthConfig    string `yaml:"agentAuthConfig"`
	ClientAuthProvider string `yaml:"clientAuthProvider"`
	ClientAuthConfig   string `yaml:"clientAuthConfig"`

	AllowedClockSkewSeconds int `yaml:"allowedClockSkewSeconds"`

	RateLimit RateLimitConfig `yaml:"rateLimit"`

	StreamHeartbeatSeconds int `yaml:"streamHeartbeatSeconds"`
	StreamBufferSize       int `yaml:"streamBufferSize"`

	TracingEnabled      bool    `yaml:"tracingEnabled"`
	TracingOTLPEndpoint string  `yaml:"tracingOtlpEndpoint"`
	TracingOTLPInsecure bool    `yaml:"tracingOtlpInsecure"`
	TracingSampleRatio  float64 `yaml:"tracingSampleRatio"`

	PreviewCodeStyle string `yaml:"previewCodeStyle"`
}

// LoadConfigOptional behaves like LoadConfig but treats a missing file as an
// empty config, so the service can run on env vars and defaults alone.
func LoadConfigOptional(filePath string) (*Config, error) {
	if filePath == "" {
		return loadFromBytes(nil)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return loadFromBytes(nil)
		}
		return nil, err
	}
	return loadFromBytes(data)
}

func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return loadFromBytes(data)
}

func loadFromBytes(data []byte) (*Config, error) {
	var c Config
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, err
		}
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if v := os.Getenv("PERSISTENCE_PROVIDER"); v != "" {
		c.PersistenceProvider = v
	}
	if v := os.Getenv("SNAPSHOT_NAMESPACE"); v != "" {
		c.SnapshotNamespace = v
	}
	if v := os.Getenv("SNAPSHOT_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.SnapshotTTLSeconds = n
		}
	}
	if v := os.Getenv("AGENT_AUTH_PROVIDER"); v != "" {
		c.AgentAuthProvider = v
	}
	if v := os.Getenv("AGENT_AUTH_CONFIG"); v != "" {
		c.AgentAuthConfig = v
	}
	if v := os.Getenv("CLIENT_AUTH_PROVIDER"); v != "" {
		c.ClientAuthProvider = v
	}
	if v := os.Getenv("CLIENT_AUTH_CONFIG"); v != "" {
		c.ClientAuthConfig = v
	}
	if v := os.Getenv("ALLOWED_CLOCK_SKEW_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.AllowedClockSkewSeconds = n
		}
	}
	if v := os.Getenv("STREAM_HEARTBEAT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.StreamHeartbeatSeconds = n
		}
	}
	if v := os.Getenv("STREAM_BUFFER_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.StreamBufferSize = n
		}
	}
	if v := os.Getenv("TRACING_ENABLED"); v != "" {
		c.TracingEnabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("TRACING_OTLP_ENDPOINT"); v != "" {
		c.TracingOTLPEndpoint = v
	}
	if v := os.Getenv("PREVIEW_CODE_STYLE"); v != "" {
		c.PreviewCodeStyle = v
	}

	if c.Port == 0 {
		c.Port = 8080
	}
	if c.RedisAddr == "" {
		c.RedisAddr = "localhost:6379"
	}
	if c.PersistenceProvider == "" {
		c.PersistenceProvider = "memory"
	}
	if c.SnapshotNamespace == "" {
		c.SnapshotNamespace = "tv"
	}
	if c.SnapshotTTLSeconds <= 0 {
		c.SnapshotTTLSeconds = 86400
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.Env == "" {
		c.Env = "dev"
	}
	if c.AllowedClockSkewSeconds <= 0 {
		c.AllowedClockSkewSeconds = 60
	}
	if c.StreamHeartbeatSeconds <= 0 {
		c.StreamHeartbeatSeconds = 15
	}
	if c.StreamBufferSize <= 0 {
		c.StreamBufferSize = 256
	}
	if c.TracingSampleRatio <= 0 || c.TracingSampleRatio > 1 {
		c.TracingSampleRatio = 1
	}
	if c.PreviewCodeStyle == "" {
		c.PreviewCodeStyle = "github"
	}

	log.Printf("Gateway Config: {Port:%d Redis:%s Persistence:%s Env:%s Heartbeat:%ds Buffer:%d}\n",
		c.Port, c.RedisAddr, c.PersistenceProvider, c.Env, c.StreamHeartbeatSeconds, c.StreamBufferSize)
	return &c, nil
}

func (c *Config) Validate() error {
	var errs []string
	env := strings.ToLower(strings.TrimSpace(c.Env))
	dev := env == "dev"

	if c.AgentAuthProvider == "" && !dev {
		errs = append(errs, "agentAuthProvider is required in non-dev")
	}
	if c.ClientAuthProvider == "" && !dev {
		errs = append(errs, "clientAuthProvider is required in non-dev")
	}
	if c.PersistenceProvider == "redis" && strings.TrimSpace(c.RedisAddr) == "" {
		errs = append(errs, "redisAddr is required for redis persistence")
	}
	if c.PersistenceProvider != "memory" && c.PersistenceProvider != "redis" {
		errs = append(errs, fmt.Sprintf("unknown persistence provider: %s", c.PersistenceProvider))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
