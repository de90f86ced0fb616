package config

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no --config flag is given. A missing default file is not an error.
const DefaultPath = "stategraph.yaml"

// Environment overrides, applied after the file.
const (
	EnvLogLevel      = "STATEGRAPH_LOG_LEVEL"
	EnvRetryCeiling  = "STATEGRAPH_RETRY_CEILING"
	EnvRedisAddr     = "STATEGRAPH_REDIS_ADDR"
	EnvCheckpointKey = "STATEGRAPH_CHECKPOINT_KEY"
)

// Checkpoint backends.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Config is the application configuration.
type Config struct {
	LogLevel     string           `yaml:"log_level" json:"log_level"`
	LogJSON      bool             `yaml:"log_json" json:"log_json"`
	RetryCeiling int              `yaml:"retry_ceiling" json:"retry_ceiling"`
	Checkpoint   CheckpointConfig `yaml:"checkpoint" json:"checkpoint"`
	HTTP         HTTPConfig       `yaml:"http" json:"http"`
	Graphs       map[string]Graph `yaml:"graphs" json:"graphs"`
}

// CheckpointConfig selects and configures the checkpoint store.
type CheckpointConfig struct {
	Backend string        `yaml:"backend" json:"backend"`
	Dir     string        `yaml:"dir" json:"dir"`
	Redis   RedisConfig   `yaml:"redis" json:"redis"`
	LockTTL time.Duration `yaml:"lock_ttl" json:"lock_ttl"`

	// EncryptionKey is a base64 AES-256 key. When set, checkpoints are sealed at rest.
	EncryptionKey string `yaml:"encryption_key" json:"encryption_key"`
	// FallbackKeys are older base64 keys still accepted for reading.
	FallbackKeys []string `yaml:"fallback_keys" json:"fallback_keys"`
	// MaskFields are regular expressions; string values under matching keys are masked before saving.
	MaskFields []string `yaml:"mask_fields" json:"mask_fields"`
}

// Keys decodes the encryption keys. A nil active key means encryption is off.
func (c CheckpointConfig) Keys() (active []byte, fallback [][]byte, err error) {
	if c.EncryptionKey == "" {
		return nil, nil, nil
	}
	active, err = decodeKey(c.EncryptionKey)
	if err != nil {
		return nil, nil, fmt.Errorf("checkpoint.encryption_key: %w", err)
	}
	for i, k := range c.FallbackKeys {
		key, err := decodeKey(k)
		if err != nil {
			return nil, nil, fmt.Errorf("checkpoint.fallback_keys[%d]: %w", i, err)
		}
		fallback = append(fallback, key)
	}
	return active, fallback, nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// RedisConfig configures the redis checkpoint store and locker.
type RedisConfig struct {
	Addr     string        `yaml:"addr" json:"addr"`
	Password string        `yaml:"password" json:"password"`
	DB       int           `yaml:"db" json:"db"`
	Prefix   string        `yaml:"prefix" json:"prefix"`
	TTL      time.Duration `yaml:"ttl" json:"ttl"`
}

// HTTPConfig configures the HTTP host.
type HTTPConfig struct {
	Port    int  `yaml:"port" json:"port"`
	Metrics bool `yaml:"metrics" json:"metrics"`
}

// Graph holds per-graph overrides.
type Graph struct {
	RetryCeiling int `yaml:"retry_ceiling" json:"retry_ceiling"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		LogLevel:     "info",
		RetryCeiling: 3,
		Checkpoint: CheckpointConfig{
			Backend: BackendMemory,
			Dir:     filepath.Join(".stategraph", "runs"),
			LockTTL: 30 * time.Second,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "stategraph:run:",
			},
		},
		HTTP: HTTPConfig{
			Port:    8080,
			Metrics: true,
		},
	}
}

// Load reads path (YAML, or JSON by extension) over the defaults and applies env overrides.
// An empty path tries DefaultPath and tolerates its absence.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, data, &cfg); err != nil {
			return cfg, err
		}
	case os.IsNotExist(err) && !explicit:
		// Defaults only.
	default:
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func decode(path string, data []byte, cfg *Config) error {
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookup(EnvRetryCeiling); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvRetryCeiling, v, err)
		}
		c.RetryCeiling = n
	}
	if v, ok := lookup(EnvRedisAddr); ok && v != "" {
		c.Checkpoint.Redis.Addr = v
	}
	if v, ok := lookup(EnvCheckpointKey); ok && v != "" {
		c.Checkpoint.EncryptionKey = v
	}
	return nil
}

// Validate checks values that cannot be defaulted.
func (c Config) Validate() error {
	if c.RetryCeiling < 1 {
		return fmt.Errorf("retry_ceiling must be at least 1, got %d", c.RetryCeiling)
	}
	switch c.Checkpoint.Backend {
	case BackendNone, BackendMemory, BackendFile, BackendRedis:
	default:
		return fmt.Errorf("unknown checkpoint backend %q", c.Checkpoint.Backend)
	}
	if _, _, err := c.Checkpoint.Keys(); err != nil {
		return err
	}
	for name, g := range c.Graphs {
		if g.RetryCeiling < 0 {
			return fmt.Errorf("graphs.%s.retry_ceiling must not be negative", name)
		}
	}
	return nil
}

// CeilingFor returns the retry ceiling of a graph, falling back to the global one.
func (c Config) CeilingFor(graph string) int {
	if g, ok := c.Graphs[graph]; ok && g.RetryCeiling > 0 {
		return g.RetryCeiling
	}
	return c.RetryCeiling
}
