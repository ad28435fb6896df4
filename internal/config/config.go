package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds the process's own network identity.
type ServerConfig struct {
	NodeID          string        `yaml:"node_id"`
	Host            string        `yaml:"host"`
	GRPCPort        int           `yaml:"grpc_port"`
	HTTPPort        int           `yaml:"http_port"`
	MaxConnections  int           `yaml:"max_connections"`
	RequestDeadline time.Duration `yaml:"request_deadline"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// TombstoneCleanupInterval/TombstoneRetention govern the Local KV
	// Store's background reclamation of delete tombstones: every interval,
	// tombstones older than retention are dropped from memory.
	TombstoneCleanupInterval time.Duration `yaml:"tombstone_cleanup_interval"`
	TombstoneRetention       time.Duration `yaml:"tombstone_retention"`
}

// ShardingConfig holds the shard topology this process belongs to.
type ShardingConfig struct {
	NumShards          int    `yaml:"num_shards"`
	CurrentShardNum    int    `yaml:"current_shard_num"`
	KeyExtractionRegex string `yaml:"key_extraction_regex"`
}

// OHTTPConfig holds the HPKE/OHTTP key parameters fixed at construction.
// The key material itself is base64-encoded KEM-serialized bytes — key
// management/rotation is explicitly out of scope (spec's Non-goals), so
// this is a fixed pair loaded once at startup, not a KMS-backed fetcher.
type OHTTPConfig struct {
	KeyID             uint8  `yaml:"key_id"`
	KEM               string `yaml:"kem"`
	KDF               string `yaml:"kdf"`
	AEAD              string `yaml:"aead"`
	RequestLabel      string `yaml:"request_label"`
	ResponseLabel     string `yaml:"response_label"`
	PublicKeyBase64   string `yaml:"public_key_base64"`
	PrivateKeyBase64  string `yaml:"private_key_base64"`
}

// QueryConfig holds the set-query DSL enablement flag. The flag is loaded
// but not consulted: Engine.RunQuery runs regardless of its value.
type QueryConfig struct {
	Enabled bool `yaml:"enabled"`
}

// GossipConfig mirrors the teacher's gossip configuration, repurposed here
// to discover peer-shard replicas instead of replica-set members.
type GossipConfig struct {
	Enabled        bool          `yaml:"enabled"`
	BindPort       int           `yaml:"bind_port"`
	SeedNodes      []string      `yaml:"seed_nodes"`
	GossipInterval time.Duration `yaml:"gossip_interval"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
	ProbeInterval  time.Duration `yaml:"probe_interval"`
}

// MetricsConfig controls the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds the logging section. It is parsed and defaulted but
// not applied: cmd/kvshard builds its logger at info level before the
// config is loaded.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the complete configuration for one lookup-engine process.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Sharding ShardingConfig `yaml:"sharding"`
	OHTTP    OHTTPConfig    `yaml:"ohttp"`
	Query    QueryConfig    `yaml:"query"`
	Gossip   GossipConfig   `yaml:"gossip"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LoadConfig reads and validates configuration from filePath.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.GRPCPort == 0 {
		cfg.Server.GRPCPort = 50051
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.MaxConnections == 0 {
		cfg.Server.MaxConnections = 1000
	}
	if cfg.Server.RequestDeadline == 0 {
		cfg.Server.RequestDeadline = 5 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Server.TombstoneCleanupInterval == 0 {
		cfg.Server.TombstoneCleanupInterval = time.Minute
	}
	if cfg.Server.TombstoneRetention == 0 {
		cfg.Server.TombstoneRetention = 10 * time.Minute
	}

	if cfg.Sharding.NumShards == 0 {
		cfg.Sharding.NumShards = 1
	}

	if cfg.OHTTP.KEM == "" {
		cfg.OHTTP.KEM = "X25519HKDFSHA256"
	}
	if cfg.OHTTP.KDF == "" {
		cfg.OHTTP.KDF = "HKDFSHA256"
	}
	if cfg.OHTTP.AEAD == "" {
		cfg.OHTTP.AEAD = "AES256GCM"
	}
	if cfg.OHTTP.RequestLabel == "" {
		cfg.OHTTP.RequestLabel = "message/bhttp request"
	}
	if cfg.OHTTP.ResponseLabel == "" {
		cfg.OHTTP.ResponseLabel = "message/bhttp response"
	}

	if cfg.Gossip.GossipInterval == 0 {
		cfg.Gossip.GossipInterval = 200 * time.Millisecond
	}
	if cfg.Gossip.ProbeTimeout == 0 {
		cfg.Gossip.ProbeTimeout = 500 * time.Millisecond
	}
	if cfg.Gossip.ProbeInterval == 0 {
		cfg.Gossip.ProbeInterval = time.Second
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// Validate checks invariants spec.md §6 requires of the configuration.
func (c *Config) Validate() error {
	if c.Server.NodeID == "" {
		return fmt.Errorf("server.node_id is required")
	}
	if c.Sharding.NumShards < 1 {
		return fmt.Errorf("sharding.num_shards must be >= 1")
	}
	if c.Sharding.CurrentShardNum < 0 || c.Sharding.CurrentShardNum >= c.Sharding.NumShards {
		return fmt.Errorf("sharding.current_shard_num must be in [0, num_shards)")
	}
	return nil
}
