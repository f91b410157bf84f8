package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"github.com/caarlos0/env/v11"
)

// Config is the top-level configuration structure.
type Config struct {
	Server      ServerConfig      `json:"server"`
	Providers   []ProviderConfig  `json:"providers"`
	Embedding   EmbeddingConfig   `json:"embedding"`
	VectorStore VectorStoreConfig `json:"vectorstore"`
	Database    DatabaseConfig    `json:"database"`
	Knowledge   KnowledgeConfig   `json:"knowledge"`
	Ledger      LedgerConfig      `json:"ledger"`
	Prompts     PromptsConfig     `json:"prompts"`
	Maintenance MaintenanceConfig `json:"maintenance"`
}

type ServerConfig struct {
	Port     int    `json:"port" env:"MANA_SERVER_PORT"`
	LogLevel string `json:"log_level" env:"MANA_LOG_LEVEL"`
}

type ProviderConfig struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Name     string            `json:"name"`
	Endpoint string            `json:"endpoint"`
	APIKey   string            `json:"api_key"`
	Models   []string          `json:"models,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

type EmbeddingConfig struct {
	Provider  string `json:"provider" env:"MANA_EMBEDDING_PROVIDER"`
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model" env:"MANA_EMBEDDING_MODEL"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
	// CacheTTL is in seconds; zero keeps cached vectors forever.
	CacheTTL int `json:"cache_ttl"`
}

type VectorStoreConfig struct {
	Backend string       `json:"backend" env:"MANA_VECTORSTORE_BACKEND"` // "qdrant" or "memory"
	Qdrant  QdrantConfig `json:"qdrant"`
}

type QdrantConfig struct {
	Host             string `json:"host" env:"MANA_QDRANT_HOST"`
	Port             int    `json:"port" env:"MANA_QDRANT_PORT"`
	CollectionPrefix string `json:"collection_prefix"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Redis    RedisConfig    `json:"redis"`
}

type PostgresConfig struct {
	DSN string `json:"dsn" env:"MANA_POSTGRES_DSN"`
}

type RedisConfig struct {
	URL string `json:"url" env:"MANA_REDIS_URL"`
}

type KnowledgeConfig struct {
	DefaultNamespace   string   `json:"default_namespace"`
	SearchNamespaces   []string `json:"search_namespaces"`
	BackroomsNamespace string   `json:"backrooms_namespace"`
	MaxChunkTokens     int      `json:"max_chunk_tokens"`
	// ScanQPS paces the randomized enumeration queries. Zero means unthrottled.
	ScanQPS float64 `json:"scan_qps"`
}

type LedgerConfig struct {
	Path            string `json:"path" env:"MANA_LEDGER_PATH"`
	MaxTweets       int    `json:"max_tweets"`
	RetentionDays   int    `json:"retention_days"`
	MaxInteractions int    `json:"max_interactions"`
	Namespace       string `json:"namespace"`
}

type PromptsConfig struct {
	Path  string `json:"path" env:"MANA_PROMPTS_PATH"`
	Watch bool   `json:"watch"`
}

type MaintenanceConfig struct {
	// CleanupSchedule is a cron expression; empty disables scheduled cleanup.
	CleanupSchedule string `json:"cleanup_schedule" env:"MANA_CLEANUP_SCHEDULE"`
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file, substitutes environment variable references,
// applies MANA_* overrides and fills unset values with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Defaults returns a config with every value set to its default.
func Defaults() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "api"
	}
	if c.Embedding.Endpoint == "" && c.Embedding.Provider == "api" {
		c.Embedding.Endpoint = "https://api.openai.com/v1"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimension == 0 {
		c.Embedding.Dimension = 1536
	}
	if c.VectorStore.Backend == "" {
		c.VectorStore.Backend = "qdrant"
	}
	if c.VectorStore.Qdrant.Host == "" {
		c.VectorStore.Qdrant.Host = "localhost"
	}
	if c.VectorStore.Qdrant.Port == 0 {
		c.VectorStore.Qdrant.Port = 6334
	}
	if c.VectorStore.Qdrant.CollectionPrefix == "" {
		c.VectorStore.Qdrant.CollectionPrefix = "mana_"
	}
	if c.Knowledge.DefaultNamespace == "" {
		c.Knowledge.DefaultNamespace = "knowledge"
	}
	if len(c.Knowledge.SearchNamespaces) == 0 {
		c.Knowledge.SearchNamespaces = []string{"MANA", "knowledge", "backrooms"}
	}
	if c.Knowledge.BackroomsNamespace == "" {
		c.Knowledge.BackroomsNamespace = "backrooms"
	}
	if c.Knowledge.MaxChunkTokens == 0 {
		c.Knowledge.MaxChunkTokens = 8000
	}
	if c.Ledger.Path == "" {
		c.Ledger.Path = "data/tweet_memory.json"
	}
	if c.Ledger.MaxTweets == 0 {
		c.Ledger.MaxTweets = 100
	}
	if c.Ledger.RetentionDays == 0 {
		c.Ledger.RetentionDays = 30
	}
	if c.Ledger.MaxInteractions == 0 {
		c.Ledger.MaxInteractions = 1000
	}
	if c.Ledger.Namespace == "" {
		c.Ledger.Namespace = "tweet"
	}
	if c.Prompts.Path == "" {
		c.Prompts.Path = "configs/prompts.toml"
	}
}
