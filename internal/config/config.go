// Package config loads roster service configuration.
//
// Values are layered: built-in defaults, then an optional YAML file named by
// ROSTER_CONFIG, then a .env file, then the process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/roster/pkg/logger"
)

// ConfigPathEnv names the variable holding the optional YAML config path.
const ConfigPathEnv = "ROSTER_CONFIG"

// Config is the full service configuration.
type Config struct {
	Server  ServerConfig         `yaml:"server"`
	Logging logger.LoggingConfig `yaml:"logging"`
	Storage StorageConfig        `yaml:"storage"`
	Players PlayersConfig        `yaml:"players"`
	Wallet  WalletConfig         `yaml:"wallet"`
	Limits  LimitsConfig         `yaml:"limits"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `yaml:"host" env:"SERVER_HOST"`
	Port            int           `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
	AllowedOrigins  []string      `yaml:"allowed_origins" env:"SERVER_ALLOWED_ORIGINS"`
	// AuditLogPath, when set, appends every roster command as a JSON line.
	AuditLogPath string `yaml:"audit_log_path" env:"SERVER_AUDIT_LOG"`
}

// StorageConfig selects the key-value backend.
type StorageConfig struct {
	// Driver is one of memory, sqlite, postgres, redis.
	Driver          string `yaml:"driver" env:"STORE_DRIVER"`
	DSN             string `yaml:"dsn" env:"STORE_DSN"`
	MaxOpenConns    int    `yaml:"max_open_conns" env:"STORE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `yaml:"max_idle_conns" env:"STORE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime" env:"STORE_CONN_MAX_LIFETIME"`
	RedisAddr       string `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword   string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB         int    `yaml:"redis_db" env:"REDIS_DB"`
	KeyPrefix       string `yaml:"key_prefix" env:"STORE_KEY_PREFIX"`
}

// PlayersConfig tunes the record store.
type PlayersConfig struct {
	StorageKey string `yaml:"storage_key" env:"PLAYERS_STORAGE_KEY"`
	RecordRank bool   `yaml:"record_rank" env:"PLAYERS_RECORD_RANK"`
}

// WalletConfig points the wallet panel at a provider.
type WalletConfig struct {
	StorageKey     string        `yaml:"storage_key" env:"WALLET_STORAGE_KEY"`
	RPCURL         string        `yaml:"rpc_url" env:"WALLET_RPC_URL"`
	NotifyURL      string        `yaml:"notify_url" env:"WALLET_NOTIFY_URL"`
	RPCTimeout     time.Duration `yaml:"rpc_timeout" env:"WALLET_RPC_TIMEOUT"`
	BalanceRefresh string        `yaml:"balance_refresh" env:"WALLET_BALANCE_REFRESH"`
}

// LimitsConfig configures request rate limiting.
type LimitsConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second" env:"RATE_LIMIT_RPS"`
	Burst             int `yaml:"burst" env:"RATE_LIMIT_BURST"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Logging: logger.LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			DSN:    "file:roster.db?_pragma=busy_timeout(5000)",
		},
		Players: PlayersConfig{
			StorageKey: "data-players",
			RecordRank: true,
		},
		Wallet: WalletConfig{
			StorageKey: "metamaskState",
			RPCTimeout: 5 * time.Second,
		},
		Limits: LimitsConfig{
			RequestsPerSecond: 20,
			Burst:             40,
		},
	}
}

// Load builds the configuration from defaults, file and environment.
func Load() (*Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv(ConfigPathEnv)); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	if err := cfg.mergeEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath reads a YAML file over the defaults without consulting the
// environment.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv() error {
	if err := envdecode.Decode(c); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("decode environment: %w", err)
	}
	return nil
}

// Validate rejects configurations the runtime cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	switch strings.ToLower(c.Storage.Driver) {
	case "memory":
	case "sqlite", "postgres":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return fmt.Errorf("storage dsn required for driver %s", c.Storage.Driver)
		}
	case "redis":
		if strings.TrimSpace(c.Storage.RedisAddr) == "" {
			return fmt.Errorf("redis address required for redis storage")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if strings.TrimSpace(c.Players.StorageKey) == "" {
		return fmt.Errorf("players storage key required")
	}
	if strings.TrimSpace(c.Wallet.StorageKey) == "" {
		return fmt.Errorf("wallet storage key required")
	}
	return nil
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
