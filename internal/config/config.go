// Package config loads the certification engine configuration. Values come
// from defaults, then an optional YAML file, then environment variables
// (optionally seeded from a .env file), each layer overriding the previous.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/sustainability_layer/internal/app/auth"
	"github.com/R3E-Network/sustainability_layer/pkg/logger"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Config is the root configuration.
type Config struct {
	Registry RegistryConfig       `yaml:"registry"`
	Storage  StorageConfig        `yaml:"storage"`
	Logging  logger.LoggingConfig `yaml:"logging"`
	Metrics  MetricsConfig        `yaml:"metrics"`
	Chain    ChainConfig          `yaml:"chain"`
	Sweeper  SweeperConfig        `yaml:"sweeper"`
}

// RegistryConfig configures the assessment engine and certificate registry.
type RegistryConfig struct {
	Owner                 string `yaml:"owner" env:"REGISTRY_OWNER"`
	StrictIdentities      bool   `yaml:"strict_identities" env:"REGISTRY_STRICT_IDENTITIES"`
	AssessmentHistoryCap  int    `yaml:"assessment_history_cap" env:"REGISTRY_ASSESSMENT_HISTORY_CAP"`
	CertificateHistoryCap int    `yaml:"certificate_history_cap" env:"REGISTRY_CERTIFICATE_HISTORY_CAP"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Driver        string `yaml:"driver" env:"STORAGE_DRIVER"`
	PostgresDSN   string `yaml:"postgres_dsn" env:"DATABASE_URL"`
	RunMigrations bool   `yaml:"run_migrations" env:"STORAGE_RUN_MIGRATIONS"`
	RedisAddr     string `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"REDIS_DB"`
	RedisPrefix   string `yaml:"redis_prefix" env:"REDIS_PREFIX"`
}

// MetricsConfig configures the HTTP listener for /metrics and /healthz.
type MetricsConfig struct {
	Addr string `yaml:"addr" env:"METRICS_ADDR"`
}

// ChainConfig configures the Neo N3 node used as the block-height clock.
type ChainConfig struct {
	RPCURL  string        `yaml:"rpc_url" env:"NEO_RPC_URL"`
	Timeout time.Duration `yaml:"timeout" env:"NEO_RPC_TIMEOUT"`
}

// SweeperConfig configures the periodic certificate state sweep.
type SweeperConfig struct {
	Enabled  bool   `yaml:"enabled" env:"SWEEPER_ENABLED"`
	Schedule string `yaml:"schedule" env:"SWEEPER_SCHEDULE"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Registry: RegistryConfig{
			AssessmentHistoryCap:  20,
			CertificateHistoryCap: 10,
		},
		Storage: StorageConfig{
			Driver:        DriverMemory,
			RunMigrations: true,
			RedisPrefix:   "sustainability",
		},
		Logging: logger.LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Metrics: MetricsConfig{Addr: ":9090"},
		Chain:   ChainConfig{Timeout: 10 * time.Second},
		Sweeper: SweeperConfig{Enabled: true, Schedule: "*/5 * * * *"},
	}
}

// Load builds the configuration from defaults, the YAML file at path (skipped
// when path is empty), the optional .env file at envFile and the process
// environment. The result is validated.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	owner := strings.TrimSpace(c.Registry.Owner)
	if owner == "" {
		return errors.New("registry.owner is required")
	}
	if _, err := auth.ParsePrincipal(owner, c.Registry.StrictIdentities); err != nil {
		return fmt.Errorf("registry.owner: %w", err)
	}
	if c.Registry.AssessmentHistoryCap < 0 || c.Registry.CertificateHistoryCap < 0 {
		return errors.New("registry history caps must not be negative")
	}

	switch strings.ToLower(c.Storage.Driver) {
	case DriverMemory:
	case DriverPostgres:
		if strings.TrimSpace(c.Storage.PostgresDSN) == "" {
			return errors.New("storage.postgres_dsn is required for the postgres driver")
		}
	case DriverRedis:
		if strings.TrimSpace(c.Storage.RedisAddr) == "" {
			return errors.New("storage.redis_addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if c.Sweeper.Enabled {
		if _, err := cron.ParseStandard(c.Sweeper.Schedule); err != nil {
			return fmt.Errorf("sweeper.schedule: %w", err)
		}
	}
	return nil
}

// RegistryOwner returns the parsed registry owner identity.
func (c Config) RegistryOwner() (auth.Principal, error) {
	return auth.ParsePrincipal(c.Registry.Owner, c.Registry.StrictIdentities)
}
