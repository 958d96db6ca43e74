package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultRequiresOwner(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.Validate())

	cfg.Registry.Owner = "registry"
	assert.NoError(t, cfg.Validate())
}

func TestLoadYAMLAndEnvironment(t *testing.T) {
	path := writeFile(t, "config.yaml", `
registry:
  owner: registry-yaml
  assessment_history_cap: 5
storage:
  driver: postgres
  postgres_dsn: postgres://localhost/registry
chain:
  rpc_url: http://localhost:10332
  timeout: 3s
sweeper:
  enabled: true
  schedule: "@every 1m"
`)
	t.Setenv("REGISTRY_OWNER", "registry-env")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, "registry-env", cfg.Registry.Owner)
	assert.Equal(t, 5, cfg.Registry.AssessmentHistoryCap)
	assert.Equal(t, 10, cfg.Registry.CertificateHistoryCap)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, 3*time.Second, cfg.Chain.Timeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadEnvFile(t *testing.T) {
	envFile := writeFile(t, ".env", "REGISTRY_OWNER=from-dotenv\nSTORAGE_DRIVER=redis\nREDIS_ADDR=localhost:6379\n")
	// godotenv never overrides variables that are already set; t.Setenv
	// registers the restore and the unset clears the value for the load.
	for _, key := range []string{"REGISTRY_OWNER", "STORAGE_DRIVER", "REDIS_ADDR"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Registry.Owner)
	assert.Equal(t, DriverRedis, cfg.Storage.Driver)
	assert.Equal(t, "localhost:6379", cfg.Storage.RedisAddr)
}

func TestLoadMissingEnvFileIsIgnored(t *testing.T) {
	t.Setenv("REGISTRY_OWNER", "registry")
	_, err := Load("", filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.Registry.Owner = "registry"
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative cap", func(c *Config) { c.Registry.CertificateHistoryCap = -1 }},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "sqlite" }},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = DriverPostgres }},
		{"redis without addr", func(c *Config) { c.Storage.Driver = DriverRedis }},
		{"bad schedule", func(c *Config) { c.Sweeper.Schedule = "every now and then" }},
		{"strict owner not an address", func(c *Config) { c.Registry.StrictIdentities = true }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := valid()
	cfg.Sweeper.Enabled = false
	cfg.Sweeper.Schedule = ""
	assert.NoError(t, cfg.Validate())
}

func TestRegistryOwnerStrict(t *testing.T) {
	addr := address.Uint160ToString(util.Uint160{9, 8, 7})
	cfg := Default()
	cfg.Registry.Owner = "  " + addr + " "
	cfg.Registry.StrictIdentities = true
	require.NoError(t, cfg.Validate())

	owner, err := cfg.RegistryOwner()
	require.NoError(t, err)
	assert.Equal(t, addr, owner.String())
}
