package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/millops/dispatch"
)

func load(t *testing.T, args []string, configFile string) Config {
	t.Helper()
	cfg := Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	require.NoError(t, Load(viper.New(), fs, configFile))
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := load(t, nil, "")

	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, dispatch.PolicyAbort, cfg.FailurePolicy())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("MILLOPS_PORT", "8080")
	t.Setenv("MILLOPS_SYNC_FAILURE_POLICY", "skip")
	t.Setenv("MILLOPS_SYNC_INTERVAL", "15m")
	t.Setenv("MILLOPS_CORS_ORIGINS", "http://a.example,http://b.example")

	cfg := load(t, nil, "")

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, dispatch.PolicySkip, cfg.FailurePolicy())
	assert.Equal(t, 15*time.Minute, cfg.SyncInterval)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.CORSOrigins)
}

func TestLoad_FlagsBeatEnvironment(t *testing.T) {
	t.Setenv("MILLOPS_PORT", "8080")

	cfg := load(t, []string{"--port=9090"}, "")
	assert.Equal(t, 9090, cfg.Port)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "millops.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db-driver: postgres
database-url: postgres://mill@localhost/millops
sync-batch-size: 25
log-format: console
`), 0o600))

	cfg := load(t, nil, path)

	assert.Equal(t, DriverPostgres, cfg.DBDriver)
	assert.Equal(t, "postgres://mill@localhost/millops", cfg.DatabaseURL)
	assert.Equal(t, 25, cfg.SyncBatchSize)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_ConfigFileErrors(t *testing.T) {
	dir := t.TempDir()

	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("colour: blue\n"), 0o600))

	cfg := Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.RegisterFlags(fs)
	err := Load(viper.New(), fs, unknown)
	assert.ErrorContains(t, err, "invalid option in configuration file: colour")

	err = Load(viper.New(), fs, filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "error reading configuration file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"postgres needs url", func(c *Config) { c.DBDriver = DriverPostgres }, "database-url"},
		{"sqlite needs path", func(c *Config) { c.DBPath = "" }, "db-path"},
		{"unknown driver", func(c *Config) { c.DBDriver = "mysql" }, "unknown db-driver"},
		{"port range", func(c *Config) { c.Port = 70000 }, "invalid port"},
		{"batch size", func(c *Config) { c.SyncBatchSize = 0 }, "sync-batch-size"},
		{"interval", func(c *Config) { c.SyncInterval = -time.Second }, "sync-interval"},
		{"policy", func(c *Config) { c.SyncFailurePolicy = "retry" }, "failure policy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
