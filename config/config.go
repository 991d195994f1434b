/*
config.go - Server and job configuration

PURPOSE:
  One Config struct shared by every command. Values come from, in order of
  precedence: command-line flags, MILLOPS_* environment variables, an
  optional YAML config file (--config), and the defaults below.

KEYS (flag / env):
  port                 MILLOPS_PORT                 5000
  db-driver            MILLOPS_DB_DRIVER            sqlite | postgres
  db-path              MILLOPS_DB_PATH              millops.db (sqlite)
  database-url         MILLOPS_DATABASE_URL         postgres DSN
  migrate              MILLOPS_MIGRATE              create missing tables (postgres)
  cors-origins         MILLOPS_CORS_ORIGINS         *
  log-level            MILLOPS_LOG_LEVEL            info
  log-format           MILLOPS_LOG_FORMAT           json | console
  sync-batch-size      MILLOPS_SYNC_BATCH_SIZE      15
  sync-failure-policy  MILLOPS_SYNC_FAILURE_POLICY  abort | skip
  sync-interval        MILLOPS_SYNC_INTERVAL        0 (scheduled sync off)
  shutdown-timeout     MILLOPS_SHUTDOWN_TIMEOUT     30s
  max-body-bytes       MILLOPS_MAX_BODY_BYTES       50MB

SEE ALSO:
  - cmd/server/main.go: Flag registration and loading per command
*/
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/warp/millops/dispatch"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "MILLOPS"

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds every setting.
type Config struct {
	Port            int
	DBDriver        string
	DBPath          string
	DatabaseURL     string
	Migrate         bool
	CORSOrigins     []string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64

	SyncBatchSize     int
	SyncFailurePolicy string
	SyncInterval      time.Duration
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Port:              5000,
		DBDriver:          DriverSQLite,
		DBPath:            "millops.db",
		CORSOrigins:       []string{"*"},
		LogLevel:          "info",
		LogFormat:         "json",
		ShutdownTimeout:   30 * time.Second,
		MaxBodyBytes:      50 << 20,
		SyncBatchSize:     dispatch.DefaultBatchSize,
		SyncFailurePolicy: string(dispatch.PolicyAbort),
	}
}

// RegisterFlags binds c's fields to flags on fs, using c's current values as
// defaults.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.IntVar(&c.Port, "port", c.Port, "HTTP port")
	fs.StringVar(&c.DBDriver, "db-driver", c.DBDriver, "database driver: sqlite or postgres")
	fs.StringVar(&c.DBPath, "db-path", c.DBPath, "SQLite database file (:memory: for a throwaway database)")
	fs.StringVar(&c.DatabaseURL, "database-url", c.DatabaseURL, "Postgres connection string")
	fs.BoolVar(&c.Migrate, "migrate", c.Migrate, "create missing tables on a Postgres database at startup")
	fs.StringSliceVar(&c.CORSOrigins, "cors-origins", c.CORSOrigins, "allowed CORS origins")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug, info, warn, error")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log format: json or console")
	fs.DurationVar(&c.ShutdownTimeout, "shutdown-timeout", c.ShutdownTimeout, "graceful shutdown timeout")
	fs.Int64Var(&c.MaxBodyBytes, "max-body-bytes", c.MaxBodyBytes, "maximum request body size")
	fs.IntVar(&c.SyncBatchSize, "sync-batch-size", c.SyncBatchSize, "concurrent dispatch updates per sync batch")
	fs.StringVar(&c.SyncFailurePolicy, "sync-failure-policy", c.SyncFailurePolicy, "on a failed sync update: abort or skip")
	fs.DurationVar(&c.SyncInterval, "sync-interval", c.SyncInterval, "run the master-data sync periodically (0 disables)")
}

// Load fills every flag of fs that was not set on the command line from the
// environment and, when configFile is not empty, from that YAML file.
func Load(v *viper.Viper, fs *pflag.FlagSet, configFile string) error {
	if err := v.BindPFlags(fs); err != nil {
		return err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	valid := make(map[string]bool)
	fs.VisitAll(func(f *pflag.Flag) {
		valid[f.Name] = true
	})

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading configuration file '%s': %w", configFile, err)
		}
		for _, key := range v.AllKeys() {
			if !valid[key] {
				return fmt.Errorf("invalid option in configuration file: %v", key)
			}
		}
	}

	var flagErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if flagErr != nil || f.Changed || f.Name == "config" {
			return
		}
		var value string
		if f.Value.Type() == "stringSlice" {
			value = strings.Join(v.GetStringSlice(f.Name), ",")
		} else {
			value = v.GetString(f.Name)
		}
		if err := f.Value.Set(value); err != nil {
			flagErr = fmt.Errorf("invalid value %q for %s: %w", value, f.Name, err)
		}
	})
	return flagErr
}

// Validate checks the settings that the flag types cannot.
func (c Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("db-path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database-url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown db-driver %q (want %s or %s)", c.DBDriver, DriverSQLite, DriverPostgres)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.SyncBatchSize <= 0 {
		return fmt.Errorf("sync-batch-size must be positive, got %d", c.SyncBatchSize)
	}
	if c.SyncInterval < 0 {
		return fmt.Errorf("sync-interval must not be negative")
	}
	if _, err := dispatch.ParseFailurePolicy(c.SyncFailurePolicy); err != nil {
		return err
	}
	return nil
}

// FailurePolicy returns the parsed sync failure policy.
func (c Config) FailurePolicy() dispatch.FailurePolicy {
	p, err := dispatch.ParseFailurePolicy(c.SyncFailurePolicy)
	if err != nil {
		return dispatch.PolicyAbort
	}
	return p
}
