package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Log         LogConfig
	Discovery   DiscoveryConfig
	Taxonomy    TaxonomyConfig
	Inheritance InheritanceConfig
	Validation  ValidationConfig
	Migration   MigrationConfig
	Telemetry   TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // postgres, sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	Path            string // sqlite file, ":memory:" for tests
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	LogLevel        string
	SlowThreshold   time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled      bool
	Host         string
	Port         int
	Password     string
	DB           int
	ValueListTTL time.Duration
}

// DiscoveryConfig holds discovery orchestrator settings
type DiscoveryConfig struct {
	FreshnessWindow time.Duration // accounts discovered within the window are skipped unless forced
	MaxConcurrency  int
	ScheduleDay     int // day of month for the scheduled pass
	ScheduleHour    int
	CheckInterval   time.Duration
	SchemaDir       string // directory of <account-name>.yaml snapshots
}

// TaxonomyConfig holds taxonomy cache settings
type TaxonomyConfig struct {
	StaleAfter time.Duration // health report freshness window
}

// InheritanceConfig holds inheritance sync settings
type InheritanceConfig struct {
	BatchSize int
}

// ValidationConfig holds integrity validator settings
type ValidationConfig struct {
	BatchSize int
}

// MigrationConfig holds schema and link migration settings
type MigrationConfig struct {
	BatchSize int
	// Path is where `db migrate create` writes new SQL files
	Path string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	ExportInterval    time.Duration
	ExportLogs        bool // also ship job logs over OTLP
	TraceSQL          bool // one span per SQL statement
}

// Load loads configuration from a TOML file and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with CHANNELSYNC_ prefix (e.g., CHANNELSYNC_DATABASE_PASSWORD)
// 2. the file at path, or config.toml from the search paths when path is empty
// 3. Built-in defaults
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/channelsync")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("CHANNELSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			Path:            v.GetString("database.path"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			LogLevel:        v.GetString("database.log_level"),
			SlowThreshold:   v.GetDuration("database.slow_threshold"),
		},
		Redis: RedisConfig{
			Enabled:      v.GetBool("redis.enabled"),
			Host:         v.GetString("redis.host"),
			Port:         v.GetInt("redis.port"),
			Password:     v.GetString("redis.password"),
			DB:           v.GetInt("redis.db"),
			ValueListTTL: v.GetDuration("redis.value_list_ttl"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Discovery: DiscoveryConfig{
			FreshnessWindow: v.GetDuration("discovery.freshness_window"),
			MaxConcurrency:  v.GetInt("discovery.max_concurrency"),
			ScheduleDay:     v.GetInt("discovery.schedule_day"),
			ScheduleHour:    v.GetInt("discovery.schedule_hour"),
			CheckInterval:   v.GetDuration("discovery.check_interval"),
			SchemaDir:       v.GetString("discovery.schema_dir"),
		},
		Taxonomy: TaxonomyConfig{
			StaleAfter: v.GetDuration("taxonomy.stale_after"),
		},
		Inheritance: InheritanceConfig{
			BatchSize: v.GetInt("inheritance.batch_size"),
		},
		Validation: ValidationConfig{
			BatchSize: v.GetInt("validation.batch_size"),
		},
		Migration: MigrationConfig{
			BatchSize: v.GetInt("migration.batch_size"),
			Path:      v.GetString("migration.path"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			ExportInterval:    v.GetDuration("telemetry.export_interval"),
			ExportLogs:        v.GetBool("telemetry.export_logs"),
			TraceSQL:          v.GetBool("telemetry.trace_sql"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "channelsync"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "channelsync"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "channelsync.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 2
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}
	if cfg.Database.SlowThreshold == 0 {
		cfg.Database.SlowThreshold = 200 * time.Millisecond
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.ValueListTTL == 0 {
		cfg.Redis.ValueListTTL = time.Hour
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stderr"
	}
	if cfg.Discovery.FreshnessWindow == 0 {
		cfg.Discovery.FreshnessWindow = 30 * 24 * time.Hour
	}
	if cfg.Discovery.MaxConcurrency == 0 {
		cfg.Discovery.MaxConcurrency = 4
	}
	if cfg.Discovery.ScheduleDay == 0 {
		cfg.Discovery.ScheduleDay = 1
	}
	if cfg.Discovery.ScheduleHour == 0 {
		cfg.Discovery.ScheduleHour = 3
	}
	if cfg.Discovery.CheckInterval == 0 {
		cfg.Discovery.CheckInterval = time.Hour
	}
	if cfg.Discovery.SchemaDir == "" {
		cfg.Discovery.SchemaDir = "schemas"
	}
	if cfg.Taxonomy.StaleAfter == 0 {
		cfg.Taxonomy.StaleAfter = 30 * 24 * time.Hour
	}
	if cfg.Inheritance.BatchSize == 0 {
		cfg.Inheritance.BatchSize = 200
	}
	if cfg.Validation.BatchSize == 0 {
		cfg.Validation.BatchSize = 500
	}
	if cfg.Migration.BatchSize == 0 {
		cfg.Migration.BatchSize = 100
	}
	if cfg.Migration.Path == "" {
		cfg.Migration.Path = "internal/infrastructure/migration/sql"
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "channelsync"
	}
	if cfg.Telemetry.ExportInterval == 0 {
		cfg.Telemetry.ExportInterval = 15 * time.Second
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.App.Env == "production" {
		if c.Database.Driver == "postgres" && c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.Driver == "postgres" && c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
	}

	if c.Discovery.FreshnessWindow < 0 {
		return fmt.Errorf("discovery.freshness_window cannot be negative")
	}
	if c.Discovery.MaxConcurrency < 0 {
		return fmt.Errorf("discovery.max_concurrency cannot be negative")
	}
	if c.Discovery.ScheduleDay < 1 || c.Discovery.ScheduleDay > 28 {
		return fmt.Errorf("discovery.schedule_day must be between 1 and 28, got %d", c.Discovery.ScheduleDay)
	}
	if c.Discovery.ScheduleHour < 0 || c.Discovery.ScheduleHour > 23 {
		return fmt.Errorf("discovery.schedule_hour must be between 0 and 23, got %d", c.Discovery.ScheduleHour)
	}
	for name, size := range map[string]int{
		"inheritance.batch_size": c.Inheritance.BatchSize,
		"validation.batch_size":  c.Validation.BatchSize,
		"migration.batch_size":   c.Migration.BatchSize,
	} {
		if size < 0 {
			return fmt.Errorf("%s cannot be negative", name)
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the redis host:port
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
