package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Filters      FiltersConfig      `mapstructure:"filters"`
	Invalidation InvalidationConfig `mapstructure:"invalidation"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
	Debug        bool               `mapstructure:"debug"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	BodyLimit    int           `mapstructure:"body_limit"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConnections  int32         `mapstructure:"max_connections"`
	MinConnections  int32         `mapstructure:"min_connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheck     time.Duration `mapstructure:"health_check_period"`
	SlowQuery       time.Duration `mapstructure:"slow_query_threshold"`
}

// FiltersConfig selects where filter definitions and records come from
type FiltersConfig struct {
	DefinitionsFile string        `mapstructure:"definitions_file"`
	Backend         string        `mapstructure:"backend"` // pgx, gorm or memory
	Schemas         []string      `mapstructure:"schemas"` // schemas inspected for models
	SchemaCacheTTL  time.Duration `mapstructure:"schema_cache_ttl"`
	PageSize        int           `mapstructure:"page_size"`
	MaxPageSize     int           `mapstructure:"max_page_size"`
	Timezone        string        `mapstructure:"timezone"` // location of "today" for date range filters
}

// InvalidationConfig selects how schema changes are announced to other instances
type InvalidationConfig struct {
	Backend  string `mapstructure:"backend"` // local, postgres or redis
	RedisURL string `mapstructure:"redis_url"`
}

// RateLimitConfig limits filter API requests per client
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Backend  string        `mapstructure:"backend"` // local, postgres or redis
	RedisURL string        `mapstructure:"redis_url"`
	Requests int64         `mapstructure:"requests"` // allowed per window
	Window   time.Duration `mapstructure:"window"`
}

// MetricsConfig contains Prometheus settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// TracingConfig contains OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
}

var (
	validBackends             = []string{"pgx", "gorm", "memory"}
	validInvalidationBackends = []string{"local", "postgres", "redis"}
)

// Load loads configuration from file, environment variables and defaults
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	viper.SetConfigName("filterkit")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/filterkit")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("FILTERKIT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Info().Msg("No config file found, using environment variables and defaults")
	} else {
		log.Info().Str("file", viper.ConfigFileUsed()).Msg("Config file loaded")
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads environment variables from .env file
func loadEnvFile() error {
	locations := []string{
		".env",
		".env.local",
		"../.env", // For when running from subdirectories
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			if err := godotenv.Load(location); err != nil {
				return fmt.Errorf("error loading .env file from %s: %w", location, err)
			}
			log.Info().Str("file", location).Msg(".env file loaded")
			return nil
		}
	}

	return fmt.Errorf("no .env file found")
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "15s")
	viper.SetDefault("server.idle_timeout", "60s")
	viper.SetDefault("server.body_limit", 1024*1024) // 1MB

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.database", "filterkit")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.min_connections", 5)
	viper.SetDefault("database.max_conn_lifetime", "1h")
	viper.SetDefault("database.max_conn_idle_time", "30m")
	viper.SetDefault("database.health_check_period", "1m")
	viper.SetDefault("database.slow_query_threshold", "1s")

	// Filter defaults
	viper.SetDefault("filters.definitions_file", "filters.yaml")
	viper.SetDefault("filters.backend", "pgx")
	viper.SetDefault("filters.schemas", []string{"public"})
	viper.SetDefault("filters.schema_cache_ttl", "5m")
	viper.SetDefault("filters.page_size", 50)
	viper.SetDefault("filters.max_page_size", 1000)
	viper.SetDefault("filters.timezone", "UTC")

	viper.SetDefault("invalidation.backend", "local")
	viper.SetDefault("invalidation.redis_url", "")

	viper.SetDefault("rate_limit.enabled", false)
	viper.SetDefault("rate_limit.backend", "local")
	viper.SetDefault("rate_limit.requests", 300)
	viper.SetDefault("rate_limit.window", "1m")

	// Observability defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.endpoint", "localhost:4317")
	viper.SetDefault("tracing.service_name", "filterkit")
	viper.SetDefault("tracing.environment", "development")
	viper.SetDefault("tracing.sample_rate", 1.0)
	viper.SetDefault("tracing.insecure", true)

	viper.SetDefault("debug", false)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server configuration error: %w", err)
	}

	if c.Database.MaxConnections < c.Database.MinConnections {
		return fmt.Errorf("max_connections must be greater than or equal to min_connections")
	}

	if err := c.Filters.Validate(); err != nil {
		return fmt.Errorf("filters configuration error: %w", err)
	}

	if err := c.Invalidation.Validate(); err != nil {
		return fmt.Errorf("invalidation configuration error: %w", err)
	}

	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate_limit configuration error: %w", err)
	}
	if c.RateLimit.Enabled && c.RateLimit.Backend == "postgres" && c.Filters.Backend == "memory" {
		return fmt.Errorf("rate_limit backend postgres requires a database filters backend")
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing endpoint is required when tracing is enabled")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing sample_rate must be between 0 and 1")
	}

	return nil
}

// Validate validates server configuration
func (sc *ServerConfig) Validate() error {
	if sc.Address == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if sc.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive")
	}
	if sc.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive")
	}
	if sc.IdleTimeout <= 0 {
		return fmt.Errorf("idle_timeout must be positive")
	}
	if sc.BodyLimit <= 0 {
		return fmt.Errorf("body_limit must be positive")
	}
	return nil
}

// Validate validates filter configuration
func (fc *FiltersConfig) Validate() error {
	if !oneOf(fc.Backend, validBackends) {
		return fmt.Errorf("backend must be one of %s", strings.Join(validBackends, ", "))
	}
	if fc.DefinitionsFile == "" {
		return fmt.Errorf("definitions_file cannot be empty")
	}
	if fc.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive")
	}
	if fc.MaxPageSize < fc.PageSize {
		return fmt.Errorf("max_page_size must be greater than or equal to page_size")
	}
	if _, err := time.LoadLocation(fc.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", fc.Timezone, err)
	}
	return nil
}

// Validate validates invalidation configuration
func (ic *InvalidationConfig) Validate() error {
	if ic.Backend == "" {
		return nil
	}
	if !oneOf(ic.Backend, validInvalidationBackends) {
		return fmt.Errorf("backend must be one of %s", strings.Join(validInvalidationBackends, ", "))
	}
	if ic.Backend == "redis" && ic.RedisURL == "" {
		return fmt.Errorf("redis_url is required for the redis backend")
	}
	return nil
}

// Validate validates rate limit configuration. Nothing is checked while
// the limiter is disabled.
func (rc *RateLimitConfig) Validate() error {
	if !rc.Enabled {
		return nil
	}
	if rc.Backend != "" && !oneOf(rc.Backend, validInvalidationBackends) {
		return fmt.Errorf("backend must be one of %s", strings.Join(validInvalidationBackends, ", "))
	}
	if rc.Backend == "redis" && rc.RedisURL == "" {
		return fmt.Errorf("redis_url is required for the redis backend")
	}
	if rc.Requests <= 0 {
		return fmt.Errorf("requests must be positive")
	}
	if rc.Window <= 0 {
		return fmt.Errorf("window must be positive")
	}
	return nil
}

func oneOf(s string, options []string) bool {
	for _, o := range options {
		if s == o {
			return true
		}
	}
	return false
}

// Location returns the configured timezone, falling back to UTC.
func (fc *FiltersConfig) Location() *time.Location {
	loc, err := time.LoadLocation(fc.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ConnectionString returns the PostgreSQL connection string
func (dc *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		dc.User, dc.Password, dc.Host, dc.Port, dc.Database, dc.SSLMode)
}
