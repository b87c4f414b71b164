package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validServer() ServerConfig {
	return ServerConfig{
		Address:      ":8080",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		BodyLimit:    1024 * 1024,
	}
}

func validFilters() FiltersConfig {
	return FiltersConfig{
		DefinitionsFile: "filters.yaml",
		Backend:         "pgx",
		PageSize:        50,
		MaxPageSize:     1000,
		Timezone:        "UTC",
	}
}

func TestServerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ServerConfig)
		wantErr bool
		errMsg  string
	}{
		{name: "valid config", mutate: func(*ServerConfig) {}},
		{name: "empty address", mutate: func(c *ServerConfig) { c.Address = "" }, wantErr: true, errMsg: "server address cannot be empty"},
		{name: "zero read timeout", mutate: func(c *ServerConfig) { c.ReadTimeout = 0 }, wantErr: true, errMsg: "read_timeout must be positive"},
		{name: "negative write timeout", mutate: func(c *ServerConfig) { c.WriteTimeout = -time.Second }, wantErr: true, errMsg: "write_timeout must be positive"},
		{name: "zero idle timeout", mutate: func(c *ServerConfig) { c.IdleTimeout = 0 }, wantErr: true, errMsg: "idle_timeout must be positive"},
		{name: "zero body limit", mutate: func(c *ServerConfig) { c.BodyLimit = 0 }, wantErr: true, errMsg: "body_limit must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validServer()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFiltersConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*FiltersConfig)
		wantErr bool
		errMsg  string
	}{
		{name: "valid config", mutate: func(*FiltersConfig) {}},
		{name: "gorm backend", mutate: func(c *FiltersConfig) { c.Backend = "gorm" }},
		{name: "memory backend", mutate: func(c *FiltersConfig) { c.Backend = "memory" }},
		{name: "unknown backend", mutate: func(c *FiltersConfig) { c.Backend = "mysql" }, wantErr: true, errMsg: "backend must be one of pgx, gorm, memory"},
		{name: "no definitions file", mutate: func(c *FiltersConfig) { c.DefinitionsFile = "" }, wantErr: true, errMsg: "definitions_file cannot be empty"},
		{name: "zero page size", mutate: func(c *FiltersConfig) { c.PageSize = 0 }, wantErr: true, errMsg: "page_size must be positive"},
		{name: "max below page size", mutate: func(c *FiltersConfig) { c.MaxPageSize = 10 }, wantErr: true, errMsg: "max_page_size"},
		{name: "bad timezone", mutate: func(c *FiltersConfig) { c.Timezone = "Mars/Olympus" }, wantErr: true, errMsg: "invalid timezone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validFilters()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestInvalidationConfig_Validate(t *testing.T) {
	assert.NoError(t, (&InvalidationConfig{}).Validate())
	assert.NoError(t, (&InvalidationConfig{Backend: "postgres"}).Validate())
	assert.NoError(t, (&InvalidationConfig{Backend: "redis", RedisURL: "redis://localhost:6379"}).Validate())

	err := (&InvalidationConfig{Backend: "redis"}).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis_url is required")

	err = (&InvalidationConfig{Backend: "nats"}).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend must be one of local, postgres, redis")
}

func TestRateLimitConfig_Validate(t *testing.T) {
	assert.NoError(t, (&RateLimitConfig{Backend: "nats"}).Validate(), "disabled limiter is not checked")

	valid := RateLimitConfig{Enabled: true, Backend: "local", Requests: 10, Window: time.Minute}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*RateLimitConfig)
		errMsg string
	}{
		{"unknown backend", func(c *RateLimitConfig) { c.Backend = "memcached" }, "backend must be one of"},
		{"redis without url", func(c *RateLimitConfig) { c.Backend = "redis" }, "redis_url is required"},
		{"no requests", func(c *RateLimitConfig) { c.Requests = 0 }, "requests must be positive"},
		{"no window", func(c *RateLimitConfig) { c.Window = 0 }, "window must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestFiltersConfig_Location(t *testing.T) {
	cfg := validFilters()
	assert.Equal(t, time.UTC, cfg.Location())

	cfg.Timezone = "nowhere"
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestConfig_Validate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		cfg := &Config{
			Server:   validServer(),
			Database: DatabaseConfig{MaxConnections: 10, MinConnections: 2},
			Filters:  validFilters(),
			Tracing:  TracingConfig{SampleRate: 1},
		}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("min connections above max", func(t *testing.T) {
		cfg := &Config{
			Server:   validServer(),
			Database: DatabaseConfig{MaxConnections: 1, MinConnections: 2},
			Filters:  validFilters(),
		}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_connections")
	})

	t.Run("tracing without endpoint", func(t *testing.T) {
		cfg := &Config{
			Server:  validServer(),
			Filters: validFilters(),
			Tracing: TracingConfig{Enabled: true, SampleRate: 1},
		}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "tracing endpoint is required")
	})

	t.Run("postgres rate limit without database", func(t *testing.T) {
		filters := validFilters()
		filters.Backend = "memory"
		cfg := &Config{
			Server:    validServer(),
			Filters:   filters,
			RateLimit: RateLimitConfig{Enabled: true, Backend: "postgres", Requests: 10, Window: time.Minute},
			Tracing:   TracingConfig{SampleRate: 1},
		}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "requires a database filters backend")
	})

	t.Run("sample rate out of range", func(t *testing.T) {
		cfg := &Config{
			Server:  validServer(),
			Filters: validFilters(),
			Tracing: TracingConfig{SampleRate: 2},
		}
		assert.Error(t, cfg.Validate())
	})
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	dc := DatabaseConfig{
		Host: "db", Port: 5433, User: "app", Password: "secret", Database: "shop", SSLMode: "require",
	}
	assert.Equal(t, "postgres://app:secret@db:5433/shop?sslmode=require", dc.ConnectionString())
}

func TestLoad_DefaultsAndEnvironment(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("FILTERKIT_FILTERS_BACKEND", "gorm")
	t.Setenv("FILTERKIT_FILTERS_PAGE_SIZE", "25")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "gorm", cfg.Filters.Backend)
	assert.Equal(t, 25, cfg.Filters.PageSize)
	assert.Equal(t, []string{"public"}, cfg.Filters.Schemas)
	assert.Equal(t, time.Second, cfg.Database.SlowQuery)
	assert.True(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, "local", cfg.Invalidation.Backend)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, int64(300), cfg.RateLimit.Requests)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
}

func TestLoad_ConfigFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	yaml := []byte("filters:\n  backend: memory\n  definitions_file: defs.yaml\nserver:\n  address: \":9000\"\n")
	require.NoError(t, os.WriteFile("filterkit.yaml", yaml, 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Filters.Backend)
	assert.Equal(t, "defs.yaml", cfg.Filters.DefinitionsFile)
	assert.Equal(t, ":9000", cfg.Server.Address)
}
