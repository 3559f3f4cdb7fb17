package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the transparency service
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Timeline  TimelineConfig  `mapstructure:"timeline"`
	Summarize SummarizeConfig `mapstructure:"summarize"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	// EngineSecret authenticates inbound execution-complete notifications.
	EngineSecret string `mapstructure:"engine_secret"`
}

// DatabaseConfig contains database configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig contains Redis configuration
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// EngineConfig contains the upstream workflow-engine connection settings
type EngineConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	ImportLimit  int           `mapstructure:"import_limit"`
}

// CacheConfig contains TTLs for the response and summary caches
type CacheConfig struct {
	ResponseTTL     time.Duration `mapstructure:"response_ttl"`
	SummaryTTL      time.Duration `mapstructure:"summary_ttl"`
	SummaryMaxItems int           `mapstructure:"summary_max_items"`
}

// BreakerConfig contains circuit breaker tuning
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
}

// TimelineConfig contains reconstruction tuning
type TimelineConfig struct {
	StalenessWindow  time.Duration `mapstructure:"staleness_window"`
	MaxRefreshJobs   int64         `mapstructure:"max_refresh_jobs"`
	RefreshQueueSize int           `mapstructure:"refresh_queue_size"`
}

// SummarizeConfig contains size thresholds for summarization routing
type SummarizeConfig struct {
	DirectBytes      int `mapstructure:"direct_bytes"`
	PatternBytes     int `mapstructure:"pattern_bytes"`
	StatisticalBytes int `mapstructure:"statistical_bytes"`
	PreviewRows      int `mapstructure:"preview_rows"`
	PreviewChars     int `mapstructure:"preview_chars"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
}

// Load loads configuration from various sources
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/transparency-service")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("TRANSPARENCY")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.engine_secret", "")

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.dbname", "transparency")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")

	// Redis defaults
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.dial_timeout", "5s")
	viper.SetDefault("redis.read_timeout", "3s")
	viper.SetDefault("redis.write_timeout", "3s")

	// Engine defaults
	viper.SetDefault("engine.base_url", "http://localhost:5678")
	viper.SetDefault("engine.api_key", "")
	viper.SetDefault("engine.fetch_timeout", "15s")
	viper.SetDefault("engine.import_limit", 20)

	// Cache defaults
	viper.SetDefault("cache.response_ttl", "30s")
	viper.SetDefault("cache.summary_ttl", "10m")
	viper.SetDefault("cache.summary_max_items", 500)

	// Breaker defaults
	viper.SetDefault("breaker.failure_threshold", 3)
	viper.SetDefault("breaker.cooldown", "10m")

	// Timeline defaults
	viper.SetDefault("timeline.staleness_window", "30m")
	viper.SetDefault("timeline.max_refresh_jobs", 4)
	viper.SetDefault("timeline.refresh_queue_size", 64)

	// Summarization thresholds
	viper.SetDefault("summarize.direct_bytes", 1024)
	viper.SetDefault("summarize.pattern_bytes", 51200)
	viper.SetDefault("summarize.statistical_bytes", 1048576)
	viper.SetDefault("summarize.preview_rows", 5)
	viper.SetDefault("summarize.preview_chars", 500)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Engine.BaseURL == "" {
		return fmt.Errorf("engine base_url is required")
	}

	if config.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("breaker failure_threshold must be positive")
	}

	if config.Summarize.DirectBytes >= config.Summarize.PatternBytes ||
		config.Summarize.PatternBytes >= config.Summarize.StatisticalBytes {
		return fmt.Errorf("summarize thresholds must be strictly increasing")
	}

	if config.Server.EngineSecret == "" {
		fmt.Println("WARNING: engine_secret is empty; execution notifications will be rejected")
	}

	return nil
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
