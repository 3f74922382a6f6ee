package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the pipeline and API server.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Alpha     AlphaConfig     `mapstructure:"alpha"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	Workers   WorkersConfig   `mapstructure:"workers"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// StorageConfig groups persistence backends.
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings.
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// DSN builds a postgres connection string from the configured fields.
func (p PostgresConfig) DSN() (string, error) {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL, nil
	}
	if strings.TrimSpace(p.Host) == "" || strings.TrimSpace(p.DBName) == "" {
		return "", fmt.Errorf("storage.postgres.host/dbname required when url is not provided")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

func (p PostgresConfig) Validate() error {
	_, err := p.DSN()
	return err
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// Addr returns host:port for the redis client.
func (r RedisConfig) Addr() string { return fmt.Sprintf("%s:%s", r.Host, r.Port) }

// SourcesConfig lists the document sources polled by the ingestor.
type SourcesConfig struct {
	Feeds        []FeedSource   `mapstructure:"feeds"`
	ScrapePages  []ScrapeSource `mapstructure:"scrape_pages"`
	FetchTimeout time.Duration  `mapstructure:"fetch_timeout"`
	MaxPerFeed   int            `mapstructure:"max_per_feed"`
}

// FeedSource is a single RSS/Atom feed endpoint. Schedule is a cron
// expression; when set it takes precedence over Interval.
type FeedSource struct {
	Name     string        `mapstructure:"name"`
	URL      string        `mapstructure:"url"`
	Interval time.Duration `mapstructure:"interval"`
	Schedule string        `mapstructure:"schedule"`
}

// ScrapeSource is a page fetched with a headless browser and run
// through readability extraction.
type ScrapeSource struct {
	Name     string        `mapstructure:"name"`
	URL      string        `mapstructure:"url"`
	Interval time.Duration `mapstructure:"interval"`
	Schedule string        `mapstructure:"schedule"`
	Rendered bool          `mapstructure:"rendered"`
}

// LLMConfig configures the remote reasoning services and their key pools.
type LLMConfig struct {
	Primary   RemoteServiceConfig `mapstructure:"primary"`
	Secondary RemoteServiceConfig `mapstructure:"secondary"`
	Timeout   time.Duration       `mapstructure:"timeout"`
}

// RemoteServiceConfig describes one remote structured-reasoning endpoint.
type RemoteServiceConfig struct {
	Name              string   `mapstructure:"name"`
	BaseURL           string   `mapstructure:"base_url"`
	Model             string   `mapstructure:"model"`
	APIKeys           []string `mapstructure:"api_keys"`
	RequestsPerMinute int      `mapstructure:"requests_per_minute"`
}

// Configured reports whether the service has at least one credential.
func (r RemoteServiceConfig) Configured() bool {
	return strings.TrimSpace(r.BaseURL) != "" && len(r.APIKeys) > 0
}

// AlphaConfig holds metric windows, component weights and signal bands.
// Weights and thresholds are configuration, not contract: tests read them
// from here rather than hardcoding.
type AlphaConfig struct {
	WindowHours  int              `mapstructure:"window_hours"`
	BaselineDays int              `mapstructure:"baseline_days"`
	Weights      AlphaWeights     `mapstructure:"weights"`
	Thresholds   SignalThresholds `mapstructure:"thresholds"`
	PriceBand    float64          `mapstructure:"price_band"`
	Interval     time.Duration    `mapstructure:"interval"`
	Schedule     string           `mapstructure:"schedule"`
}

// AlphaWeights splits the composite score across its components.
type AlphaWeights struct {
	ExpectationGap    float64 `mapstructure:"expectation_gap"`
	NarrativeVelocity float64 `mapstructure:"narrative_velocity"`
	Divergence        float64 `mapstructure:"divergence"`
}

// SignalThresholds maps composite score bands to discrete signals.
type SignalThresholds struct {
	StrongBuy  float64 `mapstructure:"strong_buy"`
	Buy        float64 `mapstructure:"buy"`
	Sell       float64 `mapstructure:"sell"`
	StrongSell float64 `mapstructure:"strong_sell"`
}

func (t SignalThresholds) Validate() error {
	if !(t.StrongSell < t.Sell && t.Sell < t.Buy && t.Buy < t.StrongBuy) {
		return fmt.Errorf("alpha.thresholds must be strictly ordered strong_sell < sell < buy < strong_buy")
	}
	return nil
}

// BroadcastConfig controls the live-feed heartbeat.
type BroadcastConfig struct {
	PingInterval time.Duration `mapstructure:"ping_interval"`
	PongTimeout  time.Duration `mapstructure:"pong_timeout"`
	SendBuffer   int           `mapstructure:"send_buffer"`
}

// WorkersConfig bounds pipeline concurrency.
type WorkersConfig struct {
	PipelineConcurrency int           `mapstructure:"pipeline_concurrency"`
	ResearchConcurrency int           `mapstructure:"research_concurrency"`
	TickInterval        time.Duration `mapstructure:"tick_interval"`
}

// Load reads configuration from the given file (or config.toml on the
// search path when empty) with ALPHASTREAM_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")

	setDefaults(v)

	if path == "" {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("ALPHASTREAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional: defaults plus env are a valid setup.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Storage.Postgres.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Storage.Redis.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Alpha.Thresholds.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.default_timeout", "30s")
	v.SetDefault("server.address", ":8080")

	v.SetDefault("storage.postgres.host", "localhost")
	v.SetDefault("storage.postgres.port", "5432")
	v.SetDefault("storage.postgres.dbname", "alphastream")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", "6379")

	v.SetDefault("sources.fetch_timeout", "30s")
	v.SetDefault("sources.max_per_feed", 50)

	v.SetDefault("llm.timeout", "45s")
	v.SetDefault("llm.primary.requests_per_minute", 15)
	v.SetDefault("llm.secondary.requests_per_minute", 15)

	v.SetDefault("alpha.window_hours", 24)
	v.SetDefault("alpha.baseline_days", 30)
	v.SetDefault("alpha.weights.expectation_gap", 0.45)
	v.SetDefault("alpha.weights.narrative_velocity", 0.30)
	v.SetDefault("alpha.weights.divergence", 0.25)
	v.SetDefault("alpha.thresholds.strong_buy", 0.5)
	v.SetDefault("alpha.thresholds.buy", 0.2)
	v.SetDefault("alpha.thresholds.sell", -0.2)
	v.SetDefault("alpha.thresholds.strong_sell", -0.5)
	v.SetDefault("alpha.price_band", 0.10)
	v.SetDefault("alpha.interval", "15m")

	v.SetDefault("broadcast.ping_interval", "30s")
	v.SetDefault("broadcast.pong_timeout", "90s")
	v.SetDefault("broadcast.send_buffer", 64)

	v.SetDefault("workers.pipeline_concurrency", 8)
	v.SetDefault("workers.research_concurrency", 2)
	v.SetDefault("workers.tick_interval", "30s")
}
