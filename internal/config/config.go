// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sanitiza-group/cert-cli/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Geocode   GeocodeConfig   `yaml:"geocode" mapstructure:"geocode"`
	Heatmap   HeatmapConfig   `yaml:"heatmap" mapstructure:"heatmap"`
	Artifacts ArtifactsConfig `yaml:"artifacts" mapstructure:"artifacts"`
	Uploads   UploadsConfig   `yaml:"uploads" mapstructure:"uploads"`
	Engine    EngineConfig    `yaml:"engine" mapstructure:"engine"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig selects the engine database the CLI reads from.
type StoreConfig struct {
	Driver   string `yaml:"driver" mapstructure:"driver"`
	DSN      string `yaml:"dsn" mapstructure:"dsn"`
	MaxConns int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// GeocodeConfig configures the Nominatim client.
type GeocodeConfig struct {
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	UserAgent    string  `yaml:"user_agent" mapstructure:"user_agent"`
	Country      string  `yaml:"country" mapstructure:"country"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Retries      int     `yaml:"retries" mapstructure:"retries"`
	BackoffMinMS int     `yaml:"backoff_min_ms" mapstructure:"backoff_min_ms"`
	BackoffMaxMS int     `yaml:"backoff_max_ms" mapstructure:"backoff_max_ms"`
	RateRPS      float64 `yaml:"rate_rps" mapstructure:"rate_rps"`
	BBoxDelta    float64 `yaml:"bbox_delta" mapstructure:"bbox_delta"`
	Concurrency  int     `yaml:"concurrency" mapstructure:"concurrency"`
}

// Timeout returns the per-request timeout as a duration.
func (g GeocodeConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSecs) * time.Second
}

// Retry maps the configured retry budget onto a resilience.RetryConfig.
// Retries counts re-attempts, so the total attempt budget is retries+1.
func (g GeocodeConfig) Retry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts: g.Retries + 1,
		BackoffMin:  time.Duration(g.BackoffMinMS) * time.Millisecond,
		BackoffMax:  time.Duration(g.BackoffMaxMS) * time.Millisecond,
	}
}

// HeatmapConfig configures the heatmap file cache.
type HeatmapConfig struct {
	CachePath string `yaml:"cache_path" mapstructure:"cache_path"`
	TTLHours  int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// TTL returns the cache TTL as a duration.
func (h HeatmapConfig) TTL() time.Duration {
	return time.Duration(h.TTLHours) * time.Hour
}

// ArtifactsConfig configures where generated PDFs live.
type ArtifactsConfig struct {
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
}

// UploadsConfig configures the upload pipeline.
type UploadsConfig struct {
	IndexPath string `yaml:"index_path" mapstructure:"index_path"`
	TempDir   string `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// EngineConfig locates the external document engine service.
type EngineConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Timeout returns the engine request timeout as a duration.
func (e EngineConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSecs) * time.Second
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CERT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "data/certificados.db")
	v.SetDefault("geocode.base_url", "https://nominatim.openstreetmap.org/search")
	v.SetDefault("geocode.user_agent", "cert-cli/1.0")
	v.SetDefault("geocode.country", "Brazil")
	v.SetDefault("geocode.timeout_secs", 5)
	v.SetDefault("geocode.retries", 3)
	v.SetDefault("geocode.backoff_min_ms", 300)
	v.SetDefault("geocode.backoff_max_ms", 1200)
	v.SetDefault("geocode.rate_rps", 1)
	v.SetDefault("geocode.bbox_delta", 0.2)
	v.SetDefault("geocode.concurrency", 4)
	v.SetDefault("heatmap.cache_path", "data/heatmap_cache.json")
	v.SetDefault("heatmap.ttl_hours", 12)
	v.SetDefault("artifacts.output_dir", "data/pdfs")
	v.SetDefault("uploads.index_path", "data/processed.jsonl")
	v.SetDefault("uploads.temp_dir", "data/tmp")
	v.SetDefault("engine.base_url", "http://localhost:8600")
	v.SetDefault("engine.timeout_secs", 120)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
