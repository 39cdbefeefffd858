package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	State        StateConfig        `yaml:"state" mapstructure:"state"`
	AlphaVantage AlphaVantageConfig `yaml:"alphavantage" mapstructure:"alphavantage"`
	Fetch        FetchConfig        `yaml:"fetch" mapstructure:"fetch"`
	Train        TrainConfig        `yaml:"train" mapstructure:"train"`
	Batch        BatchConfig        `yaml:"batch" mapstructure:"batch"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// StateConfig locates the shared state document and the append-only ledgers.
type StateConfig struct {
	Path          string `yaml:"path" mapstructure:"path"`
	ProjectRoot   string `yaml:"project_root" mapstructure:"project_root"`
	FetchHistory  string `yaml:"fetch_history" mapstructure:"fetch_history"`
	ModelsHistory string `yaml:"models_history" mapstructure:"models_history"`
}

// AlphaVantageConfig holds the market-data API settings.
type AlphaVantageConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	MaxRetries int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// FetchConfig holds the fetch-stage defaults.
type FetchConfig struct {
	Function   string `yaml:"function" mapstructure:"function"`
	DaysBack   int    `yaml:"days_back" mapstructure:"days_back"`
	OutputSize string `yaml:"outputsize" mapstructure:"outputsize"`
}

// TrainConfig holds the training and evaluation settings.
type TrainConfig struct {
	TestSize        float64 `yaml:"test_size" mapstructure:"test_size"`
	RidgeLambda     float64 `yaml:"ridge_lambda" mapstructure:"ridge_lambda"`
	ReviewThreshold float64 `yaml:"review_threshold" mapstructure:"review_threshold"`
}

// BatchConfig configures multi-symbol fetch runs.
type BatchConfig struct {
	MaxConcurrentSymbols int `yaml:"max_concurrent_symbols" mapstructure:"max_concurrent_symbols"`
}

// ServerConfig configures the read-only status server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config file, and environment.
func Load() (*Config, error) {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("STOCKPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The conventional upstream variable name, without the prefix.
	_ = v.BindEnv("alphavantage.key", "STOCKPIPE_ALPHAVANTAGE_KEY", "ALPHA_VANTAGE_API_KEY")

	// Defaults
	v.SetDefault("state.path", "config/config.json")
	v.SetDefault("state.project_root", ".")
	v.SetDefault("state.fetch_history", "data/fetch_history.jsonl")
	v.SetDefault("state.models_history", "models/models_history.jsonl")
	v.SetDefault("alphavantage.base_url", "https://www.alphavantage.co")
	v.SetDefault("alphavantage.max_retries", 3)
	v.SetDefault("fetch.function", "TIME_SERIES_DAILY")
	v.SetDefault("fetch.days_back", 365)
	v.SetDefault("fetch.outputsize", "full")
	v.SetDefault("train.test_size", 0.2)
	v.SetDefault("train.ridge_lambda", 1.0)
	v.SetDefault("train.review_threshold", 0.75)
	v.SetDefault("batch.max_concurrent_symbols", 3)
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
