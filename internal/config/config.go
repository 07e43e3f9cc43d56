package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Worker     WorkerConfig     `yaml:"worker" mapstructure:"worker"`
	Jobs       JobsConfig       `yaml:"jobs" mapstructure:"jobs"`
	Poll       PollConfig       `yaml:"poll" mapstructure:"poll"`
	Client     ClientConfig     `yaml:"client" mapstructure:"client"`
	MockWorker MockWorkerConfig `yaml:"mock_worker" mapstructure:"mock_worker"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the onboarding API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
	// BaseURL is the externally reachable address used to build callback URLs.
	BaseURL     string   `yaml:"base_url" mapstructure:"base_url"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// WorkerConfig configures outbound dispatch to the enrichment worker.
type WorkerConfig struct {
	WebhookURL     string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	Secret         string  `yaml:"secret" mapstructure:"secret"`
	CallbackSecret string  `yaml:"callback_secret" mapstructure:"callback_secret"`
	QueueSize      int     `yaml:"queue_size" mapstructure:"queue_size"`
	Workers        int     `yaml:"workers" mapstructure:"workers"`
	RatePerSec     float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts    int     `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// JobsConfig configures the in-memory job status store.
type JobsConfig struct {
	TTLMinutes           int `yaml:"ttl_minutes" mapstructure:"ttl_minutes"`
	SweepIntervalMinutes int `yaml:"sweep_interval_minutes" mapstructure:"sweep_interval_minutes"`
}

// TTL returns the job TTL as a duration.
func (c JobsConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// SweepInterval returns the sweep period as a duration.
func (c JobsConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}

// PollConfig configures the client-side status poller.
type PollConfig struct {
	IntervalMS  int `yaml:"interval_ms" mapstructure:"interval_ms"`
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
	MarginMS    int `yaml:"margin_ms" mapstructure:"margin_ms"`
}

// Interval returns the poll interval as a duration.
func (c PollConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

// Margin returns the slack added on top of attempts*interval.
func (c PollConfig) Margin() time.Duration {
	return time.Duration(c.MarginMS) * time.Millisecond
}

// ClientConfig configures the CLI wizard's API client.
type ClientConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	UserID  string `yaml:"user_id" mapstructure:"user_id"`
}

// MockWorkerConfig configures the development enrichment worker.
type MockWorkerConfig struct {
	Port        int    `yaml:"port" mapstructure:"port"`
	DelayMS     int    `yaml:"delay_ms" mapstructure:"delay_ms"`
	FailMessage string `yaml:"fail_message" mapstructure:"fail_message"`
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
	v.SetEnvPrefix("ONBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("worker.queue_size", 256)
	v.SetDefault("worker.workers", 4)
	v.SetDefault("worker.rate_per_sec", 10.0)
	v.SetDefault("worker.timeout_secs", 15)
	v.SetDefault("worker.max_attempts", 3)
	v.SetDefault("jobs.ttl_minutes", 15)
	v.SetDefault("jobs.sweep_interval_minutes", 5)
	v.SetDefault("poll.interval_ms", 3000)
	v.SetDefault("poll.max_attempts", 30)
	v.SetDefault("poll.margin_ms", 5000)
	v.SetDefault("client.base_url", "http://localhost:8080")
	v.SetDefault("mock_worker.port", 8090)
	v.SetDefault("mock_worker.delay_ms", 2000)

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

// Validate checks that the fields required by a command mode are present.
// Modes: serve, migrate, wizard, mock-worker.
func (c *Config) Validate(mode string) error {
	var errs []string

	requireDB := func() {
		if c.Store.Driver != "postgres" && c.Store.Driver != "sqlite" {
			errs = append(errs, "store.driver must be postgres or sqlite")
		}
		// sqlite falls back to a local onboard.db file.
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for postgres")
		}
	}

	switch mode {
	case "serve":
		requireDB()
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Server.BaseURL == "" {
			errs = append(errs, "server.base_url is required")
		}
		if c.Worker.WebhookURL == "" {
			errs = append(errs, "worker.webhook_url is required")
		}
		if c.Worker.Workers < 1 || c.Worker.Workers > 64 {
			errs = append(errs, "worker.workers must be between 1 and 64")
		}
		if c.Worker.QueueSize < 1 {
			errs = append(errs, "worker.queue_size must be > 0")
		}
		if c.Jobs.TTLMinutes <= 0 || c.Jobs.SweepIntervalMinutes <= 0 {
			errs = append(errs, "jobs.ttl_minutes and jobs.sweep_interval_minutes must be > 0")
		}
	case "migrate":
		requireDB()
	case "wizard":
		if c.Client.BaseURL == "" {
			errs = append(errs, "client.base_url is required")
		}
		if c.Client.UserID == "" {
			errs = append(errs, "client.user_id is required")
		}
		if c.Poll.IntervalMS <= 0 || c.Poll.MaxAttempts <= 0 {
			errs = append(errs, "poll.interval_ms and poll.max_attempts must be > 0")
		}
	case "mock-worker":
		if c.MockWorker.Port <= 0 {
			errs = append(errs, "mock_worker.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
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
