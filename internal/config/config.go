package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	Database DatabaseConfig `yaml:"database" envconfig:"DATABASE"`
	QProf    QProfConfig    `yaml:"qprof" envconfig:"QPROF"`
	Watch    WatchConfig    `yaml:"watch" envconfig:"WATCH"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps" envconfig:"RATE_LIMIT_RPS" default:"100"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" envconfig:"RATE_LIMIT_BURST" default:"50"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/cnabd.log"`
}

// DatabaseConfig contains the persistence collaborator configuration.
// URL uses a scheme prefix to select the driver: sqlite:// or postgres://.
type DatabaseConfig struct {
	URL             string        `yaml:"url" envconfig:"URL" default:"sqlite://./cnabd.db"`
	MaxOpenConns    int           `yaml:"max_open_conns" envconfig:"MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `yaml:"max_idle_conns" envconfig:"MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" envconfig:"CONN_MAX_LIFETIME" default:"5m"`
}

// QProfConfig contains the driven back-office system configuration.
// Username/Password are required for any import run; the engine fails fast
// without them.
type QProfConfig struct {
	BaseURL  string `yaml:"base_url" envconfig:"BASE_URL" default:"https://qprof.flowinvest.capital"`
	Username string `yaml:"username" envconfig:"USERNAME"`
	Password string `yaml:"password" envconfig:"PASSWORD"`
	// Company is the default operating context, used when a routine or
	// manual import does not name one.
	Company  string `yaml:"company" envconfig:"COMPANY"`
	Headless bool   `yaml:"headless" envconfig:"HEADLESS" default:"true"`
}

// WatchConfig contains folder watching and diagnostics configuration
type WatchConfig struct {
	Extension       string        `yaml:"extension" envconfig:"EXTENSION" default:".RET"`
	TickInterval    time.Duration `yaml:"tick_interval" envconfig:"TICK_INTERVAL" default:"5m"`
	ScreenshotDir   string        `yaml:"screenshot_dir" envconfig:"SCREENSHOT_DIR" default:"data/screenshots"`
	LiveInterval    time.Duration `yaml:"live_interval" envconfig:"LIVE_INTERVAL" default:"2s"`
	StepSettleDelay time.Duration `yaml:"step_settle_delay" envconfig:"STEP_SETTLE_DELAY" default:"2s"`
	StepWaitTimeout time.Duration `yaml:"step_wait_timeout" envconfig:"STEP_WAIT_TIMEOUT" default:"30s"`
}

// Load loads configuration from environment variables and config file.
// Environment variables (CNABD_ prefix) take precedence over the file.
func Load() (*Config, error) {
	var cfg Config

	// File first so env overrides it
	if path := configFilePath(); path != "" {
		fileCfg, err := loadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = *fileCfg
	}

	if err := envconfig.Process("CNABD", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.URL == "" {
		return fmt.Errorf("database url must not be empty")
	}

	if c.QProf.BaseURL == "" {
		return fmt.Errorf("qprof base url must not be empty")
	}

	if c.Watch.Extension == "" {
		return fmt.Errorf("watch extension must not be empty")
	}

	if c.Watch.TickInterval <= 0 {
		return fmt.Errorf("watch tick interval must be positive")
	}

	if c.Logging.Output != "stdout" && c.Logging.Output != "file" && c.Logging.Output != "both" {
		c.Logging.Output = "both"
	}

	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/cnabd.log"
	}

	return nil
}

// HasCredentials reports whether target system credentials are configured.
func (c *QProfConfig) HasCredentials() bool {
	return c.Username != "" && c.Password != ""
}

// configFilePath returns the path to the config file, if one exists
func configFilePath() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration, used when Load is not applicable
// (tests, one-off tooling).
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimitRPS:    100,
			RateLimitBurst:  50,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "both",
			FilePath: "logs/cnabd.log",
		},
		Database: DatabaseConfig{
			URL:             "sqlite://./cnabd.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		QProf: QProfConfig{
			BaseURL:  "https://qprof.flowinvest.capital",
			Headless: true,
		},
		Watch: WatchConfig{
			Extension:       ".RET",
			TickInterval:    5 * time.Minute,
			ScreenshotDir:   "data/screenshots",
			LiveInterval:    2 * time.Second,
			StepSettleDelay: 2 * time.Second,
			StepWaitTimeout: 30 * time.Second,
		},
	}
}
