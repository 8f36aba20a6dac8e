package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode              string        `mapstructure:"mode"`
	Port              int           `mapstructure:"port"`
	LogLevel          string        `mapstructure:"log_level"`
	AccessTokenHeader string        `mapstructure:"access_token_header"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	ReadLimit         int64         `mapstructure:"read_limit"`
	PingPeriod        time.Duration `mapstructure:"ping_period"`

	Matchmaking Matchmaking `mapstructure:"matchmaking"`
	// ServiceClasses maps a class name to admitted creates and joins per
	// second for each definition of that class. Zero means unthrottled.
	ServiceClasses map[string]int `mapstructure:"service_classes"`
	Notify         Notify         `mapstructure:"notify"`
}

type Matchmaking struct {
	ScanBudget       time.Duration `mapstructure:"scan_budget"`
	ScanBatch        int           `mapstructure:"scan_batch"`
	SearchContextTTL time.Duration `mapstructure:"search_context_ttl"`
	AnybodyAttempts  int           `mapstructure:"anybody_attempts"`
	PasscodeAttempts int           `mapstructure:"passcode_attempts"`
	DeletePolicy     string        `mapstructure:"delete_policy"`
	DefaultPageSize  int           `mapstructure:"default_page_size"`
	MaxPageSize      int           `mapstructure:"max_page_size"`
}

type Notify struct {
	Workers        int           `mapstructure:"workers"`
	QueueSize      int           `mapstructure:"queue_size"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

var defaultServiceClasses = map[string]int{
	"small":  10,
	"medium": 100,
	"large":  1000,
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default).
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile reads one yaml file over the defaults. A missing file is not an
// error. GATHER_* environment variables override both.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("gather")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("config loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if len(cfg.ServiceClasses) == 0 {
		cfg.ServiceClasses = make(map[string]int, len(defaultServiceClasses))
		for k, n := range defaultServiceClasses {
			cfg.ServiceClasses[k] = n
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("delete_policy", cfg.Matchmaking.DeletePolicy).
		Int("service_classes", len(cfg.ServiceClasses)).
		Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("access_token_header", "X-Gather-Access-Token")
	v.SetDefault("shutdown_timeout", "5s")
	v.SetDefault("read_limit", 4096)
	v.SetDefault("ping_period", "54s")

	v.SetDefault("matchmaking.scan_budget", "50ms")
	v.SetDefault("matchmaking.scan_batch", 256)
	v.SetDefault("matchmaking.search_context_ttl", "5m")
	v.SetDefault("matchmaking.anybody_attempts", 8)
	v.SetDefault("matchmaking.passcode_attempts", 16)
	v.SetDefault("matchmaking.delete_policy", "reject")
	v.SetDefault("matchmaking.default_page_size", 50)
	v.SetDefault("matchmaking.max_page_size", 1000)

	v.SetDefault("notify.workers", 4)
	v.SetDefault("notify.queue_size", 1024)
	v.SetDefault("notify.max_attempts", 5)
	v.SetDefault("notify.initial_backoff", "500ms")
	v.SetDefault("notify.max_backoff", "30s")
	v.SetDefault("notify.timeout", "10s")
}

func (c *Config) Validate() error {
	switch c.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: log_level: %w", err)
	}
	if c.AccessTokenHeader == "" {
		return fmt.Errorf("config: access_token_header is empty")
	}
	if c.ShutdownTimeout <= 0 || c.PingPeriod <= 0 || c.ReadLimit <= 0 {
		return fmt.Errorf("config: shutdown_timeout, ping_period and read_limit must be positive")
	}

	m := c.Matchmaking
	if m.ScanBudget <= 0 || m.SearchContextTTL <= 0 {
		return fmt.Errorf("config: matchmaking scan_budget and search_context_ttl must be positive")
	}
	if m.ScanBatch < 0 {
		return fmt.Errorf("config: matchmaking.scan_batch is negative")
	}
	if m.AnybodyAttempts <= 0 || m.PasscodeAttempts <= 0 {
		return fmt.Errorf("config: matchmaking attempts must be positive")
	}
	switch m.DeletePolicy {
	case "reject", "cascade":
	default:
		return fmt.Errorf("config: unknown matchmaking.delete_policy %q", m.DeletePolicy)
	}
	if m.DefaultPageSize <= 0 || m.MaxPageSize < m.DefaultPageSize {
		return fmt.Errorf("config: page sizes need 0 < default_page_size <= max_page_size")
	}

	for name, n := range c.ServiceClasses {
		if n < 0 {
			return fmt.Errorf("config: service class %q has negative throughput", name)
		}
	}

	n := c.Notify
	if n.Workers <= 0 || n.QueueSize <= 0 || n.MaxAttempts <= 0 {
		return fmt.Errorf("config: notify workers, queue_size and max_attempts must be positive")
	}
	if n.InitialBackoff <= 0 || n.MaxBackoff < n.InitialBackoff || n.Timeout <= 0 {
		return fmt.Errorf("config: notify needs 0 < initial_backoff <= max_backoff and a positive timeout")
	}
	return nil
}
