package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`
	ServerPort string `mapstructure:"SERVER_PORT"`

	// Storage
	Store         string `mapstructure:"STORE"` // "sqlite", "postgres" or "memory"
	SQLitePath    string `mapstructure:"SQLITE_PATH"`
	PostgresURL   string `mapstructure:"POSTGRES_URL"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	SeenTTLHours  int    `mapstructure:"SEEN_TTL_HOURS"`
	RetentionDays int    `mapstructure:"RETENTION_DAYS"`

	// Identity rotation
	ProxyFile        string `mapstructure:"PROXY_FILE"`
	ProxyRotateEvery int    `mapstructure:"PROXY_ROTATE_EVERY"`

	// Site and brand tables; empty means the embedded defaults.
	SitesFile  string `mapstructure:"SITES_FILE"`
	BrandsFile string `mapstructure:"BRANDS_FILE"`

	// Fetching
	FetchTimeoutSeconds int     `mapstructure:"FETCH_TIMEOUT_SECONDS"`
	FetchMaxRetries     int     `mapstructure:"FETCH_MAX_RETRIES"`
	FetchBaseDelayMS    int     `mapstructure:"FETCH_BASE_DELAY_MS"`
	HTTPConcurrency     int     `mapstructure:"HTTP_CONCURRENCY"`
	HostRatePerSecond   float64 `mapstructure:"HOST_RATE_PER_SECOND"`

	// Render fallback
	RenderEnabled            bool `mapstructure:"RENDER_ENABLED"`
	RenderConcurrency        int  `mapstructure:"RENDER_CONCURRENCY"`
	RenderNavTimeoutSeconds  int  `mapstructure:"RENDER_NAV_TIMEOUT_SECONDS"`
	RenderWaitTimeoutSeconds int  `mapstructure:"RENDER_WAIT_TIMEOUT_SECONDS"`

	// Orchestration
	ItemsPerPage     int    `mapstructure:"ITEMS_PER_PAGE"`
	Workers          int    `mapstructure:"WORKERS"`
	TurboWorkers     int    `mapstructure:"TURBO_WORKERS"`
	MaxWorkItems     int    `mapstructure:"MAX_WORK_ITEMS"`
	AutoMaxWorkItems int    `mapstructure:"AUTO_MAX_WORK_ITEMS"`
	RequestJitterMS  int    `mapstructure:"REQUEST_JITTER_MS"`
	BatchPauseMS     int    `mapstructure:"BATCH_PAUSE_MS"`
	SoldSweep        bool   `mapstructure:"SOLD_SWEEP"`
	SearchMode       string `mapstructure:"SEARCH_MODE"` // "selected" or "auto"
	Keywords         string `mapstructure:"KEYWORDS"`
	Platforms        string `mapstructure:"PLATFORMS"`

	// Scheduler
	SchedTickSeconds          int `mapstructure:"SCHED_TICK_SECONDS"`
	SchedIntervalMinutes      int `mapstructure:"SCHED_INTERVAL_MINUTES"`
	SchedTurboIntervalMinutes int `mapstructure:"SCHED_TURBO_INTERVAL_MINUTES"`

	// Notifications
	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   string `mapstructure:"TELEGRAM_CHAT_ID"`
}

// Load reads configuration from an optional .env file and the environment.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	if envFile == "" {
		envFile = ".env"
	}
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Attempt to read the .env file, but don't fail if it's not present
	_ = v.ReadInConfig()

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SERVER_PORT", "8080")

	v.SetDefault("STORE", "sqlite")
	v.SetDefault("SQLITE_PATH", "items.db")
	v.SetDefault("POSTGRES_URL", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("SEEN_TTL_HOURS", 72)
	v.SetDefault("RETENTION_DAYS", 30)

	v.SetDefault("PROXY_FILE", "proxies.txt")
	v.SetDefault("PROXY_ROTATE_EVERY", 3)

	v.SetDefault("SITES_FILE", "")
	v.SetDefault("BRANDS_FILE", "")

	v.SetDefault("FETCH_TIMEOUT_SECONDS", 15)
	v.SetDefault("FETCH_MAX_RETRIES", 3)
	v.SetDefault("FETCH_BASE_DELAY_MS", 1000)
	v.SetDefault("HTTP_CONCURRENCY", 20)
	v.SetDefault("HOST_RATE_PER_SECOND", 2.0)

	v.SetDefault("RENDER_ENABLED", true)
	v.SetDefault("RENDER_CONCURRENCY", 1)
	v.SetDefault("RENDER_NAV_TIMEOUT_SECONDS", 30)
	v.SetDefault("RENDER_WAIT_TIMEOUT_SECONDS", 10)

	v.SetDefault("ITEMS_PER_PAGE", 10)
	v.SetDefault("WORKERS", 5)
	v.SetDefault("TURBO_WORKERS", 20)
	v.SetDefault("MAX_WORK_ITEMS", 0)
	v.SetDefault("AUTO_MAX_WORK_ITEMS", 30)
	v.SetDefault("REQUEST_JITTER_MS", 300)
	v.SetDefault("BATCH_PAUSE_MS", 0)
	v.SetDefault("SOLD_SWEEP", false)
	v.SetDefault("SEARCH_MODE", "selected")
	v.SetDefault("KEYWORDS", "")
	v.SetDefault("PLATFORMS", "")

	v.SetDefault("SCHED_TICK_SECONDS", 30)
	v.SetDefault("SCHED_INTERVAL_MINUTES", 30)
	v.SetDefault("SCHED_TURBO_INTERVAL_MINUTES", 5)

	v.SetDefault("TELEGRAM_BOT_TOKEN", "")
	v.SetDefault("TELEGRAM_CHAT_ID", "")
}

func (c *Config) validate() error {
	switch c.Store {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("unknown STORE %q", c.Store)
	}
	if c.Store == "postgres" && c.PostgresURL == "" {
		return fmt.Errorf("POSTGRES_URL is required when STORE=postgres")
	}
	switch c.SearchMode {
	case "selected", "auto":
	default:
		return fmt.Errorf("unknown SEARCH_MODE %q", c.SearchMode)
	}
	if c.HTTPConcurrency < 1 {
		c.HTTPConcurrency = 1
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.TurboWorkers < c.Workers {
		c.TurboWorkers = c.Workers
	}
	// The render ceiling must stay strictly below the HTTP ceiling.
	if c.RenderConcurrency < 1 {
		c.RenderConcurrency = 1
	}
	if c.HTTPConcurrency > 1 && c.RenderConcurrency >= c.HTTPConcurrency {
		c.RenderConcurrency = c.HTTPConcurrency - 1
	}
	return nil
}

func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

func (c *Config) FetchBaseDelay() time.Duration {
	return time.Duration(c.FetchBaseDelayMS) * time.Millisecond
}

func (c *Config) RenderNavTimeout() time.Duration {
	return time.Duration(c.RenderNavTimeoutSeconds) * time.Second
}

func (c *Config) RenderWaitTimeout() time.Duration {
	return time.Duration(c.RenderWaitTimeoutSeconds) * time.Second
}

func (c *Config) RequestJitter() time.Duration {
	return time.Duration(c.RequestJitterMS) * time.Millisecond
}

func (c *Config) BatchPause() time.Duration {
	return time.Duration(c.BatchPauseMS) * time.Millisecond
}

func (c *Config) SchedTick() time.Duration {
	return time.Duration(c.SchedTickSeconds) * time.Second
}

func (c *Config) SchedInterval() time.Duration {
	return time.Duration(c.SchedIntervalMinutes) * time.Minute
}

func (c *Config) SchedTurboInterval() time.Duration {
	return time.Duration(c.SchedTurboIntervalMinutes) * time.Minute
}

func (c *Config) SeenTTL() time.Duration {
	return time.Duration(c.SeenTTLHours) * time.Hour
}

func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// KeywordList splits KEYWORDS on commas.
func (c *Config) KeywordList() []string {
	return SplitList(c.Keywords)
}

// PlatformList splits PLATFORMS on commas.
func (c *Config) PlatformList() []string {
	return SplitList(c.Platforms)
}

// SplitList splits a comma separated value, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
