package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Reddit      RedditConfig     `yaml:"reddit"`
	MediaCrush  MediaCrushConfig `yaml:"mediacrush"`
	Dispatcher  DispatcherConfig `yaml:"dispatcher"`
	Worker      WorkerConfig     `yaml:"worker"`
	Download    DownloadConfig   `yaml:"download"`
	Server      ServerConfig     `yaml:"server"`
	History     HistoryConfig    `yaml:"history"`
	Compliments []string         `yaml:"compliments"`
}

// RedditConfig holds discussion-platform credentials and client settings.
type RedditConfig struct {
	Username    string        `yaml:"username" envconfig:"REDDIT_USERNAME"`
	Password    string        `yaml:"password" envconfig:"REDDIT_PASSWORD"`
	BaseURL     string        `yaml:"base_url" envconfig:"REDDIT_BASE_URL"`
	UserAgent   string        `yaml:"user_agent" envconfig:"REDDIT_USER_AGENT"`
	Timeout     time.Duration `yaml:"timeout" envconfig:"REDDIT_TIMEOUT"`
	SummonToken string        `yaml:"summon_token" envconfig:"SUMMON_TOKEN"`
	// SessionCachePath, when set, persists the login session encrypted at
	// rest so restarts skip the login round trip.
	SessionCachePath string `yaml:"session_cache_path" envconfig:"REDDIT_SESSION_CACHE_PATH"`
	SessionCacheKey  string `yaml:"session_cache_key" envconfig:"REDDIT_SESSION_CACHE_KEY"`
}

// MediaCrushConfig holds transcoding-service client settings.
type MediaCrushConfig struct {
	BaseURL string        `yaml:"base_url" envconfig:"MEDIACRUSH_BASE_URL"`
	Domain  string        `yaml:"domain" envconfig:"MEDIACRUSH_DOMAIN"`
	Timeout time.Duration `yaml:"timeout" envconfig:"MEDIACRUSH_TIMEOUT"`
	// PollTimeout caps the total wall-clock wait for processing to finish.
	// Hitting it maps to the processing-timeout reply.
	PollTimeout time.Duration `yaml:"poll_timeout" envconfig:"MEDIACRUSH_POLL_TIMEOUT"`
}

// DispatcherConfig holds mention-dispatcher settings.
type DispatcherConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" envconfig:"DISPATCHER_POLL_INTERVAL"`
}

// WorkerConfig holds worker pool configuration.
type WorkerConfig struct {
	Count     int `yaml:"count" envconfig:"WORKER_COUNT"`
	QueueSize int `yaml:"queue_size" envconfig:"WORKER_QUEUE_SIZE"`
}

// DownloadConfig holds media probe/download configuration.
type DownloadConfig struct {
	ProbeTimeout  time.Duration `yaml:"probe_timeout" envconfig:"DOWNLOAD_PROBE_TIMEOUT"`
	Timeout       time.Duration `yaml:"timeout" envconfig:"DOWNLOAD_TIMEOUT"`
	RetryDelay    time.Duration `yaml:"retry_delay" envconfig:"DOWNLOAD_RETRY_DELAY"`
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" envconfig:"DOWNLOAD_MAX_RETRY_DELAY"`
	MaxBytes      int64         `yaml:"max_bytes" envconfig:"DOWNLOAD_MAX_BYTES"`
	UserAgent     string        `yaml:"user_agent" envconfig:"DOWNLOAD_USER_AGENT"`
}

// ServerConfig holds the status API server configuration.
type ServerConfig struct {
	Host         string        `yaml:"host" envconfig:"SERVER_HOST"`
	Port         int           `yaml:"port" envconfig:"SERVER_PORT"`
	APIKey       string        `yaml:"api_key" envconfig:"API_KEY"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT"`
}

// HistoryConfig holds reply-history storage configuration.
type HistoryConfig struct {
	Path string `yaml:"path" envconfig:"HISTORY_PATH"`
}

// defaultCompliments is used when the config supplies no phrase table.
var defaultCompliments = []string{
	"You're awesome!",
	"Have a great day!",
	"Thanks for using MediaCrush!",
	"You have excellent taste in media.",
	"Keep being great.",
}

// Load reads configuration from file and environment variables.
// Environment variables override file values; defaults fill the rest.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills unset fields. Kept out of the envconfig tags so file
// values survive when the matching environment variable is absent.
func (c *Config) applyDefaults() {
	setStr := func(s *string, def string) {
		if *s == "" {
			*s = def
		}
	}
	setDur := func(d *time.Duration, def time.Duration) {
		if *d <= 0 {
			*d = def
		}
	}

	setStr(&c.Reddit.BaseURL, "https://www.reddit.com")
	setStr(&c.Reddit.UserAgent, "mediacrusher-bot/1.0")
	setStr(&c.Reddit.SummonToken, "/u/MediaCrusher")
	setDur(&c.Reddit.Timeout, 30*time.Second)

	setStr(&c.MediaCrush.BaseURL, "https://mediacru.sh")
	setStr(&c.MediaCrush.Domain, "mediacru.sh")
	setDur(&c.MediaCrush.Timeout, 30*time.Second)
	setDur(&c.MediaCrush.PollTimeout, 15*time.Minute)

	setDur(&c.Dispatcher.PollInterval, 30*time.Second)

	if c.Worker.Count <= 0 {
		c.Worker.Count = 4
	}
	if c.Worker.QueueSize <= 0 {
		c.Worker.QueueSize = 32
	}

	setDur(&c.Download.ProbeTimeout, 15*time.Second)
	setDur(&c.Download.Timeout, 10*time.Minute)
	setDur(&c.Download.RetryDelay, 5*time.Second)
	setDur(&c.Download.MaxRetryDelay, time.Minute)
	if c.Download.MaxBytes <= 0 {
		c.Download.MaxBytes = 100 << 20 // 100MB
	}
	setStr(&c.Download.UserAgent, "mediacrusher-bot/1.0")

	setStr(&c.Server.Host, "0.0.0.0")
	if c.Server.Port <= 0 {
		c.Server.Port = 9851
	}
	setDur(&c.Server.ReadTimeout, 30*time.Second)
	setDur(&c.Server.WriteTimeout, 30*time.Second)

	setStr(&c.History.Path, "mediacrusher.db")

	if len(c.Compliments) == 0 {
		c.Compliments = defaultCompliments
	}
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.Reddit.Username == "" {
		return fmt.Errorf("REDDIT_USERNAME is required")
	}
	if c.Reddit.Password == "" {
		return fmt.Errorf("REDDIT_PASSWORD is required")
	}
	if c.Reddit.SummonToken == "" {
		return fmt.Errorf("SUMMON_TOKEN must not be empty")
	}
	if len(c.Compliments) == 0 {
		return fmt.Errorf("compliment table must not be empty")
	}
	if c.Reddit.SessionCachePath != "" && c.Reddit.SessionCacheKey == "" {
		return fmt.Errorf("REDDIT_SESSION_CACHE_KEY is required when session caching is enabled")
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
