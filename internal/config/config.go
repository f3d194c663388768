package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "UTC"
	// PathEnv names the environment variable holding the config file path.
	PathEnv = "CONTENT_PIPELINE_CONFIG"

	openAIKeyEnv      = "OPENAI_API_KEY"
	openAIModelEnv    = "OPENAI_MODEL"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	cmsAPIKeyEnv      = "CMS_API_KEY"
	searchAPIKeyEnv   = "SEARCH_API_KEY"
	coverAPIKeyEnv    = "COVER_API_KEY"
	dedupeAPIKeyEnv   = "DEDUPE_API_KEY"
	queueTokenEnv     = "QUEUE_TOKEN"
	natsURLEnv        = "NATS_URL"
	sqlitePathEnv     = "SQLITE_PATH"
)

// Storage drivers for the idempotency ledger.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverNATS   = "nats"
)

// Queue drivers for deferred distribution.
const (
	QueueNATS = "nats"
	QueueHTTP = "http"
)

// Duplicate detector backends.
const (
	DedupeLocal  = "local"
	DedupeRemote = "remote"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Pipeline      PipelineConfig     `yaml:"pipeline"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Storage       StorageConfig      `yaml:"storage"`
	NATS          NATSConfig         `yaml:"nats"`
	Dedupe        DedupeConfig       `yaml:"dedupe"`
	LLM           LLMConfig          `yaml:"llm"`
	Scraper       ScraperConfig      `yaml:"scraper"`
	Publisher     PublisherConfig    `yaml:"publisher"`
	Search        SearchConfig       `yaml:"search"`
	Cover         CoverConfig        `yaml:"cover"`
	Queue         QueueConfig        `yaml:"queue"`
	Notifications NotificationConfig `yaml:"notifications"`
	Metrics       MetricsConfig      `yaml:"metrics"`
	Sites         []SiteConfig       `yaml:"sites"`
}

// LoggingConfig controls the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// PipelineConfig drives the orchestrator.
type PipelineConfig struct {
	BatchSize    int    `yaml:"batchSize"`
	SiteURL      string `yaml:"siteUrl"`
	DefaultCover string `yaml:"defaultCover"`
	// RunLockPath, when set, makes a run skip if another local process holds it.
	RunLockPath        string `yaml:"runLockPath"`
	IndexRetryAttempts int    `yaml:"indexRetryAttempts"`
}

// SchedulerConfig defines when the pipeline should run.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// StorageConfig selects the ledger backend.
type StorageConfig struct {
	Driver              string `yaml:"driver"`
	SQLitePath          string `yaml:"sqlitePath"`
	ClaimRetentionHours int    `yaml:"claimRetentionHours"`
}

// ClaimRetention returns how long a claimed link is remembered.
func (s StorageConfig) ClaimRetention() time.Duration {
	return time.Duration(s.ClaimRetentionHours) * time.Hour
}

// NATSConfig describes the NATS connection shared by ledger and queue.
type NATSConfig struct {
	URL          string `yaml:"url"`
	LedgerBucket string `yaml:"ledgerBucket"`
}

// DedupeConfig configures the duplicate detector.
type DedupeConfig struct {
	Backend   string  `yaml:"backend"`
	Endpoint  string  `yaml:"endpoint"`
	APIKey    string  `yaml:"apiKey"`
	Threshold float64 `yaml:"threshold"`
	Window    int     `yaml:"window"`
}

// LLMConfig defines how to contact the OpenAI-compatible generation API.
type LLMConfig struct {
	BaseURL           string  `yaml:"baseUrl"`
	Model             string  `yaml:"model"`
	APIKey            string  `yaml:"apiKey"`
	TimeoutSeconds    int     `yaml:"timeoutSeconds"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	MaxTokens         int     `yaml:"maxTokens"`
}

// ScraperConfig tunes content retrieval.
type ScraperConfig struct {
	UserAgent         string  `yaml:"userAgent"`
	TimeoutSeconds    int     `yaml:"timeoutSeconds"`
	MaxBytes          int64   `yaml:"maxBytes"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	RespectRobots     bool    `yaml:"respectRobots"`
}

// PublisherConfig points to the external content store.
type PublisherConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"apiKey"`
}

// SearchConfig points to the search index used for indexing and related links.
type SearchConfig struct {
	Endpoint     string `yaml:"endpoint"`
	APIKey       string `yaml:"apiKey"`
	Index        string `yaml:"index"`
	RelatedLimit int    `yaml:"relatedLimit"`
}

// CoverConfig points to the image search service.
type CoverConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"apiKey"`
}

// QueueConfig describes the deferred job queue.
type QueueConfig struct {
	Driver      string `yaml:"driver"`
	Endpoint    string `yaml:"endpoint"`
	Token       string `yaml:"token"`
	Destination string `yaml:"destination"`
}

// NotificationConfig encapsulates operator alert channels.
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// MetricsConfig controls the Prometheus listener used by serve.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// SiteConfig describes a single feed site with its scanner strategy.
type SiteConfig struct {
	Name    string            `yaml:"name"`
	Scanner string            `yaml:"scanner"`
	Feeds   []FeedConfig      `yaml:"feeds"`
	Options map[string]string `yaml:"options"`
}

// FeedConfig holds a concrete endpoint to poll.
type FeedConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Load reads the configuration file (YAML, or TOML when the extension says so)
// over the defaults and applies environment overrides. An empty path falls
// back to CONTENT_PIPELINE_CONFIG; no path at all means defaults plus env.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(PathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := decode(path, raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.bindTimezone(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func decode(path string, raw []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.Unmarshal(raw, cfg)
	default:
		return yaml.Unmarshal(raw, cfg)
	}
}

// Validate checks invariants the pipeline relies on.
func (c Config) Validate() error {
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("pipeline.batchSize must be positive, got %d", c.Pipeline.BatchSize)
	}
	site, err := url.Parse(c.Pipeline.SiteURL)
	if err != nil || site.Hostname() == "" {
		return fmt.Errorf("pipeline.siteUrl %q must be an absolute url", c.Pipeline.SiteURL)
	}
	switch c.Storage.Driver {
	case DriverMemory, DriverSQLite, DriverNATS:
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
	}
	if c.Storage.ClaimRetentionHours <= 0 {
		return fmt.Errorf("storage.claimRetentionHours must be positive")
	}
	switch c.Queue.Driver {
	case "", QueueNATS, QueueHTTP:
	default:
		return fmt.Errorf("queue.driver %q is not supported", c.Queue.Driver)
	}
	switch c.Dedupe.Backend {
	case DedupeLocal, DedupeRemote:
	default:
		return fmt.Errorf("dedupe.backend %q is not supported", c.Dedupe.Backend)
	}
	if c.Dedupe.Backend == DedupeRemote && c.Dedupe.Endpoint == "" {
		return fmt.Errorf("dedupe.endpoint is required for the remote backend")
	}
	for _, s := range c.Sites {
		if s.Name == "" || s.Scanner == "" {
			return fmt.Errorf("every site needs a name and a scanner")
		}
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	overrides := []struct {
		env    string
		target *string
	}{
		{openAIKeyEnv, &c.LLM.APIKey},
		{openAIModelEnv, &c.LLM.Model},
		{telegramTokenEnv, &c.Notifications.Telegram.BotToken},
		{telegramChatIDEnv, &c.Notifications.Telegram.ChatID},
		{cmsAPIKeyEnv, &c.Publisher.APIKey},
		{searchAPIKeyEnv, &c.Search.APIKey},
		{coverAPIKeyEnv, &c.Cover.APIKey},
		{dedupeAPIKeyEnv, &c.Dedupe.APIKey},
		{queueTokenEnv, &c.Queue.Token},
		{natsURLEnv, &c.NATS.URL},
		{sqlitePathEnv, &c.Storage.SQLitePath},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.target = v
		}
	}
}

func (c *Config) bindTimezone() error {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("scheduler.timezone %q: %w", tz, err)
	}
	c.Scheduler.location = loc
	return nil
}

// Default returns the built-in configuration.
func Default() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging: LoggingConfig{Level: "info"},
		Pipeline: PipelineConfig{
			BatchSize:          5,
			SiteURL:            "https://news.example.org",
			DefaultCover:       "https://news.example.org/static/cover-default.jpg",
			IndexRetryAttempts: 4,
		},
		Scheduler: SchedulerConfig{CronExpression: "0 */2 * * *", Timezone: defaultTimezone, location: tz},
		Storage: StorageConfig{
			Driver:              DriverSQLite,
			SQLitePath:          "data/pipeline.db",
			ClaimRetentionHours: 24 * 7,
		},
		NATS:   NATSConfig{URL: "nats://127.0.0.1:4222", LedgerBucket: "PIPELINE_CLAIMS"},
		Dedupe: DedupeConfig{Backend: DedupeLocal, Threshold: 0.6, Window: 500},
		LLM: LLMConfig{
			Model:             "gpt-4o-mini",
			TimeoutSeconds:    60,
			RequestsPerSecond: 1,
			MaxTokens:         2000,
		},
		Scraper: ScraperConfig{
			UserAgent:         "ContentPipeline/1.0",
			TimeoutSeconds:    20,
			MaxBytes:          4 << 20,
			RequestsPerSecond: 0.5,
			RespectRobots:     true,
		},
		Search:  SearchConfig{Index: "articles", RelatedLimit: 3},
		Queue:   QueueConfig{Driver: "", Destination: "distribution.social"},
		Metrics: MetricsConfig{Addr: ":9102"},
		Sites: []SiteConfig{
			{
				Name:    "hn-frontpage",
				Scanner: "rss",
				Feeds: []FeedConfig{
					{Name: "front", URL: "https://hnrss.org/frontpage"},
				},
			},
		},
	}
}
