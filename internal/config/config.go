// Package config loads and validates harvester configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/publication-harvester/internal/crawler"
)

// Renderer modes.
const (
	RendererChromedp = "chromedp"
	RendererStatic   = "static"
)

// Identifier sources.
const (
	IdentifiersNone     = "none"
	IdentifiersHTTP     = "http"
	IdentifiersPostgres = "postgres"
)

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Site        SiteConfig        `mapstructure:"site"`
	Crawler     CrawlerConfig     `mapstructure:"crawler"`
	Robots      RobotsConfig      `mapstructure:"robots"`
	Renderer    RendererConfig    `mapstructure:"renderer"`
	Delivery    DeliveryConfig    `mapstructure:"delivery"`
	Identifiers IdentifiersConfig `mapstructure:"identifiers"`
	Postgres    PostgresConfig    `mapstructure:"postgres"`
	Fallback    FallbackConfig    `mapstructure:"fallback"`
	PubSub      PubSubConfig      `mapstructure:"pubsub"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// SiteConfig names the portal being harvested.
type SiteConfig struct {
	StartURL string `mapstructure:"start_url"`
	BaseURL  string `mapstructure:"base_url"`
}

// CrawlerConfig governs the traversal loop and retry budgets.
type CrawlerConfig struct {
	UserAgent            string        `mapstructure:"user_agent"`
	MaxConsecutiveErrors int           `mapstructure:"max_consecutive_errors"`
	NavigationAttempts   int           `mapstructure:"navigation_attempts"`
	ErrorDelay           time.Duration `mapstructure:"error_delay"`
	DetailAttempts       int           `mapstructure:"detail_attempts"`
	DetailRetryDelay     time.Duration `mapstructure:"detail_retry_delay"`
	ParseTimeout         time.Duration `mapstructure:"parse_timeout"`
	ParallelNormalize    bool          `mapstructure:"parallel_normalize"`
	NormalizeWorkers     int           `mapstructure:"normalize_workers"`
	MaxPages             int           `mapstructure:"max_pages"`
	ResultsName          string        `mapstructure:"results_name"`
	CloseTimeout         time.Duration `mapstructure:"close_timeout"`
}

// RobotsConfig controls robots.txt compliance.
type RobotsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// URL overrides the robots.txt location derived from the start URL.
	URL string `mapstructure:"url"`
	// Identity is the product token matched against User-agent groups.
	Identity      string        `mapstructure:"identity"`
	FallbackDelay time.Duration `mapstructure:"fallback_delay"`
}

// RendererConfig configures page rendering.
type RendererConfig struct {
	Mode         string        `mapstructure:"mode"`
	Timeout      time.Duration `mapstructure:"timeout"`
	SettleDelay  time.Duration `mapstructure:"settle_delay"`
	Headless     bool          `mapstructure:"headless"`
	WindowWidth  int           `mapstructure:"window_width"`
	WindowHeight int           `mapstructure:"window_height"`
	ExecPath     string        `mapstructure:"exec_path"`
	DomainQPS    float64       `mapstructure:"domain_qps"`
	DomainBurst  int           `mapstructure:"domain_burst"`
}

// DeliveryConfig points at the downstream collector.
type DeliveryConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Mode     string        `mapstructure:"mode"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Attempts int           `mapstructure:"attempts"`
	Backoff  time.Duration `mapstructure:"backoff"`
}

// IdentifiersConfig selects where already-known titles come from.
type IdentifiersConfig struct {
	Source   string `mapstructure:"source"`
	Endpoint string `mapstructure:"endpoint"`
	Required bool   `mapstructure:"required"`
}

// resolvedSource picks the collector as the title source when none was
// chosen explicitly but an endpoint is configured.
func (c IdentifiersConfig) resolvedSource() string {
	switch {
	case c.Source != "":
		return c.Source
	case c.Endpoint != "":
		return IdentifiersHTTP
	default:
		return IdentifiersNone
	}
}

// PostgresConfig controls the optional database used for titles and session rows.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	TitleTable      string        `mapstructure:"title_table"`
	TitleColumn     string        `mapstructure:"title_column"`
	SessionsTable   string        `mapstructure:"sessions_table"`
	RecordSessions  bool          `mapstructure:"record_sessions"`
}

// FallbackConfig sets where CSV snapshots are written.
type FallbackConfig struct {
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// PubSubConfig holds the topic that receives session summaries.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig enables the Prometheus endpoint.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoggingConfig toggles zap development features and file output.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
	Compress    bool   `mapstructure:"compress"`
}

// Load builds a Config from disk/environment. With an empty path it looks for
// an optional config.yaml in the working directory, /etc/harvester and ~/.harvester.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/harvester/")
		v.AddConfigPath("$HOME/.harvester")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Identifiers.Source = cfg.Identifiers.resolvedSource()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("site.start_url", "https://pureportal.coventry.ac.uk/en/organisations/fbl-school-of-economics-finance-and-accounting/publications/?page=0")
	v.SetDefault("site.base_url", "https://pureportal.coventry.ac.uk")
	v.SetDefault("crawler.user_agent", "Mozilla/5.0 (compatible; publication-harvester/1.0)")
	v.SetDefault("crawler.max_consecutive_errors", 5)
	v.SetDefault("crawler.navigation_attempts", 3)
	v.SetDefault("crawler.error_delay", "10s")
	v.SetDefault("crawler.detail_attempts", 3)
	v.SetDefault("crawler.detail_retry_delay", "1s")
	v.SetDefault("crawler.parse_timeout", "30s")
	v.SetDefault("crawler.parallel_normalize", false)
	v.SetDefault("crawler.normalize_workers", 4)
	v.SetDefault("crawler.max_pages", 0)
	v.SetDefault("crawler.results_name", "publications.csv")
	v.SetDefault("crawler.close_timeout", "10s")
	v.SetDefault("robots.enabled", true)
	v.SetDefault("robots.identity", "publication-harvester")
	v.SetDefault("robots.fallback_delay", "3s")
	v.SetDefault("renderer.mode", RendererChromedp)
	v.SetDefault("renderer.timeout", "30s")
	v.SetDefault("renderer.settle_delay", "2s")
	v.SetDefault("renderer.headless", true)
	v.SetDefault("renderer.window_width", 1920)
	v.SetDefault("renderer.window_height", 1080)
	v.SetDefault("renderer.domain_qps", 1.0)
	v.SetDefault("renderer.domain_burst", 1)
	v.SetDefault("delivery.mode", string(crawler.DeliveryBatch))
	v.SetDefault("delivery.timeout", "30s")
	v.SetDefault("delivery.attempts", 3)
	v.SetDefault("delivery.backoff", "5s")
	v.SetDefault("identifiers.required", false)
	v.SetDefault("postgres.title_table", "publications")
	v.SetDefault("postgres.title_column", "title")
	v.SetDefault("postgres.sessions_table", "crawl_sessions")
	v.SetDefault("fallback.dir", "data")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 5)

	// Keys without a meaningful default are registered so that AutomaticEnv
	// can supply them during Unmarshal.
	for key, zero := range map[string]any{
		"robots.url":                 "",
		"renderer.exec_path":         "",
		"delivery.endpoint":          "",
		"identifiers.source":         "",
		"identifiers.endpoint":       "",
		"postgres.dsn":               "",
		"postgres.max_conns":         0,
		"postgres.max_conn_lifetime": "0s",
		"postgres.record_sessions":   false,
		"fallback.gcs_bucket":        "",
		"fallback.gcs_prefix":        "",
		"pubsub.project_id":          "",
		"pubsub.topic":               "",
		"metrics.listen_addr":        "",
		"logging.file":               "",
		"logging.max_age_days":       0,
		"logging.compress":           false,
	} {
		v.SetDefault(key, zero)
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if _, err := crawler.ParseCursor(c.Site.StartURL); err != nil {
		return fmt.Errorf("site.start_url: %w", err)
	}
	if u, err := url.Parse(c.Site.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("site.base_url must be an absolute URL")
	}
	if c.Crawler.MaxConsecutiveErrors <= 0 {
		return fmt.Errorf("crawler.max_consecutive_errors must be > 0")
	}
	if c.Crawler.NavigationAttempts <= 0 || c.Crawler.DetailAttempts <= 0 {
		return fmt.Errorf("crawler.navigation_attempts and crawler.detail_attempts must be > 0")
	}
	if c.Crawler.ParseTimeout <= 0 {
		return fmt.Errorf("crawler.parse_timeout must be > 0")
	}
	if c.Crawler.ParallelNormalize && c.Crawler.NormalizeWorkers <= 0 {
		return fmt.Errorf("crawler.normalize_workers must be > 0 when parallel_normalize is set")
	}
	if c.Crawler.MaxPages < 0 {
		return fmt.Errorf("crawler.max_pages must be >= 0")
	}
	if c.Robots.FallbackDelay < 0 || c.Crawler.ErrorDelay < 0 || c.Delivery.Backoff < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	switch c.Renderer.Mode {
	case RendererChromedp, RendererStatic:
	default:
		return fmt.Errorf("renderer.mode must be %q or %q", RendererChromedp, RendererStatic)
	}
	if c.Renderer.Timeout <= 0 {
		return fmt.Errorf("renderer.timeout must be > 0")
	}
	if c.Delivery.Endpoint == "" {
		return fmt.Errorf("delivery.endpoint is required")
	}
	if _, err := crawler.ParseDeliveryMode(c.Delivery.Mode); err != nil {
		return fmt.Errorf("delivery.mode: %w", err)
	}
	if c.Delivery.Attempts <= 0 {
		return fmt.Errorf("delivery.attempts must be > 0")
	}
	switch c.Identifiers.Source {
	case IdentifiersNone:
	case IdentifiersHTTP:
		if c.Identifiers.Endpoint == "" {
			return fmt.Errorf("identifiers.endpoint is required for the http source")
		}
	case IdentifiersPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn is required for the postgres source")
		}
	default:
		return fmt.Errorf("identifiers.source must be one of none, http, postgres")
	}
	if c.Postgres.RecordSessions && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required when postgres.record_sessions is set")
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id is required when pubsub.topic is set")
	}
	return nil
}

// RobotsURL returns the configured robots.txt location or derives it from the start URL.
func (c Config) RobotsURL() (string, error) {
	if c.Robots.URL != "" {
		return c.Robots.URL, nil
	}
	return crawler.RobotsURLFor(c.Site.StartURL)
}

// NeedsPostgres reports whether any component reads or writes Postgres.
func (c Config) NeedsPostgres() bool {
	return c.Identifiers.Source == IdentifiersPostgres || c.Postgres.RecordSessions
}
