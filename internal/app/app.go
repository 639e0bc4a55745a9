// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/publication-harvester/internal/clock/system"
	"github.com/JakeFAU/publication-harvester/internal/collector"
	"github.com/JakeFAU/publication-harvester/internal/config"
	"github.com/JakeFAU/publication-harvester/internal/crawler"
	"github.com/JakeFAU/publication-harvester/internal/extract/pureportal"
	"github.com/JakeFAU/publication-harvester/internal/id/uuid"
	"github.com/JakeFAU/publication-harvester/internal/metrics"
	"github.com/JakeFAU/publication-harvester/internal/policy/ratelimit"
	pubsubpublisher "github.com/JakeFAU/publication-harvester/internal/publisher/pubsub"
	chromedprenderer "github.com/JakeFAU/publication-harvester/internal/renderer/chromedp"
	"github.com/JakeFAU/publication-harvester/internal/renderer/static"
	"github.com/JakeFAU/publication-harvester/internal/storage/gcs"
	"github.com/JakeFAU/publication-harvester/internal/storage/local"
	"github.com/JakeFAU/publication-harvester/internal/storage/postgres"
)

// App holds the shared, long-lived services of one harvester process. It is
// built once at startup from the loaded configuration and closed on exit.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	collector   *collector.Client
	extractor   *pureportal.Extractor
	limiter     *ratelimit.Limiter
	identifiers crawler.IdentifierSource
	sinks       []crawler.ResultSink
	publishers  crawler.SummaryPublishers
	metrics     *metrics.Server

	closers []func(context.Context) error
}

// New creates and initializes an App. It fails fast if any configured
// service cannot be initialized, releasing what was already opened.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("application services initialized",
		zap.String("renderer", cfg.Renderer.Mode),
		zap.String("identifiers", cfg.Identifiers.Source),
		zap.Int("sinks", len(a.sinks)),
		zap.Int("publishers", len(a.publishers)),
	)
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger
	var err error

	a.collector, err = collector.New(collector.Config{
		Endpoint:         cfg.Delivery.Endpoint,
		ExistingEndpoint: cfg.Identifiers.Endpoint,
		UserAgent:        cfg.Crawler.UserAgent,
		Timeout:          cfg.Delivery.Timeout,
	}, nil, logger.Named("collector"))
	if err != nil {
		return fmt.Errorf("init collector: %w", err)
	}

	a.extractor, err = pureportal.New(cfg.Site.BaseURL, pureportal.DefaultSelectors())
	if err != nil {
		return fmt.Errorf("init extractor: %w", err)
	}
	a.limiter = ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Renderer.DomainQPS,
		DefaultBurst: cfg.Renderer.DomainBurst,
	})

	if err = a.initPostgres(ctx); err != nil {
		return err
	}
	if cfg.Identifiers.Source == config.IdentifiersHTTP {
		a.identifiers = a.collector
	}

	if err = a.initSinks(ctx); err != nil {
		return err
	}
	if err = a.initPubSub(ctx); err != nil {
		return err
	}

	if cfg.Metrics.ListenAddr != "" {
		a.metrics = metrics.NewServer(cfg.Metrics.ListenAddr, logger.Named("metrics"))
		if _, err = a.metrics.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		a.closers = append(a.closers, a.metrics.Shutdown)
	}
	return nil
}

func (a *App) initPostgres(ctx context.Context) error {
	if !a.cfg.NeedsPostgres() {
		return nil
	}
	pool, err := postgres.Open(ctx, postgres.Config{
		DSN:             a.cfg.Postgres.DSN,
		MaxConns:        a.cfg.Postgres.MaxConns,
		MaxConnLifetime: a.cfg.Postgres.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("init postgres: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { pool.Close(); return nil })

	if a.cfg.Identifiers.Source == config.IdentifiersPostgres {
		titles, err := postgres.NewTitleStore(pool, a.cfg.Postgres.TitleTable, a.cfg.Postgres.TitleColumn)
		if err != nil {
			return fmt.Errorf("init title store: %w", err)
		}
		a.identifiers = titles
	}
	if a.cfg.Postgres.RecordSessions {
		sessions, err := postgres.NewSessionStore(pool, a.cfg.Postgres.SessionsTable)
		if err != nil {
			return fmt.Errorf("init session store: %w", err)
		}
		a.publishers = append(a.publishers, sessions)
	}
	return nil
}

func (a *App) initSinks(ctx context.Context) error {
	localSink, err := local.New(local.Config{BaseDir: a.cfg.Fallback.Dir}, a.logger.Named("csv"))
	if err != nil {
		return fmt.Errorf("init local sink: %w", err)
	}
	a.sinks = append(a.sinks, localSink)

	if a.cfg.Fallback.GCSBucket == "" {
		return nil
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("init gcs client: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return client.Close() })
	gcsSink, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Fallback.GCSBucket, Prefix: a.cfg.Fallback.GCSPrefix})
	if err != nil {
		return fmt.Errorf("init gcs sink: %w", err)
	}
	a.sinks = append(a.sinks, gcsSink)
	return nil
}

func (a *App) initPubSub(ctx context.Context) error {
	if a.cfg.PubSub.Topic == "" {
		return nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("init pubsub client: %w", err)
	}
	publisher := pubsubpublisher.New(client.Topic(a.cfg.PubSub.Topic))
	a.closers = append(a.closers, func(context.Context) error {
		publisher.Stop()
		return client.Close()
	})
	a.publishers = append(a.publishers, publisher)
	return nil
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// SessionConfig maps the loaded configuration onto a crawl session.
func (a *App) SessionConfig(saveCSV bool) (crawler.SessionConfig, error) {
	c := a.cfg
	robotsURL, err := c.RobotsURL()
	if err != nil {
		return crawler.SessionConfig{}, fmt.Errorf("robots url: %w", err)
	}
	mode, err := crawler.ParseDeliveryMode(c.Delivery.Mode)
	if err != nil {
		return crawler.SessionConfig{}, err
	}
	return crawler.SessionConfig{
		StartURL: c.Site.StartURL,
		Robots: crawler.RobotsConfig{
			Enabled:       c.Robots.Enabled,
			RobotsURL:     robotsURL,
			UserAgent:     c.Robots.Identity,
			FallbackDelay: c.Robots.FallbackDelay,
		},
		Traversal: crawler.TraversalConfig{
			MaxConsecutiveErrors: c.Crawler.MaxConsecutiveErrors,
			Navigation:           crawler.RetryPolicy{MaxAttempts: c.Crawler.NavigationAttempts, Backoff: c.Crawler.ErrorDelay},
			ParseTimeout:         c.Crawler.ParseTimeout,
			ParallelNormalize:    c.Crawler.ParallelNormalize,
			NormalizeWorkers:     c.Crawler.NormalizeWorkers,
			MaxPages:             c.Crawler.MaxPages,
		},
		Detail:              crawler.RetryPolicy{MaxAttempts: c.Crawler.DetailAttempts, Backoff: c.Crawler.DetailRetryDelay},
		Delivery:            crawler.RetryPolicy{MaxAttempts: c.Delivery.Attempts, Backoff: c.Delivery.Backoff},
		DeliveryMode:        mode,
		SaveResults:         saveCSV,
		ResultsName:         c.Crawler.ResultsName,
		IdentifiersRequired: c.Identifiers.Required,
		CloseTimeout:        c.Crawler.CloseTimeout,
	}, nil
}

// SessionDeps returns the collaborators of a crawl session.
func (a *App) SessionDeps() crawler.SessionDeps {
	deps := crawler.SessionDeps{
		NewRenderer: a.RendererFactory(),
		Extractor:   a.extractor,
		Collector:   a.collector,
		Sinks:       a.sinks,
		IDs:         uuid.New(),
		Now:         system.New().Now,
	}
	if a.identifiers != nil {
		deps.Identifiers = a.identifiers
	}
	if len(a.publishers) > 0 {
		deps.Publisher = a.publishers
	}
	return deps
}

// NewSession builds a crawl session from the App's configuration.
func (a *App) NewSession(saveCSV bool) (*crawler.CrawlSession, error) {
	cfg, err := a.SessionConfig(saveCSV)
	if err != nil {
		return nil, err
	}
	return crawler.NewCrawlSession(cfg, a.SessionDeps(), a.logger.Named("crawler"))
}

// RendererFactory returns a factory for the configured renderer mode.
func (a *App) RendererFactory() crawler.RendererFactory {
	rc := a.cfg.Renderer
	logger := a.logger.Named("renderer")
	return func(ctx context.Context) (crawler.Renderer, error) {
		switch rc.Mode {
		case config.RendererStatic:
			return static.New(static.Config{
				UserAgent: a.cfg.Crawler.UserAgent,
				Timeout:   rc.Timeout,
				Limiter:   a.limiter,
			}, logger), nil
		case config.RendererChromedp:
			r, err := chromedprenderer.New(ctx, chromedprenderer.Config{
				UserAgent:    a.cfg.Crawler.UserAgent,
				Timeout:      rc.Timeout,
				SettleDelay:  rc.SettleDelay,
				Headless:     rc.Headless,
				WindowWidth:  rc.WindowWidth,
				WindowHeight: rc.WindowHeight,
				ExecPath:     rc.ExecPath,
				Limiter:      a.limiter,
			}, logger)
			if err != nil {
				return nil, err
			}
			return r, nil
		default:
			return nil, fmt.Errorf("unknown renderer mode %q", rc.Mode)
		}
	}
}

// Close gracefully shuts down all services in the App container.
// It is called by a Cobra hook after the command finishes execution.
func (a *App) Close() {
	if a == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error shutting down application services", zap.Error(err))
	}
	_ = a.logger.Sync()
}
