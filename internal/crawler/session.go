package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// SessionConfig holds everything a CrawlSession needs besides its collaborators.
type SessionConfig struct {
	StartURL            string
	Robots              RobotsConfig
	Traversal           TraversalConfig
	Detail              RetryPolicy
	Delivery            RetryPolicy
	DeliveryMode        DeliveryMode
	SaveResults         bool
	ResultsName         string
	IdentifiersRequired bool
	CloseTimeout        time.Duration
}

// SessionDeps are the collaborators of a CrawlSession. Sinks, Publisher and
// IDs are optional.
type SessionDeps struct {
	NewRenderer RendererFactory
	Extractor   Extractor
	Collector   Collector
	Identifiers IdentifierSource
	Sinks       []ResultSink
	Publisher   SummaryPublisher
	IDs         IDGenerator
	Pauser      Pauser
	Now         func() time.Time
}

// CrawlSession runs one harvest from the start URL to a terminal state.
type CrawlSession struct {
	cfg    SessionConfig
	start  PageCursor
	deps   SessionDeps
	logger *zap.Logger
}

// NewCrawlSession validates the configuration and returns a session.
func NewCrawlSession(cfg SessionConfig, deps SessionDeps, logger *zap.Logger) (*CrawlSession, error) {
	if deps.NewRenderer == nil {
		return nil, errors.New("renderer factory is required")
	}
	if deps.Extractor == nil {
		return nil, errors.New("extractor is required")
	}
	if deps.Collector == nil {
		return nil, errors.New("collector is required")
	}
	start, err := ParseCursor(cfg.StartURL)
	if err != nil {
		return nil, fmt.Errorf("start url: %w", err)
	}
	if deps.Pauser == nil {
		deps.Pauser = TimerPauser{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = 10 * time.Second
	}
	if cfg.ResultsName == "" {
		cfg.ResultsName = "publications.csv"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CrawlSession{cfg: cfg, start: start, deps: deps, logger: logger}, nil
}

// Run executes the session. Reaching any terminal state, including the
// consecutive-error stop, returns a nil error; fatal setup failures and
// cancellation return an error. Stats are returned in every case.
func (s *CrawlSession) Run(ctx context.Context) (Stats, error) {
	state := NewCrawlState()
	sessionID := s.newSessionID()
	logger := s.logger.With(zap.String("session_id", sessionID))
	stats := Stats{SessionID: sessionID, StartedAt: s.deps.Now()}
	ctx = WithSessionID(ctx, sessionID)

	cache := NewDeduplicationCache(s.deps.Identifiers, s.cfg.IdentifiersRequired, logger)
	if err := cache.Seed(ctx); err != nil {
		return s.finish(stats, state, StopFatal), err
	}

	renderer, err := s.deps.NewRenderer(ctx)
	if err != nil {
		return s.finish(stats, state, StopFatal), fmt.Errorf("%w: %w", ErrRendererUnavailable, err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CloseTimeout)
		defer cancel()
		if cerr := renderer.Close(closeCtx); cerr != nil {
			logger.Warn("failed to close renderer", zap.Error(cerr))
		}
	}()

	robots := NewRobotsPolicy(s.cfg.Robots, renderer, logger)
	robots.Load(ctx)
	enricher := NewDetailEnricher(renderer, s.deps.Extractor, robots, s.cfg.Detail, s.deps.Pauser, logger)
	dispatcher := NewDeliveryDispatcher(s.deps.Collector, s.cfg.DeliveryMode, s.cfg.Delivery, s.deps.Pauser, logger)
	traversal := NewPageTraversal(s.cfg.Traversal, robots, renderer, s.deps.Extractor, cache, enricher, dispatcher, s.deps.Pauser, logger)

	logger.Info("starting crawl",
		zap.String("start_url", s.start.String()),
		zap.String("delivery_mode", string(dispatcher.Mode())),
		zap.Int("known_publications", cache.Len()),
	)

	reason, runErr := traversal.Run(ctx, s.start, state)
	stats = s.finish(stats, state, reason)
	s.persist(ctx, logger, state)
	if runErr == nil {
		s.publish(ctx, logger, stats)
	}
	logStats(logger, stats)
	if runErr != nil {
		return stats, fmt.Errorf("crawl interrupted: %w", runErr)
	}
	return stats, nil
}

func (s *CrawlSession) newSessionID() string {
	if s.deps.IDs == nil {
		return ""
	}
	id, err := s.deps.IDs.NewID()
	if err != nil {
		s.logger.Warn("failed to generate session id", zap.Error(err))
		return ""
	}
	return id
}

func (s *CrawlSession) finish(stats Stats, state *CrawlState, reason StopReason) Stats {
	stats.FinishedAt = s.deps.Now()
	stats.StopReason = reason
	return ComputeStats(stats, state)
}

// persist writes the result set and any undelivered records to the local
// sinks. Remote sinks are skipped after cancellation.
func (s *CrawlSession) persist(ctx context.Context, logger *zap.Logger, state *CrawlState) {
	writeCtx := ctx
	if ctx.Err() != nil {
		writeCtx = context.WithoutCancel(ctx)
	}
	save := func(name string, records []PublicationRecord) {
		for _, sink := range s.deps.Sinks {
			if ctx.Err() != nil && isRemote(sink) {
				continue
			}
			location, err := sink.Save(writeCtx, name, records)
			if err != nil {
				logger.Error("failed to save records", zap.String("name", name), zap.Error(err))
				continue
			}
			logger.Info("saved records", zap.String("location", location), zap.Int("count", len(records)))
		}
	}
	if s.cfg.SaveResults && len(state.Records) > 0 {
		save(s.cfg.ResultsName, state.Records)
	}
	if len(state.Undelivered) > 0 {
		save(undeliveredName(s.cfg.ResultsName), state.Undelivered)
	}
}

func (s *CrawlSession) publish(ctx context.Context, logger *zap.Logger, stats Stats) {
	if s.deps.Publisher == nil {
		return
	}
	id, err := s.deps.Publisher.PublishSummary(ctx, stats)
	if err != nil {
		logger.Warn("failed to publish session summary", zap.Error(err))
		return
	}
	logger.Info("published session summary", zap.String("message_id", id))
}

type sessionIDKey struct{}

// WithSessionID tags ctx with the session identifier.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, id)
}

// SessionIDFrom returns the session identifier carried by ctx, if any.
func SessionIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey{}).(string)
	return id
}

// SummaryPublishers fans a summary out to several publishers.
type SummaryPublishers []SummaryPublisher

// PublishSummary publishes to every member and joins their message ids.
func (p SummaryPublishers) PublishSummary(ctx context.Context, stats Stats) (string, error) {
	var (
		ids  []string
		errs []error
	)
	for _, pub := range p {
		id, err := pub.PublishSummary(ctx, stats)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ids = append(ids, id)
	}
	return strings.Join(ids, ","), errors.Join(errs...)
}

// RemoteSink marks sinks that need the network.
type RemoteSink interface {
	Remote() bool
}

func isRemote(sink ResultSink) bool {
	r, ok := sink.(RemoteSink)
	return ok && r.Remote()
}

func undeliveredName(resultsName string) string {
	return "undelivered_" + resultsName
}

// ComputeStats folds the crawl state into stats.
func ComputeStats(stats Stats, state *CrawlState) Stats {
	stats.TotalPublications = len(state.Records)
	authors := make(map[string]struct{})
	pages := make(map[int]struct{})
	for i, rec := range state.Records {
		for _, a := range rec.Authors {
			authors[a] = struct{}{}
		}
		pages[rec.PageIndex] = struct{}{}
		if i == 0 || rec.Year < stats.YearMin {
			stats.YearMin = rec.Year
		}
		if i == 0 || rec.Year > stats.YearMax {
			stats.YearMax = rec.Year
		}
	}
	stats.UniqueAuthors = len(authors)
	stats.PagesCrawled = len(pages)
	stats.PagesVisited = len(state.Visited)
	stats.PagesFailed = state.PagesFailed
	stats.PagesDisallowed = state.PagesDisallowed
	if total, ok := state.TotalPages(); ok {
		stats.TotalPages = total
	}
	stats.Delivered = state.Delivered
	stats.Undelivered = len(state.Undelivered)
	stats.Skipped = state.SkipCounts()
	return stats
}

func logStats(logger *zap.Logger, stats Stats) {
	logger.Info("crawl finished",
		zap.String("stop_reason", string(stats.StopReason)),
		zap.Int("total_publications", stats.TotalPublications),
		zap.Int("unique_authors", stats.UniqueAuthors),
		zap.String("year_range", stats.YearRange()),
		zap.Int("pages_crawled", stats.PagesCrawled),
		zap.Int("pages_visited", stats.PagesVisited),
		zap.Int("pages_failed", stats.PagesFailed),
		zap.Int("pages_disallowed", stats.PagesDisallowed),
		zap.Int("delivered", stats.Delivered),
		zap.Int("undelivered", stats.Undelivered),
		zap.Any("skipped", stats.Skipped),
		zap.Duration("duration", stats.Duration()),
	)
}
