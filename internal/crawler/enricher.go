package crawler

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// DetailEnricher fetches a record's detail page and merges its abstract and authors.
type DetailEnricher struct {
	renderer  Renderer
	extractor Extractor
	policy    CrawlPolicy
	retry     RetryPolicy
	pauser    Pauser
	logger    *zap.Logger
}

// NewDetailEnricher builds an enricher. retry.Backoff is the error delay between attempts.
func NewDetailEnricher(
	renderer Renderer,
	extractor Extractor,
	policy CrawlPolicy,
	retry RetryPolicy,
	pauser Pauser,
	logger *zap.Logger,
) *DetailEnricher {
	if pauser == nil {
		pauser = TimerPauser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DetailEnricher{
		renderer:  renderer,
		extractor: extractor,
		policy:    policy,
		retry:     retry,
		pauser:    pauser,
		logger:    logger,
	}
}

// Enrich returns the enriched record and true, or the basic record and false
// when the detail page is disallowed or every attempt failed.
func (e *DetailEnricher) Enrich(ctx context.Context, basic PublicationRecord) (PublicationRecord, bool) {
	link := basic.PublicationLink
	if !e.policy.CanFetch(ctx, link) {
		e.logger.Info("detail page disallowed by robots.txt", zap.String("url", link))
		return basic, false
	}

	enriched, attempts, err := Attempt(ctx, e.retry, e.pauser, func(ctx context.Context, attempt int) (PublicationRecord, error) {
		if err := e.pauser.Pause(ctx, e.policy.CrawlDelay(ctx)); err != nil {
			return basic, err
		}
		detailAttempts.Inc()
		page, err := e.renderer.Render(ctx, link)
		if err != nil {
			e.logger.Warn("detail render failed",
				zap.String("url", link),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return basic, err
		}
		rec, err := e.extractor.ExtractDetail(page.Markup, basic)
		if err != nil {
			return basic, Permanent(fmt.Errorf("extract detail: %w", err))
		}
		return rec, nil
	})
	if err != nil {
		e.logger.Warn("using basic record after detail enrichment failed",
			zap.String("title", basic.Title),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return basic, false
	}
	enriched.PageIndex = basic.PageIndex
	enriched.Position = basic.Position
	e.logger.Debug("enriched publication",
		zap.String("title", enriched.Title),
		zap.Bool("has_abstract", enriched.Abstract != ""),
		zap.Int("authors", len(enriched.Authors)),
	)
	return enriched, true
}
