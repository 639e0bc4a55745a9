package crawler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// TraversalConfig tunes the page traversal state machine.
type TraversalConfig struct {
	// MaxConsecutiveErrors stops the crawl once this many listing renders fail in a row.
	MaxConsecutiveErrors int
	Navigation           RetryPolicy
	ParseTimeout         time.Duration
	ParallelNormalize    bool
	NormalizeWorkers     int
	// MaxPages caps the number of listing pages visited. Zero means no cap.
	MaxPages int
}

// PageTraversal walks the listing pages one at a time.
type PageTraversal struct {
	cfg        TraversalConfig
	policy     CrawlPolicy
	renderer   Renderer
	extractor  Extractor
	cache      *DeduplicationCache
	enricher   *DetailEnricher
	dispatcher *DeliveryDispatcher
	pauser     Pauser
	logger     *zap.Logger
}

// NewPageTraversal wires the state machine to its collaborators.
func NewPageTraversal(
	cfg TraversalConfig,
	policy CrawlPolicy,
	renderer Renderer,
	extractor Extractor,
	cache *DeduplicationCache,
	enricher *DetailEnricher,
	dispatcher *DeliveryDispatcher,
	pauser Pauser,
	logger *zap.Logger,
) *PageTraversal {
	if cfg.MaxConsecutiveErrors <= 0 {
		cfg.MaxConsecutiveErrors = 1
	}
	if pauser == nil {
		pauser = TimerPauser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageTraversal{
		cfg:        cfg,
		policy:     policy,
		renderer:   renderer,
		extractor:  extractor,
		cache:      cache,
		enricher:   enricher,
		dispatcher: dispatcher,
		pauser:     pauser,
		logger:     logger,
	}
}

// Run drives traversal from start until a terminal state. The returned error
// is non-nil only when the context ended.
func (t *PageTraversal) Run(ctx context.Context, start PageCursor, state *CrawlState) (StopReason, error) {
	cursor := start
	for {
		if err := ctx.Err(); err != nil {
			return StopCanceled, err
		}
		state.PageIndex = cursor.Page()
		if total, ok := state.TotalPages(); ok && cursor.Page() >= total {
			t.logger.Info("reached last page", zap.Int("total_pages", total))
			return StopLastPage, nil
		}
		if t.cfg.MaxPages > 0 && len(state.Visited)+state.PagesFailed+state.PagesDisallowed >= t.cfg.MaxPages {
			t.logger.Info("page cap reached", zap.Int("max_pages", t.cfg.MaxPages))
			return StopMaxPages, nil
		}

		if err := t.pauser.Pause(ctx, t.policy.CrawlDelay(ctx)); err != nil {
			return StopCanceled, err
		}

		pageURL := cursor.String()
		log := t.logger.With(zap.Int("page", cursor.Page()), zap.String("url", pageURL))

		if !t.policy.CanFetch(ctx, pageURL) {
			log.Info("listing page disallowed by robots.txt; skipping")
			PagesTotal.WithLabelValues(outcomeDisallowed).Inc()
			state.PagesDisallowed++
			state.DisallowedStreak++
			state.RecordSkip(SkippedItem{Reason: SkipRobotsDisallowed, PageIndex: cursor.Page(), Position: -1, Link: pageURL})
			if _, known := state.TotalPages(); !known && state.DisallowedStreak >= t.cfg.MaxConsecutiveErrors {
				log.Warn("too many disallowed pages without a known page count; stopping")
				return StopDisallowedStreak, nil
			}
			cursor = cursor.Next()
			continue
		}
		state.DisallowedStreak = 0

		page, err := t.renderListing(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return StopCanceled, ctx.Err()
			}
			PagesTotal.WithLabelValues(outcomeFailed).Inc()
			state.PagesFailed++
			state.ConsecutiveErrors++
			log.Warn("listing page failed",
				zap.Int("consecutive_errors", state.ConsecutiveErrors),
				zap.Error(err),
			)
			if state.ConsecutiveErrors >= t.cfg.MaxConsecutiveErrors {
				log.Error("too many consecutive errors; stopping", zap.Int("max", t.cfg.MaxConsecutiveErrors))
				return StopMaxConsecutiveErrors, nil
			}
			cursor = cursor.Next()
			continue
		}
		state.ConsecutiveErrors = 0
		state.Visited = append(state.Visited, cursor.Page())
		PagesTotal.WithLabelValues(outcomeOK).Inc()

		raws, err := extractWithTimeout(ctx, t.cfg.ParseTimeout, t.extractor, page.Markup, cursor.Page())
		if err != nil {
			if ctx.Err() != nil {
				return StopCanceled, ctx.Err()
			}
			log.Warn("listing extraction failed; continuing with no records", zap.Error(err))
			raws = nil
		}

		records := t.processRecords(ctx, state, cursor.Page(), raws)
		if t.cfg.ParallelNormalize {
			records = normalizeParallel(ctx, records, t.cfg.NormalizeWorkers)
		}
		state.Records = append(state.Records, records...)
		if ctx.Err() != nil {
			if t.dispatcher.Mode() == DeliveryBatch {
				state.Undelivered = append(state.Undelivered, records...)
			}
			return StopCanceled, ctx.Err()
		}
		log.Info("page processed", zap.Int("extracted", len(raws)), zap.Int("new", len(records)))

		if t.dispatcher.Mode() == DeliveryBatch {
			state.applyDelivery(t.dispatcher.DeliverPage(ctx, cursor.Page(), records))
			if ctx.Err() != nil {
				return StopCanceled, ctx.Err()
			}
		}

		if !state.discoveryAttempted() {
			total, ok := t.extractor.ExtractPaginationCount(page.Markup)
			state.recordDiscovery(total, ok)
			if ok {
				log.Info("discovered total page count", zap.Int("total_pages", total))
			} else {
				log.Info("total page count not found; following next-page links")
			}
		}
		if _, known := state.TotalPages(); !known && !t.extractor.HasNextPage(page.Markup) {
			log.Info("no further pages")
			return StopNoMorePages, nil
		}
		cursor = cursor.Next()
	}
}

// renderListing renders a listing page with the navigation retry policy.
// A page the extractor does not recognize is not retried.
func (t *PageTraversal) renderListing(ctx context.Context, pageURL string) (Page, error) {
	page, _, err := Attempt(ctx, t.cfg.Navigation, t.pauser, func(ctx context.Context, attempt int) (Page, error) {
		started := time.Now()
		page, err := t.renderer.Render(ctx, pageURL)
		RenderDuration.Observe(time.Since(started).Seconds())
		if err != nil {
			t.logger.Warn("listing render failed",
				zap.String("url", pageURL),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return Page{}, err
		}
		if !t.extractor.IsValidListingPage(page.Markup) {
			return Page{}, Permanent(fmt.Errorf("%s: %w", pageURL, ErrInvalidListing))
		}
		return page, nil
	})
	return page, err
}

// processRecords validates, deduplicates and enriches one page's entries in
// listing order. In per-item mode each record is delivered as soon as it is ready.
func (t *PageTraversal) processRecords(ctx context.Context, state *CrawlState, pageIndex int, raws []RawRecord) []PublicationRecord {
	out := make([]PublicationRecord, 0, len(raws))
	for _, raw := range raws {
		if ctx.Err() != nil {
			break
		}
		rec, reason := ValidateRaw(raw, pageIndex)
		if reason != "" {
			t.logger.Debug("dropping listing entry",
				zap.Int("page", pageIndex),
				zap.Int("position", raw.Position),
				zap.String("reason", string(reason)),
			)
			state.RecordSkip(SkippedItem{
				Reason:    reason,
				PageIndex: pageIndex,
				Position:  raw.Position,
				Title:     CleanText(raw.Title),
				Link:      raw.Link,
			})
			continue
		}
		if t.cache.Contains(rec.Title) {
			t.logger.Info("publication already exists; skipping", zap.String("title", rec.Title))
			state.RecordSkip(SkippedItem{
				Reason:    SkipAlreadyExists,
				PageIndex: pageIndex,
				Position:  raw.Position,
				Title:     rec.Title,
				Link:      rec.PublicationLink,
			})
			continue
		}
		if isEnrichable(rec.PublicationLink) {
			rec, _ = t.enricher.Enrich(ctx, rec)
		}
		if t.dispatcher.Mode() == DeliveryPerItem {
			state.applyDelivery(t.dispatcher.DeliverOne(ctx, rec))
		}
		out = append(out, rec)
	}
	return out
}
