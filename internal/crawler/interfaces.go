package crawler

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRenderTimeout reports that a render exceeded its time budget.
	ErrRenderTimeout = errors.New("render timeout")
	// ErrRendererUnavailable reports that the renderer could not be acquired.
	ErrRendererUnavailable = errors.New("renderer unavailable")
	// ErrInvalidListing reports a rendered listing page the extractor does not recognize.
	ErrInvalidListing = errors.New("invalid listing page")
	// ErrDeliveryStatus reports a delivery answered with a non-success status.
	ErrDeliveryStatus = errors.New("delivery rejected")
)

// Renderer loads a URL in a script-capable environment and returns the final markup.
// A single Renderer is used serially by one session.
type Renderer interface {
	Render(ctx context.Context, rawURL string) (Page, error)
	Close(ctx context.Context) error
}

// RendererFactory acquires the session renderer.
type RendererFactory func(ctx context.Context) (Renderer, error)

// Extractor turns rendered markup into records and pagination hints.
type Extractor interface {
	IsValidListingPage(markup string) bool
	ExtractListing(markup string, pageIndex int) ([]RawRecord, error)
	ExtractPaginationCount(markup string) (int, bool)
	HasNextPage(markup string) bool
	ExtractDetail(markup string, basic PublicationRecord) (PublicationRecord, error)
}

// Collector delivers records downstream. Errors wrapping ErrDeliveryStatus
// mean the collector answered; any other error is a transport failure.
type Collector interface {
	SendBatch(ctx context.Context, records []PublicationRecord) error
	SendOne(ctx context.Context, record PublicationRecord) error
}

// IdentifierSource lists titles already known downstream.
type IdentifierSource interface {
	ExistingTitles(ctx context.Context) ([]string, error)
}

// CrawlPolicy answers robots questions for the traversal and the enricher.
type CrawlPolicy interface {
	CanFetch(ctx context.Context, rawURL string) bool
	CrawlDelay(ctx context.Context) time.Duration
}

// ResultSink persists a record set under a file name and returns its location.
type ResultSink interface {
	Save(ctx context.Context, name string, records []PublicationRecord) (string, error)
}

// SummaryPublisher announces the statistics of a finished session.
type SummaryPublisher interface {
	PublishSummary(ctx context.Context, stats Stats) (string, error)
}

// IDGenerator produces session identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Pauser blocks for a delay unless the context ends first.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration) error
}
