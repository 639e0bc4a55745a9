package crawler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockRenderer is a mock implementation of the Renderer interface.
type MockRenderer struct {
	mock.Mock
}

func (m *MockRenderer) Render(ctx context.Context, rawURL string) (Page, error) {
	args := m.Called(ctx, rawURL)
	return args.Get(0).(Page), args.Error(1)
}

func (m *MockRenderer) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockCollector is a mock implementation of the Collector interface.
type MockCollector struct {
	mock.Mock
}

func (m *MockCollector) SendBatch(ctx context.Context, records []PublicationRecord) error {
	args := m.Called(ctx, records)
	return args.Error(0)
}

func (m *MockCollector) SendOne(ctx context.Context, record PublicationRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

// MockIdentifierSource is a mock implementation of the IdentifierSource interface.
type MockIdentifierSource struct {
	mock.Mock
}

func (m *MockIdentifierSource) ExistingTitles(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	titles, _ := args.Get(0).([]string)
	return titles, args.Error(1)
}

// allowAllPolicy permits everything with a fixed delay.
type allowAllPolicy struct {
	delay time.Duration
}

func (p allowAllPolicy) CanFetch(context.Context, string) bool   { return true }
func (p allowAllPolicy) CrawlDelay(context.Context) time.Duration { return p.delay }

// denyPolicy blocks URLs containing any of the listed fragments.
type denyPolicy struct {
	deny []string
}

func (p denyPolicy) CanFetch(_ context.Context, rawURL string) bool {
	for _, d := range p.deny {
		if strings.Contains(rawURL, d) {
			return false
		}
	}
	return true
}

func (p denyPolicy) CrawlDelay(context.Context) time.Duration { return 0 }

// fakePage describes what the fake extractor returns for one listing markup.
type fakePage struct {
	records  []RawRecord
	total    int
	hasTotal bool
	hasNext  bool
	invalid  bool
}

// fakeExtractor looks pages up by markup.
type fakeExtractor struct {
	mu      sync.Mutex
	pages   map[string]fakePage
	details map[string]PublicationRecord
	calls   int
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{pages: map[string]fakePage{}, details: map[string]PublicationRecord{}}
}

func (f *fakeExtractor) IsValidListingPage(markup string) bool {
	p, ok := f.pages[markup]
	return ok && !p.invalid
}

func (f *fakeExtractor) ExtractListing(markup string, _ int) ([]RawRecord, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.pages[markup].records, nil
}

func (f *fakeExtractor) ExtractPaginationCount(markup string) (int, bool) {
	p := f.pages[markup]
	return p.total, p.hasTotal
}

func (f *fakeExtractor) HasNextPage(markup string) bool {
	return f.pages[markup].hasNext
}

func (f *fakeExtractor) ExtractDetail(markup string, basic PublicationRecord) (PublicationRecord, error) {
	d, ok := f.details[markup]
	if !ok {
		return basic, nil
	}
	basic.Abstract = d.Abstract
	if len(d.Authors) > 0 {
		basic.Authors = d.Authors
		basic.AuthorLinks = d.AuthorLinks
	}
	return basic, nil
}
