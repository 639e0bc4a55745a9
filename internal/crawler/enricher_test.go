package crawler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func basicRecord() PublicationRecord {
	return PublicationRecord{
		Title:           "New Paper",
		Year:            2024,
		Authors:         []string{"Listing Author"},
		PublicationLink: "https://portal.example/en/publications/new-paper",
		PageIndex:       2,
	}
}

func TestDetailEnricherMergesDetail(t *testing.T) {
	t.Parallel()

	extractor := newFakeExtractor()
	extractor.details["<detail/>"] = PublicationRecord{
		Abstract:    "We study things.",
		Authors:     []string{"Ann Lee", "Bo Chen"},
		AuthorLinks: []string{"https://portal.example/en/persons/ann"},
	}
	renderer := new(MockRenderer)
	renderer.On("Render", mock.Anything, basicRecord().PublicationLink).Return(Page{Markup: "<detail/>"}, nil).Once()
	pauser := &recordingPauser{}

	enricher := NewDetailEnricher(renderer, extractor, allowAllPolicy{delay: 3 * time.Second},
		RetryPolicy{MaxAttempts: 3, Backoff: 10 * time.Second}, pauser, zap.NewNop())
	rec, ok := enricher.Enrich(context.Background(), basicRecord())

	require.True(t, ok)
	require.Equal(t, "We study things.", rec.Abstract)
	require.Equal(t, []string{"Ann Lee", "Bo Chen"}, rec.Authors)
	require.Equal(t, 2, rec.PageIndex)
	require.Equal(t, []time.Duration{3 * time.Second}, pauser.Delays())
}

func TestDetailEnricherRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	extractor := newFakeExtractor()
	extractor.details["<detail/>"] = PublicationRecord{Abstract: "Recovered abstract."}
	renderer := new(MockRenderer)
	renderer.On("Render", mock.Anything, mock.Anything).Return(Page{}, ErrRenderTimeout).Once()
	renderer.On("Render", mock.Anything, mock.Anything).Return(Page{Markup: "<detail/>"}, nil).Once()
	pauser := &recordingPauser{}

	enricher := NewDetailEnricher(renderer, extractor, allowAllPolicy{delay: time.Second},
		RetryPolicy{MaxAttempts: 3, Backoff: 10 * time.Second}, pauser, zap.NewNop())
	rec, ok := enricher.Enrich(context.Background(), basicRecord())

	require.True(t, ok)
	require.Equal(t, "Recovered abstract.", rec.Abstract)
	require.Equal(t, []time.Duration{time.Second, 10 * time.Second, time.Second}, pauser.Delays())
	renderer.AssertNumberOfCalls(t, "Render", 2)
}

func TestDetailEnricherFallsBackToBasic(t *testing.T) {
	t.Parallel()

	renderer := new(MockRenderer)
	renderer.On("Render", mock.Anything, mock.Anything).Return(Page{}, errors.New("net::ERR_TIMED_OUT"))

	enricher := NewDetailEnricher(renderer, newFakeExtractor(), allowAllPolicy{},
		RetryPolicy{MaxAttempts: 3}, &recordingPauser{}, zap.NewNop())
	rec, ok := enricher.Enrich(context.Background(), basicRecord())

	require.False(t, ok)
	require.Equal(t, basicRecord(), rec)
	renderer.AssertNumberOfCalls(t, "Render", 3)
}

func TestDetailEnricherSkipsDisallowedDetail(t *testing.T) {
	t.Parallel()

	renderer := new(MockRenderer)
	enricher := NewDetailEnricher(renderer, newFakeExtractor(), denyPolicy{deny: []string{"/publications/"}},
		RetryPolicy{MaxAttempts: 3}, &recordingPauser{}, zap.NewNop())
	rec, ok := enricher.Enrich(context.Background(), basicRecord())

	require.False(t, ok)
	require.Equal(t, basicRecord(), rec)
	renderer.AssertNotCalled(t, "Render", mock.Anything, mock.Anything)
}
