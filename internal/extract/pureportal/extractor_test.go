package pureportal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/publication-harvester/internal/crawler"
)

const testBase = "https://research.example.edu/en/publications/"

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, err := New(testBase, DefaultSelectors())
	require.NoError(t, err)
	return e
}

func fixture(t *testing.T, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(b)
}

func TestNewRejectsRelativeBase(t *testing.T) {
	t.Parallel()

	_, err := New("/en/publications", DefaultSelectors())
	require.Error(t, err)
}

func TestExtractListing(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)
	raws, err := e.ExtractListing(fixture(t, "listing.html"), 0)
	require.NoError(t, err)
	require.Len(t, raws, 3)

	first := raws[0]
	assert.Equal(t, 0, first.Position)
	assert.Equal(t, "Graph Methods for Portals", first.Title)
	assert.Equal(t, "https://research.example.edu/en/publications/graph-methods", first.Link)
	assert.Contains(t, first.Authors, "Jane Doe")
	assert.Contains(t, first.Authors, "John Roe")
	assert.Contains(t, first.AuthorLinks, "https://research.example.edu/en/persons/jane-doe")
	assert.Equal(t, "12 Mar 2021", first.YearText)

	second := raws[1]
	assert.Equal(t, "Open Data", second.Title)
	assert.Equal(t, "https://research.example.edu/en/publications/open-data", second.Link)
	assert.Equal(t, []string{"Alice Smith", "Bob Jones"}, second.Authors)
	assert.Equal(t, "2019", second.YearText)

	third := raws[2]
	assert.Equal(t, 2, third.Position)
	assert.Empty(t, third.Title)
}

func TestListingRecordsPassValidation(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)
	raws, err := e.ExtractListing(fixture(t, "listing.html"), 4)
	require.NoError(t, err)

	rec, reason := crawler.ValidateRaw(raws[0], 4)
	require.Empty(t, reason)
	assert.Equal(t, 2021, rec.Year)
	assert.Equal(t, []string{"Jane Doe", "John Roe"}, rec.Authors)
	assert.Equal(t, 4, rec.PageIndex)

	_, reason = crawler.ValidateRaw(raws[2], 4)
	assert.Equal(t, crawler.SkipMissingTitle, reason)
}

func TestIsValidListingPage(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)
	tests := []struct {
		name   string
		markup string
		want   bool
	}{
		{name: "results", markup: fixture(t, "listing.html"), want: true},
		{name: "pager only", markup: `<ul class="pager"><li>1</li></ul>`, want: true},
		{name: "no results notice", markup: `<p>No results found for this query.</p>`, want: true},
		{name: "error page", markup: `<h1>Service Unavailable</h1>`, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, e.IsValidListingPage(tt.markup))
		})
	}
}

func TestExtractPaginationCount(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)
	tests := []struct {
		name   string
		markup string
		want   int
		found  bool
	}{
		{name: "range before next", markup: fixture(t, "listing.html"), want: 17, found: true},
		{
			name:   "numbers without range",
			markup: `<nav><a href="?page=0">1</a> <a href="?page=1">2</a> <a href="?page=2">3</a> <a href="?page=1">Next</a></nav>`,
			want:   4,
			found:  true,
		},
		{
			name:   "pager hrefs",
			markup: `<ul class="pager"><li><a href="/x?page=3">4</a></li><li><a href="/x?page=7">8</a></li></ul>`,
			want:   8,
			found:  true,
		},
		{name: "nothing", markup: `<div class="result-container"></div>`, want: 0, found: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := e.ExtractPaginationCount(tt.markup)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHasNextPage(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)
	assert.True(t, e.HasNextPage(fixture(t, "listing.html")))
	assert.True(t, e.HasNextPage(`<a rel="next" href="?page=2">more</a>`))
	assert.True(t, e.HasNextPage(`<nav><a href="?page=2">Next ›</a></nav>`))
	assert.False(t, e.HasNextPage(`<nav><a href="?page=0">Previous</a></nav>`))
}

func TestExtractDetail(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)
	basic := crawler.PublicationRecord{
		Title:           "Graph Methods for Portals",
		Year:            2021,
		Authors:         []string{"J. Doe"},
		PublicationLink: testBase + "graph-methods",
		PageIndex:       3,
	}
	got, err := e.ExtractDetail(fixture(t, "detail.html"), basic)
	require.NoError(t, err)

	assert.Equal(t, []string{"Jane Doe", "Mark Lee"}, got.Authors)
	assert.Equal(t, []string{
		"https://research.example.edu/en/persons/jane-doe",
		"https://research.example.edu/en/persons/mark-lee",
	}, got.AuthorLinks)
	assert.Contains(t, got.Abstract, "Background: portals publish listings")
	assert.Equal(t, basic.Title, got.Title)
	assert.Equal(t, 3, got.PageIndex)
}

func TestExtractDetailKeepsBasicWhenNothingFound(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)
	basic := crawler.PublicationRecord{
		Title:           "Short",
		Year:            2020,
		Authors:         []string{"Jane Doe"},
		PublicationLink: testBase + "short",
	}
	got, err := e.ExtractDetail(`<div class="abstract">Too short.</div>`, basic)
	require.NoError(t, err)
	assert.Equal(t, basic.Authors, got.Authors)
	assert.Empty(t, got.Abstract)
}

func TestDetailAuthorFallbackSplitsText(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)
	got, err := e.ExtractDetail(`<div class="contributors">Ann Lee; Bo Chan; Xi</div>`, crawler.PublicationRecord{Title: "T"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Ann Lee", "Bo Chan"}, got.Authors)
	assert.Empty(t, got.AuthorLinks)
}
