package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"trailing slash before query", "https://portal.example.ac.uk/en/publications/?page=1", "https://portal.example.ac.uk/en/publications?page=1"},
		{"host and scheme case", "HTTPS://Portal.Example.AC.UK/en/x?page=0", "https://portal.example.ac.uk/en/x?page=0"},
		{"default port and fragment", "https://example.com:443/a/?b=2&a=1#frag", "https://example.com/a?a=1&b=2"},
		{"no query keeps slash", "https://example.com/a/", "https://example.com/a/"},
		{"root path untouched", "https://example.com/?page=3", "https://example.com/?page=3"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeURL(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeURLIsIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"https://pureportal.coventry.ac.uk/en/organisations/fbl-school-of-economics-finance-and-accounting/publications/?page=0",
		"http://Example.com:80/list//?z=1&page=4#x",
		"https://example.com/",
		"https://example.com/a%20b/?q=hello+world",
	}
	for _, in := range inputs {
		once, err := NormalizeURL(in)
		require.NoError(t, err)
		twice, err := NormalizeURL(once)
		require.NoError(t, err)
		require.Equal(t, once, twice, "input %q", in)
	}
}

func TestParseCursor(t *testing.T) {
	t.Parallel()

	c, err := ParseCursor("https://portal.example.ac.uk/en/publications/?page=2&type=article")
	require.NoError(t, err)
	require.Equal(t, 2, c.Page())
	require.Equal(t, "https://portal.example.ac.uk/en/publications?page=2&type=article", c.String())

	next := c.Next()
	require.Equal(t, 3, next.Page())
	require.Equal(t, "https://portal.example.ac.uk/en/publications?page=3&type=article", next.String())
	require.Equal(t, 2, c.Page(), "advancing must not mutate the original cursor")

	zero, err := ParseCursor("https://portal.example.ac.uk/en/publications/")
	require.NoError(t, err)
	require.Equal(t, 0, zero.Page())
	require.Equal(t, "https://portal.example.ac.uk/en/publications?page=0", zero.String())
}

func TestParseCursorRejectsBadInput(t *testing.T) {
	t.Parallel()

	_, err := ParseCursor("/relative?page=1")
	require.Error(t, err)

	_, err = ParseCursor("https://example.com/list?page=-1")
	require.Error(t, err)

	_, err = ParseCursor("https://example.com/list?page=abc")
	require.Error(t, err)
}
