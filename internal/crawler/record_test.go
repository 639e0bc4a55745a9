package crawler

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateRawYearFilter(t *testing.T) {
	t.Parallel()

	base := RawRecord{Title: "A Study", Link: "https://portal.example/en/publications/a-study"}
	tests := []struct {
		yearText string
		wantYear int
		reason   SkipReason
	}{
		{"1899", 0, SkipInvalidYear},
		{"1900", 1900, ""},
		{"11 Feb 2025", 2025, ""},
		{"2030", 2030, ""},
		{"2031", 0, SkipInvalidYear},
		{"", 0, SkipInvalidYear},
		{"forthcoming", 0, SkipInvalidYear},
	}
	for _, tc := range tests {
		raw := base
		raw.YearText = tc.yearText
		rec, reason := ValidateRaw(raw, 0)
		require.Equal(t, tc.reason, reason, "year text %q", tc.yearText)
		require.Equal(t, tc.wantYear, rec.Year, "year text %q", tc.yearText)
	}
}

func TestValidateRawStructuralChecks(t *testing.T) {
	t.Parallel()

	_, reason := ValidateRaw(RawRecord{Title: "  ", YearText: "2020", Link: "https://x.example/p"}, 1)
	require.Equal(t, SkipMissingTitle, reason)

	_, reason = ValidateRaw(RawRecord{Title: "T", YearText: "2020", Link: "/en/publications/t"}, 1)
	require.Equal(t, SkipInvalidLink, reason)

	rec, reason := ValidateRaw(RawRecord{
		Position:    6,
		Title:       "  Spaced \n  Title ",
		YearText:    "2021",
		Link:        "https://x.example/p",
		Authors:     []string{"Ann Lee", "Ann Lee", " ", "Bo Chen"},
		AuthorLinks: []string{"https://x.example/a", "relative/b", "https://x.example/a"},
	}, 4)
	require.Empty(t, reason)
	require.Equal(t, "Spaced Title", rec.Title)
	require.Equal(t, []string{"Ann Lee", "Bo Chen"}, rec.Authors)
	require.Equal(t, []string{"https://x.example/a"}, rec.AuthorLinks)
	require.Equal(t, 4, rec.PageIndex)
	require.Equal(t, 6, rec.Position)
}

func TestNormalizeRecordIsIdempotent(t *testing.T) {
	t.Parallel()

	in := PublicationRecord{
		Title:           "  Title\twith   gaps ",
		Year:            2020,
		Authors:         []string{"A  B", "A B", "", "C"},
		AuthorLinks:     []string{"https://x/1", "https://x/1", "ftp://x/2"},
		PublicationLink: " https://x/p ",
		Abstract:        "line one\n\nline two",
	}
	once := NormalizeRecord(in)
	twice := NormalizeRecord(once)
	require.Equal(t, once, twice)
	require.Equal(t, []string{"A B", "C"}, once.Authors)
	require.Equal(t, "line one line two", once.Abstract)
}

func TestPayloadOmitsPageIndex(t *testing.T) {
	t.Parallel()

	rec := PublicationRecord{
		Title:           "T",
		Year:            2022,
		Authors:         []string{"A", "B"},
		AuthorLinks:     []string{"https://x/a", "https://x/b"},
		PublicationLink: "https://x/p",
		PageIndex:       7,
	}
	body, err := json.Marshal(rec.Payload())
	require.NoError(t, err)
	require.JSONEq(t, `{"title":"T","year":2022,"authors":"A, B","publication_link":"https://x/p","author_links":"https://x/a, https://x/b","abstract":""}`, string(body))
}
