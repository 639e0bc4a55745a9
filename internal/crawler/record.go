package crawler

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// CleanText collapses runs of whitespace and trims the result.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeTitle returns the deduplication key for a title.
func NormalizeTitle(title string) string {
	return CleanText(title)
}

// ParseYear finds the first four-digit 19xx/20xx year in text and checks the accepted range.
func ParseYear(text string) (int, bool) {
	match := yearPattern.FindString(text)
	if match == "" {
		return 0, false
	}
	year, err := strconv.Atoi(match)
	if err != nil || year < MinPublicationYear || year > MaxPublicationYear {
		return 0, false
	}
	return year, true
}

// IsHTTPURL reports whether s starts with an http or https scheme.
func IsHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// isEnrichable reports whether link parses as an absolute URL with a host.
func isEnrichable(link string) bool {
	u, err := url.ParseRequestURI(link)
	return err == nil && u.IsAbs() && u.Host != ""
}

// ValidateRaw converts an extracted entry into a PublicationRecord, or returns
// the reason it must be dropped.
func ValidateRaw(raw RawRecord, pageIndex int) (PublicationRecord, SkipReason) {
	title := CleanText(raw.Title)
	if title == "" {
		return PublicationRecord{}, SkipMissingTitle
	}
	year, ok := ParseYear(raw.YearText)
	if !ok {
		return PublicationRecord{}, SkipInvalidYear
	}
	link := strings.TrimSpace(raw.Link)
	if !IsHTTPURL(link) {
		return PublicationRecord{}, SkipInvalidLink
	}
	return PublicationRecord{
		Title:           title,
		Year:            year,
		Authors:         uniqueStrings(raw.Authors, nil),
		AuthorLinks:     uniqueStrings(raw.AuthorLinks, IsHTTPURL),
		PublicationLink: link,
		PageIndex:       pageIndex,
		Position:        raw.Position,
	}, ""
}

// NormalizeRecord cleans text fields and de-duplicates multi-valued fields.
// It is idempotent.
func NormalizeRecord(r PublicationRecord) PublicationRecord {
	r.Title = CleanText(r.Title)
	r.Abstract = CleanText(r.Abstract)
	r.PublicationLink = strings.TrimSpace(r.PublicationLink)
	r.Authors = uniqueStrings(r.Authors, nil)
	r.AuthorLinks = uniqueStrings(r.AuthorLinks, IsHTTPURL)
	return r
}

func uniqueStrings(in []string, keep func(string) bool) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		v = CleanText(v)
		if v == "" {
			continue
		}
		if keep != nil && !keep(v) {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
