package crawler

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// PageParam is the zero-based pagination query parameter.
const PageParam = "page"

// NormalizeURL standardizes a URL before dispatch.
// It lowercases the scheme and host, removes default ports, sorts query
// parameters, drops the fragment and strips a trailing slash that directly
// precedes a query string. Applying it twice yields the same result.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	normalizeParsed(u)
	return u.String(), nil
}

func normalizeParsed(u *url.URL) {
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawFragment = ""

	q := u.Query()
	u.RawQuery = q.Encode()
	u.ForceQuery = false

	if u.RawQuery != "" && len(u.Path) > 1 && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimRight(u.Path, "/")
		if u.Path == "" {
			u.Path = "/"
		}
		u.RawPath = ""
	}
}

// PageCursor addresses one listing page. It is immutable; advancing returns a new cursor.
type PageCursor struct {
	base url.URL
	page int
}

// ParseCursor builds a cursor from a listing URL. A missing page parameter means page 0.
func ParseCursor(rawURL string) (PageCursor, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return PageCursor{}, fmt.Errorf("parse cursor url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return PageCursor{}, fmt.Errorf("cursor url %q must be absolute http(s)", rawURL)
	}
	page := 0
	if raw := u.Query().Get(PageParam); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 0 {
			return PageCursor{}, fmt.Errorf("invalid page parameter %q", raw)
		}
	}
	return PageCursor{base: *u, page: page}, nil
}

// Page returns the zero-based page index.
func (c PageCursor) Page() int { return c.page }

// WithPage returns a cursor addressing page n of the same listing.
func (c PageCursor) WithPage(n int) PageCursor {
	return PageCursor{base: c.base, page: n}
}

// Next returns the cursor for the following page.
func (c PageCursor) Next() PageCursor { return c.WithPage(c.page + 1) }

// String returns the normalized URL for the cursor's page.
func (c PageCursor) String() string {
	u := c.base
	q := u.Query()
	q.Set(PageParam, strconv.Itoa(c.page))
	u.RawQuery = q.Encode()
	normalizeParsed(&u)
	return u.String()
}
