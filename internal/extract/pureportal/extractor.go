// Package pureportal extracts publication records from Pure research portal markup.
package pureportal

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/publication-harvester/internal/crawler"
)

// Selectors names the CSS selectors used on listing pages.
type Selectors struct {
	Container  string
	Title      string
	Authors    string
	AuthorLink string
	Year       string
	Pager      string
}

// DefaultSelectors matches the Pure portal listing layout.
func DefaultSelectors() Selectors {
	return Selectors{
		Container:  "div.result-container",
		Title:      "h3.title a",
		Authors:    "div.rendering.person, div.rendering.person a, span.rendering.person",
		AuthorLink: "div.rendering.person a, span.rendering.person a",
		Year:       "span.date, div.date",
		Pager:      "ul.pager",
	}
}

var (
	datePattern   = regexp.MustCompile(`\d{1,2}\s+\w+\s+(\d{4})`)
	rangeNext     = regexp.MustCompile(`(?s)(\d+)\s*\.\.\s*(\d+).*?Next`)
	navNumber     = regexp.MustCompile(`\b(\d+)\b`)
	pageParamHref = regexp.MustCompile(`page=(\d+)`)
)

// Extractor implements crawler.Extractor for Pure portals.
type Extractor struct {
	base      *url.URL
	selectors Selectors
}

// New returns an extractor resolving relative links against baseURL.
func New(baseURL string, selectors Selectors) (*Extractor, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	return &Extractor{base: base, selectors: selectors}, nil
}

func parse(markup string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}
	return doc, nil
}

// IsValidListingPage accepts pages with result containers, a pager, or a "no results" notice.
func (e *Extractor) IsValidListingPage(markup string) bool {
	doc, err := parse(markup)
	if err != nil {
		return false
	}
	if doc.Find(e.selectors.Container).Length() > 0 {
		return true
	}
	if doc.Find(e.selectors.Pager).Length() > 0 {
		return true
	}
	return strings.Contains(strings.ToLower(doc.Text()), "no results")
}

// ExtractListing returns one RawRecord per result container, in page order.
func (e *Extractor) ExtractListing(markup string, _ int) ([]crawler.RawRecord, error) {
	doc, err := parse(markup)
	if err != nil {
		return nil, err
	}
	containers := doc.Find(e.selectors.Container)
	records := make([]crawler.RawRecord, 0, containers.Length())
	containers.Each(func(i int, c *goquery.Selection) {
		records = append(records, e.listingEntry(i, c))
	})
	return records, nil
}

func (e *Extractor) listingEntry(pos int, c *goquery.Selection) crawler.RawRecord {
	raw := crawler.RawRecord{Position: pos}
	if title := c.Find(e.selectors.Title).First(); title.Length() > 0 {
		raw.Title = crawler.CleanText(title.Text())
		if href, ok := title.Attr("href"); ok {
			raw.Link = e.resolve(href)
		}
	}

	c.Find(e.selectors.Authors).Each(func(_ int, a *goquery.Selection) {
		if name := crawler.CleanText(a.Text()); name != "" {
			raw.Authors = append(raw.Authors, name)
		}
		link := ""
		if goquery.NodeName(a) == "a" {
			link, _ = a.Attr("href")
		} else if nested := a.Find(e.selectors.AuthorLink).First(); nested.Length() > 0 {
			link, _ = nested.Attr("href")
		}
		if link = e.resolve(link); crawler.IsHTTPURL(link) {
			raw.AuthorLinks = append(raw.AuthorLinks, link)
		}
	})

	rest := c.Clone()
	rest.Find(e.selectors.Title).Remove()
	text := rest.Text()
	if len(raw.Authors) == 0 {
		raw.Authors = authorsBeforeDate(text)
	}

	if year := c.Find(e.selectors.Year).First(); year.Length() > 0 {
		raw.YearText = crawler.CleanText(year.Text())
	}
	if _, ok := crawler.ParseYear(raw.YearText); !ok {
		if m := datePattern.FindStringSubmatch(text); m != nil {
			raw.YearText = m[1]
		}
	}
	return raw
}

// authorsBeforeDate takes up to three comma-separated names preceding the first date.
func authorsBeforeDate(text string) []string {
	loc := datePattern.FindStringIndex(text)
	if loc == nil {
		return nil
	}
	before := strings.TrimSpace(text[:loc[0]])
	if before == "" {
		return nil
	}
	parts := strings.Split(before, ",")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	var out []string
	for _, p := range parts {
		if name := crawler.CleanText(p); len(name) > 2 {
			out = append(out, name)
		}
	}
	return out
}

func (e *Extractor) resolve(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return e.base.ResolveReference(ref).String()
}
