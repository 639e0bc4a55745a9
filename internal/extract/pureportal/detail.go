package pureportal

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/publication-harvester/internal/crawler"
)

var abstractSelectors = []string{
	"div.textblock",
	"div.abstract",
	".abstract-content",
	"div[class*='abstract']",
	"section[class*='abstract']",
	"div.rendering_researchoutput_abstract",
	"div.rendering.researchoutput.abstract",
	"div.rendering_abstractportal",
	"div.rendering_abstract",
	".rendering_researchoutput_abstractportal",
	"div.textblock p",
}

var abstractKeywords = []string{"abstract", "summary", "background", "objective", "method", "result", "conclusion"}

var detailAuthorSelectors = []string{
	"div.persons a.person",
	"div.rendering.person a",
	"span.rendering.person a",
	"div.person-name a",
	"a.person-link",
	"div[class*='author'] a",
	"div[class*='person'] a",
	"ul.persons li a",
	"div.contributors a",
	"div.author-list a",
	".rendering_person a",
	"div.rendering_researchoutput_persons a",
	"div.persons div.rendering a",
}

var authorContainerSelectors = []string{
	"div.persons",
	"div.rendering.person",
	"span.rendering.person",
	"div[class*='author']",
	"div[class*='person']",
	"div.contributors",
}

var authorSeparators = []string{",", ";", "&", " and "}

const (
	minAbstractWithKeyword = 50
	minAbstract            = 100
	minFallbackAbstract    = 200
	maxAuthorBlock         = 200
)

// ExtractDetail merges the abstract and the detailed author list of a
// publication page into basic. Detailed authors replace the listing authors
// only when some were found.
func (e *Extractor) ExtractDetail(markup string, basic crawler.PublicationRecord) (crawler.PublicationRecord, error) {
	doc, err := parse(markup)
	if err != nil {
		return basic, err
	}
	out := basic
	if abstract := findAbstract(doc); abstract != "" {
		out.Abstract = abstract
	}
	if authors, links := e.findAuthors(doc); len(authors) > 0 {
		out.Authors = authors
		out.AuthorLinks = links
	}
	return crawler.NormalizeRecord(out), nil
}

func findAbstract(doc *goquery.Document) string {
	for _, sel := range abstractSelectors {
		found := ""
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := crawler.CleanText(s.Text())
			if len(text) <= minAbstractWithKeyword {
				return true
			}
			if len(text) > minAbstract || containsAny(strings.ToLower(text), abstractKeywords) {
				found = text
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}

	// Leaf text blocks whose own class mentions an abstract.
	found := ""
	doc.Find("p, div").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Children().Length() > 0 {
			return true
		}
		class, _ := s.Attr("class")
		if !strings.Contains(strings.ToLower(class), "abstract") {
			return true
		}
		if text := crawler.CleanText(s.Text()); len(text) > minFallbackAbstract {
			found = text
			return false
		}
		return true
	})
	return found
}

func (e *Extractor) findAuthors(doc *goquery.Document) ([]string, []string) {
	for _, sel := range detailAuthorSelectors {
		var names, links []string
		doc.Find(sel).Each(func(_ int, a *goquery.Selection) {
			name := crawler.CleanText(a.Text())
			if name == "" || contains(names, name) {
				return
			}
			names = append(names, name)
			href, _ := a.Attr("href")
			if link := e.resolve(href); crawler.IsHTTPURL(link) && !contains(links, link) {
				links = append(links, link)
			}
		})
		if len(names) > 0 {
			return names, links
		}
	}

	var names []string
	for _, sel := range authorContainerSelectors {
		doc.Find(sel).Each(func(_ int, c *goquery.Selection) {
			text := crawler.CleanText(c.Text())
			if text == "" || len(text) >= maxAuthorBlock {
				return
			}
			for _, name := range splitAuthors(text) {
				if len(name) > 2 && !contains(names, name) {
					names = append(names, name)
				}
			}
		})
		if len(names) > 0 {
			return names, nil
		}
	}
	return nil, nil
}

// splitAuthors splits on the first separator present in text.
func splitAuthors(text string) []string {
	for _, sep := range authorSeparators {
		if !strings.Contains(text, sep) {
			continue
		}
		parts := strings.Split(text, sep)
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			out = append(out, crawler.CleanText(p))
		}
		return out
	}
	return []string{text}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
