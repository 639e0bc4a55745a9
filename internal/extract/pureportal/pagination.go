package pureportal

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const maxNavPage = 100

// ExtractPaginationCount reads the total page count from the pager.
// "first..last Next" navigation text yields last+1; otherwise the highest
// page number in the navigation or pager links, plus one.
func (e *Extractor) ExtractPaginationCount(markup string) (int, bool) {
	doc, err := parse(markup)
	if err != nil {
		return 0, false
	}

	total, found := 0, false
	doc.Find("nav").EachWithBreak(func(_ int, nav *goquery.Selection) bool {
		text := strings.TrimSpace(nav.Text())
		if !strings.Contains(text, "Next") {
			return true
		}
		if m := rangeNext.FindStringSubmatch(text); m != nil {
			if last, err := strconv.Atoi(m[2]); err == nil {
				total, found = last+1, true
				return false
			}
		}
		highest := -1
		for _, m := range navNumber.FindAllStringSubmatch(text, -1) {
			if n, err := strconv.Atoi(m[1]); err == nil && n <= maxNavPage && n > highest {
				highest = n
			}
		}
		if highest >= 0 {
			total, found = highest+1, true
			return false
		}
		return true
	})
	if found {
		return total, true
	}

	highest := -1
	doc.Find(e.selectors.Pager + " li a").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if m := pageParamHref.FindStringSubmatch(href); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > highest {
				highest = n
			}
		}
	})
	if highest >= 0 {
		return highest + 1, true
	}
	return 0, false
}

// HasNextPage reports whether the page links to a following page.
func (e *Extractor) HasNextPage(markup string) bool {
	doc, err := parse(markup)
	if err != nil {
		return false
	}
	if doc.Find("a[rel='next'], " + e.selectors.Pager + " li.next a").Length() > 0 {
		return true
	}
	next := false
	doc.Find("nav a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if strings.Contains(a.Text(), "Next") {
			next = true
			return false
		}
		return true
	})
	return next
}
