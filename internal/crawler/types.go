package crawler

import (
	"fmt"
	"strings"
	"time"
)

// Year bounds accepted at the extraction boundary.
const (
	MinPublicationYear = 1900
	MaxPublicationYear = 2030
)

// ListDelimiter joins multi-valued fields when a record leaves the process.
const ListDelimiter = ", "

// PublicationRecord is a validated publication ready for enrichment and delivery.
type PublicationRecord struct {
	Title           string
	Year            int
	Authors         []string
	AuthorLinks     []string
	PublicationLink string
	Abstract        string
	// PageIndex and Position record provenance only and are never delivered.
	PageIndex int
	Position  int
}

// RecordPayload is the wire form of a PublicationRecord.
type RecordPayload struct {
	Title           string `json:"title"`
	Year            int    `json:"year"`
	Authors         string `json:"authors"`
	PublicationLink string `json:"publication_link"`
	AuthorLinks     string `json:"author_links"`
	Abstract        string `json:"abstract"`
}

// Payload converts the record to its delivery representation.
func (r PublicationRecord) Payload() RecordPayload {
	return RecordPayload{
		Title:           r.Title,
		Year:            r.Year,
		Authors:         strings.Join(r.Authors, ListDelimiter),
		PublicationLink: r.PublicationLink,
		AuthorLinks:     strings.Join(r.AuthorLinks, ListDelimiter),
		Abstract:        r.Abstract,
	}
}

// RawRecord is the fixed-field shape produced by an Extractor for one listing entry.
type RawRecord struct {
	Position    int
	Title       string
	YearText    string
	Authors     []string
	AuthorLinks []string
	Link        string
}

// Page is a rendered document.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Markup     string
}

// SkipReason names why a record or page was not processed.
type SkipReason string

// Skip reasons written to the skip log.
const (
	SkipMissingTitle     SkipReason = "missing_title"
	SkipAlreadyExists    SkipReason = "already_exists"
	SkipInvalidYear      SkipReason = "invalid_year"
	SkipInvalidLink      SkipReason = "invalid_link"
	SkipAPISendFailed    SkipReason = "api_send_failed"
	SkipAPISendException SkipReason = "api_send_exception"
	SkipRobotsDisallowed SkipReason = "robots_disallowed"
)

// SkippedItem is one skip log entry. Position is -1 for page-level skips.
type SkippedItem struct {
	Reason    SkipReason `json:"reason"`
	PageIndex int        `json:"page_index"`
	Position  int        `json:"position"`
	Title     string     `json:"title,omitempty"`
	Link      string     `json:"link,omitempty"`
}

// StopReason explains why traversal reached a terminal state.
type StopReason string

// Terminal states of the traversal state machine.
const (
	StopLastPage             StopReason = "last_page_reached"
	StopNoMorePages          StopReason = "no_more_pages"
	StopMaxConsecutiveErrors StopReason = "max_consecutive_errors"
	StopDisallowedStreak     StopReason = "disallowed_streak"
	StopMaxPages             StopReason = "max_pages"
	StopCanceled             StopReason = "canceled"
	StopFatal                StopReason = "fatal"
)

// Stats summarizes a finished session.
type Stats struct {
	SessionID         string             `json:"session_id"`
	StartedAt         time.Time          `json:"started_at"`
	FinishedAt        time.Time          `json:"finished_at"`
	StopReason        StopReason         `json:"stop_reason"`
	TotalPublications int                `json:"total_publications"`
	UniqueAuthors     int                `json:"unique_authors"`
	YearMin           int                `json:"year_min,omitempty"`
	YearMax           int                `json:"year_max,omitempty"`
	PagesCrawled      int                `json:"pages_crawled"`
	PagesVisited      int                `json:"pages_visited"`
	PagesFailed       int                `json:"pages_failed"`
	PagesDisallowed   int                `json:"pages_disallowed"`
	TotalPages        int                `json:"total_pages,omitempty"`
	Delivered         int                `json:"delivered"`
	Undelivered       int                `json:"undelivered"`
	Skipped           map[SkipReason]int `json:"skipped"`
}

// Duration reports how long the session ran.
func (s Stats) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// YearRange renders the year span as "min - max", or "" when no records exist.
func (s Stats) YearRange() string {
	if s.TotalPublications == 0 {
		return ""
	}
	return fmt.Sprintf("%d - %d", s.YearMin, s.YearMax)
}
