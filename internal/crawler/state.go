package crawler

// CrawlState is the single mutable record of a session's progress. It is
// owned by the session and mutated only by the traversal state machine.
type CrawlState struct {
	PageIndex         int
	ConsecutiveErrors int
	DisallowedStreak  int

	totalPages int
	totalKnown bool
	discovery  bool

	Records     []PublicationRecord
	Skipped     []SkippedItem
	Undelivered []PublicationRecord
	Delivered   int

	Visited         []int
	PagesFailed     int
	PagesDisallowed int
}

// NewCrawlState returns an empty state.
func NewCrawlState() *CrawlState {
	return &CrawlState{}
}

// TotalPages returns the discovered page count, if any.
func (s *CrawlState) TotalPages() (int, bool) {
	return s.totalPages, s.totalKnown
}

// discoveryAttempted reports whether total-page discovery already ran.
func (s *CrawlState) discoveryAttempted() bool { return s.discovery }

// recordDiscovery stores the outcome of the single total-page discovery attempt.
func (s *CrawlState) recordDiscovery(total int, ok bool) {
	if s.discovery {
		return
	}
	s.discovery = true
	if ok && total > 0 {
		s.totalPages = total
		s.totalKnown = true
	}
}

// RecordSkip appends a skip log entry.
func (s *CrawlState) RecordSkip(item SkippedItem) {
	s.Skipped = append(s.Skipped, item)
	RecordsSkipped.WithLabelValues(string(item.Reason)).Inc()
}

func (s *CrawlState) applyDelivery(report DeliveryReport) {
	s.Delivered += report.Delivered
	for _, item := range report.Skipped {
		s.RecordSkip(item)
	}
	s.Undelivered = append(s.Undelivered, report.Undelivered...)
}

// SkipCounts tallies skip log entries by reason.
func (s *CrawlState) SkipCounts() map[SkipReason]int {
	counts := make(map[SkipReason]int)
	for _, item := range s.Skipped {
		counts[item.Reason]++
	}
	return counts
}
