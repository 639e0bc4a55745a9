package crawler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// extractWithTimeout runs the listing extraction in its own goroutine and
// gives up after timeout. A timed-out extraction yields no records.
func extractWithTimeout(
	ctx context.Context,
	timeout time.Duration,
	extractor Extractor,
	markup string,
	pageIndex int,
) ([]RawRecord, error) {
	if timeout <= 0 {
		return extractor.ExtractListing(markup, pageIndex)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		records []RawRecord
		err     error
	}
	done := make(chan result, 1)
	go func() {
		records, err := extractor.ExtractListing(markup, pageIndex)
		done <- result{records: records, err: err}
	}()

	select {
	case res := <-done:
		return res.records, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("extract page %d: %w", pageIndex, ctx.Err())
	}
}

// normalizeParallel applies NormalizeRecord across a bounded worker pool.
// Output order is not guaranteed.
func normalizeParallel(ctx context.Context, records []PublicationRecord, workers int) []PublicationRecord {
	if len(records) == 0 {
		return records
	}
	if workers <= 0 {
		workers = 1
	}
	var (
		mu  sync.Mutex
		out = make([]PublicationRecord, 0, len(records))
	)
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, rec := range records {
		g.Go(func() error {
			n := NormalizeRecord(rec)
			mu.Lock()
			out = append(out, n)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
