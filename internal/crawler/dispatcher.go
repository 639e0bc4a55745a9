package crawler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// DeliveryMode selects how records reach the collector. Modes are exclusive per session.
type DeliveryMode string

// Supported delivery modes.
const (
	DeliveryBatch   DeliveryMode = "batch"
	DeliveryPerItem DeliveryMode = "per_item"
)

// ParseDeliveryMode validates a configured mode. Empty means batch.
func ParseDeliveryMode(raw string) (DeliveryMode, error) {
	switch DeliveryMode(raw) {
	case "", DeliveryBatch:
		return DeliveryBatch, nil
	case DeliveryPerItem:
		return DeliveryPerItem, nil
	default:
		return "", fmt.Errorf("unknown delivery mode %q", raw)
	}
}

// DeliveryReport describes what happened to a set of records handed to the dispatcher.
type DeliveryReport struct {
	Delivered   int
	Skipped     []SkippedItem
	Undelivered []PublicationRecord
	FellBack    bool
}

// DeliveryDispatcher sends records to the collector with bounded retries and
// a per-record fallback when a whole batch cannot be delivered.
type DeliveryDispatcher struct {
	collector Collector
	mode      DeliveryMode
	retry     RetryPolicy
	pauser    Pauser
	logger    *zap.Logger
}

// NewDeliveryDispatcher builds a dispatcher.
func NewDeliveryDispatcher(collector Collector, mode DeliveryMode, retry RetryPolicy, pauser Pauser, logger *zap.Logger) *DeliveryDispatcher {
	if pauser == nil {
		pauser = TimerPauser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if mode == "" {
		mode = DeliveryBatch
	}
	return &DeliveryDispatcher{
		collector: collector,
		mode:      mode,
		retry:     retry,
		pauser:    pauser,
		logger:    logger,
	}
}

// Mode returns the session's delivery mode.
func (d *DeliveryDispatcher) Mode() DeliveryMode { return d.mode }

// DeliverPage sends one page's records as a single batch. When every batch
// attempt fails each record is sent on its own; only records that still fail
// are reported as skipped.
func (d *DeliveryDispatcher) DeliverPage(ctx context.Context, pageIndex int, records []PublicationRecord) DeliveryReport {
	if len(records) == 0 {
		return DeliveryReport{}
	}
	_, attempts, err := Attempt(ctx, d.retry, d.pauser, func(ctx context.Context, attempt int) (struct{}, error) {
		DeliveryAttempts.WithLabelValues("batch").Inc()
		d.logger.Info("sending publications",
			zap.Int("page", pageIndex),
			zap.Int("count", len(records)),
			zap.Int("attempt", attempt),
		)
		return struct{}{}, d.collector.SendBatch(ctx, records)
	})
	if err == nil {
		RecordsDelivered.Add(float64(len(records)))
		return DeliveryReport{Delivered: len(records)}
	}
	if ctx.Err() != nil {
		return DeliveryReport{Undelivered: records}
	}

	d.logger.Warn("batch delivery exhausted; falling back to per-record delivery",
		zap.Int("page", pageIndex),
		zap.Int("attempts", attempts),
		zap.Error(err),
	)
	report := DeliveryReport{FellBack: true}
	for pos, rec := range records {
		if ctx.Err() != nil {
			report.Undelivered = append(report.Undelivered, records[pos:]...)
			break
		}
		report.merge(d.DeliverOne(ctx, rec))
	}
	return report
}

// DeliverOne sends a single record with the same retry policy as batches.
// A failure is logged at the record's listing position.
func (d *DeliveryDispatcher) DeliverOne(ctx context.Context, rec PublicationRecord) DeliveryReport {
	_, _, err := Attempt(ctx, d.retry, d.pauser, func(ctx context.Context, _ int) (struct{}, error) {
		DeliveryAttempts.WithLabelValues("single").Inc()
		return struct{}{}, d.collector.SendOne(ctx, rec)
	})
	if err == nil {
		RecordsDelivered.Inc()
		return DeliveryReport{Delivered: 1}
	}
	report := DeliveryReport{Undelivered: []PublicationRecord{rec}}
	if ctx.Err() != nil {
		return report
	}
	reason := classifyDeliveryError(err)
	d.logger.Warn("record delivery failed",
		zap.String("title", rec.Title),
		zap.String("reason", string(reason)),
		zap.Error(err),
	)
	report.Skipped = []SkippedItem{{
		Reason:    reason,
		PageIndex: rec.PageIndex,
		Position:  rec.Position,
		Title:     rec.Title,
		Link:      rec.PublicationLink,
	}}
	return report
}

func (r *DeliveryReport) merge(other DeliveryReport) {
	r.Delivered += other.Delivered
	r.Skipped = append(r.Skipped, other.Skipped...)
	r.Undelivered = append(r.Undelivered, other.Undelivered...)
	r.FellBack = r.FellBack || other.FellBack
}

func classifyDeliveryError(err error) SkipReason {
	if errors.Is(err, ErrDeliveryStatus) {
		return SkipAPISendFailed
	}
	return SkipAPISendException
}
