package crawler

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// DeduplicationCache holds the normalized titles already known downstream.
// It is seeded once per session and read-only afterwards.
type DeduplicationCache struct {
	source   IdentifierSource
	required bool
	logger   *zap.Logger

	once    sync.Once
	seedErr error
	titles  map[string]struct{}
}

// NewDeduplicationCache builds a cache over source. When required is true a
// failed seed aborts the session; otherwise the session proceeds with an empty cache.
func NewDeduplicationCache(source IdentifierSource, required bool, logger *zap.Logger) *DeduplicationCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeduplicationCache{
		source:   source,
		required: required,
		logger:   logger,
		titles:   make(map[string]struct{}),
	}
}

// Seed reads the identifier source. Only the first call queries it.
func (c *DeduplicationCache) Seed(ctx context.Context) error {
	c.once.Do(func() {
		if c.source == nil {
			c.logger.Warn("no identifier source configured; every listed publication is treated as new")
			return
		}
		titles, err := c.source.ExistingTitles(ctx)
		if err != nil {
			if c.required {
				c.seedErr = fmt.Errorf("seed deduplication cache: %w", err)
				return
			}
			c.logger.Warn("could not load existing publications; continuing with empty cache", zap.Error(err))
			return
		}
		for _, title := range titles {
			if key := NormalizeTitle(title); key != "" {
				c.titles[key] = struct{}{}
			}
		}
		c.logger.Info("loaded existing publications", zap.Int("count", len(c.titles)))
	})
	return c.seedErr
}

// Contains reports whether title is already known.
func (c *DeduplicationCache) Contains(title string) bool {
	_, ok := c.titles[NormalizeTitle(title)]
	return ok
}

// Len returns the number of cached titles.
func (c *DeduplicationCache) Len() int {
	return len(c.titles)
}
