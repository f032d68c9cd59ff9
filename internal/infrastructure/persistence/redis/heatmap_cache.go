package redis

import (
	"context"
	"errors"

	"github.com/Deekay69/aale-platform/internal/application/query"
	"github.com/Deekay69/aale-platform/pkg/logger"
)

// HeatmapCache caches the computed classroom heatmap. The heatmap walks the
// whole event store, so it is the most expensive read in the system; within
// the TTL a stale snapshot is acceptable.
type HeatmapCache struct {
	cache  *Cache
	logger *logger.Logger
}

// NewHeatmapCache creates a new HeatmapCache.
func NewHeatmapCache(cache *Cache, log *logger.Logger) *HeatmapCache {
	if log == nil {
		log = logger.Default()
	}
	return &HeatmapCache{
		cache:  cache,
		logger: log.With(logger.Component("heatmap_cache")),
	}
}

// Get returns the cached heatmap snapshot, if present.
func (h *HeatmapCache) Get(ctx context.Context) ([]query.HeatmapCell, bool) {
	var cells []query.HeatmapCell
	err := h.cache.Get(ctx, HeatmapKey(), &cells)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			h.logger.Warn("heatmap cache read failed", logger.Err(err))
		}
		return nil, false
	}
	return cells, true
}

// Set stores a snapshot with the standard TTL. Failures are logged and
// swallowed; caching is best effort.
func (h *HeatmapCache) Set(ctx context.Context, cells []query.HeatmapCell) {
	if err := h.cache.Set(ctx, HeatmapKey(), cells, TTLHeatmapCache); err != nil {
		h.logger.Warn("heatmap cache write failed", logger.Err(err))
	}
}
