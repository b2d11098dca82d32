package cache

import (
	"context"
	"log/slog"

	"topup-store/internal/metrics"
)

const invalidateChannel = "cache:invalidate"

// PageInvalidator signals external render caches that pages are stale.
// Rendered pages are cached under "page:<path>" keys; invalidation deletes
// the key and publishes the path so remote renderers can drop local copies.
type PageInvalidator struct {
	redis   *Redis
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewPageInvalidator builds an invalidator on top of the shared Redis client.
func NewPageInvalidator(redis *Redis, logger *slog.Logger, metricRegistry *metrics.Metrics) *PageInvalidator {
	return &PageInvalidator{
		redis:   redis,
		logger:  logger.With("component", "page_cache"),
		metrics: metricRegistry,
	}
}

// Invalidate marks the given page paths stale. Best effort: failures are
// logged and counted but never propagated to the caller.
func (p *PageInvalidator) Invalidate(ctx context.Context, paths ...string) {
	for _, path := range paths {
		if err := p.redis.Del(ctx, "page:"+path); err != nil {
			p.logger.Warn("failed deleting page cache key", "path", path, "error", err)
			p.metrics.Errors.WithLabelValues("page_cache").Inc()
			continue
		}
		if err := p.redis.Publish(ctx, invalidateChannel, path); err != nil {
			p.logger.Warn("failed publishing invalidation", "path", path, "error", err)
			p.metrics.Errors.WithLabelValues("page_cache").Inc()
			continue
		}
		p.metrics.CacheInvalidations.WithLabelValues(path).Inc()
	}
}
