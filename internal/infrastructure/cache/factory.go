package cache

import (
	"github.com/estatehq/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// NewReportCache creates a report cache based on configuration: Redis when
// enabled and reachable, otherwise the in-memory cache.
func NewReportCache(cfg config.RedisConfig, logger *zap.Logger) ReportCache {
	if !cfg.Enabled {
		return NewInMemoryReportCache()
	}

	store, err := NewRedisReportCache(RedisCacheConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err != nil {
		logger.Warn("Redis unavailable, falling back to in-memory report cache. "+
			"Snapshots will not be shared across instances.",
			zap.Error(err),
		)
		return NewInMemoryReportCache()
	}

	logger.Info("using Redis report cache")
	return store
}
