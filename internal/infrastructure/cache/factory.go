package cache

import (
	"github.com/erp/bankrec/internal/infrastructure/config"
	"go.uber.org/zap"
)

// NewDedupeStore creates the dedupe store the configuration asks for: Redis
// when enabled and reachable, otherwise the in-memory store. Falling back is
// logged because a multi-instance deployment must not run on process-local
// state.
func NewDedupeStore(cfg config.RedisConfig, logger *zap.Logger) DedupeStore {
	if !cfg.Enabled {
		return NewInMemoryDedupeStore()
	}

	store, err := NewRedisDedupeStore(cfg)
	if err != nil {
		logger.Warn("Redis unavailable, falling back to in-memory dedupe store",
			zap.String("addr", cfg.Addr()),
			zap.Error(err))
		return NewInMemoryDedupeStore()
	}

	logger.Info("using Redis dedupe store", zap.String("addr", cfg.Addr()))
	return store
}
