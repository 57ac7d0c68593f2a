// Package di wires the application together. Construction is explicit
// and ordered; everything flows from Config and the zap logger.
package di

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/DigitalHistory-Lund/ToK-Reader/application/partition"
	"github.com/DigitalHistory-Lund/ToK-Reader/application/ports"
	"github.com/DigitalHistory-Lund/ToK-Reader/application/search"
	"github.com/DigitalHistory-Lund/ToK-Reader/application/traversal"
	"github.com/DigitalHistory-Lund/ToK-Reader/infrastructure/config"
	"github.com/DigitalHistory-Lund/ToK-Reader/infrastructure/fetch"
	"github.com/DigitalHistory-Lund/ToK-Reader/infrastructure/persistence/boltstore"
	"github.com/DigitalHistory-Lund/ToK-Reader/infrastructure/sqlite"
	"github.com/DigitalHistory-Lund/ToK-Reader/pkg/observability"
)

// Container holds all application dependencies
type Container struct {
	Config      *config.Config
	Logger      *zap.Logger
	Store       *boltstore.Store
	Fetcher     *fetch.Fetcher
	Metrics     *observability.CacheMetrics
	Coordinator *partition.Coordinator
	Traversal   *traversal.Service
	Search      *search.Service
	Watcher     *config.Watcher
}

// InitializeContainer builds the full dependency graph.
func InitializeContainer(cfg *config.Config) (*Container, error) {
	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, err
	}

	store := boltstore.NewStore(cfg.BoltPath, cfg.CacheVersion, logger)
	fetcher := fetch.NewFetcher(cfg, logger)

	var metrics *observability.CacheMetrics
	if cfg.EnableMetrics {
		metrics = observability.NewCacheMetrics(prometheus.DefaultRegisterer)
	}

	opener := func(key string, blob []byte) (ports.Partition, error) {
		return sqlite.OpenPartition(key, blob, logger)
	}

	coordinator := partition.NewCoordinator(
		cfg.PartitionCapacity,
		store,
		fetcher,
		opener,
		metrics,
		logger,
	)

	limits := config.DefaultDynamicConfig().Limits
	var watcher *config.Watcher
	if cfg.DynamicConfigPath != "" {
		watcher, err = config.NewWatcher(cfg.DynamicConfigPath, logger)
		if err != nil {
			logger.Warn("Dynamic config unavailable, using defaults",
				zap.String("path", cfg.DynamicConfigPath), zap.Error(err))
		} else {
			limits = watcher.Current().Limits
		}
	}

	traversalService := traversal.NewService(coordinator, cfg, limits, logger)
	searchService := search.NewService(coordinator, limits, logger)

	if watcher != nil {
		watcher.OnChange(func(dc *config.DynamicConfig) {
			traversalService.UpdateLimits(dc.Limits)
			searchService.UpdateLimits(dc.Limits)
		})
		watcher.Start()
	}

	return &Container{
		Config:      cfg,
		Logger:      logger,
		Store:       store,
		Fetcher:     fetcher,
		Metrics:     metrics,
		Coordinator: coordinator,
		Traversal:   traversalService,
		Search:      searchService,
		Watcher:     watcher,
	}, nil
}

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var logger *zap.Logger
	var err error

	if cfg.IsProduction() {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}

	if err != nil {
		return nil, err
	}

	return logger, nil
}

// Shutdown releases resident partitions and closes the durable tier.
func (c *Container) Shutdown() {
	if c.Watcher != nil {
		c.Watcher.Stop()
	}
	c.Coordinator.ReleaseAll()
	if err := c.Store.Close(); err != nil {
		c.Logger.Error("Durable store close failed", zap.Error(err))
	}
}
