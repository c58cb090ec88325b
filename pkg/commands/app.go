package commands

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-catalog/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-catalog/pkg/cache"
	"github.com/ekaya-inc/ekaya-catalog/pkg/catalog"
	"github.com/ekaya-inc/ekaya-catalog/pkg/config"
	"github.com/ekaya-inc/ekaya-catalog/pkg/logging"
	"github.com/ekaya-inc/ekaya-catalog/pkg/schema"
	"github.com/ekaya-inc/ekaya-catalog/pkg/services"
)

// app holds the components shared by every command. Datasource connections are only
// opened by commands that extract.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry

	fs     afero.Fs
	reader *catalog.Reader
	writer *catalog.Writer

	connections *datasource.ConnectionManager
	extraction  services.ExtractionService
}

func newApp(configPath, version string) (*app, error) {
	cfg, err := config.Load(configPath, version)
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	cacheMetrics, err := cache.NewMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register cache metrics: %w", err)
	}

	fs, err := catalog.NewOsFs(cfg.Catalog.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog directory %s: %w", cfg.Catalog.Dir, err)
	}
	reader, err := catalog.NewReader(fs, catalog.ReaderConfig{
		IndexTTL:  cfg.Catalog.IndexCacheTTL,
		RecordTTL: cfg.Catalog.RecordCacheTTL,
		Metrics:   cacheMetrics,
	}, logger)
	if err != nil {
		return nil, err
	}

	logger.Debug("Configuration loaded",
		zap.String("version", version),
		zap.String("catalog_dir", cfg.Catalog.Dir),
		zap.Int("datasources", len(cfg.Datasources)))

	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		fs:       fs,
		reader:   reader,
		writer:   catalog.NewWriter(fs, logger),
	}, nil
}

// extractionService builds the extraction pipeline on first use.
func (a *app) extractionService() (services.ExtractionService, error) {
	if a.extraction != nil {
		return a.extraction, nil
	}

	profiler, err := schema.NewProfiler(a.cfg.Catalog.CardinalityLimit, a.logger)
	if err != nil {
		return nil, err
	}
	metrics, err := services.NewExtractionMetrics(a.registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register extraction metrics: %w", err)
	}

	a.connections = datasource.NewConnectionManager(
		datasource.ConnectionManagerConfig{},
		datasource.NewDatasourceAdapterFactory(a.logger),
		a.logger,
	)
	a.extraction = services.NewExtractionService(a.cfg, a.connections, profiler, a.writer, a.reader, metrics, a.logger)
	return a.extraction, nil
}

func (a *app) close() {
	if a.connections != nil {
		if err := a.connections.Close(); err != nil {
			a.logger.Warn("Failed to close datasource connections", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
