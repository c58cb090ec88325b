package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/ekaya-catalog/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-catalog/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-catalog/pkg/config"
	"github.com/ekaya-inc/ekaya-catalog/pkg/models"
	"github.com/ekaya-inc/ekaya-catalog/pkg/schema"
)

// SamplerProvider hands out the open sampler of a datasource.
// Implemented by datasource.ConnectionManager.
type SamplerProvider interface {
	GetOrCreate(ctx context.Context, name, dsType string, config map[string]any) (datasource.DocumentSampler, error)
}

// CatalogWriter persists profiles. Implemented by catalog.Writer.
type CatalogWriter interface {
	WriteSourceWithRollback(ctx context.Context, profile *models.SourceProfile, mergeManualFields bool) error
}

// CacheInvalidator drops cached catalog reads. Implemented by catalog.Reader.
type CacheInvalidator interface {
	InvalidateCache()
}

// ExtractionResult describes one cataloged source.
type ExtractionResult struct {
	RunID            string                `json:"run_id" yaml:"run_id"`
	Identity         models.SourceIdentity `json:"identity" yaml:"identity"`
	DocumentsSampled int                   `json:"documents_sampled" yaml:"documents_sampled"`
	FieldCount       int                   `json:"field_count" yaml:"field_count"`
	Duration         time.Duration         `json:"duration" yaml:"duration"`
}

// ExtractionService samples datasources, profiles what it finds and writes the
// profiles to the catalog, keeping manual annotations of existing records.
type ExtractionService interface {
	// ExtractSource catalogs one collection of the named datasource.
	ExtractSource(ctx context.Context, datasourceName, collection string) (*ExtractionResult, error)

	// ExtractDatasource catalogs the configured collections of the named datasource, or
	// every collection it exposes when none are configured. Collections run in
	// parallel up to the configured limit. A failing collection does not stop the
	// others; all failures are returned joined, next to the results that succeeded.
	ExtractDatasource(ctx context.Context, datasourceName string) ([]*ExtractionResult, error)
}

type extractionService struct {
	cfg         *config.Config
	samplers    SamplerProvider
	profiler    *schema.Profiler
	writer      CatalogWriter
	invalidator CacheInvalidator
	metrics     *ExtractionMetrics
	logger      *zap.Logger
}

// NewExtractionService creates the extraction service. invalidator and metrics may be
// nil.
func NewExtractionService(
	cfg *config.Config,
	samplers SamplerProvider,
	profiler *schema.Profiler,
	writer CatalogWriter,
	invalidator CacheInvalidator,
	metrics *ExtractionMetrics,
	logger *zap.Logger,
) ExtractionService {
	return &extractionService{
		cfg:         cfg,
		samplers:    samplers,
		profiler:    profiler,
		writer:      writer,
		invalidator: invalidator,
		metrics:     metrics,
		logger:      logger.Named("extraction-service"),
	}
}

var _ ExtractionService = (*extractionService)(nil)

func (s *extractionService) ExtractSource(ctx context.Context, datasourceName, collection string) (*ExtractionResult, error) {
	ds, err := s.datasource(datasourceName)
	if err != nil {
		return nil, err
	}
	sampler, err := s.samplers.GetOrCreate(ctx, ds.Name, ds.Type, ds.AdapterConfig())
	if err != nil {
		return nil, err
	}
	return s.extract(ctx, uuid.New().String(), ds, sampler, collection)
}

func (s *extractionService) ExtractDatasource(ctx context.Context, datasourceName string) ([]*ExtractionResult, error) {
	ds, err := s.datasource(datasourceName)
	if err != nil {
		return nil, err
	}
	sampler, err := s.samplers.GetOrCreate(ctx, ds.Name, ds.Type, ds.AdapterConfig())
	if err != nil {
		return nil, err
	}

	collections := ds.Collections
	if len(collections) == 0 {
		collections, err = sampler.ListCollections(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list collections of %s: %w", ds.Name, err)
		}
	}

	runID := uuid.New().String()
	s.logger.Info("Starting datasource extraction",
		zap.String("run_id", runID),
		zap.String("datasource", ds.Name),
		zap.Int("collections", len(collections)))

	results := make([]*ExtractionResult, len(collections))
	var (
		errsMu sync.Mutex
		errs   []error
	)

	limit := s.cfg.Catalog.MaxConcurrentExtractions
	if limit <= 0 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i, collection := range collections {
		g.Go(func() error {
			result, err := s.extract(ctx, runID, ds, sampler, collection)
			if err != nil {
				errsMu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", collection, err))
				errsMu.Unlock()
				return nil // Other collections keep going
			}
			results[i] = result
			return nil
		})
	}
	_ = g.Wait()

	succeeded := make([]*ExtractionResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			succeeded = append(succeeded, r)
		}
	}

	s.logger.Info("Finished datasource extraction",
		zap.String("run_id", runID),
		zap.String("datasource", ds.Name),
		zap.Int("succeeded", len(succeeded)),
		zap.Int("failed", len(errs)))

	return succeeded, errors.Join(errs...)
}

func (s *extractionService) extract(
	ctx context.Context,
	runID string,
	ds *config.DatasourceConfig,
	sampler datasource.DocumentSampler,
	collection string,
) (*ExtractionResult, error) {
	start := time.Now()
	id := models.SourceIdentity{DBName: dbNameFor(ds), TableName: collection}

	result, err := s.sampleAndWrite(ctx, ds, sampler, id)
	elapsed := time.Since(start)
	s.metrics.observe(ds.Name, elapsed, err)

	if err != nil {
		s.logger.Error("Extraction failed",
			zap.String("run_id", runID),
			zap.String("source", id.String()),
			zap.Error(err))
		return nil, err
	}

	result.RunID = runID
	result.Duration = elapsed
	s.logger.Info("Extracted source",
		zap.String("run_id", runID),
		zap.String("source", id.String()),
		zap.Int("documents", result.DocumentsSampled),
		zap.Int("fields", result.FieldCount),
		zap.Duration("elapsed", elapsed))
	return result, nil
}

func (s *extractionService) sampleAndWrite(
	ctx context.Context,
	ds *config.DatasourceConfig,
	sampler datasource.DocumentSampler,
	id models.SourceIdentity,
) (*ExtractionResult, error) {
	docs, err := sampler.SampleDocuments(ctx, id.TableName, s.cfg.SampleSizeFor(ds))
	if err != nil {
		return nil, fmt.Errorf("failed to sample %s: %w", id, err)
	}

	profile := s.profiler.Profile(id, docs)
	if err := s.writer.WriteSourceWithRollback(ctx, profile, true); err != nil {
		return nil, err
	}
	if s.invalidator != nil {
		s.invalidator.InvalidateCache()
	}

	return &ExtractionResult{
		Identity:         id,
		DocumentsSampled: len(docs),
		FieldCount:       len(profile.Fields),
	}, nil
}

func (s *extractionService) datasource(name string) (*config.DatasourceConfig, error) {
	ds := s.cfg.Datasource(name)
	if ds == nil {
		return nil, fmt.Errorf("datasource %q: %w", name, apperrors.ErrNotFound)
	}
	return ds, nil
}

// dbNameFor returns the catalog database name of ds: its database, or its name for
// stores without one (JSON directories).
func dbNameFor(ds *config.DatasourceConfig) string {
	if ds.Database != "" {
		return ds.Database
	}
	return ds.Name
}
