package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-catalog/pkg/cache"
	"github.com/ekaya-inc/ekaya-catalog/pkg/models"
)

const (
	DefaultIndexTTL  = 30 * time.Second
	DefaultRecordTTL = 5 * time.Minute

	indexCacheKey = "index"
)

// errRecordMissing marks a record listed in the index but absent on disk. It never
// leaves the package.
var errRecordMissing = errors.New("record file missing")

// ReaderConfig holds the cache settings of a Reader.
type ReaderConfig struct {
	IndexTTL  time.Duration
	RecordTTL time.Duration
	Metrics   *cache.Metrics // optional
}

// Reader serves catalog reads through two TTL caches: one for the index and one for
// source records keyed by their relative path. Returned records are copies and may be
// modified by the caller.
type Reader struct {
	fs          afero.Fs
	indexCache  *cache.TTLCache[string, *models.CatalogIndex]
	recordCache *cache.TTLCache[string, *models.SourceProfile]
	logger      *zap.Logger
}

// NewReader creates a reader over fs, whose root is the catalog directory. Zero TTLs
// take the defaults.
func NewReader(fs afero.Fs, cfg ReaderConfig, logger *zap.Logger) (*Reader, error) {
	if cfg.IndexTTL == 0 {
		cfg.IndexTTL = DefaultIndexTTL
	}
	if cfg.RecordTTL == 0 {
		cfg.RecordTTL = DefaultRecordTTL
	}
	opts := []cache.Option{}
	if cfg.Metrics != nil {
		opts = append(opts, cache.WithMetrics(cfg.Metrics))
	}

	indexCache, err := cache.New[string, *models.CatalogIndex]("index", cfg.IndexTTL, opts...)
	if err != nil {
		return nil, err
	}
	recordCache, err := cache.New[string, *models.SourceProfile]("records", cfg.RecordTTL, opts...)
	if err != nil {
		return nil, err
	}

	return &Reader{
		fs:          fs,
		indexCache:  indexCache,
		recordCache: recordCache,
		logger:      logger.Named("catalog-reader"),
	}, nil
}

// GetSource returns the record of id, or nil if the source is not cataloged or its
// record file is missing. A record that exists but cannot be parsed is an error.
func (r *Reader) GetSource(ctx context.Context, id models.SourceIdentity) (*models.SourceProfile, error) {
	idx, err := r.index(ctx)
	if err != nil {
		return nil, err
	}
	entry := idx.Find(id)
	if entry == nil {
		return nil, nil // Not found
	}

	p, err := r.record(ctx, entry.Path)
	if errors.Is(err, errRecordMissing) {
		r.logger.Warn("Indexed source has no record file",
			zap.String("source", id.String()),
			zap.String("path", entry.Path))
		return nil, nil // Not found
	}
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

// ListSources returns one page of records, optionally restricted to dbName. Filtering
// and pagination happen on the index so only the page's records are loaded. Records
// that are missing or unparseable are skipped. A non-positive limit returns every
// entry after skip.
func (r *Reader) ListSources(ctx context.Context, dbName string, skip, limit int) ([]*models.SourceProfile, error) {
	idx, err := r.index(ctx)
	if err != nil {
		return nil, err
	}

	page := paginate(idx.Filter(dbName), skip, limit)
	out := make([]*models.SourceProfile, 0, len(page))
	for _, entry := range page {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := r.record(ctx, entry.Path)
		if err != nil {
			r.logger.Warn("Skipping unreadable source record",
				zap.String("source", entry.SourceIdentity.String()),
				zap.String("path", entry.Path),
				zap.Error(err))
			continue
		}
		out = append(out, p.Clone())
	}
	return out, nil
}

// CountSources returns the number of indexed sources, optionally restricted to dbName.
// Record files are never read.
func (r *Reader) CountSources(ctx context.Context, dbName string) (int, error) {
	idx, err := r.index(ctx)
	if err != nil {
		return 0, err
	}
	return len(idx.Filter(dbName)), nil
}

// GetSourceDetail returns the record of id with aggregate field statistics, or nil if
// the source does not exist.
func (r *Reader) GetSourceDetail(ctx context.Context, id models.SourceIdentity) (*models.SourceDetail, error) {
	p, err := r.GetSource(ctx, id)
	if err != nil || p == nil {
		return nil, err
	}
	return models.NewSourceDetail(p), nil
}

// InvalidateCache drops both caches so the next read goes to disk.
func (r *Reader) InvalidateCache() {
	r.indexCache.Clear()
	r.recordCache.Clear()
	r.logger.Debug("Catalog caches cleared")
}

func (r *Reader) index(ctx context.Context) (*models.CatalogIndex, error) {
	return r.indexCache.GetOrLoad(ctx, indexCacheKey, r.loadIndex)
}

func (r *Reader) loadIndex(ctx context.Context) (*models.CatalogIndex, error) {
	data, err := afero.ReadFile(r.fs, IndexFileName)
	if errors.Is(err, os.ErrNotExist) {
		return models.NewCatalogIndex(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	return DecodeCatalogIndex(data, IndexFileName)
}

func (r *Reader) record(ctx context.Context, rel string) (*models.SourceProfile, error) {
	return r.recordCache.GetOrLoad(ctx, rel, func(ctx context.Context) (*models.SourceProfile, error) {
		data, err := afero.ReadFile(r.fs, osPath(rel))
		if errors.Is(err, os.ErrNotExist) {
			return nil, errRecordMissing
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record %s: %w", rel, err)
		}
		return DecodeSourceProfile(data, rel)
	})
}

func paginate(entries []models.CatalogIndexEntry, skip, limit int) []models.CatalogIndexEntry {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(entries) {
		return nil
	}
	entries = entries[skip:]
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return entries
}
