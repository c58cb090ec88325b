package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-catalog/pkg/models"
)

// Writer is the only component that mutates the catalog on disk.
//
// Thread Safety:
//
//	All mutating methods hold mu, since every source write also rewrites the shared
//	index.
type Writer struct {
	fs       afero.Fs
	validate *validator.Validate
	now      func() time.Time
	logger   *zap.Logger

	mu sync.Mutex
}

// NewWriter creates a writer over fs, whose root is the catalog directory.
func NewWriter(fs afero.Fs, logger *zap.Logger) *Writer {
	return &Writer{
		fs:       fs,
		validate: newValidator(),
		now:      time.Now,
		logger:   logger.Named("catalog-writer"),
	}
}

// WriteSource persists profile at its deterministic location and returns the record
// that was written. With mergeManualFields, description and enrichment status are
// carried over from the prior record for every path still present; paths no longer
// observed are dropped with their annotations. The caller's profile is not modified.
func (w *Writer) WriteSource(ctx context.Context, profile *models.SourceProfile, mergeManualFields bool) (*models.SourceProfile, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeSource(ctx, profile, mergeManualFields)
}

// UpdateIndex records profile's identity, extraction time and record path in the
// index, creating the index if it does not exist yet.
func (w *Writer) UpdateIndex(ctx context.Context, profile *models.SourceProfile) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.updateIndex(ctx, profile)
}

func (w *Writer) writeSource(ctx context.Context, profile *models.SourceProfile, mergeManualFields bool) (*models.SourceProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := profile.Clone()
	out.Normalize()
	out.UpdatedAt = w.now().UTC()

	rel := RecordPath(out.Identity())
	p := osPath(rel)

	if mergeManualFields {
		prior, err := w.readPrior(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read prior record for %s: %w", out.Identity(), err)
		}
		if prior != nil {
			merged := mergeManualAnnotations(out, prior)
			w.logger.Debug("Merged manual annotations",
				zap.String("source", out.Identity().String()),
				zap.Int("merged_fields", merged),
				zap.Int("prior_fields", len(prior.Fields)))
		}
	}

	if err := w.validate.Struct(out); err != nil {
		return nil, fmt.Errorf("invalid profile for %s: %w", out.Identity(), err)
	}

	data, err := EncodeSourceProfile(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record for %s: %w", out.Identity(), err)
	}
	if err := writeFileAtomic(w.fs, p, data); err != nil {
		return nil, fmt.Errorf("failed to write record %s: %w", rel, err)
	}

	w.logger.Debug("Wrote source record",
		zap.String("source", out.Identity().String()),
		zap.String("path", rel),
		zap.Int("fields", len(out.Fields)))
	return out, nil
}

// readPrior returns the record at p, or nil if there is none.
func (w *Writer) readPrior(p string) (*models.SourceProfile, error) {
	data, err := afero.ReadFile(w.fs, p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, err
	}
	return DecodeSourceProfile(data, p)
}

// mergeManualAnnotations copies curated fields from prior onto matching paths of
// out and returns how many fields matched.
func mergeManualAnnotations(out, prior *models.SourceProfile) int {
	byPath := make(map[string]*models.FieldProfile, len(prior.Fields))
	for i := range prior.Fields {
		byPath[prior.Fields[i].Path] = &prior.Fields[i]
	}
	merged := 0
	for i := range out.Fields {
		if old, ok := byPath[out.Fields[i].Path]; ok {
			out.Fields[i].CopyManualFields(old)
			merged++
		}
	}
	return merged
}

func (w *Writer) updateIndex(ctx context.Context, profile *models.SourceProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	idx, err := w.readIndex()
	if err != nil {
		return err
	}

	id := profile.Identity()
	idx.Upsert(models.CatalogIndexEntry{
		SourceIdentity: id,
		ExtractedAt:    profile.ExtractedAt.UTC(),
		Path:           RecordPath(id),
	})
	idx.GeneratedAt = w.now().UTC()
	if idx.Version == 0 {
		idx.Version = models.CatalogIndexVersion
	}

	data, err := EncodeCatalogIndex(idx)
	if err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	if err := writeFileAtomic(w.fs, IndexFileName, data); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}

	w.logger.Debug("Updated catalog index",
		zap.String("source", id.String()),
		zap.Int("entries", len(idx.Sources)))
	return nil
}

// readIndex loads the index, or a new empty one if the file does not exist.
func (w *Writer) readIndex() (*models.CatalogIndex, error) {
	data, err := afero.ReadFile(w.fs, IndexFileName)
	if errors.Is(err, os.ErrNotExist) {
		return models.NewCatalogIndex(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	return DecodeCatalogIndex(data, IndexFileName)
}
