package schema

import (
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-catalog/pkg/document"
	"github.com/ekaya-inc/ekaya-catalog/pkg/models"
)

// Profiler assembles a SourceProfile from a document sample.
type Profiler struct {
	extractor *Extractor
	analyzer  *Analyzer
	now       func() time.Time
	logger    *zap.Logger
}

// NewProfiler creates a profiler with the given cardinality limit.
func NewProfiler(cardinalityLimit int, logger *zap.Logger) (*Profiler, error) {
	analyzer, err := NewAnalyzer(cardinalityLimit)
	if err != nil {
		return nil, err
	}
	return &Profiler{
		extractor: NewExtractor(logger),
		analyzer:  analyzer,
		now:       time.Now,
		logger:    logger.Named("profiler"),
	}, nil
}

// Profile extracts and analyzes docs into a new, not yet persisted, source profile.
func (p *Profiler) Profile(id models.SourceIdentity, docs []document.Document) *models.SourceProfile {
	set := p.extractor.Extract(docs)
	fields := p.analyzer.Analyze(set, len(docs))

	now := p.now().UTC()
	profile := &models.SourceProfile{
		SourceIdentity: id,
		DocumentCount:  len(docs),
		ExtractedAt:    now,
		UpdatedAt:      now,
		Fields:         fields,
	}

	p.logger.Info("Profiled source",
		zap.String("source", id.String()),
		zap.Int("documents", len(docs)),
		zap.Int("fields", len(fields)))

	return profile
}
