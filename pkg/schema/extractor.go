package schema

import (
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-catalog/pkg/document"
	"github.com/ekaya-inc/ekaya-catalog/pkg/models"
)

// FieldObservation is the raw, extraction-scoped record of one field path.
type FieldObservation struct {
	Path string

	// Values holds every value seen for the path, nulls included.
	Values []document.Value

	// PresentCount is the number of documents in which the path appeared.
	PresentCount int

	// Samples holds up to models.MaxSampleValues distinct non-null values in the
	// order they were first seen.
	Samples []document.Value

	// Type is fixed by the first non-null value seen. Later values of a different
	// type do not change it.
	Type models.FieldType

	typed      bool
	sampleKeys map[document.Key]struct{}
}

// observe records one value for the path.
func (o *FieldObservation) observe(v document.Value) {
	o.PresentCount++
	o.Values = append(o.Values, v)
	if v.IsNull() {
		return
	}
	if !o.typed {
		o.Type = InferType(v)
		o.typed = true
	}
	if len(o.Samples) >= models.MaxSampleValues {
		return
	}
	// Values without an equality identity (arrays, objects, opaque) are not sampled.
	key, ok := v.Key()
	if !ok {
		return
	}
	if _, dup := o.sampleKeys[key]; dup {
		return
	}
	o.sampleKeys[key] = struct{}{}
	o.Samples = append(o.Samples, v)
}

// ObservationSet is the extractor output: observations in first-seen path order.
type ObservationSet struct {
	order  []string
	byPath map[string]*FieldObservation
}

func newObservationSet() *ObservationSet {
	return &ObservationSet{byPath: make(map[string]*FieldObservation)}
}

func (s *ObservationSet) getOrCreate(path string) *FieldObservation {
	if obs, ok := s.byPath[path]; ok {
		return obs
	}
	obs := &FieldObservation{
		Path:       path,
		sampleKeys: make(map[document.Key]struct{}),
	}
	s.byPath[path] = obs
	s.order = append(s.order, path)
	return obs
}

// Paths returns the observed paths in the order they were first seen.
func (s *ObservationSet) Paths() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Get returns the observation for path, or nil.
func (s *ObservationSet) Get(path string) *FieldObservation {
	return s.byPath[path]
}

// Len returns the number of observed paths.
func (s *ObservationSet) Len() int {
	return len(s.order)
}

// Extractor runs flattening and type inference over a document sample.
type Extractor struct {
	logger *zap.Logger
}

// NewExtractor creates a new schema extractor.
func NewExtractor(logger *zap.Logger) *Extractor {
	return &Extractor{logger: logger.Named("schema-extractor")}
}

// Extract builds per-path observations from docs. It never fails: heterogeneous or
// sparse documents simply produce whatever was observed.
func (e *Extractor) Extract(docs []document.Document) *ObservationSet {
	set := newObservationSet()
	seen := make(map[string]struct{})

	for _, doc := range docs {
		clear(seen)
		for _, leaf := range Flatten(doc) {
			// A literal dotted key can collide with a nested path in the same
			// document; count the path once per document.
			if _, dup := seen[leaf.Path]; dup {
				continue
			}
			seen[leaf.Path] = struct{}{}
			set.getOrCreate(leaf.Path).observe(leaf.Value)
		}
	}

	for _, path := range set.order {
		obs := set.byPath[path]
		if !obs.typed {
			obs.Type = models.FieldTypeNull
		}
	}

	e.logger.Debug("Extracted field observations",
		zap.Int("documents", len(docs)),
		zap.Int("fields", set.Len()))

	return set
}
