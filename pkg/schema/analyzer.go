package schema

import (
	"fmt"

	"github.com/ekaya-inc/ekaya-catalog/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-catalog/pkg/document"
	"github.com/ekaya-inc/ekaya-catalog/pkg/models"
)

// DefaultCardinalityLimit is the largest distinct-value count for which a field is
// considered enumerable.
const DefaultCardinalityLimit = 50

// Analyzer turns raw observations into finished field profiles.
type Analyzer struct {
	cardinalityLimit int
}

// NewAnalyzer creates an analyzer. A negative limit is a configuration error.
func NewAnalyzer(cardinalityLimit int) (*Analyzer, error) {
	if cardinalityLimit < 0 {
		return nil, fmt.Errorf("%w: cardinality limit must be >= 0, got %d", apperrors.ErrInvalidConfig, cardinalityLimit)
	}
	return &Analyzer{cardinalityLimit: cardinalityLimit}, nil
}

// CardinalityLimit returns the configured limit.
func (a *Analyzer) CardinalityLimit() int {
	return a.cardinalityLimit
}

// Analyze profiles every observed field, in first-seen path order.
func (a *Analyzer) Analyze(set *ObservationSet, totalDocs int) []models.FieldProfile {
	profiles := make([]models.FieldProfile, 0, set.Len())
	for _, path := range set.order {
		profiles = append(profiles, a.AnalyzeField(set.byPath[path], totalDocs))
	}
	return profiles
}

// AnalyzeField profiles one observation.
func (a *Analyzer) AnalyzeField(obs *FieldObservation, totalDocs int) models.FieldProfile {
	ratio := presenceRatio(obs.PresentCount, totalDocs)

	profile := models.FieldProfile{
		Path:             obs.Path,
		Name:             lastSegment(obs.Path),
		Type:             obs.Type,
		Required:         ratio >= models.RequiredPresenceThreshold,
		Nullable:         hasNull(obs.Values),
		PresenceRatio:    ratio,
		EnrichmentStatus: models.EnrichmentStatusNotEnriched,
	}

	if n := min(len(obs.Samples), models.MaxSampleValues); n > 0 {
		profile.SampleValues = make([]document.Value, n)
		copy(profile.SampleValues, obs.Samples[:n])
	}

	if distinct, ok := distinctNonNull(obs.Values, a.cardinalityLimit); ok {
		profile.Enumerable = true
		profile.UniqueValues = distinct
	}

	return profile
}

func presenceRatio(present, total int) float64 {
	if total <= 0 {
		return 0
	}
	ratio := float64(present) / float64(total)
	if ratio > 1 {
		return 1
	}
	return ratio
}

func hasNull(values []document.Value) bool {
	for _, v := range values {
		if v.IsNull() {
			return true
		}
	}
	return false
}

// distinctNonNull returns the distinct non-null values when there are at most limit of
// them. It fails closed (ok=false) as soon as a value without an equality identity is
// met or the limit is exceeded. The returned slice is non-nil when ok is true.
func distinctNonNull(values []document.Value, limit int) (distinct []document.Value, ok bool) {
	seen := make(map[document.Key]struct{})
	distinct = []document.Value{}
	for _, v := range values {
		if v.IsNull() {
			continue
		}
		key, comparable := v.Key()
		if !comparable {
			return nil, false
		}
		if _, dup := seen[key]; dup {
			continue
		}
		if len(seen) >= limit {
			return nil, false
		}
		seen[key] = struct{}{}
		distinct = append(distinct, v)
	}
	return distinct, true
}
