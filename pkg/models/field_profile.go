package models

import (
	"slices"

	"github.com/ekaya-inc/ekaya-catalog/pkg/document"
)

// ============================================================================
// Field Types
// ============================================================================

// FieldType is the semantic type inferred for a field path.
type FieldType string

const (
	FieldTypeNull     FieldType = "null"
	FieldTypeBoolean  FieldType = "boolean"
	FieldTypeInteger  FieldType = "integer"
	FieldTypeNumber   FieldType = "number"
	FieldTypeString   FieldType = "string"
	FieldTypeDatetime FieldType = "datetime"
	FieldTypeObjectID FieldType = "object_id"
	FieldTypeArray    FieldType = "array"
	FieldTypeObject   FieldType = "object"
	FieldTypeUnknown  FieldType = "unknown"
)

// ValidFieldTypes contains all valid field type values.
var ValidFieldTypes = []FieldType{
	FieldTypeNull,
	FieldTypeBoolean,
	FieldTypeInteger,
	FieldTypeNumber,
	FieldTypeString,
	FieldTypeDatetime,
	FieldTypeObjectID,
	FieldTypeArray,
	FieldTypeObject,
	FieldTypeUnknown,
}

// IsValidFieldType checks if the given type is valid.
func IsValidFieldType(t FieldType) bool {
	return slices.Contains(ValidFieldTypes, t)
}

// ============================================================================
// Enrichment Status
// ============================================================================

// EnrichmentStatus tracks whether a human (or a downstream enrichment job) has
// annotated a field. It is a manually curated value; extraction never changes it.
type EnrichmentStatus string

const (
	EnrichmentStatusNotEnriched EnrichmentStatus = "not_enriched"
	EnrichmentStatusPending     EnrichmentStatus = "pending_enrichment"
	EnrichmentStatusEnriched    EnrichmentStatus = "enriched"
)

// ============================================================================
// Field Profile
// ============================================================================

// MaxSampleValues caps the sample values kept per field.
const MaxSampleValues = 5

// RequiredPresenceThreshold is the presence ratio at or above which a field is required.
const RequiredPresenceThreshold = 0.95

// FieldProfile is the analyzed, persisted description of one field path of a source.
// Description and EnrichmentStatus are curated by hand in the persisted record;
// everything else is recomputed on every extraction.
//
// Path and Name may be empty: a document key can be "", giving the path "" at the top
// level or "parent." below it, and such fields are cataloged like any other.
type FieldProfile struct {
	Path          string           `yaml:"path" json:"path"`
	Name          string           `yaml:"name" json:"name"`
	Type          FieldType        `yaml:"type" json:"type" validate:"required,field_type"`
	Required      bool             `yaml:"required" json:"required"`
	Nullable      bool             `yaml:"nullable" json:"nullable"`
	Enumerable    bool             `yaml:"enumerable" json:"enumerable"`
	PresenceRatio float64          `yaml:"presence_ratio" json:"presence_ratio" validate:"gte=0,lte=1"`
	SampleValues  []document.Value `yaml:"sample_values,omitempty" json:"sample_values,omitempty" validate:"max=5"`
	UniqueValues  []document.Value `yaml:"unique_values,omitempty" json:"unique_values,omitempty"`

	// Manually curated
	Description      string           `yaml:"description,omitempty" json:"description,omitempty"`
	EnrichmentStatus EnrichmentStatus `yaml:"enrichment_status" json:"enrichment_status" validate:"oneof=not_enriched pending_enrichment enriched"`
}

// CopyManualFields copies the curated annotations from old onto p.
func (p *FieldProfile) CopyManualFields(old *FieldProfile) {
	p.Description = old.Description
	p.EnrichmentStatus = old.EnrichmentStatus
}

// Normalize restores invariants that the serialized form cannot express:
// unique_values is non-nil exactly when the field is enumerable, empty sample
// lists are nil, and a missing enrichment status means not enriched.
func (p *FieldProfile) Normalize() {
	if p.Enumerable && p.UniqueValues == nil {
		p.UniqueValues = []document.Value{}
	}
	if !p.Enumerable {
		p.UniqueValues = nil
	}
	if len(p.SampleValues) == 0 {
		p.SampleValues = nil
	}
	if p.EnrichmentStatus == "" {
		p.EnrichmentStatus = EnrichmentStatusNotEnriched
	}
}

// Clone returns a copy whose slices can be modified independently.
func (p FieldProfile) Clone() FieldProfile {
	if p.SampleValues != nil {
		p.SampleValues = slices.Clone(p.SampleValues)
	}
	if p.UniqueValues != nil {
		p.UniqueValues = slices.Clone(p.UniqueValues)
	}
	return p
}
