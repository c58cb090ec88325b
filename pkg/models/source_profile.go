package models

import (
	"time"
)

// SourceIdentity names one cataloged data set.
type SourceIdentity struct {
	DBName    string `yaml:"db_name" json:"db_name" validate:"required"`
	TableName string `yaml:"table_name" json:"table_name" validate:"required"`
}

func (id SourceIdentity) String() string {
	return id.DBName + "." + id.TableName
}

// SourceProfile is the persisted catalog record of one source.
type SourceProfile struct {
	SourceIdentity `yaml:",inline"`
	DocumentCount  int            `yaml:"document_count" json:"document_count" validate:"gte=0"`
	ExtractedAt    time.Time      `yaml:"extracted_at" json:"extracted_at"`
	UpdatedAt      time.Time      `yaml:"updated_at" json:"updated_at"`
	Fields         []FieldProfile `yaml:"fields" json:"fields" validate:"unique=Path,dive"`
}

// Identity returns the source identity.
func (p *SourceProfile) Identity() SourceIdentity {
	return p.SourceIdentity
}

// FieldByPath returns the field with the given path, or nil.
func (p *SourceProfile) FieldByPath(path string) *FieldProfile {
	for i := range p.Fields {
		if p.Fields[i].Path == path {
			return &p.Fields[i]
		}
	}
	return nil
}

// Normalize applies FieldProfile.Normalize to every field and converts timestamps to UTC.
func (p *SourceProfile) Normalize() {
	p.ExtractedAt = p.ExtractedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	if p.Fields == nil {
		p.Fields = []FieldProfile{}
	}
	for i := range p.Fields {
		p.Fields[i].Normalize()
	}
}

// Clone returns a deep copy.
func (p *SourceProfile) Clone() *SourceProfile {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Fields = make([]FieldProfile, len(p.Fields))
	for i, f := range p.Fields {
		cp.Fields[i] = f.Clone()
	}
	return &cp
}

// SourceDetail is a source record plus aggregate statistics over its fields.
type SourceDetail struct {
	Source           *SourceProfile    `yaml:"source" json:"source"`
	TotalFields      int               `yaml:"total_fields" json:"total_fields"`
	RequiredFields   int               `yaml:"required_fields" json:"required_fields"`
	EnumerableFields int               `yaml:"enumerable_fields" json:"enumerable_fields"`
	TypeHistogram    map[FieldType]int `yaml:"type_histogram" json:"type_histogram"`
}

// NewSourceDetail computes the aggregate statistics for p.
func NewSourceDetail(p *SourceProfile) *SourceDetail {
	d := &SourceDetail{
		Source:        p,
		TotalFields:   len(p.Fields),
		TypeHistogram: make(map[FieldType]int),
	}
	for _, f := range p.Fields {
		if f.Required {
			d.RequiredFields++
		}
		if f.Enumerable {
			d.EnumerableFields++
		}
		d.TypeHistogram[f.Type]++
	}
	return d
}
