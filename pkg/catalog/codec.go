package catalog

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-catalog/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-catalog/pkg/models"
)

// Records and the index are YAML so that descriptions and enrichment status can be
// edited by hand between extractions.

func encodeYAML(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeSourceProfile serializes a source record.
func EncodeSourceProfile(p *models.SourceProfile) ([]byte, error) {
	return encodeYAML(p)
}

// DecodeSourceProfile parses a source record. Any parse failure, or a record without
// an identity, wraps apperrors.ErrCorruptRecord.
func DecodeSourceProfile(data []byte, name string) (*models.SourceProfile, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: %s: empty file", apperrors.ErrCorruptRecord, name)
	}
	var p models.SourceProfile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrCorruptRecord, name, err)
	}
	if p.DBName == "" || p.TableName == "" {
		return nil, fmt.Errorf("%w: %s: missing db_name or table_name", apperrors.ErrCorruptRecord, name)
	}
	p.Normalize()
	return &p, nil
}

// EncodeCatalogIndex serializes the index.
func EncodeCatalogIndex(idx *models.CatalogIndex) ([]byte, error) {
	return encodeYAML(idx)
}

// DecodeCatalogIndex parses the index. Entries pointing outside the catalog root are
// rejected as corrupt.
func DecodeCatalogIndex(data []byte, name string) (*models.CatalogIndex, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: %s: empty file", apperrors.ErrCorruptRecord, name)
	}
	var idx models.CatalogIndex
	if err := yaml.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrCorruptRecord, name, err)
	}
	if idx.Sources == nil {
		idx.Sources = []models.CatalogIndexEntry{}
	}
	for _, e := range idx.Sources {
		if !isLocalPath(e.Path) {
			return nil, fmt.Errorf("%w: %s: entry %s has invalid path %q", apperrors.ErrCorruptRecord, name, e.SourceIdentity, e.Path)
		}
	}
	idx.GeneratedAt = idx.GeneratedAt.UTC()
	for i := range idx.Sources {
		idx.Sources[i].ExtractedAt = idx.Sources[i].ExtractedAt.UTC()
	}
	return &idx, nil
}
