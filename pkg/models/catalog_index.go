package models

import "time"

// CatalogIndexVersion is the format version written to new indexes.
const CatalogIndexVersion = 1

// CatalogIndexEntry points at the persisted record of one source.
type CatalogIndexEntry struct {
	SourceIdentity `yaml:",inline"`
	ExtractedAt    time.Time `yaml:"extracted_at" json:"extracted_at"`
	Path           string    `yaml:"path" json:"path"` // relative to the catalog root
}

// CatalogIndex lists every cataloged source. Entries are unique by identity.
type CatalogIndex struct {
	Version     int                 `yaml:"version" json:"version"`
	GeneratedAt time.Time           `yaml:"generated_at" json:"generated_at"`
	Sources     []CatalogIndexEntry `yaml:"sources" json:"sources"`
}

// NewCatalogIndex returns an empty index at the current format version.
func NewCatalogIndex() *CatalogIndex {
	return &CatalogIndex{
		Version: CatalogIndexVersion,
		Sources: []CatalogIndexEntry{},
	}
}

// Find returns the entry for id, or nil.
func (idx *CatalogIndex) Find(id SourceIdentity) *CatalogIndexEntry {
	for i := range idx.Sources {
		if idx.Sources[i].SourceIdentity == id {
			return &idx.Sources[i]
		}
	}
	return nil
}

// Upsert replaces the timestamp and path of the entry matching entry's identity,
// or appends entry if none matches.
func (idx *CatalogIndex) Upsert(entry CatalogIndexEntry) {
	if existing := idx.Find(entry.SourceIdentity); existing != nil {
		existing.ExtractedAt = entry.ExtractedAt
		existing.Path = entry.Path
		return
	}
	idx.Sources = append(idx.Sources, entry)
}

// Filter returns the entries whose database name matches dbName.
// An empty dbName matches every entry.
func (idx *CatalogIndex) Filter(dbName string) []CatalogIndexEntry {
	if dbName == "" {
		return idx.Sources
	}
	out := make([]CatalogIndexEntry, 0, len(idx.Sources))
	for _, e := range idx.Sources {
		if e.DBName == dbName {
			out = append(out, e)
		}
	}
	return out
}
