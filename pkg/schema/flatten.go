package schema

import (
	"github.com/ekaya-inc/ekaya-catalog/pkg/document"
)

// PathSeparator joins nested keys into a field path.
const PathSeparator = "."

// Leaf is one flattened (path, value) pair.
type Leaf struct {
	Path  string
	Value document.Value
}

// Flatten turns a nested document into dot-path leaves. Only nested objects are
// descended into; arrays and scalars are leaves. Keys are visited in lexical order
// at every level so the output order is deterministic. An empty nested object
// produces no leaf. Keys that are not valid UTF-8 are repaired with U+FFFD.
func Flatten(doc document.Document) []Leaf {
	leaves := make([]Leaf, 0, len(doc))
	return flattenInto(leaves, "", false, doc)
}

// flattenInto joins on nested rather than a non-empty prefix, since "" is a valid key.
func flattenInto(leaves []Leaf, prefix string, nested bool, doc document.Document) []Leaf {
	for _, key := range doc.SortedKeys() {
		path := document.ValidText(key)
		if nested {
			path = prefix + PathSeparator + path
		}
		value := doc[key]
		if child, ok := value.AsObject(); ok {
			leaves = flattenInto(leaves, path, true, child)
			continue
		}
		leaves = append(leaves, Leaf{Path: path, Value: value})
	}
	return leaves
}

// FlattenMap is Flatten keyed by path.
func FlattenMap(doc document.Document) map[string]document.Value {
	leaves := Flatten(doc)
	out := make(map[string]document.Value, len(leaves))
	for _, l := range leaves {
		out[l.Path] = l.Value
	}
	return out
}

// lastSegment returns the short name of a path.
func lastSegment(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == PathSeparator[0] {
			return path[i+1:]
		}
	}
	return path
}
