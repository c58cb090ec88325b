package catalog

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/ekaya-inc/ekaya-catalog/pkg/models"
)

// On-disk layout, relative to the catalog root:
//
//	index.yaml
//	sources/<db>/<table>.yaml
const (
	IndexFileName = "index.yaml"
	SourcesDir    = "sources"
	RecordExt     = ".yaml"

	backupSuffix = ".bak"
	tempInfix    = ".tmp-"
)

// RecordPath returns the slash-separated path of a source record relative to the
// catalog root. It is deterministic and never escapes the sources directory.
func RecordPath(id models.SourceIdentity) string {
	return path.Join(SourcesDir, escapeSegment(id.DBName), escapeSegment(id.TableName)+RecordExt)
}

// escapeSegment makes a name safe as a single path element: separators and other
// reserved characters are percent-encoded, and names made only of dots are encoded
// so they cannot mean the current or parent directory.
func escapeSegment(name string) string {
	escaped := url.PathEscape(name)
	escaped = strings.ReplaceAll(escaped, "\\", "%5C")
	if strings.Trim(escaped, ".") == "" {
		escaped = strings.ReplaceAll(escaped, ".", "%2E")
	}
	if escaped == "" {
		return "%00"
	}
	return escaped
}

// osPath converts a slash-separated catalog path into a path for the filesystem.
func osPath(rel string) string {
	return filepath.FromSlash(rel)
}

// isLocalPath reports whether rel stays inside the catalog root.
func isLocalPath(rel string) bool {
	return rel != "" && filepath.IsLocal(osPath(rel))
}

func backupPath(p string) string { return p + backupSuffix }

// isAuxiliaryFile reports whether name is a temp or backup file of the writer.
func isAuxiliaryFile(name string) bool {
	return strings.HasSuffix(name, backupSuffix) || strings.Contains(filepath.Base(name), tempInfix)
}
