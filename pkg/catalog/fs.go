package catalog

import (
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// NewOsFs returns a filesystem rooted at dir, creating dir if needed. All catalog
// paths are resolved relative to it.
func NewOsFs(dir string) (afero.Fs, error) {
	if err := afero.NewOsFs().MkdirAll(dir, dirPerm); err != nil {
		return nil, err
	}
	return afero.NewBasePathFs(afero.NewOsFs(), dir), nil
}

// ensureDir creates dir and its parents. Safe to call repeatedly.
func ensureDir(fs afero.Fs, dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	return fs.MkdirAll(dir, dirPerm)
}

// writeFileAtomic writes data to a temp sibling and renames it over p, so readers see
// either the old or the new content.
func writeFileAtomic(fs afero.Fs, p string, data []byte) error {
	if err := ensureDir(fs, filepath.Dir(p)); err != nil {
		return err
	}
	tmp := p + tempInfix + uuid.NewString()
	if err := afero.WriteFile(fs, tmp, data, filePerm); err != nil {
		_ = fs.Remove(tmp)
		return err
	}
	if err := fs.Rename(tmp, p); err != nil {
		_ = fs.Remove(tmp)
		return err
	}
	return nil
}

// copyFile copies src to dst atomically.
func copyFile(fs afero.Fs, src, dst string) error {
	data, err := afero.ReadFile(fs, src)
	if err != nil {
		return err
	}
	return writeFileAtomic(fs, dst, data)
}
