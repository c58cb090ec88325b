package catalog

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-catalog/pkg/models"
)

// RollbackError is returned by WriteSourceWithRollback when the write failed after
// backups were taken. The files on disk have been returned to their prior state
// unless RestoreErr is set.
type RollbackError struct {
	Identity   models.SourceIdentity
	Cause      error
	RestoreErr error
}

func (e *RollbackError) Error() string {
	if e.RestoreErr != nil {
		return fmt.Sprintf("write of %s rolled back: %v (restore incomplete: %v)", e.Identity, e.Cause, e.RestoreErr)
	}
	return fmt.Sprintf("write of %s rolled back: %v", e.Identity, e.Cause)
}

func (e *RollbackError) Unwrap() error { return e.Cause }

// guardedFile is one file touched by a rollback-protected write.
type guardedFile struct {
	path      string
	hadBackup bool
}

// WriteSourceWithRollback writes the record and updates the index as one unit. Existing
// target files are backed up first; on failure every backed-up file is restored, and
// every newly created file and directory is removed before the error is returned.
func (w *Writer) WriteSourceWithRollback(ctx context.Context, profile *models.SourceProfile, mergeManualFields bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := profile.Identity()
	files := []*guardedFile{
		{path: osPath(RecordPath(id))},
		{path: IndexFileName},
	}

	for _, f := range files {
		exists, err := afero.Exists(w.fs, f.path)
		if err != nil {
			w.discardBackups(files)
			return fmt.Errorf("failed to stat %s: %w", f.path, err)
		}
		if !exists {
			continue
		}
		if err := copyFile(w.fs, f.path, backupPath(f.path)); err != nil {
			w.discardBackups(files)
			return fmt.Errorf("failed to back up %s: %w", f.path, err)
		}
		f.hadBackup = true
	}

	newDirs, err := missingDirs(w.fs, filepath.Dir(files[0].path))
	if err != nil {
		w.discardBackups(files)
		return err
	}

	err = w.writeBoth(ctx, profile, mergeManualFields)
	if err == nil {
		w.discardBackups(files)
		w.logger.Info("Cataloged source",
			zap.String("source", id.String()),
			zap.Int("fields", len(profile.Fields)),
			zap.Int("document_count", profile.DocumentCount))
		return nil
	}

	restoreErr := errors.Join(w.restore(files), w.removeEmptyDirs(newDirs))
	w.logger.Error("Catalog write rolled back",
		zap.String("source", id.String()),
		zap.Error(err),
		zap.NamedError("restore_error", restoreErr))
	return &RollbackError{Identity: id, Cause: err, RestoreErr: restoreErr}
}

func (w *Writer) writeBoth(ctx context.Context, profile *models.SourceProfile, mergeManualFields bool) error {
	if _, err := w.writeSource(ctx, profile, mergeManualFields); err != nil {
		return err
	}
	return w.updateIndex(ctx, profile)
}

// restore puts every guarded file back: backed-up files get their old bytes, files
// that did not exist before are removed.
func (w *Writer) restore(files []*guardedFile) error {
	var errs []error
	for _, f := range files {
		if f.hadBackup {
			if err := copyFile(w.fs, backupPath(f.path), f.path); err != nil {
				errs = append(errs, fmt.Errorf("restore %s: %w", f.path, err))
				continue
			}
			if err := w.fs.Remove(backupPath(f.path)); err != nil {
				w.logger.Warn("Failed to remove backup", zap.String("path", backupPath(f.path)), zap.Error(err))
			}
			continue
		}
		exists, err := afero.Exists(w.fs, f.path)
		if err != nil {
			errs = append(errs, fmt.Errorf("stat %s: %w", f.path, err))
			continue
		}
		if exists {
			if err := w.fs.Remove(f.path); err != nil {
				errs = append(errs, fmt.Errorf("remove %s: %w", f.path, err))
			}
		}
	}
	return errors.Join(errs...)
}

// missingDirs lists dir and those of its ancestors that do not exist yet, deepest first.
func missingDirs(fs afero.Fs, dir string) ([]string, error) {
	var out []string
	for dir != "." && dir != "" && dir != string(filepath.Separator) {
		exists, err := afero.DirExists(fs, dir)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", dir, err)
		}
		if exists {
			break
		}
		out = append(out, dir)
		dir = filepath.Dir(dir)
	}
	return out, nil
}

// removeEmptyDirs removes the directories a failed write created. A directory that
// gained other entries in the meantime is left alone.
func (w *Writer) removeEmptyDirs(dirs []string) error {
	var errs []error
	for _, dir := range dirs {
		exists, err := afero.DirExists(w.fs, dir)
		if err != nil || !exists {
			continue
		}
		empty, err := afero.IsEmpty(w.fs, dir)
		if err != nil {
			errs = append(errs, fmt.Errorf("stat %s: %w", dir, err))
			continue
		}
		if !empty {
			break
		}
		if err := w.fs.Remove(dir); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", dir, err))
		}
	}
	return errors.Join(errs...)
}

func (w *Writer) discardBackups(files []*guardedFile) {
	for _, f := range files {
		if !f.hadBackup {
			continue
		}
		if err := w.fs.Remove(backupPath(f.path)); err != nil {
			w.logger.Warn("Failed to remove backup", zap.String("path", backupPath(f.path)), zap.Error(err))
		}
	}
}
