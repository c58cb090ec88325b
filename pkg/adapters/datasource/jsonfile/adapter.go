// Package jsonfile samples collections stored as JSON files in a directory: one file
// per collection, holding either a JSON array of objects or JSON lines.
package jsonfile

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-catalog/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-catalog/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-catalog/pkg/document"
	"github.com/ekaya-inc/ekaya-catalog/pkg/jsonutil"
)

// Extensions recognized as collections, in lookup order.
var Extensions = []string{".json", ".jsonl", ".ndjson"}

// Config contains jsonfile-specific options.
type Config struct {
	// Dir is the directory holding the collection files.
	Dir string
}

// FromMap creates a Config from a generic config map. The directory comes from "path"
// or from a file:// "uri".
func FromMap(config map[string]any) (*Config, error) {
	if p, ok := config["path"].(string); ok && p != "" {
		return &Config{Dir: p}, nil
	}
	if uri, ok := config["uri"].(string); ok && uri != "" {
		u, err := url.Parse(uri)
		if err != nil {
			return nil, fmt.Errorf("invalid uri: %w", err)
		}
		if u.Scheme != "file" {
			return nil, fmt.Errorf("uri must use the file scheme, got %q", u.Scheme)
		}
		return &Config{Dir: u.Path}, nil
	}
	return nil, fmt.Errorf("path is required")
}

// Adapter reads collections from a directory.
type Adapter struct {
	fs     afero.Fs
	dir    string
	logger *zap.Logger
}

// NewAdapter returns an adapter over the directory at dir within fs.
func NewAdapter(fs afero.Fs, dir string, logger *zap.Logger) *Adapter {
	return &Adapter{
		fs:     fs,
		dir:    dir,
		logger: logger,
	}
}

// TestConnection checks that the directory exists.
func (a *Adapter) TestConnection(ctx context.Context) error {
	info, err := a.fs.Stat(a.dir)
	if err != nil {
		return fmt.Errorf("open %s: %w", a.dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", a.dir)
	}
	return nil
}

// ListCollections returns the base names of all JSON files in the directory.
func (a *Adapter) ListCollections(ctx context.Context) ([]string, error) {
	entries, err := afero.ReadDir(a.fs, a.dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", a.dir, err)
	}

	seen := make(map[string]bool)
	names := []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name, ok := collectionName(e.Name())
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// SampleDocuments returns the first limit documents of the collection file.
func (a *Adapter) SampleDocuments(ctx context.Context, collection string, limit int) ([]document.Document, error) {
	if strings.ContainsAny(collection, `/\`) {
		return nil, fmt.Errorf("invalid collection name %q", collection)
	}

	for _, ext := range Extensions {
		p := filepath.Join(a.dir, collection+ext)
		f, err := a.fs.Open(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", p, err)
		}
		docs, err := jsonutil.DecodeDocuments(f, limit)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", p, err)
		}
		a.logger.Debug("Sampled file",
			zap.String("file", p),
			zap.Int("documents", len(docs)))
		return docs, nil
	}
	return nil, fmt.Errorf("collection %s in %s: %w", collection, a.dir, apperrors.ErrNotFound)
}

// Close is a no-op.
func (a *Adapter) Close() error {
	return nil
}

func collectionName(file string) (string, bool) {
	for _, ext := range Extensions {
		if name, ok := strings.CutSuffix(file, ext); ok && name != "" {
			return name, true
		}
	}
	return "", false
}

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        "jsonfile",
			DisplayName: "JSON files",
			Description: "Sample a directory of JSON or JSON-lines files",
		},
		Factory: func(ctx context.Context, config map[string]any, logger *zap.Logger) (datasource.DocumentSampler, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return NewAdapter(afero.NewOsFs(), cfg.Dir, logger), nil
		},
	})
}

// Ensure Adapter implements DocumentSampler at compile time.
var _ datasource.DocumentSampler = (*Adapter)(nil)
