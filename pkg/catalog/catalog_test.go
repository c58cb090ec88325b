package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-catalog/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-catalog/pkg/document"
	"github.com/ekaya-inc/ekaya-catalog/pkg/models"
	"github.com/ekaya-inc/ekaya-catalog/pkg/schema"
)

var errInjected = errors.New("injected failure")

// faultyFs fails the next n renames onto target.
type faultyFs struct {
	afero.Fs
	mu        sync.Mutex
	target    string
	remaining int
}

func (f *faultyFs) Rename(oldname, newname string) error {
	f.mu.Lock()
	if filepath.Clean(newname) == filepath.Clean(f.target) && f.remaining > 0 {
		f.remaining--
		f.mu.Unlock()
		return errInjected
	}
	f.mu.Unlock()
	return f.Fs.Rename(oldname, newname)
}

func (f *faultyFs) failNextRename(target string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.target = target
	f.remaining = 1
}

func newTestFs() afero.Fs {
	return afero.NewBasePathFs(afero.NewMemMapFs(), "/catalog")
}

func testProfile(db, table string, fields ...models.FieldProfile) *models.SourceProfile {
	ts := time.Date(2025, 10, 7, 11, 47, 9, 0, time.UTC)
	return &models.SourceProfile{
		SourceIdentity: models.SourceIdentity{DBName: db, TableName: table},
		DocumentCount:  100,
		ExtractedAt:    ts,
		UpdatedAt:      ts,
		Fields:         fields,
	}
}

func stringField(path string, values ...string) models.FieldProfile {
	vals := make([]document.Value, 0, len(values))
	for _, v := range values {
		vals = append(vals, document.String(v))
	}
	return models.FieldProfile{
		Path:             path,
		Name:             path,
		Type:             models.FieldTypeString,
		Required:         true,
		Enumerable:       true,
		PresenceRatio:    1.0,
		SampleValues:     vals,
		UniqueValues:     vals,
		EnrichmentStatus: models.EnrichmentStatusNotEnriched,
	}
}

func intField(path string) models.FieldProfile {
	return models.FieldProfile{
		Path:             path,
		Name:             path,
		Type:             models.FieldTypeInteger,
		PresenceRatio:    0.5,
		SampleValues:     []document.Value{document.Int(1), document.Int(2)},
		EnrichmentStatus: models.EnrichmentStatusNotEnriched,
	}
}

func readFile(t *testing.T, fs afero.Fs, name string) []byte {
	t.Helper()
	data, err := afero.ReadFile(fs, name)
	require.NoError(t, err)
	return data
}

func assertNoAuxiliaryFiles(t *testing.T, fs afero.Fs) {
	t.Helper()
	err := afero.Walk(fs, "/", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		assert.False(t, isAuxiliaryFile(path), "leftover file %s", path)
		return nil
	})
	require.NoError(t, err)
}

func newReader(t *testing.T, fs afero.Fs) *Reader {
	t.Helper()
	r, err := NewReader(fs, ReaderConfig{IndexTTL: time.Minute, RecordTTL: time.Minute}, zap.NewNop())
	require.NoError(t, err)
	return r
}

// ============================================================================
// Layout
// ============================================================================

func TestRecordPath(t *testing.T) {
	tests := []struct {
		db, table string
		want      string
	}{
		{"shop", "orders", "sources/shop/orders.yaml"},
		{"a/b", "c", "sources/a%2Fb/c.yaml"},
		{"..", ".", "sources/%2E%2E/%2E.yaml"},
		{"db", "my table", "sources/db/my%20table.yaml"},
		{"db", `x\y`, "sources/db/x%5Cy.yaml"},
		{"db", "events.2025", "sources/db/events.2025.yaml"},
	}
	for _, tt := range tests {
		got := RecordPath(models.SourceIdentity{DBName: tt.db, TableName: tt.table})
		assert.Equal(t, tt.want, got)
		assert.True(t, isLocalPath(got))
	}
}

func TestRecordPath_DistinctIdentitiesDoNotCollide(t *testing.T) {
	a := RecordPath(models.SourceIdentity{DBName: "a/b", TableName: "c"})
	b := RecordPath(models.SourceIdentity{DBName: "a", TableName: "b/c"})
	assert.NotEqual(t, a, b)
}

func TestDecodeCatalogIndex_RejectsEscapingPath(t *testing.T) {
	data := []byte("version: 1\nsources:\n  - db_name: a\n    table_name: b\n    path: ../../etc/passwd\n")
	_, err := DecodeCatalogIndex(data, IndexFileName)
	assert.ErrorIs(t, err, apperrors.ErrCorruptRecord)
}

func TestDecodeSourceProfile_Corrupt(t *testing.T) {
	for name, data := range map[string]string{
		"empty":       "",
		"not yaml":    "db_name: [unterminated",
		"no identity": "document_count: 3\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeSourceProfile([]byte(data), "x.yaml")
			assert.ErrorIs(t, err, apperrors.ErrCorruptRecord)
		})
	}
}

// ============================================================================
// Writer
// ============================================================================

func TestWriteSource_RoundTrip(t *testing.T) {
	fs := newTestFs()
	w := NewWriter(fs, zap.NewNop())
	ctx := context.Background()

	profile := testProfile("shop", "orders", stringField("status", "A", "B"), intField("qty"))
	require.NoError(t, w.WriteSourceWithRollback(ctx, profile, false))

	r := newReader(t, fs)
	got, err := r.GetSource(ctx, profile.Identity())
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, profile.Identity(), got.Identity())
	assert.Equal(t, profile.DocumentCount, got.DocumentCount)
	assert.True(t, profile.ExtractedAt.Equal(got.ExtractedAt))
	assert.Equal(t, profile.Fields, got.Fields)
	assertNoAuxiliaryFiles(t, fs)
}

func TestWriteSource_DoesNotModifyInput(t *testing.T) {
	w := NewWriter(newTestFs(), zap.NewNop())
	profile := testProfile("shop", "orders", stringField("status", "A"))
	before := profile.Clone()

	_, err := w.WriteSource(context.Background(), profile, false)
	require.NoError(t, err)
	assert.Equal(t, before, profile)
}

func TestWriteSource_Idempotent(t *testing.T) {
	fs := newTestFs()
	w := NewWriter(fs, zap.NewNop())
	ctx := context.Background()
	profile := testProfile("shop", "orders", stringField("status", "A", "B"))

	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return clock }

	first, err := w.WriteSource(ctx, profile, false)
	require.NoError(t, err)
	firstBytes := readFile(t, fs, RecordPath(profile.Identity()))

	clock = clock.Add(time.Hour)
	second, err := w.WriteSource(ctx, profile, false)
	require.NoError(t, err)
	secondBytes := readFile(t, fs, RecordPath(profile.Identity()))

	assert.NotEqual(t, first.UpdatedAt, second.UpdatedAt)
	second.UpdatedAt = first.UpdatedAt
	assert.Equal(t, first, second)

	// Identical bytes once updated_at is pinned.
	clock = clock.Add(-time.Hour)
	_, err = w.WriteSource(ctx, profile, false)
	require.NoError(t, err)
	assert.Equal(t, firstBytes, readFile(t, fs, RecordPath(profile.Identity())))
	assert.NotEqual(t, firstBytes, secondBytes)
}

func TestWriteSource_MergePreservesManualFields(t *testing.T) {
	fs := newTestFs()
	w := NewWriter(fs, zap.NewNop())
	ctx := context.Background()

	old := testProfile("shop", "orders", stringField("status", "A"), intField("legacy"), intField("qty"))
	old.Fields[0].Description = "Order lifecycle state"
	old.Fields[0].EnrichmentStatus = models.EnrichmentStatusEnriched
	old.Fields[1].Description = "Removed column"
	old.Fields[1].EnrichmentStatus = models.EnrichmentStatusPending
	_, err := w.WriteSource(ctx, old, false)
	require.NoError(t, err)

	fresh := testProfile("shop", "orders", stringField("status", "A", "B", "C"), intField("qty"), intField("added"))
	fresh.DocumentCount = 250
	written, err := w.WriteSource(ctx, fresh, true)
	require.NoError(t, err)

	require.Len(t, written.Fields, 3)

	status := written.FieldByPath("status")
	require.NotNil(t, status)
	assert.Equal(t, "Order lifecycle state", status.Description)
	assert.Equal(t, models.EnrichmentStatusEnriched, status.EnrichmentStatus)
	assert.Len(t, status.UniqueValues, 3, "freshly computed fields win")

	assert.Nil(t, written.FieldByPath("legacy"), "fields no longer observed are dropped")

	added := written.FieldByPath("added")
	require.NotNil(t, added)
	assert.Empty(t, added.Description)
	assert.Equal(t, models.EnrichmentStatusNotEnriched, added.EnrichmentStatus)

	assert.Equal(t, 250, written.DocumentCount)
}

func TestWriteSource_MergeWithoutPriorIsNoop(t *testing.T) {
	w := NewWriter(newTestFs(), zap.NewNop())
	profile := testProfile("shop", "orders", stringField("status", "A"))

	written, err := w.WriteSource(context.Background(), profile, true)
	require.NoError(t, err)
	assert.Equal(t, profile.Fields, written.Fields)
}

func TestWriteSource_MergeFailsOnCorruptPrior(t *testing.T) {
	fs := newTestFs()
	w := NewWriter(fs, zap.NewNop())
	profile := testProfile("shop", "orders", stringField("status", "A"))

	require.NoError(t, fs.MkdirAll("sources/shop", 0o755))
	require.NoError(t, afero.WriteFile(fs, RecordPath(profile.Identity()), []byte("{{{"), 0o644))

	_, err := w.WriteSource(context.Background(), profile, true)
	assert.ErrorIs(t, err, apperrors.ErrCorruptRecord)
}

func TestWriteSource_RejectsInvalidProfile(t *testing.T) {
	w := NewWriter(newTestFs(), zap.NewNop())
	ctx := context.Background()

	bad := testProfile("shop", "orders", intField("qty"))
	bad.Fields[0].PresenceRatio = 1.5
	_, err := w.WriteSource(ctx, bad, false)
	assert.Error(t, err)

	dup := testProfile("shop", "orders", intField("qty"), intField("qty"))
	_, err = w.WriteSource(ctx, dup, false)
	assert.Error(t, err)

	badType := testProfile("shop", "orders", intField("qty"))
	badType.Fields[0].Type = "decimal"
	_, err = w.WriteSource(ctx, badType, false)
	assert.Error(t, err)

	noTable := testProfile("shop", "", intField("qty"))
	_, err = w.WriteSource(ctx, noTable, false)
	assert.Error(t, err)
}

func profileDocs(t *testing.T, db, table string, raw ...map[string]any) *models.SourceProfile {
	t.Helper()
	p, err := schema.NewProfiler(10, zap.NewNop())
	require.NoError(t, err)
	docs := make([]document.Document, 0, len(raw))
	for _, m := range raw {
		docs = append(docs, document.DocumentFromMap(m))
	}
	return p.Profile(models.SourceIdentity{DBName: db, TableName: table}, docs)
}

func TestWriteSource_EmptyKeys(t *testing.T) {
	fs := newTestFs()
	w := NewWriter(fs, zap.NewNop())
	ctx := context.Background()

	profile := profileDocs(t, "shop", "orders",
		map[string]any{"status": "A", "": 1},
		map[string]any{"status": "B", "meta": map[string]any{"": 2}},
	)
	require.NoError(t, w.WriteSourceWithRollback(ctx, profile, false))

	got, err := newReader(t, fs).GetSource(ctx, profile.Identity())
	require.NoError(t, err)
	require.NotNil(t, got)

	top := got.FieldByPath("")
	require.NotNil(t, top)
	assert.Equal(t, "", top.Name)
	assert.Equal(t, models.FieldTypeInteger, top.Type)

	nested := got.FieldByPath("meta.")
	require.NotNil(t, nested)
	assert.Equal(t, "", nested.Name)
	assert.Equal(t, 0.5, nested.PresenceRatio)

	require.NotNil(t, got.FieldByPath("status"))
}

func TestWriteSource_InvalidUTF8(t *testing.T) {
	fs := newTestFs()
	w := NewWriter(fs, zap.NewNop())
	ctx := context.Background()

	profile := profileDocs(t, "shop", "orders",
		map[string]any{"s": "ok\xff\xfe", "k\xff": "v", "o": map[string]any{"x\xfe": "y"}},
	)
	require.NoError(t, w.WriteSourceWithRollback(ctx, profile, false))

	got, err := newReader(t, fs).GetSource(ctx, profile.Identity())
	require.NoError(t, err)
	require.NotNil(t, got)

	s := got.FieldByPath("s")
	require.NotNil(t, s)
	require.NotEmpty(t, s.SampleValues)
	assert.True(t, document.String("ok\uFFFD").Equal(s.SampleValues[0]))
	assert.NotNil(t, got.FieldByPath("k\uFFFD"))
	assert.NotNil(t, got.FieldByPath("o.x\uFFFD"))
	assertNoAuxiliaryFiles(t, fs)
}

func TestUpdateIndex_UpsertsEntries(t *testing.T) {
	fs := newTestFs()
	w := NewWriter(fs, zap.NewNop())
	ctx := context.Background()

	a := testProfile("shop", "orders")
	b := testProfile("shop", "customers")
	require.NoError(t, w.UpdateIndex(ctx, a))
	require.NoError(t, w.UpdateIndex(ctx, b))

	a.ExtractedAt = a.ExtractedAt.Add(time.Hour)
	require.NoError(t, w.UpdateIndex(ctx, a))

	idx, err := DecodeCatalogIndex(readFile(t, fs, IndexFileName), IndexFileName)
	require.NoError(t, err)
	assert.Equal(t, models.CatalogIndexVersion, idx.Version)
	require.Len(t, idx.Sources, 2)
	assert.Equal(t, "orders", idx.Sources[0].TableName)
	assert.True(t, idx.Sources[0].ExtractedAt.Equal(a.ExtractedAt))
	assert.Equal(t, RecordPath(a.Identity()), idx.Sources[0].Path)
	assert.False(t, idx.GeneratedAt.IsZero())
}

func TestDirectoryCreationIsIdempotent(t *testing.T) {
	fs := newTestFs()
	require.NoError(t, ensureDir(fs, "sources/shop"))
	require.NoError(t, ensureDir(fs, "sources/shop"))
	require.NoError(t, ensureDir(fs, "."))
}

// ============================================================================
// Rollback
// ============================================================================

func TestWriteSourceWithRollback_RestoresExistingSource(t *testing.T) {
	base := newTestFs()
	fs := &faultyFs{Fs: base}
	w := NewWriter(fs, zap.NewNop())
	ctx := context.Background()

	v1 := testProfile("shop", "orders", stringField("status", "A"))
	require.NoError(t, w.WriteSourceWithRollback(ctx, v1, false))

	recordBefore := readFile(t, fs, RecordPath(v1.Identity()))
	indexBefore := readFile(t, fs, IndexFileName)

	v2 := testProfile("shop", "orders", stringField("status", "A", "B"), intField("qty"))
	fs.failNextRename(IndexFileName)
	err := w.WriteSourceWithRollback(ctx, v2, true)
	require.Error(t, err)

	var rbErr *RollbackError
	require.ErrorAs(t, err, &rbErr)
	assert.Equal(t, v2.Identity(), rbErr.Identity)
	assert.NoError(t, rbErr.RestoreErr)
	assert.ErrorIs(t, err, errInjected)

	assert.Equal(t, recordBefore, readFile(t, fs, RecordPath(v1.Identity())))
	assert.Equal(t, indexBefore, readFile(t, fs, IndexFileName))
	assertNoAuxiliaryFiles(t, fs)
}

func TestWriteSourceWithRollback_RemovesNewSource(t *testing.T) {
	fs := &faultyFs{Fs: newTestFs()}
	w := NewWriter(fs, zap.NewNop())
	ctx := context.Background()

	existing := testProfile("shop", "customers", intField("id"))
	require.NoError(t, w.WriteSourceWithRollback(ctx, existing, false))
	indexBefore := readFile(t, fs, IndexFileName)

	fresh := testProfile("shop", "orders", intField("qty"))
	fs.failNextRename(IndexFileName)
	err := w.WriteSourceWithRollback(ctx, fresh, false)

	var rbErr *RollbackError
	require.ErrorAs(t, err, &rbErr)
	assert.NoError(t, rbErr.RestoreErr)

	exists, err := afero.Exists(fs, RecordPath(fresh.Identity()))
	require.NoError(t, err)
	assert.False(t, exists, "newly created record is removed")
	assert.Equal(t, indexBefore, readFile(t, fs, IndexFileName))

	// A source in a new database leaves no database directory behind; the
	// pre-existing sources directory stays.
	lead := testProfile("crm", "leads", intField("score"))
	fs.failNextRename(IndexFileName)
	require.Error(t, w.WriteSourceWithRollback(ctx, lead, false))

	exists, err = afero.DirExists(fs, filepath.Join(SourcesDir, "crm"))
	require.NoError(t, err)
	assert.False(t, exists, "newly created database directory is removed")
	exists, err = afero.DirExists(fs, filepath.Join(SourcesDir, "shop"))
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, indexBefore, readFile(t, fs, IndexFileName))
	assertNoAuxiliaryFiles(t, fs)
}

func TestWriteSourceWithRollback_EmptyCatalogStaysEmpty(t *testing.T) {
	fs := &faultyFs{Fs: newTestFs()}
	w := NewWriter(fs, zap.NewNop())

	profile := testProfile("shop", "orders", intField("qty"))
	fs.failNextRename(IndexFileName)
	err := w.WriteSourceWithRollback(context.Background(), profile, false)
	require.Error(t, err)

	for _, p := range []string{RecordPath(profile.Identity()), IndexFileName, SourcesDir} {
		exists, err := afero.Exists(fs, p)
		require.NoError(t, err)
		assert.False(t, exists, p)
	}
	empty, err := afero.IsEmpty(fs, "/")
	require.NoError(t, err)
	assert.True(t, empty, "catalog root is left empty")
}

func TestMissingDirs(t *testing.T) {
	fs := newTestFs()
	require.NoError(t, ensureDir(fs, "sources/shop"))

	dirs, err := missingDirs(fs, filepath.Join("sources", "crm"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("sources", "crm")}, dirs)

	dirs, err = missingDirs(fs, filepath.Join("sources", "shop"))
	require.NoError(t, err)
	assert.Empty(t, dirs)

	dirs, err = missingDirs(newTestFs(), filepath.Join("sources", "crm"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("sources", "crm"), "sources"}, dirs)
}

func TestWriteSourceWithRollback_RecordWriteFailure(t *testing.T) {
	fs := &faultyFs{Fs: newTestFs()}
	w := NewWriter(fs, zap.NewNop())
	ctx := context.Background()

	v1 := testProfile("shop", "orders", intField("qty"))
	require.NoError(t, w.WriteSourceWithRollback(ctx, v1, false))
	recordBefore := readFile(t, fs, RecordPath(v1.Identity()))

	fs.failNextRename(RecordPath(v1.Identity()))
	err := w.WriteSourceWithRollback(ctx, testProfile("shop", "orders", intField("qty"), intField("price")), false)
	assert.ErrorIs(t, err, errInjected)
	assert.Equal(t, recordBefore, readFile(t, fs, RecordPath(v1.Identity())))
	assertNoAuxiliaryFiles(t, fs)
}

func TestRollbackError_Message(t *testing.T) {
	err := &RollbackError{
		Identity: models.SourceIdentity{DBName: "shop", TableName: "orders"},
		Cause:    errInjected,
	}
	assert.Equal(t, "write of shop.orders rolled back: injected failure", err.Error())

	err.RestoreErr = errors.New("disk gone")
	assert.Contains(t, err.Error(), "restore incomplete: disk gone")
}

// ============================================================================
// Reader
// ============================================================================

func TestReader_EmptyCatalog(t *testing.T) {
	r := newReader(t, newTestFs())
	ctx := context.Background()

	n, err := r.CountSources(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	list, err := r.ListSources(ctx, "", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, list)

	got, err := r.GetSource(ctx, models.SourceIdentity{DBName: "a", TableName: "b"})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestReader_NotFoundAndMissingFile(t *testing.T) {
	fs := newTestFs()
	w := NewWriter(fs, zap.NewNop())
	ctx := context.Background()

	profile := testProfile("shop", "orders", intField("qty"))
	require.NoError(t, w.WriteSourceWithRollback(ctx, profile, false))

	r := newReader(t, fs)
	got, err := r.GetSource(ctx, models.SourceIdentity{DBName: "shop", TableName: "missing"})
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, fs.Remove(RecordPath(profile.Identity())))
	got, err = r.GetSource(ctx, profile.Identity())
	require.NoError(t, err)
	assert.Nil(t, got, "indexed but missing on disk is not found")

	detail, err := r.GetSourceDetail(ctx, profile.Identity())
	require.NoError(t, err)
	assert.Nil(t, detail)
}

func TestReader_CorruptRecordPropagates(t *testing.T) {
	fs := newTestFs()
	w := NewWriter(fs, zap.NewNop())
	ctx := context.Background()

	profile := testProfile("shop", "orders", intField("qty"))
	require.NoError(t, w.WriteSourceWithRollback(ctx, profile, false))
	require.NoError(t, afero.WriteFile(fs, RecordPath(profile.Identity()), []byte("fields: [oops"), 0o644))

	r := newReader(t, fs)
	_, err := r.GetSource(ctx, profile.Identity())
	assert.ErrorIs(t, err, apperrors.ErrCorruptRecord)
}

func TestReader_ListFiltersPaginatesAndSkipsBadRecords(t *testing.T) {
	fs := newTestFs()
	w := NewWriter(fs, zap.NewNop())
	ctx := context.Background()

	for _, id := range []models.SourceIdentity{
		{DBName: "shop", TableName: "a"},
		{DBName: "crm", TableName: "b"},
		{DBName: "shop", TableName: "c"},
		{DBName: "shop", TableName: "d"},
		{DBName: "shop", TableName: "e"},
	} {
		require.NoError(t, w.WriteSourceWithRollback(ctx, testProfile(id.DBName, id.TableName, intField("x")), false))
	}
	require.NoError(t, afero.WriteFile(fs, RecordPath(models.SourceIdentity{DBName: "shop", TableName: "d"}), []byte(""), 0o644))

	r := newReader(t, fs)

	n, err := r.CountSources(ctx, "shop")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	n, err = r.CountSources(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	page, err := r.ListSources(ctx, "shop", 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 1, "d is corrupt and skipped")
	assert.Equal(t, "c", page[0].TableName)

	all, err := r.ListSources(ctx, "shop", 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	past, err := r.ListSources(ctx, "shop", 10, 5)
	require.NoError(t, err)
	assert.Empty(t, past)
}

func TestReader_ListLoadsOnlyPageRecords(t *testing.T) {
	fs := newTestFs()
	w := NewWriter(fs, zap.NewNop())
	ctx := context.Background()

	for _, table := range []string{"a", "b", "c"} {
		require.NoError(t, w.WriteSourceWithRollback(ctx, testProfile("shop", table, intField("x")), false))
	}

	r := newReader(t, fs)
	_, err := r.ListSources(ctx, "shop", 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, r.recordCache.Size())

	_, err = r.CountSources(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, r.recordCache.Size())
}

func TestReader_CachesUntilInvalidated(t *testing.T) {
	fs := newTestFs()
	w := NewWriter(fs, zap.NewNop())
	ctx := context.Background()
	r := newReader(t, fs)

	n, err := r.CountSources(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, w.WriteSourceWithRollback(ctx, testProfile("shop", "orders", intField("qty")), false))

	n, err = r.CountSources(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 0, n, "stale within the TTL window")

	r.InvalidateCache()
	n, err = r.CountSources(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReader_ReturnsCopies(t *testing.T) {
	fs := newTestFs()
	w := NewWriter(fs, zap.NewNop())
	ctx := context.Background()
	profile := testProfile("shop", "orders", stringField("status", "A"))
	require.NoError(t, w.WriteSourceWithRollback(ctx, profile, false))

	r := newReader(t, fs)
	first, err := r.GetSource(ctx, profile.Identity())
	require.NoError(t, err)
	first.Fields[0].Description = "mutated"

	second, err := r.GetSource(ctx, profile.Identity())
	require.NoError(t, err)
	assert.Empty(t, second.Fields[0].Description)
}

func TestReader_GetSourceDetail(t *testing.T) {
	fs := newTestFs()
	w := NewWriter(fs, zap.NewNop())
	ctx := context.Background()

	profile := testProfile("shop", "orders", stringField("status", "A"), stringField("region", "EU"), intField("qty"))
	require.NoError(t, w.WriteSourceWithRollback(ctx, profile, false))

	r := newReader(t, fs)
	detail, err := r.GetSourceDetail(ctx, profile.Identity())
	require.NoError(t, err)
	require.NotNil(t, detail)

	assert.Equal(t, 3, detail.TotalFields)
	assert.Equal(t, 2, detail.RequiredFields)
	assert.Equal(t, 2, detail.EnumerableFields)
	assert.Equal(t, map[models.FieldType]int{
		models.FieldTypeString:  2,
		models.FieldTypeInteger: 1,
	}, detail.TypeHistogram)
}

func TestReader_CorruptIndexIsAnError(t *testing.T) {
	fs := newTestFs()
	require.NoError(t, afero.WriteFile(fs, IndexFileName, []byte("sources: {{"), 0o644))

	r := newReader(t, fs)
	_, err := r.CountSources(context.Background(), "")
	assert.ErrorIs(t, err, apperrors.ErrCorruptRecord)
}

// ============================================================================
// Watcher
// ============================================================================

func TestWatcher_InvalidatesOnExternalEdit(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewOsFs(dir)
	require.NoError(t, err)

	w := NewWriter(fs, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	profile := testProfile("shop", "orders", intField("qty"))
	require.NoError(t, w.WriteSourceWithRollback(ctx, profile, false))

	var mu sync.Mutex
	calls := 0
	watcher, err := NewWatcher(dir, 20*time.Millisecond, func() {
		mu.Lock()
		calls++
		mu.Unlock()
	}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, watcher.Start(ctx))
	defer watcher.Stop()

	// Temp and backup files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.yaml.bak"), []byte("x"), 0o644))
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 0, calls)
	mu.Unlock()

	recordFile := filepath.Join(dir, filepath.FromSlash(RecordPath(profile.Identity())))
	data, err := os.ReadFile(recordFile)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(recordFile, append(data, []byte("\n")...), 0o644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 1
	}, 2*time.Second, 10*time.Millisecond)
}
