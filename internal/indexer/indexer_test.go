package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/face-finder/internal/bundle"
	"github.com/kozaktomas/face-finder/internal/embedding"
	"github.com/kozaktomas/face-finder/internal/embedding/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupFolder creates empty image files; the mock provider never reads them.
func setupFolder(t *testing.T, names ...string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "photos")
	for _, name := range names {
		addFile(t, dir, name)
	}
	return dir
}

func addFile(t *testing.T, dir, name string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750))
	require.NoError(t, os.WriteFile(path, []byte("img"), 0600))
}

func bundleDir(folder string) string {
	return bundle.DefaultDir(folder, "_index")
}

func readFile(t *testing.T, dir, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	return data
}

func TestScan(t *testing.T) {
	folder := setupFolder(t, "b.png", "a.JPG", "sub/c.bmp", "notes.txt", "e.jpeg", "f.gif", "sub/deeper/g.Jpeg")

	paths, err := NewBuilder(mock.NewProvider()).Scan(folder)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(folder, "a.JPG"),
		filepath.Join(folder, "b.png"),
		filepath.Join(folder, "e.jpeg"),
		filepath.Join(folder, "sub", "c.bmp"),
		filepath.Join(folder, "sub", "deeper", "g.Jpeg"),
	}, paths)
}

func TestScan_CustomExtensions(t *testing.T) {
	folder := setupFolder(t, "a.jpg", "b.webp")

	paths, err := NewBuilder(mock.NewProvider(), WithExtensions([]string{".WEBP"})).Scan(folder)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(folder, "b.webp")}, paths)
}

func TestScan_NotADirectory(t *testing.T) {
	folder := setupFolder(t, "a.jpg")

	_, err := NewBuilder(mock.NewProvider()).Scan(filepath.Join(folder, "a.jpg"))
	require.Error(t, err)

	_, err = NewBuilder(mock.NewProvider()).Scan(filepath.Join(folder, "missing"))
	require.Error(t, err)
}

func TestBuild_EndToEnd(t *testing.T) {
	folder := setupFolder(t, "a.jpg", "b.jpg", "c.jpg")
	provider := mock.NewProvider()
	provider.SetFaces("a.jpg", []float32{1, 0, 0})
	provider.SetFaces("b.jpg", []float32{0, 1, 0}, []float32{0, 0, 1})

	var progress [][2]int
	builder := NewBuilder(provider, WithProgress(func(done, total int) {
		progress = append(progress, [2]int{done, total})
	}))

	report, err := builder.Build(context.Background(), folder, bundle.New(bundleDir(folder)))
	require.NoError(t, err)
	assert.Equal(t, &Report{Considered: 3, Pending: 3, Processed: 3, Skipped: 1, FacesAdded: 3}, report)
	assert.Equal(t, StatusComplete, report.Status())
	assert.Equal(t, [][2]int{{0, 3}, {1, 3}, {2, 3}, {3, 3}}, progress)

	loaded, err := bundle.Load(bundleDir(folder))
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Index.Len())
	assert.Equal(t, []bundle.FaceRecord{
		{SourcePath: filepath.Join(folder, "a.jpg"), FaceOrdinal: 0},
		{SourcePath: filepath.Join(folder, "b.jpg"), FaceOrdinal: 0},
		{SourcePath: filepath.Join(folder, "b.jpg"), FaceOrdinal: 1},
	}, loaded.Ledger.Records())
	assert.Equal(t, []string{
		filepath.Join(folder, "a.jpg"),
		filepath.Join(folder, "b.jpg"),
		filepath.Join(folder, "c.jpg"),
	}, loaded.Progress.Paths())
	assert.Equal(t, []float32{0, 0, 1}, loaded.Index.Vector(2))
}

func TestBuild_IdempotentResume(t *testing.T) {
	folder := setupFolder(t, "a.jpg", "b.jpg")
	provider := mock.NewProvider()
	provider.SetFaces("a.jpg", []float32{1, 0})
	provider.SetFaces("b.jpg", []float32{0, 1})
	builder := NewBuilder(provider)
	dir := bundleDir(folder)

	_, err := builder.Build(context.Background(), folder, bundle.New(dir))
	require.NoError(t, err)
	vectors := readFile(t, dir, bundle.VectorFile)
	ledger := readFile(t, dir, bundle.LedgerFile)
	progress := readFile(t, dir, bundle.ProgressFile)
	calls := len(provider.Calls())

	resumed, err := bundle.Load(dir)
	require.NoError(t, err)
	report, err := builder.Build(context.Background(), folder, resumed)
	require.NoError(t, err)

	assert.Equal(t, StatusNothingToDo, report.Status())
	assert.Equal(t, 0, report.Processed)
	assert.Len(t, provider.Calls(), calls)
	assert.Equal(t, vectors, readFile(t, dir, bundle.VectorFile))
	assert.Equal(t, ledger, readFile(t, dir, bundle.LedgerFile))
	assert.Equal(t, progress, readFile(t, dir, bundle.ProgressFile))
}

func TestBuild_MonotonicGrowth(t *testing.T) {
	folder := setupFolder(t, "a.jpg", "m.jpg")
	provider := mock.NewProvider()
	provider.SetFaces("a.jpg", []float32{1, 0})
	provider.SetFaces("m.jpg", []float32{0, 1}, []float32{1, 1})
	builder := NewBuilder(provider)
	dir := bundleDir(folder)

	_, err := builder.Build(context.Background(), folder, bundle.New(dir))
	require.NoError(t, err)
	before, err := bundle.Load(dir)
	require.NoError(t, err)

	// New images sort both before and after the existing ones.
	addFile(t, folder, "0.jpg")
	addFile(t, folder, "z/z.jpg")
	provider.SetFaces("0.jpg", []float32{2, 2})
	provider.SetFaces("z.jpg", []float32{3, 3}, []float32{4, 4}, []float32{5, 5})

	report, err := builder.Build(context.Background(), folder, before)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 4, report.FacesAdded)

	after, err := bundle.Load(dir)
	require.NoError(t, err)
	require.Equal(t, 3+4, after.Ledger.Len())
	require.Equal(t, 3+4, after.Index.Len())

	oldRecords := []bundle.FaceRecord{
		{SourcePath: filepath.Join(folder, "a.jpg"), FaceOrdinal: 0},
		{SourcePath: filepath.Join(folder, "m.jpg"), FaceOrdinal: 0},
		{SourcePath: filepath.Join(folder, "m.jpg"), FaceOrdinal: 1},
	}
	assert.Equal(t, oldRecords, after.Ledger.Records()[:3])
	assert.Equal(t, []float32{1, 0}, after.Index.Vector(0))
	assert.Equal(t, []float32{0, 1}, after.Index.Vector(1))
	assert.Equal(t, []float32{1, 1}, after.Index.Vector(2))

	// New entries follow in sorted path order.
	rec, _ := after.Record(3)
	assert.Equal(t, filepath.Join(folder, "0.jpg"), rec.SourcePath)
	rec, _ = after.Record(6)
	assert.Equal(t, bundle.FaceRecord{SourcePath: filepath.Join(folder, "z", "z.jpg"), FaceOrdinal: 2}, rec)
}

func TestBuild_DimensionMismatch(t *testing.T) {
	folder := setupFolder(t, "a.jpg", "b.jpg", "c.jpg")
	provider := mock.NewProvider()
	provider.SetFaces("a.jpg", []float32{1, 0})
	provider.SetFaces("b.jpg", []float32{1, 0, 0})
	provider.SetFaces("c.jpg", []float32{0, 1})
	dir := bundleDir(folder)

	report, err := NewBuilder(provider).Build(context.Background(), folder, bundle.New(dir))
	require.ErrorIs(t, err, bundle.ErrDimensionMismatch)
	assert.True(t, report.Failed)
	assert.Equal(t, StatusFailed, report.Status())
	assert.Equal(t, 1, report.Processed)

	loaded, err := bundle.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Index.Len())
	assert.Equal(t, 2, loaded.Index.Dim())
	assert.Equal(t, []string{filepath.Join(folder, "a.jpg")}, loaded.Progress.Paths())
}

func TestBuild_Interruption(t *testing.T) {
	folder := setupFolder(t, "1.jpg", "2.jpg", "3.jpg", "4.jpg", "5.jpg")
	provider := mock.NewProvider()
	provider.SetFaces("1.jpg", []float32{1, 0})
	provider.SetFaces("2.jpg", []float32{0, 1}, []float32{1, 1})
	provider.SetFaces("3.jpg", []float32{2, 0})
	provider.SetFaces("4.jpg", []float32{0, 2})
	dir := bundleDir(folder)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	provider.OnExtract = func(path string) {
		// Stop requested while the second image is in flight.
		if filepath.Base(path) == "2.jpg" {
			cancel()
		}
	}

	report, err := NewBuilder(provider).Build(ctx, folder, bundle.New(dir))
	require.NoError(t, err)
	assert.True(t, report.Interrupted)
	assert.Equal(t, StatusInterrupted, report.Status())
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 3, report.Remaining())

	loaded, err := bundle.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Progress.Len())
	assert.Equal(t, 3, loaded.Ledger.Len())
	assert.Equal(t, 3, loaded.Index.Len())

	provider.OnExtract = nil
	report, err = NewBuilder(provider).Build(context.Background(), folder, loaded)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, report.Status())
	assert.Equal(t, 3, report.Pending)
	assert.Equal(t, 3, report.Processed)

	final, err := bundle.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 5, final.Progress.Len())
	assert.Equal(t, 5, final.Index.Len())
}

func TestBuild_AlreadyCancelled(t *testing.T) {
	folder := setupFolder(t, "a.jpg")
	provider := mock.NewProvider()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := NewBuilder(provider).Build(ctx, folder, bundle.New(bundleDir(folder)))
	require.NoError(t, err)
	assert.True(t, report.Interrupted)
	assert.Equal(t, 0, report.Processed)
	assert.Empty(t, provider.Calls())
}

func TestBuild_ProviderErrorAborts(t *testing.T) {
	folder := setupFolder(t, "a.jpg", "b.jpg", "c.jpg")
	provider := mock.NewProvider()
	provider.SetFaces("a.jpg", []float32{1, 0})
	provider.SetFaces("c.jpg", []float32{0, 1})
	provider.SetError("b.jpg", errors.New("connection refused"))
	dir := bundleDir(folder)

	report, err := NewBuilder(provider).Build(context.Background(), folder, bundle.New(dir))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, StatusFailed, report.Status())
	assert.Equal(t, 1, report.Processed)

	loaded, err := bundle.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(folder, "a.jpg")}, loaded.Progress.Paths())

	provider.SetError("b.jpg", nil)
	report, err = NewBuilder(provider).Build(context.Background(), folder, loaded)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed)
}

func TestBuild_UnreadableImageIsMarkedProcessed(t *testing.T) {
	folder := setupFolder(t, "a.jpg", "broken.jpg")
	provider := mock.NewProvider()
	provider.SetFaces("a.jpg", []float32{1, 0})
	provider.SetError("broken.jpg", embedding.ErrUnreadableImage)
	builder := NewBuilder(provider)
	dir := bundleDir(folder)

	report, err := builder.Build(context.Background(), folder, bundle.New(dir))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Unreadable)

	loaded, err := bundle.Load(dir)
	require.NoError(t, err)
	assert.True(t, loaded.Progress.Has(filepath.Join(folder, "broken.jpg")))
	assert.Equal(t, 1, loaded.Ledger.Len())

	report, err = builder.Build(context.Background(), folder, loaded)
	require.NoError(t, err)
	assert.Equal(t, StatusNothingToDo, report.Status())
}

func TestBuild_EmptyFolder(t *testing.T) {
	folder := setupFolder(t, "readme.txt")
	dir := bundleDir(folder)

	report, err := NewBuilder(mock.NewProvider()).Build(context.Background(), folder, bundle.New(dir))
	require.NoError(t, err)
	assert.Equal(t, StatusNothingToDo, report.Status())

	_, err = bundle.Load(dir)
	require.ErrorIs(t, err, bundle.ErrBundleNotFound)
}

func TestReport_Status(t *testing.T) {
	tests := []struct {
		name   string
		report Report
		want   Status
	}{
		{"nothing pending", Report{Considered: 4}, StatusNothingToDo},
		{"all done", Report{Pending: 2, Processed: 2}, StatusComplete},
		{"interrupted", Report{Pending: 2, Processed: 1, Interrupted: true}, StatusInterrupted},
		{"failed wins", Report{Pending: 2, Interrupted: true, Failed: true}, StatusFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.report.Status())
		})
	}
}
