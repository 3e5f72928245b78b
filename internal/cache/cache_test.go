package cache

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"artcache/internal/artifact"
)

// fakeArtifact is an in-memory artifact with controllable failures.
type fakeArtifact struct {
	key            string
	fingerprint    string
	data           string
	fingerprintErr error
	openErr        error
	opens          atomic.Int32
}

func (a *fakeArtifact) Key() string { return a.key }

func (a *fakeArtifact) Fingerprint(ctx context.Context) (string, error) {
	if a.fingerprintErr != nil {
		return "", a.fingerprintErr
	}
	return a.fingerprint, nil
}

func (a *fakeArtifact) Open(ctx context.Context) (io.ReadCloser, error) {
	a.opens.Add(1)
	if a.openErr != nil {
		return nil, a.openErr
	}
	return io.NopCloser(strings.NewReader(a.data)), nil
}

// countingDownloader records the key batches it was asked to download.
type countingDownloader struct {
	mu      sync.Mutex
	batches [][]string
	err     error
}

func (d *countingDownloader) DownloadAll(ctx context.Context, artifacts []artifact.Artifact) error {
	keys := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		keys = append(keys, a.Key())
	}
	d.mu.Lock()
	d.batches = append(d.batches, keys)
	d.mu.Unlock()
	return d.err
}

func (d *countingDownloader) batchCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.batches)
}

func createTestCache(t *testing.T, opts ...Option) (*ArtifactCache, string) {
	t.Helper()
	dir := t.TempDir()
	c := New("test-cache", dir, opts...)
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("failed to initialize cache: %v", err)
	}
	return c, dir
}

func mustReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

func TestPutAllCopiesNewArtifacts(t *testing.T) {
	ctx := context.Background()
	c, _ := createTestCache(t)

	a := &fakeArtifact{key: "src/libfoo.jar", fingerprint: "v1", data: "foo-bytes"}
	b := &fakeArtifact{key: "src/libbar.jar", fingerprint: "v1", data: "bar-bytes"}

	if err := c.PutAll(ctx, []artifact.Artifact{a, b}, false); err != nil {
		t.Fatalf("PutAll failed: %v", err)
	}

	path, ok := c.Get("src/libfoo.jar")
	if !ok {
		t.Fatalf("expected src/libfoo.jar to be cached")
	}
	if got := mustReadFile(t, path); got != "foo-bytes" {
		t.Errorf("cached content = %q, want %q", got, "foo-bytes")
	}
	if filepath.Ext(path) != ".jar" {
		t.Errorf("cached file %s should keep the .jar extension", path)
	}

	keys := c.Keys()
	if len(keys) != 2 {
		t.Fatalf("expected 2 cached keys, got %d: %v", len(keys), keys)
	}
}

func TestPutAllIsIdempotent(t *testing.T) {
	ctx := context.Background()
	downloader := &countingDownloader{}
	c, _ := createTestCache(t, WithDownloader(downloader))

	a := &fakeArtifact{key: "a.bin", fingerprint: "v1", data: "aaa"}
	b := &fakeArtifact{key: "b.bin", fingerprint: "v1", data: "bbb"}
	batch := []artifact.Artifact{a, b}

	if err := c.PutAll(ctx, batch, false); err != nil {
		t.Fatalf("first PutAll failed: %v", err)
	}
	if downloader.batchCount() != 1 {
		t.Fatalf("expected 1 download batch, got %d", downloader.batchCount())
	}
	opensAfterFirst := a.opens.Load() + b.opens.Load()

	if err := c.PutAll(ctx, batch, false); err != nil {
		t.Fatalf("second PutAll failed: %v", err)
	}
	if downloader.batchCount() != 1 {
		t.Errorf("unchanged batch should not trigger another download, got %d batches", downloader.batchCount())
	}
	if opens := a.opens.Load() + b.opens.Load(); opens != opensAfterFirst {
		t.Errorf("unchanged batch should not be copied again: opens %d -> %d", opensAfterFirst, opens)
	}
}

func TestPutAllFetchesEachArtifactAtMostOnce(t *testing.T) {
	ctx := context.Background()
	c, _ := createTestCache(t)

	artifacts := make([]artifact.Artifact, 0, 20)
	fakes := make([]*fakeArtifact, 0, 20)
	for i := range 20 {
		a := &fakeArtifact{
			key:         "pkg/file" + string(rune('a'+i)) + ".so",
			fingerprint: "v1",
			data:        "content",
		}
		fakes = append(fakes, a)
		artifacts = append(artifacts, a)
	}

	if err := c.PutAll(ctx, artifacts, false); err != nil {
		t.Fatalf("PutAll failed: %v", err)
	}
	for _, a := range fakes {
		if opens := a.opens.Load(); opens != 1 {
			t.Errorf("artifact %s opened %d times, want 1", a.key, opens)
		}
	}
}

func TestPutAllReplacesChangedArtifact(t *testing.T) {
	ctx := context.Background()
	c, _ := createTestCache(t)

	a := &fakeArtifact{key: "app.zip", fingerprint: "v1", data: "old"}
	if err := c.PutAll(ctx, []artifact.Artifact{a}, false); err != nil {
		t.Fatalf("PutAll failed: %v", err)
	}
	oldPath, _ := c.Get("app.zip")

	changed := &fakeArtifact{key: "app.zip", fingerprint: "v2", data: "new"}
	if err := c.PutAll(ctx, []artifact.Artifact{changed}, false); err != nil {
		t.Fatalf("PutAll failed: %v", err)
	}

	newPath, ok := c.Get("app.zip")
	if !ok {
		t.Fatalf("expected app.zip to remain cached")
	}
	if newPath != oldPath {
		t.Errorf("path should be stable across versions: %s != %s", newPath, oldPath)
	}
	if got := mustReadFile(t, newPath); got != "new" {
		t.Errorf("cached content = %q, want %q", got, "new")
	}
}

func TestPutAllEvictsMissingWhenRequested(t *testing.T) {
	ctx := context.Background()
	c, _ := createTestCache(t)

	a := &fakeArtifact{key: "keep.jar", fingerprint: "v1", data: "keep"}
	b := &fakeArtifact{key: "drop.jar", fingerprint: "v1", data: "drop"}
	if err := c.PutAll(ctx, []artifact.Artifact{a, b}, false); err != nil {
		t.Fatalf("PutAll failed: %v", err)
	}
	dropPath, _ := c.Get("drop.jar")

	if err := c.PutAll(ctx, []artifact.Artifact{a}, true); err != nil {
		t.Fatalf("PutAll with removeMissing failed: %v", err)
	}

	if _, ok := c.Get("drop.jar"); ok {
		t.Errorf("drop.jar should have been evicted")
	}
	if _, err := os.Stat(dropPath); !os.IsNotExist(err) {
		t.Errorf("evicted file %s should be deleted, stat err = %v", dropPath, err)
	}
	if _, ok := c.Get("keep.jar"); !ok {
		t.Errorf("keep.jar should still be cached")
	}
}

func TestPutAllKeepsMissingByDefault(t *testing.T) {
	ctx := context.Background()
	c, _ := createTestCache(t)

	a := &fakeArtifact{key: "a.jar", fingerprint: "v1", data: "a"}
	b := &fakeArtifact{key: "b.jar", fingerprint: "v1", data: "b"}
	if err := c.PutAll(ctx, []artifact.Artifact{a, b}, false); err != nil {
		t.Fatalf("PutAll failed: %v", err)
	}

	if err := c.PutAll(ctx, []artifact.Artifact{a}, false); err != nil {
		t.Fatalf("partial PutAll failed: %v", err)
	}
	if _, ok := c.Get("b.jar"); !ok {
		t.Errorf("b.jar should survive a partial batch without removeMissing")
	}
}

func TestPutAllSkipsVanishedArtifacts(t *testing.T) {
	ctx := context.Background()
	c, _ := createTestCache(t)

	good := &fakeArtifact{key: "good.jar", fingerprint: "v1", data: "good"}
	gone := &fakeArtifact{
		key:            "gone.jar",
		fingerprintErr: artifact.NewNotFoundError("gone.jar", nil),
	}

	if err := c.PutAll(ctx, []artifact.Artifact{good, gone}, false); err != nil {
		t.Fatalf("PutAll failed: %v", err)
	}
	if _, ok := c.Get("good.jar"); !ok {
		t.Errorf("good.jar should be cached despite a vanished sibling")
	}
	if _, ok := c.Get("gone.jar"); ok {
		t.Errorf("gone.jar should not be cached")
	}
}

func TestPutAllPartialCopyFailureIsContained(t *testing.T) {
	ctx := context.Background()
	c, _ := createTestCache(t)

	good1 := &fakeArtifact{key: "one.jar", fingerprint: "v1", data: "one"}
	bad := &fakeArtifact{key: "two.jar", fingerprint: "v1", openErr: errors.New("connection reset")}
	good2 := &fakeArtifact{key: "three.jar", fingerprint: "v1", data: "three"}

	if err := c.PutAll(ctx, []artifact.Artifact{good1, bad, good2}, false); err != nil {
		t.Fatalf("PutAll should tolerate individual copy failures, got: %v", err)
	}

	if _, ok := c.Get("one.jar"); !ok {
		t.Errorf("one.jar should be cached")
	}
	if _, ok := c.Get("three.jar"); !ok {
		t.Errorf("three.jar should be cached")
	}
	if _, ok := c.Get("two.jar"); ok {
		t.Errorf("two.jar copy failed, it must not appear in the index")
	}
}

func TestPutAllFailedUpdateKeepsPreviousVersion(t *testing.T) {
	ctx := context.Background()
	c, _ := createTestCache(t)

	a := &fakeArtifact{key: "lib.jar", fingerprint: "v1", data: "v1-bytes"}
	if err := c.PutAll(ctx, []artifact.Artifact{a}, false); err != nil {
		t.Fatalf("PutAll failed: %v", err)
	}

	broken := &fakeArtifact{key: "lib.jar", fingerprint: "v2", openErr: errors.New("read failed")}
	if err := c.PutAll(ctx, []artifact.Artifact{broken}, false); err != nil {
		t.Fatalf("PutAll should tolerate the failed update, got: %v", err)
	}

	path, ok := c.Get("lib.jar")
	if !ok {
		t.Fatalf("lib.jar should still be cached after failed update")
	}
	if got := mustReadFile(t, path); got != "v1-bytes" {
		t.Errorf("cached content = %q, want previous version %q", got, "v1-bytes")
	}

	// The next sync sees the stale fingerprint and retries.
	fixed := &fakeArtifact{key: "lib.jar", fingerprint: "v2", data: "v2-bytes"}
	if err := c.PutAll(ctx, []artifact.Artifact{fixed}, false); err != nil {
		t.Fatalf("retry PutAll failed: %v", err)
	}
	path, _ = c.Get("lib.jar")
	if got := mustReadFile(t, path); got != "v2-bytes" {
		t.Errorf("cached content after retry = %q, want %q", got, "v2-bytes")
	}
}

func TestPutAllDownloadFailureLeavesStateIntact(t *testing.T) {
	ctx := context.Background()
	downloader := &countingDownloader{}
	c, _ := createTestCache(t, WithDownloader(downloader))

	a := &fakeArtifact{key: "a.jar", fingerprint: "v1", data: "a"}
	if err := c.PutAll(ctx, []artifact.Artifact{a}, false); err != nil {
		t.Fatalf("PutAll failed: %v", err)
	}

	downloader.err = errors.New("network down")
	changed := &fakeArtifact{key: "a.jar", fingerprint: "v2", data: "changed"}
	if err := c.PutAll(ctx, []artifact.Artifact{changed}, false); err != nil {
		t.Fatalf("PutAll should absorb a batch download failure, got: %v", err)
	}

	path, ok := c.Get("a.jar")
	if !ok {
		t.Fatalf("a.jar should still be cached")
	}
	if got := mustReadFile(t, path); got != "a" {
		t.Errorf("cached content = %q, want untouched %q", got, "a")
	}
	if opens := changed.opens.Load(); opens != 0 {
		t.Errorf("no copies should run after a failed batch download, got %d opens", opens)
	}
}

func TestPutAllCanceledContext(t *testing.T) {
	c, _ := createTestCache(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := &fakeArtifact{key: "a.jar", fingerprint: "v1", data: "a"}
	err := c.PutAll(ctx, []artifact.Artifact{a}, false)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestGetUnknownKey(t *testing.T) {
	c, _ := createTestCache(t)
	if path, ok := c.Get("never/seen.jar"); ok {
		t.Errorf("unknown key returned path %q", path)
	}
}

func TestClearEmptiesCacheAndDirectory(t *testing.T) {
	ctx := context.Background()
	c, dir := createTestCache(t)

	a := &fakeArtifact{key: "a.jar", fingerprint: "v1", data: "a"}
	b := &fakeArtifact{key: "b.jar", fingerprint: "v1", data: "b"}
	if err := c.PutAll(ctx, []artifact.Artifact{a, b}, false); err != nil {
		t.Fatalf("PutAll failed: %v", err)
	}

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	if keys := c.Keys(); len(keys) != 0 {
		t.Errorf("expected no keys after Clear, got %v", keys)
	}
	files, err := listCacheFiles(dir)
	if err != nil {
		t.Fatalf("listCacheFiles failed: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("expected empty cache directory after Clear, got %v", files)
	}
}

func TestInitializeRecoversPersistedState(t *testing.T) {
	ctx := context.Background()
	c, dir := createTestCache(t)

	a := &fakeArtifact{key: "a.jar", fingerprint: "v1", data: "a"}
	if err := c.PutAll(ctx, []artifact.Artifact{a}, false); err != nil {
		t.Fatalf("PutAll failed: %v", err)
	}

	// A new instance over the same directory sees the same state.
	restarted := New("test-cache", dir)
	if err := restarted.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if _, ok := restarted.Get("a.jar"); !ok {
		t.Errorf("a.jar should survive a restart")
	}
}

func TestInitializeDropsEntriesWithMissingFiles(t *testing.T) {
	ctx := context.Background()
	c, dir := createTestCache(t)

	a := &fakeArtifact{key: "a.jar", fingerprint: "v1", data: "a"}
	b := &fakeArtifact{key: "b.jar", fingerprint: "v1", data: "b"}
	if err := c.PutAll(ctx, []artifact.Artifact{a, b}, false); err != nil {
		t.Fatalf("PutAll failed: %v", err)
	}

	// Delete a cached file out of band, as a crash or external cleanup would.
	path, _ := c.Get("a.jar")
	if err := os.Remove(path); err != nil {
		t.Fatalf("failed to remove cached file: %v", err)
	}

	restarted := New("test-cache", dir)
	if err := restarted.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if _, ok := restarted.Get("a.jar"); ok {
		t.Errorf("a.jar lost its backing file, it must not be served")
	}
	if _, ok := restarted.Get("b.jar"); !ok {
		t.Errorf("b.jar should still be cached")
	}
}

func TestInitializeSweepsUntrackedFiles(t *testing.T) {
	ctx := context.Background()
	c, dir := createTestCache(t)

	a := &fakeArtifact{key: "a.jar", fingerprint: "v1", data: "a"}
	if err := c.PutAll(ctx, []artifact.Artifact{a}, false); err != nil {
		t.Fatalf("PutAll failed: %v", err)
	}

	stray := filepath.Join(dir, "leftover.tmp")
	if err := os.WriteFile(stray, []byte("junk"), 0o644); err != nil {
		t.Fatalf("failed to write stray file: %v", err)
	}

	restarted := New("test-cache", dir)
	if err := restarted.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if _, err := os.Stat(stray); !os.IsNotExist(err) {
		t.Errorf("untracked file should be swept on initialize, stat err = %v", err)
	}
	if _, ok := restarted.Get("a.jar"); !ok {
		t.Errorf("tracked file should survive the sweep")
	}
}

func TestInitializeClearsWhenDescriptorMissing(t *testing.T) {
	ctx := context.Background()
	c, dir := createTestCache(t)

	a := &fakeArtifact{key: "a.jar", fingerprint: "v1", data: "a"}
	if err := c.PutAll(ctx, []artifact.Artifact{a}, false); err != nil {
		t.Fatalf("PutAll failed: %v", err)
	}
	path, _ := c.Get("a.jar")

	if err := os.Remove(filepath.Join(dir, indexFileName)); err != nil {
		t.Fatalf("failed to remove descriptor: %v", err)
	}

	restarted := New("test-cache", dir)
	if err := restarted.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if keys := restarted.Keys(); len(keys) != 0 {
		t.Errorf("expected empty cache after lost descriptor, got %v", keys)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("orphaned file should be deleted, stat err = %v", err)
	}
}

func TestInitializeClearsWhenDescriptorCorrupt(t *testing.T) {
	ctx := context.Background()
	c, dir := createTestCache(t)

	a := &fakeArtifact{key: "a.jar", fingerprint: "v1", data: "a"}
	if err := c.PutAll(ctx, []artifact.Artifact{a}, false); err != nil {
		t.Fatalf("PutAll failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, indexFileName), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("failed to corrupt descriptor: %v", err)
	}

	restarted := New("test-cache", dir)
	if err := restarted.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if keys := restarted.Keys(); len(keys) != 0 {
		t.Errorf("expected empty cache after corrupt descriptor, got %v", keys)
	}
}

func TestInitializeFreshDirectory(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "does-not-exist-yet")

	c := New("test-cache", dir)
	if err := c.Initialize(ctx); err != nil {
		t.Fatalf("Initialize on fresh directory failed: %v", err)
	}
	if keys := c.Keys(); len(keys) != 0 {
		t.Errorf("fresh cache should be empty, got %v", keys)
	}
}

func TestGetArtifact(t *testing.T) {
	ctx := context.Background()
	c, _ := createTestCache(t)

	a := &fakeArtifact{key: "a.jar", fingerprint: "v1", data: "a"}
	if err := c.PutAll(ctx, []artifact.Artifact{a}, false); err != nil {
		t.Fatalf("PutAll failed: %v", err)
	}

	if _, ok := c.GetArtifact(ctx, a); !ok {
		t.Errorf("GetArtifact should resolve a cached artifact")
	}

	gone := &fakeArtifact{key: "a.jar", fingerprintErr: artifact.NewNotFoundError("a.jar", nil)}
	if _, ok := c.GetArtifact(ctx, gone); ok {
		t.Errorf("GetArtifact should report false when resolution fails")
	}
}
