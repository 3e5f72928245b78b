package provider

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"

	"artcache/internal/artifact"
	"artcache/internal/config"
)

// fetchableArtifact implements both Artifact and Fetcher.
type fetchableArtifact struct {
	key      string
	fetchErr error
	fetches  atomic.Int32
}

func (a *fetchableArtifact) Key() string { return a.key }

func (a *fetchableArtifact) Fingerprint(ctx context.Context) (string, error) {
	return "v1", nil
}

func (a *fetchableArtifact) Open(ctx context.Context) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (a *fetchableArtifact) Fetch(ctx context.Context) error {
	a.fetches.Add(1)
	return a.fetchErr
}

// plainArtifact does not implement Fetcher.
type plainArtifact struct {
	key string
}

func (a plainArtifact) Key() string { return a.key }

func (a plainArtifact) Fingerprint(ctx context.Context) (string, error) {
	return "v1", nil
}

func (a plainArtifact) Open(ctx context.Context) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func TestPrefetcherDownloadsAllFetchers(t *testing.T) {
	ctx := context.Background()

	a := &fetchableArtifact{key: "p/a.jar"}
	b := &fetchableArtifact{key: "p/b.jar"}

	prefetcher := NewPrefetcher(WithPrefetchWorkers(2))
	if err := prefetcher.DownloadAll(ctx, []artifact.Artifact{a, b}); err != nil {
		t.Fatalf("DownloadAll failed: %v", err)
	}
	if a.fetches.Load() != 1 || b.fetches.Load() != 1 {
		t.Errorf("fetches = %d/%d, want 1/1", a.fetches.Load(), b.fetches.Load())
	}
}

func TestPrefetcherSkipsNonFetchers(t *testing.T) {
	ctx := context.Background()

	prefetcher := NewPrefetcher()
	err := prefetcher.DownloadAll(ctx, []artifact.Artifact{plainArtifact{key: "local/a"}})
	if err != nil {
		t.Fatalf("DownloadAll should skip artifacts without Fetch, got: %v", err)
	}
}

func TestPrefetcherFailsBatchOnAnyError(t *testing.T) {
	ctx := context.Background()

	fetchErr := errors.New("timeout")
	good := &fetchableArtifact{key: "p/good.jar"}
	bad := &fetchableArtifact{key: "p/bad.jar", fetchErr: fetchErr}

	prefetcher := NewPrefetcher()
	err := prefetcher.DownloadAll(ctx, []artifact.Artifact{good, bad})
	if err == nil {
		t.Fatalf("expected batch failure")
	}
	if !errors.Is(err, fetchErr) {
		t.Errorf("batch error should wrap the fetch error, got: %v", err)
	}
	// The failing artifact does not stop the others.
	if good.fetches.Load() != 1 {
		t.Errorf("good artifact fetched %d times, want 1", good.fetches.Load())
	}
}

func TestProviderRegistryUnknownType(t *testing.T) {
	_, err := New(config.ProviderConfig{ID: "x", Type: "carrier-pigeon"}, config.TransferConfig{}, "")
	if err == nil {
		t.Errorf("expected error for unknown provider type")
	}
}

func TestInitializeAllDefaultsIDs(t *testing.T) {
	root := t.TempDir()
	providers, err := InitializeAll(map[string]config.ProviderConfig{
		"outputs": {Type: "local", Root: root},
	}, config.TransferConfig{}, "")
	if err != nil {
		t.Fatalf("InitializeAll failed: %v", err)
	}
	p, ok := providers["outputs"]
	if !ok {
		t.Fatalf("outputs provider missing")
	}
	if p.ID() != "outputs" {
		t.Errorf("provider ID = %s, want outputs", p.ID())
	}
}
