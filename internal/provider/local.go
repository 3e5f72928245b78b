package provider

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"artcache/internal/artifact"
	"artcache/internal/config"
)

// LocalProvider serves artifacts from a directory tree on the same machine.
// Useful for build outputs that land on local or network-mounted disk.
type LocalProvider struct {
	id   string
	root string
}

func NewLocalProvider(cfg config.ProviderConfig, _ config.TransferConfig, _ string) (Provider, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("local provider %s: root is required", cfg.ID)
	}
	return &LocalProvider{id: cfg.ID, root: cfg.Root}, nil
}

func (p *LocalProvider) ID() string {
	return p.id
}

func (p *LocalProvider) Resolve(path string) (artifact.Artifact, error) {
	return &localArtifact{
		key:  p.id + "/" + path,
		path: filepath.Join(p.root, filepath.FromSlash(path)),
	}, nil
}

type localArtifact struct {
	key  string
	path string
}

func (a *localArtifact) Key() string {
	return a.key
}

// Fingerprint is the file's mtime and size; local artifacts have no
// content-version metadata beyond the filesystem's.
func (a *localArtifact) Fingerprint(ctx context.Context) (string, error) {
	info, err := os.Stat(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", artifact.NewNotFoundError(a.key, err)
		}
		return "", err
	}
	return fmt.Sprintf("%d-%d", info.ModTime().UnixNano(), info.Size()), nil
}

func (a *localArtifact) Open(ctx context.Context) (io.ReadCloser, error) {
	f, err := os.Open(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, artifact.NewNotFoundError(a.key, err)
		}
		return nil, err
	}
	return f, nil
}

func init() {
	RegisterFactory("local", NewLocalProvider)
}
