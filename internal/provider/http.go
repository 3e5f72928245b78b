package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"artcache/internal/artifact"
	"artcache/internal/config"
	"artcache/internal/core/types"
	"artcache/internal/transport"
)

// HTTPProvider serves artifacts from an HTTP/HTTPS endpoint. Change
// detection uses ETag when the server sends one, falling back to
// Last-Modified.
type HTTPProvider struct {
	id       string
	baseURL  string
	headers  map[string]string
	transfer *transport.HTTPTransfer
	limiter  *types.RateLimiter
	spool    string
}

func NewHTTPProvider(cfg config.ProviderConfig, transferCfg config.TransferConfig, spoolDir string) (Provider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("http provider %s: base_url is required", cfg.ID)
	}

	httpOpts := []transport.HTTPTransferOption{}
	if cfg.HTTP2 {
		httpOpts = append(httpOpts, transport.HTTPWithClient(transport.HTTP2Client()))
	}

	headers := make(map[string]string, len(cfg.Headers)+1)
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	if cfg.Token != "" {
		headers["Authorization"] = "Bearer " + cfg.Token
	}

	return &HTTPProvider{
		id:       cfg.ID,
		baseURL:  cfg.BaseURL,
		headers:  headers,
		transfer: transport.NewHTTPTransfer(httpOpts...),
		limiter:  types.NewRateLimiter(transferCfg.RateLimit, transferCfg.RateBurst, transferCfg.Concurrency),
		spool:    filepath.Join(spoolDir, cfg.ID),
	}, nil
}

func (p *HTTPProvider) ID() string {
	return p.id
}

func (p *HTTPProvider) Resolve(path string) (artifact.Artifact, error) {
	fileURL, err := url.JoinPath(p.baseURL, path)
	if err != nil {
		return nil, fmt.Errorf("http provider %s: invalid path %q: %w", p.id, path, err)
	}
	return &httpArtifact{
		provider: p,
		key:      p.id + "/" + path,
		url:      fileURL,
	}, nil
}

type httpArtifact struct {
	provider *HTTPProvider
	key      string
	url      string
}

func (a *httpArtifact) Key() string {
	return a.key
}

func (a *httpArtifact) Fingerprint(ctx context.Context) (string, error) {
	resp, err := a.provider.transfer.Head(ctx, a.url, transport.HTTPRequestHeaders(a.provider.headers))
	if err != nil {
		return "", err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", artifact.NewNotFoundError(a.key, fmt.Errorf("%s: %s", a.url, resp.Status))
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("unexpected status for %s: %s", a.url, resp.Status)
	}

	if etag := strings.Trim(resp.Header.Get("ETag"), `"`); etag != "" {
		return etag, nil
	}
	if lastModified := resp.Header.Get("Last-Modified"); lastModified != "" {
		return lastModified, nil
	}
	return "", fmt.Errorf("no change fingerprint headers for %s", a.url)
}

// Open serves spooled bytes when a prefetch already landed them, otherwise
// streams directly from the remote.
func (a *httpArtifact) Open(ctx context.Context) (io.ReadCloser, error) {
	if f, err := os.Open(a.spoolPath()); err == nil {
		return f, nil
	}
	return a.openRemote(ctx)
}

func (a *httpArtifact) openRemote(ctx context.Context) (io.ReadCloser, error) {
	resp, err := a.provider.transfer.Get(ctx, a.url, transport.HTTPRequestHeaders(a.provider.headers))
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, artifact.NewNotFoundError(a.key, fmt.Errorf("%s: %s", a.url, resp.Status))
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status for %s: %s", a.url, resp.Status)
	}
	return transport.LimitedBody(ctx, a.provider.limiter, resp.Body), nil
}

// Fetch downloads the artifact into the provider's spool directory.
func (a *httpArtifact) Fetch(ctx context.Context) error {
	return fetchToFile(ctx, a.openRemote, a.spoolPath())
}

func (a *httpArtifact) spoolPath() string {
	return filepath.Join(a.provider.spool, artifact.FileNameFor(a.key))
}

func init() {
	RegisterFactory("http", NewHTTPProvider)
}
