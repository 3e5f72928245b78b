package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"artcache/internal/core/types"
)

func TestHTTPTransferHead(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("method = %s, want HEAD", r.Method)
		}
		if got := r.Header.Get("X-Custom"); got != "yes" {
			t.Errorf("X-Custom = %q, want yes", got)
		}
		w.Header().Set("ETag", `"tag"`)
	}))
	defer server.Close()

	transfer := NewHTTPTransfer()
	resp, err := transfer.Head(context.Background(), server.URL, HTTPRequestHeaders(map[string]string{"X-Custom": "yes"}))
	if err != nil {
		t.Fatalf("Head failed: %v", err)
	}
	if resp.Header.Get("ETag") != `"tag"` {
		t.Errorf("ETag = %q", resp.Header.Get("ETag"))
	}
}

func TestHTTPTransferGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "body-bytes")
	}))
	defer server.Close()

	transfer := NewHTTPTransfer()
	resp, err := transfer.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	if string(data) != "body-bytes" {
		t.Errorf("body = %q, want body-bytes", data)
	}
}

func TestHTTPTransferRangeHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Range"); got != "bytes=0-99" {
			t.Errorf("Range = %q, want bytes=0-99", got)
		}
	}))
	defer server.Close()

	transfer := NewHTTPTransfer()
	resp, err := transfer.Get(context.Background(), server.URL, HTTPRequestRange(0, 99))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	resp.Body.Close()
}

func TestLimitedBodyCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	limiter := types.DefaultRateLimiter()
	body := LimitedBody(ctx, limiter, io.NopCloser(io.LimitReader(neverEnding{}, 1<<20)))
	defer body.Close()

	buf := make([]byte, 4096)
	if _, err := body.Read(buf); err == nil {
		t.Errorf("read on a canceled context should fail")
	}
}

type neverEnding struct{}

func (neverEnding) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 'x'
	}
	return len(p), nil
}
