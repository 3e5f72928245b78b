package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"

	"golang.org/x/net/http2"
)

// DefaultHTTPClient returns the standard client used for artifact transfers.
// No client timeout is set; per-request contexts bound transfer lifetimes.
func DefaultHTTPClient() *http.Client {
	return &http.Client{}
}

// HTTP2Client returns a client that speaks HTTP/2 directly, including to
// h2c upstreams that serve without TLS.
func HTTP2Client() *http.Client {
	return &http.Client{
		Transport: &http2.Transport{
			AllowHTTP: true,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true,
			},
		},
	}
}

type HTTPTransferOption func(*HTTPTransfer)

func HTTPWithClient(c *http.Client) HTTPTransferOption {
	return func(t *HTTPTransfer) {
		t.client = c
	}
}

// HTTPTransfer issues requests for artifact metadata and content.
type HTTPTransfer struct {
	client *http.Client
}

func NewHTTPTransfer(opts ...HTTPTransferOption) *HTTPTransfer {
	ht := &HTTPTransfer{client: DefaultHTTPClient()}
	for _, opt := range opts {
		opt(ht)
	}
	return ht
}

type HTTPRequestOption func(*http.Request)

func HTTPRequestHeaders(h map[string]string) HTTPRequestOption {
	return func(req *http.Request) {
		for k, v := range h {
			req.Header.Set(k, v)
		}
	}
}

func HTTPRequestRange(start, end int64) HTTPRequestOption {
	return func(req *http.Request) {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))
	}
}

// Head performs a HEAD request and returns the response with its body
// already closed. Non-2xx statuses are returned for the caller to interpret.
func (ht *HTTPTransfer) Head(ctx context.Context, url string, reqOpts ...HTTPRequestOption) (*http.Response, error) {
	resp, err := ht.do(ctx, http.MethodHead, url, reqOpts...)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()
	return resp, nil
}

// Get performs a GET request. The caller owns the response body.
func (ht *HTTPTransfer) Get(ctx context.Context, url string, reqOpts ...HTTPRequestOption) (*http.Response, error) {
	return ht.do(ctx, http.MethodGet, url, reqOpts...)
}

func (ht *HTTPTransfer) do(ctx context.Context, method, url string, reqOpts ...HTTPRequestOption) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	for _, opt := range reqOpts {
		opt(req)
	}
	return ht.client.Do(req)
}
