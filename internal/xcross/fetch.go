package xcross

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Fetcher opens a readable stream for a remote archive path. A
// non-success response is an error. Retries, TLS and proxies are the
// fetcher's concern.
type Fetcher interface {
	Open(ctx context.Context, remotePath string) (io.ReadCloser, error)
	// Location renders remotePath as a URL for messages.
	Location(remotePath string) string
}

// HTTPFetcher downloads archives relative to a base URL.
type HTTPFetcher struct {
	Base   *url.URL
	Client *http.Client
}

func newHttpClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	// Mirrors behind CDNs can be slow to complete the handshake.
	transport.TLSHandshakeTimeout = 30 * time.Second
	transport.ResponseHeaderTimeout = 60 * time.Second

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// NewHTTPFetcher returns a fetcher rooted at baseURL. A zero timeout
// leaves the total transfer time unbounded.
func NewHTTPFetcher(baseURL string, timeout time.Duration) (*HTTPFetcher, error) {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid mirror URL %q: %w", baseURL, err)
	}
	return &HTTPFetcher{Base: base, Client: newHttpClient(timeout)}, nil
}

func (f *HTTPFetcher) Location(remotePath string) string {
	ref, err := url.Parse(strings.TrimPrefix(remotePath, "/"))
	if err != nil {
		return f.Base.String() + remotePath
	}
	return f.Base.ResolveReference(ref).String()
}

func (f *HTTPFetcher) Open(ctx context.Context, remotePath string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.Location(remotePath), nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("download failed with status: %s", resp.Status)
	}
	return resp.Body, nil
}

// FileFetcher reads archives from a local mirror directory.
type FileFetcher struct {
	Root string
}

func (f *FileFetcher) Location(remotePath string) string {
	return "file://" + filepath.Join(f.Root, filepath.FromSlash(remotePath))
}

func (f *FileFetcher) Open(ctx context.Context, remotePath string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.Open(filepath.Join(f.Root, filepath.FromSlash(remotePath)))
}

// NewFetcher picks the transport for a mirror URL: s3:// buckets go
// through the S3 API, file:// through the local filesystem, anything
// else over HTTP.
func NewFetcher(ctx context.Context, mirror string, cfg *Config) (Fetcher, error) {
	switch {
	case strings.HasPrefix(mirror, "s3://"):
		return NewS3Fetcher(ctx, mirror, cfg)
	case strings.HasPrefix(mirror, "file://"):
		return &FileFetcher{Root: strings.TrimPrefix(mirror, "file://")}, nil
	default:
		return NewHTTPFetcher(mirror, cfg.HTTPTimeout())
	}
}
