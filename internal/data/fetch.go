package data

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/cavaliergopher/grab/v3"
)

// Fetcher resolves provider data file arguments to local paths, downloading
// http(s) URLs into a cache directory first.
type Fetcher struct {
	dir    string
	client *grab.Client
}

// NewFetcher returns a Fetcher caching downloads in dir. An empty dir uses
// a directory under os.TempDir.
func NewFetcher(dir string) *Fetcher {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "ipmeta")
	}
	return &Fetcher{dir: dir, client: grab.NewClient()}
}

// Resolve returns a local path for src. Local paths are returned unchanged.
func (f *Fetcher) Resolve(ctx context.Context, src string) (string, error) {
	if !isRemote(src) {
		return src, nil
	}

	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache dir: %w", err)
	}
	req, err := grab.NewRequest(f.dir, src)
	if err != nil {
		return "", fmt.Errorf("invalid download request: %w", err)
	}
	req.NoResume = true
	req = req.WithContext(ctx)

	slog.Info("downloading data file", "url", src, "dir", f.dir)
	resp := f.client.Do(req)
	if err := resp.Err(); err != nil {
		return "", fmt.Errorf("failed to download %s: %w", src, err)
	}
	slog.Info("data file downloaded", "url", src, "path", resp.Filename, "bytes", resp.BytesComplete())
	return resp.Filename, nil
}

// Fetch returns the contents of src, reading remote files into memory
// without touching the cache directory.
func (f *Fetcher) Fetch(ctx context.Context, src string) ([]byte, error) {
	if !isRemote(src) {
		b, err := os.ReadFile(src)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", src, err)
		}
		return b, nil
	}

	req, err := grab.NewRequest("", src)
	if err != nil {
		return nil, fmt.Errorf("invalid download request: %w", err)
	}
	req.NoStore = true
	req.NoResume = true
	req = req.WithContext(ctx)

	b, err := f.client.Do(req).Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", src, err)
	}
	return b, nil
}

// Open resolves src and opens it, decompressing .gz files.
func (f *Fetcher) Open(ctx context.Context, src string) (io.ReadCloser, error) {
	path, err := f.Resolve(ctx, src)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file: %w", err)
	}
	if !strings.HasSuffix(path, ".gz") {
		return file, nil
	}
	zr, err := gzip.NewReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read gzip data file %s: %w", path, err)
	}
	return &gzipFile{Reader: zr, file: file}, nil
}

type gzipFile struct {
	*gzip.Reader
	file *os.File
}

func (g *gzipFile) Close() error {
	zerr := g.Reader.Close()
	if err := g.file.Close(); err != nil {
		return err
	}
	return zerr
}

func isRemote(src string) bool {
	u, err := url.Parse(src)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
