package transport

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned when a file location escapes the configured root.
var ErrOutsideRoot = errors.New("file location outside allowed root")

// FileTransport reads file:// locations from the local filesystem.
type FileTransport struct {
	root string
}

// FileOption configures a FileTransport.
type FileOption func(*FileTransport)

// WithRoot confines reads to the directory tree under dir.
func WithRoot(dir string) FileOption {
	return func(t *FileTransport) {
		t.root = filepath.Clean(dir)
	}
}

// NewFileTransport builds a local file transport.
func NewFileTransport(opts ...FileOption) *FileTransport {
	t := &FileTransport{}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Schemes implements Transport.
func (t *FileTransport) Schemes() []string {
	return []string{"file"}
}

// Fetch implements Transport.
func (t *FileTransport) Fetch(ctx context.Context, location string, limit int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := t.path(location)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p) //nolint:gosec // path is checked against the root above
	if err != nil {
		return nil, t.wrap(location, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, t.wrap(location, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrNotFound, location)
	}
	if limit > 0 && info.Size() > limit {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrTooLarge, location, info.Size(), limit)
	}
	return readLimited(f, limit, location)
}

// Exists implements Transport.
func (t *FileTransport) Exists(ctx context.Context, location string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p, err := t.path(location)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !info.IsDir(), nil
}

func (t *FileTransport) path(location string) (string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("invalid location %q: %w", location, err)
	}
	if !strings.EqualFold(u.Scheme, "file") {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if u.Host != "" && u.Host != "localhost" {
		return "", fmt.Errorf("%w: remote file host %q", ErrUnsupportedScheme, u.Host)
	}

	p := filepath.Clean(filepath.FromSlash(u.Path))
	if t.root != "" {
		rel, err := filepath.Rel(t.root, p)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("%w: %s", ErrOutsideRoot, location)
		}
	}
	return p, nil
}

func (t *FileTransport) wrap(location string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, location)
	}
	return fmt.Errorf("read %s: %w", location, err)
}

// FileLocation converts a local path to a file:// location.
func FileLocation(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	if !strings.HasPrefix(u.Path, "/") {
		u.Path = "/" + u.Path
	}
	return u.String(), nil
}
