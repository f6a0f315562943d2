// Package images stores item pictures under a single root directory.
package images

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/zeebo/blake3"
)

var (
	ErrInvalidPath = errors.New("image path escapes root")
	ErrNotFound    = errors.New("image not found")
	ErrTooLarge    = errors.New("image exceeds size limit")
)

// Store reads and writes images on fs. Paths are always relative to the root
// of fs and are validated before any filesystem access.
type Store struct {
	fs       afero.Fs
	maxBytes int64
}

// NewStore wraps an arbitrary filesystem (tests use afero.NewMemMapFs).
func NewStore(fs afero.Fs, maxBytes int64) *Store {
	return &Store{fs: fs, maxBytes: maxBytes}
}

// NewOSStore roots the store at dir on the local disk.
func NewOSStore(dir string, maxBytes int64) (*Store, error) {
	if dir == "" {
		return nil, errors.New("image root is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return NewStore(afero.NewBasePathFs(afero.NewOsFs(), abs), maxBytes), nil
}

// CleanPath normalises a client supplied image path. Absolute paths and any
// path that climbs out of the root are rejected.
func CleanPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" || strings.ContainsRune(p, 0) {
		return "", ErrInvalidPath
	}
	slashed := strings.ReplaceAll(p, `\`, "/")
	if strings.HasPrefix(slashed, "/") || filepath.IsAbs(p) || filepath.VolumeName(p) != "" {
		return "", ErrInvalidPath
	}
	cleaned := path.Clean(slashed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidPath
	}
	return filepath.FromSlash(cleaned), nil
}

// Image is an open image ready to be streamed. Callers must Close it.
type Image struct {
	File   afero.File
	Size   int64
	Digest string
}

func (im *Image) Close() error { return im.File.Close() }

// Open resolves p, hashes the file and rewinds it for streaming.
func (s *Store) Open(p string) (*Image, error) {
	clean, err := CleanPath(p)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.Open(clean)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if st.IsDir() {
		f.Close()
		return nil, ErrNotFound
	}

	h := blake3.New()
	n, err := io.Copy(h, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	return &Image{File: f, Size: n, Digest: hex.EncodeToString(h.Sum(nil))}, nil
}

// Put copies exactly n bytes from r into p, replacing any existing file only
// once every byte has arrived. It returns the blake3 digest of the content.
func (s *Store) Put(p string, r io.Reader, n int64) (string, error) {
	clean, err := CleanPath(p)
	if err != nil {
		return "", err
	}
	if n < 0 || (s.maxBytes > 0 && n > s.maxBytes) {
		return "", ErrTooLarge
	}
	dir := filepath.Dir(clean)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	tmp, err := afero.TempFile(s.fs, dir, ".upload-*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
	}

	h := blake3.New()
	written, err := io.CopyN(io.MultiWriter(tmp, h), r, n)
	if err != nil {
		cleanup()
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("image truncated after %d of %d bytes: %w", written, n, io.ErrUnexpectedEOF)
		}
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return "", err
	}
	if err := s.fs.Rename(tmpName, clean); err != nil {
		_ = s.fs.Remove(tmpName)
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Exists reports whether p names a regular file in the store.
func (s *Store) Exists(p string) bool {
	clean, err := CleanPath(p)
	if err != nil {
		return false
	}
	st, err := s.fs.Stat(clean)
	return err == nil && !st.IsDir()
}
