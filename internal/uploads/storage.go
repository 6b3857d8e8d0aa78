package uploads

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/erazemk/ecoleta/internal/apperr"
)

// DefaultMaxBytes caps the size of a single upload.
const DefaultMaxBytes = 5 << 20

// ErrTooLarge is returned when an upload exceeds the configured size.
var ErrTooLarge = eris.New("upload too large")

// Storage persists uploaded images in a single directory.
type Storage struct {
	dir       string
	maxBytes  int64
	maxDim    int
	maxPixels int
}

// NewStorage creates the directory if needed. Non-positive limits take the
// package defaults.
func NewStorage(dir string, maxBytes int64, maxDim, maxPixels int) (*Storage, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "uploads: create dir %s", dir)
	}
	return &Storage{dir: dir, maxBytes: maxBytes, maxDim: maxDim, maxPixels: maxPixels}, nil
}

// Dir returns the storage directory.
func (s *Storage) Dir() string {
	return s.dir
}

// MaxBytes returns the upload size limit.
func (s *Storage) MaxBytes() int64 {
	return s.maxBytes
}

// Save normalizes the image read from r and writes it under a generated
// name. It returns the stored filename.
func (s *Storage) Save(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return "", eris.Wrap(err, "uploads: read")
	}
	if int64(len(data)) > s.maxBytes {
		return "", apperr.Invalid("image", "must not exceed "+strconv.FormatInt(s.maxBytes, 10)+" bytes", ErrTooLarge)
	}

	img, err := Normalize(data, s.maxDim, s.maxPixels)
	if errors.Is(err, ErrTooManyPixels) {
		return "", apperr.Invalid("image", "must not exceed "+strconv.Itoa(s.maxPixels)+" pixels", err)
	}
	if err != nil {
		return "", apperr.Invalid("image", "must be a JPEG or PNG image", err)
	}

	name, err := generateName(img.Data)
	if err != nil {
		return "", err
	}

	if err := writeFileAtomic(filepath.Join(s.dir, name), img.Data); err != nil {
		return "", err
	}

	zap.L().Debug("upload stored",
		zap.String("file", name),
		zap.Int("width", img.Width),
		zap.Int("height", img.Height),
		zap.Int("bytes", len(img.Data)),
	)
	return name, nil
}

// Install writes data under name unless a file with that name exists. Used
// for fixed assets such as item icons.
func (s *Storage) Install(name string, data []byte) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return writeFileAtomic(path, data)
}

// Remove deletes a stored file. Missing files are not an error.
func (s *Storage) Remove(name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return eris.Wrapf(err, "uploads: remove %s", name)
	}
	return nil
}

// Handler serves stored files under PathPrefix without directory listings.
func (s *Storage) Handler() http.Handler {
	fs := http.FileServer(http.Dir(s.dir))
	return http.StripPrefix(PathPrefix, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=86400")
		fs.ServeHTTP(w, r)
	}))
}

func (s *Storage) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", eris.Errorf("uploads: invalid file name %q", name)
	}
	return filepath.Join(s.dir, name), nil
}

// generateName derives a collision-resistant file name from a random salt
// and the content.
func generateName(data []byte) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", eris.Wrap(err, "uploads: salt")
	}

	h, err := blake2b.New256(salt)
	if err != nil {
		return "", eris.Wrap(err, "uploads: hash")
	}
	h.Write(data)

	return hex.EncodeToString(h.Sum(nil))[:32] + ".jpg", nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return eris.Wrap(err, "uploads: create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return eris.Wrap(err, "uploads: write temp file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "uploads: close temp file")
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return eris.Wrap(err, "uploads: chmod")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return eris.Wrap(err, "uploads: rename")
	}
	return nil
}
