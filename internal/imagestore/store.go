// Package imagestore keeps downloaded images on disk under generated identifiers
// and hands them back for vision requests.
package imagestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

const (
	// DefaultDir is the relative directory images are written to.
	DefaultDir = "images"

	// DefaultExtension is appended to every stored identifier.
	DefaultExtension = ".jpg"
)

// ErrNotFound is returned when no image is stored under an identifier.
var ErrNotFound = errors.New("image not found")

// Image is a stored image loaded back into memory.
type Image struct {
	UID      string
	MimeType string
	Data     []byte
}

// Store maps identifiers to files in a single directory. Files are only ever
// created under fresh UUIDs, so concurrent writers never collide.
type Store struct {
	fs  afero.Fs
	dir string
	ext string
}

// StoreOption is a functional option for configuring Store.
type StoreOption func(*Store)

// WithFs swaps the filesystem, e.g. for afero.NewMemMapFs in tests.
func WithFs(fs afero.Fs) StoreOption {
	return func(s *Store) {
		s.fs = fs
	}
}

// WithExtension overrides the file extension.
func WithExtension(ext string) StoreOption {
	return func(s *Store) {
		if ext != "" {
			s.ext = ext
		}
	}
}

// NewStore creates a store rooted at dir on the OS filesystem.
func NewStore(dir string, opts ...StoreOption) *Store {
	if dir == "" {
		dir = DefaultDir
	}
	s := &Store{
		fs:  afero.NewOsFs(),
		dir: dir,
		ext: DefaultExtension,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the storage directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns where the image for uid lives.
func (s *Store) Path(uid string) string {
	return filepath.Join(s.dir, uid+s.ext)
}

// EnsureDir creates the storage directory if it does not exist yet.
func (s *Store) EnsureDir() error {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create image dir %s: %w", s.dir, err)
	}
	return nil
}

// Save writes data under a freshly generated identifier and returns it.
func (s *Store) Save(data []byte) (string, error) {
	if err := s.EnsureDir(); err != nil {
		return "", err
	}
	uid := uuid.NewString()
	if err := afero.WriteFile(s.fs, s.Path(uid), data, 0o644); err != nil {
		return "", fmt.Errorf("write image %s: %w", uid, err)
	}
	return uid, nil
}

// Exists reports whether an image is stored under uid. Identifiers that are not
// UUIDs never exist, which keeps marker text from reaching outside the directory.
func (s *Store) Exists(uid string) bool {
	if !validUID(uid) {
		return false
	}
	ok, err := afero.Exists(s.fs, s.Path(uid))
	return err == nil && ok
}

// Load reads the image stored under uid and sniffs its MIME type.
func (s *Store) Load(uid string) (Image, error) {
	if !validUID(uid) {
		return Image{}, ErrNotFound
	}
	data, err := afero.ReadFile(s.fs, s.Path(uid))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Image{}, ErrNotFound
		}
		return Image{}, fmt.Errorf("read image %s: %w", uid, err)
	}
	return Image{
		UID:      uid,
		MimeType: mimetype.Detect(data).String(),
		Data:     data,
	}, nil
}

func validUID(uid string) bool {
	_, err := uuid.Parse(uid)
	return err == nil
}
