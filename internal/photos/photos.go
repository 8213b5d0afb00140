// Package photos names, stores and serves captured photos.
package photos

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// URLPrefix is the HTTP path photos are served under.
const URLPrefix = "/photos/"

// Store is a directory of photos. Files are never deleted.
type Store struct {
	Dir string

	now    func() time.Time
	suffix func() string
}

// New creates the photo directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("photos dir %s: %w", dir, err)
	}
	return &Store{Dir: dir, now: time.Now, suffix: randomSuffix}, nil
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
}

// NewPhotoPath returns a fresh path for a captured photo.
func (s *Store) NewPhotoPath() string {
	return s.newPath("photo")
}

// NewPlaceholderPath returns a fresh path for a placeholder image.
func (s *Store) NewPlaceholderPath() string {
	return s.newPath("placeholder")
}

func (s *Store) newPath(kind string) string {
	name := fmt.Sprintf("%s_%d_%s.jpg", kind, s.now().Unix(), s.suffix())
	return filepath.Join(s.Dir, name)
}

// URL returns the served URL for a photo path.
func (s *Store) URL(path string) string {
	return URLPrefix + filepath.Base(path)
}

// Writable reports whether a probe file can be created and removed.
func (s *Store) Writable() bool {
	f, err := os.CreateTemp(s.Dir, ".probe_*")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	if err := os.Remove(name); err != nil {
		log.Printf("photos: remove probe: %v", err)
		return false
	}
	return true
}

// Handler serves photos under URLPrefix. http.Dir rejects paths escaping Dir.
// Directories are not listed.
func (s *Store) Handler() http.Handler {
	return http.StripPrefix(URLPrefix, http.FileServer(filesOnly{http.Dir(s.Dir)}))
}

// filesOnly hides directories so the photo names cannot be enumerated.
type filesOnly struct{ fs http.FileSystem }

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	fi, err := file.Stat()
	if err != nil || fi.IsDir() {
		file.Close()
		return nil, os.ErrNotExist
	}
	return file, nil
}
