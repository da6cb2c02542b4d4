// Package docstore provides raw read/write/delete of JSON documents at
// well-known names inside a shared directory. It is the only layer that
// touches the rendezvous filesystem directly.
package docstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// ErrMalformed is returned when a document exists but cannot be parsed.
// Callers decide whether to delete the offending file.
var ErrMalformed = errors.New("malformed document")

// syncYield is the scheduling slack used when fsync is unavailable. The
// external actor runs in a separate process; the yield gives it a chance to
// observe the write before the caller proceeds.
const syncYield = 10 * time.Millisecond

// Store reads and writes documents under a single shared directory.
type Store struct {
	dir string
}

// New creates a Store rooted at dir.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the shared directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the absolute path of a named document.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Write marshals v as indented JSON and writes it to name. The file is
// flushed and synced where the platform supports it; sync failure degrades
// to a short yield rather than an error.
func (s *Store) Write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	return s.WriteRaw(name, data)
}

// WriteRaw writes bytes to a named document.
func (s *Store) WriteRaw(name string, data []byte) error {
	path := s.Path(name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		// Some filesystems refuse fsync; visibility then relies on the
		// kernel, so give the other process scheduling slack instead.
		log.Debug().Err(err).Str("file", name).Msg("fsync unavailable, yielding")
		time.Sleep(syncYield)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	return nil
}

// Read returns the raw contents of a named document.
func (s *Store) Read(name string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// ReadJSON reads a named document and unmarshals it into out. Parse failures
// are reported as ErrMalformed, never raised as fatal.
func (s *Store) ReadJSON(name string, out any) error {
	data, err := s.Read(name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, name, err)
	}
	return nil
}

// Exists reports whether a named document exists.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}

// Size returns the size of a named document, or ErrNotFound.
func (s *Store) Size(name string) (int64, error) {
	info, err := os.Stat(s.Path(name))
	if errors.Is(err, os.ErrNotExist) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", name, err)
	}
	return info.Size(), nil
}

// Delete removes a named document. Already-deleted is not an error: the
// consumer on the other side may have taken the file first.
func (s *Store) Delete(name string) error {
	err := os.Remove(s.Path(name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

// Glob returns document names (not paths) matching pattern.
func (s *Store) Glob(pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, filepath.Base(m))
	}
	return names, nil
}

// ModTime returns a document's modification time, or ErrNotFound.
func (s *Store) ModTime(name string) (time.Time, error) {
	info, err := os.Stat(s.Path(name))
	if errors.Is(err, os.ErrNotExist) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("stat %s: %w", name, err)
	}
	return info.ModTime(), nil
}
