// Package dedup persists the last successfully notified count.
package dedup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lance13c/portalwatch/internal/logging"
)

// DefaultPath is the counter file relative to the working directory.
const DefaultPath = "prev_elems.data"

// Store is a single non-negative integer kept as decimal text in a file.
type Store struct {
	path string
}

// NewStore returns a store backed by path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load returns the stored count. A missing file is 0. Unreadable content is
// also treated as 0 so the next change is reported rather than lost.
func (s *Store) Load() (int, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read dedup store: %w", err)
	}

	text := strings.TrimSpace(string(data))
	n, err := strconv.Atoi(text)
	if err != nil || n < 0 {
		logging.Warn("[DEDUP] ignoring malformed content %q in %s", text, s.path)
		return 0, nil
	}
	return n, nil
}

// Save replaces the stored count. The write goes through a temp file and a
// rename so a crash never leaves a partial value.
func (s *Store) Save(n int) error {
	if n < 0 {
		return fmt.Errorf("dedup count must be non-negative, got %d", n)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".prev_elems-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	tmp.Chmod(0644)

	if _, err := tmp.WriteString(strconv.Itoa(n)); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write dedup store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close dedup store: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace dedup store: %w", err)
	}
	return nil
}
