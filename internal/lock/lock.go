// Package lock provides cross-process mutual exclusion through a marker file.
//
// The marker is best-effort: a process killed without running its deferred
// cleanup leaves it behind, and it has to be removed by hand.
package lock

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/lance13c/portalwatch/internal/logging"
)

// DefaultPath is the marker location relative to the working directory.
const DefaultPath = "lock"

// ErrHeld means another run owns the marker. It is a planned skip, not a failure.
var ErrHeld = errors.New("lock marker already present")

// Lock is an acquired marker.
type Lock struct {
	path string
	once sync.Once
	err  error
}

// Acquire creates the marker at path. It returns ErrHeld if the marker exists.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, ErrHeld
		}
		return nil, fmt.Errorf("failed to create lock marker: %w", err)
	}
	// Informational only; nothing reads it back.
	_, werr := f.WriteString(strconv.Itoa(os.Getpid()))
	cerr := f.Close()
	if werr != nil || cerr != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write lock marker: %w", errors.Join(werr, cerr))
	}

	logging.Debug("[LOCK] acquired %s", path)
	return &Lock{path: path}, nil
}

// Release removes the marker. Only the first call does anything; later
// calls return the first call's result.
func (l *Lock) Release() error {
	l.once.Do(func() {
		if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			l.err = fmt.Errorf("failed to remove lock marker: %w", err)
			logging.Error("[LOCK] %v", l.err)
			return
		}
		logging.Debug("[LOCK] released %s", l.path)
	})
	return l.err
}

// Path returns the marker path.
func (l *Lock) Path() string {
	return l.path
}

// MarkerStatus describes an existing marker.
type MarkerStatus struct {
	Present bool
	Age     time.Duration
	Content string
}

// Status inspects the marker without acquiring it.
func Status(path string) (MarkerStatus, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return MarkerStatus{}, nil
	}
	if err != nil {
		return MarkerStatus{}, err
	}
	data, _ := os.ReadFile(path)
	return MarkerStatus{
		Present: true,
		Age:     time.Since(info.ModTime()),
		Content: string(data),
	}, nil
}
