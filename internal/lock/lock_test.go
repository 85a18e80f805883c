package lock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultPath)

	l, err := Acquire(path)
	require.NoError(t, err)
	assert.FileExists(t, path)

	require.NoError(t, l.Release())
	assert.NoFileExists(t, path)
}

func TestAcquireWhenHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultPath)
	require.NoError(t, os.WriteFile(path, []byte("1"), 0644))

	l, err := Acquire(path)
	assert.ErrorIs(t, err, ErrHeld)
	assert.Nil(t, l)
	// The foreign marker is left alone.
	assert.FileExists(t, path)
}

func TestReleaseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultPath)
	l, err := Acquire(path)
	require.NoError(t, err)

	require.NoError(t, l.Release())

	// A new run takes the marker; a repeated release must not remove it.
	other, err := Acquire(path)
	require.NoError(t, err)
	require.NoError(t, l.Release())
	assert.FileExists(t, path)
	require.NoError(t, other.Release())
}

func TestReleaseAfterPanic(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultPath)

	func() {
		defer func() { _ = recover() }()
		l, err := Acquire(path)
		require.NoError(t, err)
		defer l.Release()
		panic("fault during run")
	}()

	assert.NoFileExists(t, path)
}

func TestStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultPath)

	st, err := Status(path)
	require.NoError(t, err)
	assert.False(t, st.Present)

	l, err := Acquire(path)
	require.NoError(t, err)
	defer l.Release()

	st, err = Status(path)
	require.NoError(t, err)
	assert.True(t, st.Present)
	assert.NotEmpty(t, st.Content)
}
