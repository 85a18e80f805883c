package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeWritesFileAndMirror(t *testing.T) {
	dir := t.TempDir()
	var mirror bytes.Buffer

	require.NoError(t, Initialize(dir, Options{Mirror: &mirror}))
	t.Cleanup(func() { GetLogger().Close() })

	Info("[LOCK] acquired %s", "lock")
	Debug("hidden at INFO level")

	assert.Equal(t, filepath.Join(dir, "logs", "portalwatch.log"), GetLogger().GetLogPath())
	data, err := os.ReadFile(filepath.Join(dir, "logs", "portalwatch.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "[INFO] [LOCK] acquired lock")
	assert.NotContains(t, string(data), "hidden at INFO level")
	assert.Contains(t, mirror.String(), "[INFO] [LOCK] acquired lock")
}

func TestVerboseEnablesDebug(t *testing.T) {
	dir := t.TempDir()
	var mirror bytes.Buffer

	require.NoError(t, Initialize(dir, Options{Verbose: true, Mirror: &mirror}))
	t.Cleanup(func() { GetLogger().Close() })

	Debug("probe took %dms", 42)
	assert.Contains(t, mirror.String(), "[DEBUG] probe took 42ms")
}

func TestRotation(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(dir, Options{Mirror: &bytes.Buffer{}}))
	l := GetLogger()
	t.Cleanup(func() { l.Close() })

	l.mu.Lock()
	l.maxSize = 64
	l.mu.Unlock()

	for i := 0; i < 10; i++ {
		l.Info("line %d with some padding to exceed the limit", i)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "logs"))
	require.NoError(t, err)
	assert.Greater(t, len(entries), 1)
}
