package browser_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lance13c/portalwatch/internal/browser"
	"github.com/lance13c/portalwatch/internal/browser/browsertest"
)

func TestWriteSnapshot(t *testing.T) {
	f := browsertest.New()
	f.URL = "https://sso.example.org/idp/profile"
	f.Show("#login", "Anmeldung")

	dir := filepath.Join(t.TempDir(), "snapshots")
	path, err := browser.WriteSnapshot(context.Background(), f, dir, "run-1/CredentialsSubmitted")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "run-1_CredentialsSubmitted.html"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "url: https://sso.example.org/idp/profile")
	assert.Contains(t, string(data), "Anmeldung")
}
