package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// WriteSnapshot stores a cleaned copy of the current page under dir for
// diagnosing a failed run. It returns the file path.
func WriteSnapshot(ctx context.Context, s Surface, dir, name string) (string, error) {
	raw, err := s.HTML(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read page for snapshot: %w", err)
	}
	location, _ := s.Location(ctx)

	cleaned, err := CleanHTML(raw)
	if err != nil {
		cleaned = raw
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	path := filepath.Join(dir, unsafeName.ReplaceAllString(name, "_")+".html")
	header := fmt.Sprintf("<!-- url: %s captured: %s -->\n", location, time.Now().Format(time.RFC3339))
	if err := os.WriteFile(path, []byte(header+cleaned), 0600); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	return path, nil
}
