package runner

import (
	"context"
	stdErrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lance13c/portalwatch/internal/auth"
	"github.com/lance13c/portalwatch/internal/browser"
	"github.com/lance13c/portalwatch/internal/browser/browsertest"
	"github.com/lance13c/portalwatch/internal/config"
	"github.com/lance13c/portalwatch/internal/dedup"
	"github.com/lance13c/portalwatch/internal/errors"
	"github.com/lance13c/portalwatch/internal/notify"
)

const (
	homeURL = "https://moodle.example.edu/my/"
	pageURL = "https://moodle.example.edu/course/view.php?id=42"
)

type fixedCode string

func (c fixedCode) GenerateCode() (string, error) { return string(c), nil }

type stubSender struct {
	deliver bool
	panics  bool
	sent    []string
}

func (s *stubSender) Send(ctx context.Context, msg string) notify.Result {
	if s.panics {
		panic("sender exploded")
	}
	s.sent = append(s.sent, msg)
	if s.deliver {
		return notify.Result{Delivered: true, Attempts: 1}
	}
	return notify.Result{Attempts: 3, LastErr: stdErrors.New("502 Bad Gateway")}
}

func testConfig(t *testing.T) *config.Config {
	portal := config.DefaultPortal()
	portal.HomeURL = homeURL
	portal.Domain = "moodle.example.edu"
	portal.IdPDomain = "sso.example.edu"
	return &config.Config{
		MentionID: "42",
		PageURL:   pageURL,
		Portal:    portal,
		Paths:     config.PathsConfig{DataDir: t.TempDir()},
		Timeouts:  config.TimeoutsConfig{Wait: 10 * time.Second, Probe: 5 * time.Second},
	}
}

// loggedInPortal shows the authenticated marker everywhere and targets
// elements on the watched page.
func loggedInPortal(cfg *config.Config, targets int) *browsertest.Fake {
	f := browsertest.New()
	f.CookieJar = []browser.Cookie{{Name: "MoodleSession", Value: "s", Domain: "moodle.example.edu", Path: "/"}}
	f.OnNavigate = func(f *browsertest.Fake, url string) {
		f.Show(cfg.Portal.Selectors.AuthMarker, "AB")
		if url == pageURL {
			f.Show(cfg.Portal.TargetSelector, "Quiz").Count = targets
		}
	}
	return f
}

func newRunner(t *testing.T, cfg *config.Config, f *browsertest.Fake, sender notify.Sender) (*Runner, *dedup.Store) {
	t.Helper()
	store := dedup.NewStore(filepath.Join(t.TempDir(), dedup.DefaultPath))
	open := func(ctx context.Context) (browser.Surface, error) { return f, nil }
	return New(cfg, open, fixedCode("000000"), store, sender), store
}

func lastCalls(f *browsertest.Fake, n int) []string {
	if len(f.Calls) < n {
		return f.Calls
	}
	return f.Calls[len(f.Calls)-n:]
}

func TestRunCompletesAndTearsDown(t *testing.T) {
	cfg := testConfig(t)
	f := loggedInPortal(cfg, 2)
	sender := &stubSender{deliver: true}
	r, store := newRunner(t, cfg, f, sender)

	rep := r.Run(context.Background())
	require.NoError(t, rep.Err)

	assert.True(t, rep.Success())
	assert.NotEmpty(t, rep.ID)
	assert.Equal(t, auth.PathCached, rep.Auth.Path)
	assert.Equal(t, 2, rep.Outcome.Current)
	assert.True(t, rep.Outcome.Saved)
	assert.Len(t, sender.sent, 1)
	assert.Equal(t, 1, rep.Persisted)
	assert.Empty(t, rep.Snapshot)

	n, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// persistence happens before the browser closes
	assert.Equal(t, []string{"Cookies", "SetCookie MoodleSession", "Close"}, lastCalls(f, 3))
	assert.True(t, f.Closed)
	assert.False(t, f.CookieJar[0].IsSession())
}

func TestRunAuthFailureWritesSnapshot(t *testing.T) {
	cfg := testConfig(t)
	f := browsertest.New()
	f.CookieJar = []browser.Cookie{{Name: "MoodleSession", Domain: "moodle.example.edu", Path: "/"}}
	sender := &stubSender{deliver: true}
	r, _ := newRunner(t, cfg, f, sender)

	rep := r.Run(context.Background())
	require.Error(t, rep.Err)

	assert.True(t, errors.IsCategory(rep.Err, errors.CategoryAmbiguousAuth))
	assert.Empty(t, sender.sent)
	assert.Equal(t, 1, rep.Persisted)
	assert.True(t, f.Closed)

	require.NotEmpty(t, rep.Snapshot)
	assert.True(t, strings.HasPrefix(rep.Snapshot, cfg.Paths.SnapshotDir()))
	assert.Contains(t, filepath.Base(rep.Snapshot), "ambiguous_auth")
	_, err := os.Stat(rep.Snapshot)
	assert.NoError(t, err)

	run := rep.Journal()
	assert.Equal(t, "ambiguous_auth", run.ErrorCategory)
	assert.Equal(t, "Failed", run.FinalState)
	assert.Equal(t, rep.Snapshot, run.Snapshot)
}

func TestRunUndeliveredChangeIsSoft(t *testing.T) {
	cfg := testConfig(t)
	f := loggedInPortal(cfg, 4)
	r, store := newRunner(t, cfg, f, &stubSender{})

	rep := r.Run(context.Background())
	require.NoError(t, rep.Err)

	require.Error(t, rep.NotifyErr)
	assert.True(t, errors.IsCategory(rep.NotifyErr, errors.CategoryNotification))
	assert.False(t, rep.Outcome.Saved)
	n, err := store.Load()
	require.NoError(t, err)
	assert.Zero(t, n)

	s := rep.Sample()
	assert.True(t, s.Success)
	assert.Equal(t, 3, s.Attempts)
	assert.Equal(t, 4, s.Targets)
}

func TestRunRecoversPanic(t *testing.T) {
	cfg := testConfig(t)
	f := loggedInPortal(cfg, 1)
	r, _ := newRunner(t, cfg, f, &stubSender{panics: true})

	var rep *Report
	require.NotPanics(t, func() { rep = r.Run(context.Background()) })

	require.Error(t, rep.Err)
	assert.True(t, errors.IsCategory(rep.Err, errors.CategoryInternal))
	assert.Contains(t, rep.Err.Error(), "sender exploded")
	assert.Equal(t, 1, rep.Persisted)
	assert.True(t, f.Closed)
}

func TestRunBrowserStartFailure(t *testing.T) {
	cfg := testConfig(t)
	store := dedup.NewStore(filepath.Join(t.TempDir(), dedup.DefaultPath))
	open := func(ctx context.Context) (browser.Surface, error) {
		return nil, stdErrors.New("chrome not found")
	}
	r := New(cfg, open, fixedCode("000000"), store, &stubSender{})

	rep := r.Run(context.Background())
	require.Error(t, rep.Err)
	assert.True(t, errors.IsCategory(rep.Err, errors.CategoryInternal))
	assert.False(t, rep.FinishedAt.IsZero())
}

func TestRunPersistenceFailureDoesNotFailRun(t *testing.T) {
	cfg := testConfig(t)
	f := loggedInPortal(cfg, 0)
	f.Show(cfg.Portal.TargetSelector, "Quiz")
	f.Errors["SetCookie"] = stdErrors.New("protocol error")
	r, _ := newRunner(t, cfg, f, &stubSender{deliver: true})

	rep := r.Run(context.Background())
	require.NoError(t, rep.Err)
	assert.Zero(t, rep.Persisted)
	assert.True(t, f.Closed)
}
