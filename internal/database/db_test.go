package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "nested", "portalwatch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndLastRuns(t *testing.T) {
	j := openJournal(t)
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	require.NoError(t, j.Record(Run{
		ID: "run-1", StartedAt: base, Duration: 1500 * time.Millisecond,
		AuthPath: "cached", FinalState: "LoggedIn", Previous: 5, Current: 5,
	}))
	require.NoError(t, j.Record(Run{
		ID: "run-2", StartedAt: base.Add(15 * time.Minute), Duration: 9 * time.Second,
		AuthPath: "login", FinalState: "LoggedIn", Previous: 5, Current: 6,
		Changed: true, Delivered: true, Attempts: 2,
	}))
	require.NoError(t, j.Record(Run{
		ID: "run-3", StartedAt: base.Add(30 * time.Minute), FinalState: "Failed",
		ErrorCategory: "timeout", Error: "timeout: bounded wait timed out", Snapshot: "data/snapshots/run-3.html",
	}))

	runs, err := j.LastRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "run-3", runs[0].ID)
	assert.False(t, runs[0].Success())
	assert.Equal(t, "data/snapshots/run-3.html", runs[0].Snapshot)

	assert.Equal(t, "run-2", runs[1].ID)
	assert.True(t, runs[1].Success())
	assert.True(t, runs[1].Changed)
	assert.True(t, runs[1].Delivered)
	assert.Equal(t, 2, runs[1].Attempts)
	assert.Equal(t, 9*time.Second, runs[1].Duration)
	assert.True(t, runs[1].StartedAt.Equal(base.Add(15*time.Minute)))
}

func TestDuplicateIDRejected(t *testing.T) {
	j := openJournal(t)
	r := Run{ID: "same", StartedAt: time.Now()}
	require.NoError(t, j.Record(r))
	assert.Error(t, j.Record(r))
}

func TestPrune(t *testing.T) {
	j := openJournal(t)
	now := time.Now()
	require.NoError(t, j.Record(Run{ID: "old", StartedAt: now.Add(-60 * 24 * time.Hour)}))
	require.NoError(t, j.Record(Run{ID: "new", StartedAt: now}))

	n, err := j.Prune(now.Add(-30 * 24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	runs, err := j.LastRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "new", runs[0].ID)
}

func TestReopenKeepsRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portalwatch.db")
	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Record(Run{ID: "persisted", StartedAt: time.Now()}))
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()
	runs, err := j.LastRuns(5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "persisted", runs[0].ID)
}
