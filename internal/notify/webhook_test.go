package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyServer fails the first failures requests with 500 and then succeeds.
func flakyServer(t *testing.T, failures int32, got *[]string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var p payload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		if got != nil {
			*got = append(*got, p.Content)
		}
		if n <= failures {
			http.Error(w, "upstream unavailable", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestSendSucceedsOnAttemptK(t *testing.T) {
	for k := int32(1); k <= 3; k++ {
		srv, calls := flakyServer(t, k-1, nil)
		w := NewWebhook(srv.URL, WithDelay(0))

		res := w.Send(context.Background(), "hello")

		assert.True(t, res.Delivered, "k=%d", k)
		assert.Equal(t, int(k), res.Attempts)
		assert.Equal(t, k, calls.Load(), "no attempts after success")
		assert.NoError(t, res.LastErr)
	}
}

func TestSendGivesUpAfterThreeAttempts(t *testing.T) {
	srv, calls := flakyServer(t, 100, nil)
	w := NewWebhook(srv.URL, WithDelay(0))

	res := w.Send(context.Background(), "hello")

	assert.False(t, res.Delivered)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, int32(3), calls.Load())
	assert.ErrorContains(t, res.LastErr, "500")
}

func TestSendNetworkFailureDoesNotPanic(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := NewWebhook(url, WithDelay(0)).Send(context.Background(), "hello")
	assert.False(t, res.Delivered)
	assert.Equal(t, 3, res.Attempts)
	assert.Error(t, res.LastErr)
}

func TestSendPayload(t *testing.T) {
	var got []string
	srv, _ := flakyServer(t, 0, &got)

	msg := ChangeMessage("4242", 5, 6, "https://portal.example/course/view.php?id=1")
	res := NewWebhook(srv.URL).Send(context.Background(), msg)

	require.True(t, res.Delivered)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "<@4242>")
	assert.Contains(t, got[0], "5")
	assert.Contains(t, got[0], "6")
	assert.Contains(t, got[0], "https://portal.example/course/view.php?id=1")
}

func TestSendStopsOnCancelledContext(t *testing.T) {
	srv, _ := flakyServer(t, 100, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := NewWebhook(srv.URL, WithDelay(0)).Send(ctx, "hello")
	assert.False(t, res.Delivered)
	assert.LessOrEqual(t, res.Attempts, 1)
}
