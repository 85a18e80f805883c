// Package metrics exposes run results in the Prometheus textfile format so
// a node_exporter textfile collector can pick them up between runs.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the gauges describing the last run.
type Recorder struct {
	reg           *prom.Registry
	success       prom.Gauge
	targets       prom.Gauge
	attempts      prom.Gauge
	loginDone     prom.Gauge
	lastTimestamp prom.Gauge
	duration      prom.Gauge
	failures      *prom.GaugeVec
}

// NewRecorder constructs and registers the gauges on reg, or on a fresh
// registry when reg is nil.
func NewRecorder(reg *prom.Registry) *Recorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	r := &Recorder{
		reg: reg,
		success: prom.NewGauge(prom.GaugeOpts{
			Namespace: "portalwatch",
			Name:      "last_run_success",
			Help:      "1 when the last run finished without error",
		}),
		targets: prom.NewGauge(prom.GaugeOpts{
			Namespace: "portalwatch",
			Name:      "target_count",
			Help:      "Tracked elements counted on the watched page",
		}),
		attempts: prom.NewGauge(prom.GaugeOpts{
			Namespace: "portalwatch",
			Name:      "notification_attempts",
			Help:      "Webhook attempts made by the last run",
		}),
		loginDone: prom.NewGauge(prom.GaugeOpts{
			Namespace: "portalwatch",
			Name:      "login_performed",
			Help:      "1 when the last run had to log in again",
		}),
		lastTimestamp: prom.NewGauge(prom.GaugeOpts{
			Namespace: "portalwatch",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
		duration: prom.NewGauge(prom.GaugeOpts{
			Namespace: "portalwatch",
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run",
		}),
		failures: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "portalwatch",
			Name:      "last_run_failure",
			Help:      "1 for the failure category of the last run",
		}, []string{"category"}),
	}
	reg.MustRegister(r.success, r.targets, r.attempts, r.loginDone, r.lastTimestamp, r.duration, r.failures)
	return r
}

// Sample is what one run reports.
type Sample struct {
	FinishedAt    time.Time
	Duration      time.Duration
	Success       bool
	FailureReason string
	Targets       int
	Attempts      int
	LoggedIn      bool
}

// Observe sets every gauge from s.
func (r *Recorder) Observe(s Sample) {
	r.success.Set(boolValue(s.Success))
	r.targets.Set(float64(s.Targets))
	r.attempts.Set(float64(s.Attempts))
	r.loginDone.Set(boolValue(s.LoggedIn))
	r.lastTimestamp.Set(float64(s.FinishedAt.Unix()))
	r.duration.Set(s.Duration.Seconds())
	r.failures.Reset()
	if s.FailureReason != "" {
		r.failures.WithLabelValues(s.FailureReason).Set(1)
	}
}

// WriteTextfile writes the registry to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prom.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
