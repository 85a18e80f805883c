package config

import (
	"path/filepath"
	"time"

	"github.com/lance13c/portalwatch/internal/credentials"
)

// Config is the complete, immutable configuration of one run.
type Config struct {
	Credentials credentials.Credentials
	WebhookURL  string
	MentionID   string
	PageURL     string

	Browser  BrowserConfig
	Portal   PortalConfig
	Paths    PathsConfig
	Timeouts TimeoutsConfig
	Notify   NotifyConfig
}

// BrowserConfig selects how Chrome is started or reached.
type BrowserConfig struct {
	Headless  bool
	RemoteURL string
}

// PortalConfig describes the portal and its SSO login pages.
type PortalConfig struct {
	// HomeURL is opened first to probe the session. Defaults to the page URL.
	HomeURL string `yaml:"home_url"`
	// Domain owns the session cookies. Defaults to the page URL host.
	Domain         string    `yaml:"domain"`
	IdPDomain      string    `yaml:"idp_domain"`
	TargetSelector string    `yaml:"target_selector"`
	Selectors      Selectors `yaml:"selectors"`
	Labels         Labels    `yaml:"labels"`
}

// Selectors are CSS selectors for every control the login flow touches.
type Selectors struct {
	AuthMarker  string `yaml:"auth_marker"`
	LoginLink   string `yaml:"login_link"`
	SSOButton   string `yaml:"sso_button"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	LoginSubmit string `yaml:"login_submit"`
	MFADevice   string `yaml:"mfa_device"`
	MFAProceed  string `yaml:"mfa_proceed"`
	OTPInput    string `yaml:"otp_input"`
	OTPSubmit   string `yaml:"otp_submit"`
}

// Labels are the accepted texts of controls that are clicked. A control
// matches when its text contains any of the candidates.
type Labels struct {
	LoginLink   []string `yaml:"login_link"`
	SSOButton   []string `yaml:"sso_button"`
	LoginSubmit []string `yaml:"login_submit"`
	MFAProceed  []string `yaml:"mfa_proceed"`
	OTPSubmit   []string `yaml:"otp_submit"`
}

// PathsConfig locates persisted files. Relative paths resolve against the
// working directory.
type PathsConfig struct {
	DataDir     string
	LockFile    string
	DedupFile   string
	MetricsFile string
}

// ProfileDir is the Chrome user-data dir.
func (p PathsConfig) ProfileDir() string {
	return filepath.Join(p.DataDir, "chrome_profile")
}

// JournalPath is the SQLite run journal.
func (p PathsConfig) JournalPath() string {
	return filepath.Join(p.DataDir, "portalwatch.db")
}

// SnapshotDir holds failure snapshots.
func (p PathsConfig) SnapshotDir() string {
	return filepath.Join(p.DataDir, "snapshots")
}

// TimeoutsConfig bounds every wait.
type TimeoutsConfig struct {
	Wait  time.Duration `yaml:"wait"`
	Probe time.Duration `yaml:"probe"`
}

// NotifyConfig controls webhook retries.
type NotifyConfig struct {
	Attempts int           `yaml:"attempts"`
	Delay    time.Duration `yaml:"delay"`
}

// fileConfig is the optional YAML portal profile.
type fileConfig struct {
	Portal   PortalConfig   `yaml:"portal"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
	Notify   NotifyConfig   `yaml:"notify"`
}
