// Package config loads the run configuration from the environment, an
// optional .env file and an optional YAML portal profile.
package config

import (
	stdErrors "errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/lance13c/portalwatch/internal/credentials"
	"github.com/lance13c/portalwatch/internal/errors"
)

// Required environment keys.
const (
	EnvUsername   = "SSO_USERNAME"
	EnvPassword   = "SSO_PASSWORD"
	EnvMFADevice  = "SSO_TAN_NAME"
	EnvMFASecret  = "SSO_TAN_SECRET"
	EnvWebhookURL = "DISCORD_WEBHOOK_URL"
	EnvMentionID  = "DISCORD_USER_ID"
	EnvPageURL    = "PAGE_URL"
)

// Optional environment keys.
const (
	EnvHeadless    = "PORTALWATCH_HEADLESS"
	EnvRemoteURL   = "PORTALWATCH_REMOTE_URL"
	EnvDataDir     = "PORTALWATCH_DATA_DIR"
	EnvConfigFile  = "PORTALWATCH_CONFIG"
	EnvMetricsFile = "PORTALWATCH_METRICS_FILE"
)

// RequiredKeys lists the keys whose absence aborts the run.
var RequiredKeys = []string{
	EnvUsername, EnvPassword, EnvMFADevice, EnvMFASecret,
	EnvWebhookURL, EnvMentionID, EnvPageURL,
}

// LoadOptions carries command-line input to Load.
type LoadOptions struct {
	// EnvFile is read with godotenv before the environment; a missing file
	// is ignored. Defaults to ".env".
	EnvFile string
	// ConfigFile is a YAML portal profile; it overrides PORTALWATCH_CONFIG.
	ConfigFile string
	// Headless and RemoteURL override the environment when set.
	Headless  *bool
	RemoteURL string
}

// Load builds the configuration: built-in defaults, then the YAML profile,
// then the environment, then command-line overrides. Every failure is a
// config-category error.
func Load(opts LoadOptions) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !stdErrors.Is(err, fs.ErrNotExist) {
		return nil, errors.ConfigInvalid("env_file", err).WithContext("path", envFile)
	}

	var missing []string
	get := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := defaults()
	cfg.Credentials = credentials.Credentials{
		Username:  get(EnvUsername),
		Password:  get(EnvPassword),
		MFADevice: get(EnvMFADevice),
		MFASecret: get(EnvMFASecret),
	}
	cfg.WebhookURL = get(EnvWebhookURL)
	cfg.MentionID = get(EnvMentionID)
	cfg.PageURL = get(EnvPageURL)
	if len(missing) > 0 {
		return nil, errors.ConfigMissing(missing)
	}

	configFile := opts.ConfigFile
	if configFile == "" {
		configFile = os.Getenv(EnvConfigFile)
	}
	if configFile != "" {
		if err := cfg.applyFile(configFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if opts.Headless != nil {
		cfg.Browser.Headless = *opts.Headless
	}
	if opts.RemoteURL != "" {
		cfg.Browser.RemoteURL = opts.RemoteURL
	}

	if err := cfg.fillDerived(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.ConfigInvalid("config_file", err).WithContext("path", path)
	}

	fc := fileConfig{Portal: c.Portal, Timeouts: c.Timeouts, Notify: c.Notify}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return errors.ConfigInvalid("config_file", fmt.Errorf("failed to parse YAML: %w", err)).
			WithContext("path", path)
	}
	c.Portal = fc.Portal
	c.Timeouts = fc.Timeouts
	c.Notify = fc.Notify
	return nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv(EnvHeadless); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.ConfigInvalid(EnvHeadless, err)
		}
		c.Browser.Headless = b
	}
	if v := os.Getenv(EnvRemoteURL); v != "" {
		c.Browser.RemoteURL = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv(EnvMetricsFile); v != "" {
		c.Paths.MetricsFile = v
	}
	return nil
}

func (c *Config) fillDerived() error {
	page, err := url.Parse(c.PageURL)
	if err != nil {
		return errors.ConfigInvalid(EnvPageURL, err)
	}
	if c.Portal.HomeURL == "" {
		c.Portal.HomeURL = c.PageURL
	}
	if c.Portal.Domain == "" {
		c.Portal.Domain = page.Hostname()
	}
	c.Portal.Domain = strings.TrimPrefix(strings.ToLower(c.Portal.Domain), ".")
	c.Portal.IdPDomain = strings.TrimPrefix(strings.ToLower(c.Portal.IdPDomain), ".")
	return nil
}

// Validate checks URLs, selectors, timeouts and the MFA secret.
func (c *Config) Validate() error {
	for field, raw := range map[string]string{
		EnvPageURL:        c.PageURL,
		EnvWebhookURL:     c.WebhookURL,
		"portal.home_url": c.Portal.HomeURL,
	} {
		u, err := url.Parse(raw)
		if err != nil {
			return errors.ConfigInvalid(field, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.ConfigInvalid(field, fmt.Errorf("%q is not an absolute http(s) URL", raw))
		}
	}

	if c.Portal.Domain == "" {
		return errors.ConfigInvalid("portal.domain", fmt.Errorf("empty"))
	}
	if c.Portal.IdPDomain == "" {
		return errors.ConfigInvalid("portal.idp_domain", fmt.Errorf("empty"))
	}

	s := c.Portal.Selectors
	for field, sel := range map[string]string{
		"portal.target_selector":        c.Portal.TargetSelector,
		"portal.selectors.auth_marker":  s.AuthMarker,
		"portal.selectors.login_link":   s.LoginLink,
		"portal.selectors.sso_button":   s.SSOButton,
		"portal.selectors.username":     s.Username,
		"portal.selectors.password":     s.Password,
		"portal.selectors.login_submit": s.LoginSubmit,
		"portal.selectors.mfa_device":   s.MFADevice,
		"portal.selectors.mfa_proceed":  s.MFAProceed,
		"portal.selectors.otp_input":    s.OTPInput,
		"portal.selectors.otp_submit":   s.OTPSubmit,
	} {
		if _, err := cascadia.Compile(sel); err != nil {
			return errors.ConfigInvalid(field, fmt.Errorf("invalid selector %q: %w", sel, err))
		}
	}

	if c.Timeouts.Wait <= 0 || c.Timeouts.Probe <= 0 {
		return errors.ConfigInvalid("timeouts", fmt.Errorf("wait and probe must be positive"))
	}
	if c.Notify.Attempts < 1 || c.Notify.Delay < 0 {
		return errors.ConfigInvalid("notify", fmt.Errorf("attempts must be >= 1 and delay >= 0"))
	}

	if _, err := credentials.NewProvider(c.Credentials, nil); err != nil {
		return errors.ConfigInvalid(EnvMFASecret, err)
	}
	return nil
}
