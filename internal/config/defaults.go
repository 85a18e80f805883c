package config

import (
	"time"

	"github.com/lance13c/portalwatch/internal/dedup"
	"github.com/lance13c/portalwatch/internal/lock"
	"github.com/lance13c/portalwatch/internal/notify"
)

// DefaultPortal is the RWTH Moodle profile behind RWTH single sign-on.
func DefaultPortal() PortalConfig {
	return PortalConfig{
		IdPDomain:      "sso.rwth-aachen.de",
		TargetSelector: ".modtype_quiz",
		Selectors: Selectors{
			AuthMarker:  ".userinitials",
			LoginLink:   "#usernavigation > div:nth-of-type(3) > div > span > a",
			SSOButton:   "#region-main > div > div:nth-of-type(3) > div:nth-of-type(2) > div > div:nth-of-type(1) > a",
			Username:    "#username",
			Password:    "#password",
			LoginSubmit: "#login",
			MFADevice:   "#fudis_selected_token_ids_input",
			MFAProceed:  "#fudiscr-form button",
			OTPInput:    "#fudis_otp_input",
			OTPSubmit:   "#fudiscr-form button:nth-of-type(1)",
		},
		Labels: Labels{
			LoginLink:   []string{"Login", "Log in"},
			SSOButton:   []string{"Login via RWTH Single Sign-on"},
			LoginSubmit: []string{"Anmeldung"},
			MFAProceed:  []string{"Weiter"},
			OTPSubmit:   []string{"Überprüfen"},
		},
	}
}

func defaults() Config {
	return Config{
		Browser: BrowserConfig{},
		Portal:  DefaultPortal(),
		Paths: PathsConfig{
			DataDir:   "data",
			LockFile:  lock.DefaultPath,
			DedupFile: dedup.DefaultPath,
		},
		Timeouts: TimeoutsConfig{
			Wait:  10 * time.Second,
			Probe: 5 * time.Second,
		},
		Notify: NotifyConfig{
			Attempts: notify.DefaultAttempts,
			Delay:    notify.DefaultDelay,
		},
	}
}
