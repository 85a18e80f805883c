// Package credentials holds the SSO identity secrets and derives the
// time-based one-time codes the MFA step submits.
package credentials

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// CodePeriod is the TOTP time step.
	CodePeriod = 30 * time.Second
	// CodeDigits is the length of a generated code.
	CodeDigits = 6
)

// Credentials are the identity secrets for one SSO account.
type Credentials struct {
	Username  string
	Password  string
	MFADevice string
	MFASecret string
}

// String never prints secrets.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Username: %q, MFADevice: %q}", c.Username, c.MFADevice)
}

// Provider produces TOTP codes for the MFA secret.
type Provider struct {
	secret string
	now    func() time.Time
}

// NewProvider validates the MFA secret and returns a provider using the
// wall clock. A nil clock defaults to time.Now.
func NewProvider(c Credentials, clock func() time.Time) (*Provider, error) {
	if clock == nil {
		clock = time.Now
	}
	p := &Provider{
		secret: normalizeSecret(c.MFASecret),
		now:    clock,
	}
	if _, err := p.CodeAt(time.Unix(0, 0)); err != nil {
		return nil, fmt.Errorf("invalid MFA secret: %w", err)
	}
	return p, nil
}

// GenerateCode returns the code valid at this instant. Callers must submit
// it right away; it is never cached.
func (p *Provider) GenerateCode() (string, error) {
	return p.CodeAt(p.now())
}

// CodeAt returns the 6-digit, 30-second-step SHA-1 code for t.
func (p *Provider) CodeAt(t time.Time) (string, error) {
	return totp.GenerateCodeCustom(p.secret, t, totp.ValidateOpts{
		Period:    uint(CodePeriod / time.Second),
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
}

func normalizeSecret(s string) string {
	s = strings.ReplaceAll(s, " ", "")
	s = strings.TrimRight(s, "=")
	return strings.ToUpper(s)
}
