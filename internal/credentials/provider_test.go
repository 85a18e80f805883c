package credentials

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// base32 of the RFC 6238 SHA-1 seed "12345678901234567890".
const rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestCodeAtMatchesRFC6238Vectors(t *testing.T) {
	p, err := NewProvider(Credentials{MFASecret: rfcSecret}, nil)
	require.NoError(t, err)

	// Last six digits of the 8-digit reference values.
	vectors := map[int64]string{
		59:          "287082",
		1111111109:  "081804",
		1111111111:  "050471",
		1234567890:  "005924",
		2000000000:  "279037",
		20000000000: "353130",
	}
	for unix, want := range vectors {
		got, err := p.CodeAt(time.Unix(unix, 0).UTC())
		require.NoError(t, err)
		assert.Equal(t, want, got, "t=%d", unix)
	}
}

func TestGenerateCodeUsesClockAtCallTime(t *testing.T) {
	now := time.Unix(59, 0)
	p, err := NewProvider(Credentials{MFASecret: rfcSecret}, func() time.Time { return now })
	require.NoError(t, err)

	first, err := p.GenerateCode()
	require.NoError(t, err)
	assert.Equal(t, "287082", first)

	now = now.Add(CodePeriod)
	second, err := p.GenerateCode()
	require.NoError(t, err)
	assert.Len(t, second, CodeDigits)
	assert.NotEqual(t, first, second)
}

func TestSecretNormalization(t *testing.T) {
	p, err := NewProvider(Credentials{MFASecret: "gezd gnbv gy3t qojq gezd gnbv gy3t qojq"}, nil)
	require.NoError(t, err)

	got, err := p.CodeAt(time.Unix(59, 0))
	require.NoError(t, err)
	assert.Equal(t, "287082", got)
}

func TestInvalidSecretRejected(t *testing.T) {
	_, err := NewProvider(Credentials{MFASecret: "not*base32!"}, nil)
	assert.Error(t, err)
}

func TestStringHidesSecrets(t *testing.T) {
	c := Credentials{Username: "ab123456", Password: "hunter2", MFADevice: "TOTP1", MFASecret: rfcSecret}
	s := c.String()
	assert.NotContains(t, s, "hunter2")
	assert.NotContains(t, s, rfcSecret)
	assert.Contains(t, s, "ab123456")
}
