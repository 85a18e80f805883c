package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *WatchError
		expected string
	}{
		{
			name:     "no cause no context",
			err:      New(CategoryInternal, "boom"),
			expected: "internal: boom",
		},
		{
			name:     "context sorted by key",
			err:      New(CategoryUnexpectedUI, "mismatch").WithContext("b", 2).WithContext("a", 1),
			expected: "unexpected_ui: mismatch [a=1 b=2]",
		},
		{
			name:     "with cause",
			err:      Wrap(fmt.Errorf("deadline"), CategoryTimeout, "wait failed"),
			expected: "timeout: wait failed: deadline",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestCategoryOfWrapped(t *testing.T) {
	base := ElementNotFound("CredentialsSubmitted", "#username", nil)
	wrapped := fmt.Errorf("authenticate: %w", base)

	assert.Equal(t, CategoryElementNotFound, CategoryOf(wrapped))
	assert.True(t, IsCategory(wrapped, CategoryElementNotFound))
	assert.Equal(t, CategoryInternal, CategoryOf(stdErrors.New("plain")))
	assert.Equal(t, Category(""), CategoryOf(nil))
}

func TestUnexpectedUICarriesExpectedAndActual(t *testing.T) {
	err := UnexpectedUI("MFAChallenge", "#fudiscr-form button", []string{"Weiter"}, "Abbrechen")

	we, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, "Weiter", we.Context["expected"])
	assert.Equal(t, "Abbrechen", we.Context["actual"])
	assert.Contains(t, err.Error(), "actual=Abbrechen")
}

func TestUnwrap(t *testing.T) {
	cause := stdErrors.New("root")
	err := Timeout("NeedLogin", "idp location", cause)
	assert.ErrorIs(t, err, cause)
}

func TestExitCodeFor(t *testing.T) {
	assert.Equal(t, 0, ExitCodeFor(nil))
	assert.Equal(t, 7, ExitCodeFor(ConfigMissing([]string{"SSO_USERNAME"})))
	assert.Equal(t, 3, ExitCodeFor(AmbiguousAuthState(".a", ".b")))
	assert.Equal(t, 6, ExitCodeFor(fmt.Errorf("x: %w", UnexpectedUI("s", "sel", nil, ""))))
	assert.Equal(t, 10, ExitCodeFor(stdErrors.New("other")))
}
