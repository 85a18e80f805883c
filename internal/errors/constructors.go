package errors

import "strings"

// ConfigMissing reports required environment keys that are absent or blank.
func ConfigMissing(keys []string) *WatchError {
	return New(CategoryConfig, "required configuration missing").
		WithContext("keys", strings.Join(keys, ","))
}

// ConfigInvalid reports a setting that is present but unusable.
func ConfigInvalid(field string, cause error) *WatchError {
	return Wrap(cause, CategoryConfig, "invalid configuration").
		WithContext("field", field)
}

// AmbiguousAuthState reports that neither the authenticated marker nor the
// login prompt appeared within the probe window.
func AmbiguousAuthState(authMarker, loginMarker string) *WatchError {
	return New(CategoryAmbiguousAuth, "could not tell whether the session is authenticated").
		WithContext("auth_marker", authMarker).
		WithContext("login_marker", loginMarker)
}

// Timeout reports a bounded wait that gave up.
func Timeout(state, waitingFor string, cause error) *WatchError {
	return Wrap(cause, CategoryTimeout, "bounded wait timed out").
		WithContext("state", state).
		WithContext("waiting_for", waitingFor)
}

// ElementNotFound reports a required element missing from the page.
func ElementNotFound(state, selector string, cause error) *WatchError {
	return Wrap(cause, CategoryElementNotFound, "expected element not found").
		WithContext("state", state).
		WithContext("selector", selector)
}

// UnexpectedUI reports a control whose label does not match any expected text.
func UnexpectedUI(state, selector string, expected []string, actual string) *WatchError {
	return New(CategoryUnexpectedUI, "element text did not match").
		WithContext("state", state).
		WithContext("selector", selector).
		WithContext("expected", strings.Join(expected, " | ")).
		WithContext("actual", actual)
}

// DeliveryFailed reports a notification that exhausted all attempts.
func DeliveryFailed(attempts int, cause error) *WatchError {
	return Wrap(cause, CategoryNotification, "notification delivery failed").
		WithContext("attempts", attempts)
}

// Internal wraps an unexpected failure.
func Internal(message string, cause error) *WatchError {
	return Wrap(cause, CategoryInternal, message)
}
