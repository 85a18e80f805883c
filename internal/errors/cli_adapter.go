package errors

// ExitCodeFor maps a run error to a process exit code for --strict-exit.
// A nil error maps to 0.
func ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	switch CategoryOf(err) {
	case CategoryConfig:
		return 7
	case CategoryAmbiguousAuth:
		return 3
	case CategoryTimeout:
		return 4
	case CategoryElementNotFound:
		return 5
	case CategoryUnexpectedUI:
		return 6
	case CategoryNotification:
		return 8
	case CategoryFileSystem:
		return 11
	default:
		return 10
	}
}
