package util

import "testing"

// AssertError checks an actual error against an expected message.
// Returns true when the case is finished (an error was expected and
// matched).
func AssertError(t *testing.T, idx int, expected string, err error) bool {
	t.Helper()
	if err != nil {
		if expected == "" {
			t.Fatalf("case %d: unexpected error: %v", idx, err)
		}
		if err.Error() != expected {
			t.Fatalf(`case %d: expected error "%s"; got "%s"`, idx, expected, err.Error())
		}
		return true
	}
	if expected != "" {
		t.Fatalf(`case %d: expected error "%s"; got none`, idx, expected)
	}
	return false
}
