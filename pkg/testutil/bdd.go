package testutil

import "testing"

// Given, When and Then nest subtests so a scenario reads as a story in
// `go test -v` output.
func Given(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("Given "+desc, fn)
}

func When(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("When "+desc, fn)
}

func Then(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	if !t.Run("Then "+desc, fn) {
		t.FailNow()
	}
}
