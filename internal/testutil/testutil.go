// Package testutil holds the assertion helpers the HTTP handler tests
// share.
package testutil

import "testing"

// AssertStatusCode fails the test when a handler wrote the wrong
// status.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test immediately on an unexpected error.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
