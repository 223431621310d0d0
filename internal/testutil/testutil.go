// Package testutil provides shared test helpers for matrices, float
// sequences and fixture files.
package testutil

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/camstream/internal/camera/transform"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertFloatsNear reports every element of got that differs from want by
// more than tol.
func AssertFloatsNear(t testing.TB, got, want []float32, tol float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Errorf("length = %d, want %d", len(got), len(want))
		return
	}
	for i := range want {
		if math.Abs(float64(got[i])-float64(want[i])) > tol {
			t.Errorf("[%d] = %g, want %g (tol %g)", i, got[i], want[i], tol)
		}
	}
}

// AssertTransformNear compares two transforms element-wise.
func AssertTransformNear(t testing.TB, got, want transform.Transform, tol float64) {
	t.Helper()
	AssertFloatsNear(t, got[:], want[:], tol)
}

// WriteFile writes content to name inside a fresh temp directory and
// returns the full path.
func WriteFile(t testing.TB, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
