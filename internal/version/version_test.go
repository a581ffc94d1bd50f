package version

import "testing"

func TestString(t *testing.T) {
	oldV, oldC := Version, Commit
	t.Cleanup(func() { Version, Commit = oldV, oldC })

	Version, Commit = "0.2.0", "abc123"
	if got := String(); got != "0.2.0 (commit: abc123)" {
		t.Fatalf("String() = %q", got)
	}
}
