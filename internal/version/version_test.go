package version

import "testing"

func TestString(t *testing.T) {
	v, c, d := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = v, c, d })

	Version, Commit, Date = "v1.2.0", "abc1234def5678", "2026-01-02"
	if got := String(); got != "v1.2.0 (abc1234, 2026-01-02)" {
		t.Errorf("String() = %q", got)
	}

	Commit = "short"
	if got := String(); got != "v1.2.0 (short, 2026-01-02)" {
		t.Errorf("String() = %q", got)
	}
}
