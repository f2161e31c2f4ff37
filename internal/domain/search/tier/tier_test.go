package tier

import "testing"

func TestCascadeOrder(t *testing.T) {
	want := []Tier{Hybrid, Substring, NGram, Recency}
	if len(Cascade) != len(want) {
		t.Fatalf("cascade has %d tiers, want %d", len(Cascade), len(want))
	}
	for i := range want {
		if Cascade[i] != want[i] {
			t.Errorf("tier %d = %q, want %q", i, Cascade[i], want[i])
		}
	}
}

func TestIsFallback(t *testing.T) {
	if Hybrid.IsFallback() || None.IsFallback() {
		t.Error("hybrid and none are not fallback tiers")
	}
	for _, tr := range []Tier{Substring, NGram, Recency, Proximity} {
		if !tr.IsFallback() {
			t.Errorf("%q.IsFallback() = false", tr)
		}
	}
}
