package supervisor

import (
	"testing"
	"time"
)

func TestIdleTracker_OncePerEpisode(t *testing.T) {
	start := time.Unix(1000, 0)
	tr := newIdleTracker(5*time.Second, start)

	fired := 0
	// Two silent intervals separated by output; poll every 100ms.
	for ms := 0; ms <= 20000; ms += 100 {
		now := start.Add(time.Duration(ms) * time.Millisecond)
		if ms == 12000 {
			tr.Output(now)
		}
		if tr.Check(now) {
			fired++
		}
	}

	if fired != 2 {
		t.Errorf("idle prompt fired %d times, want 2", fired)
	}
}

func TestIdleTracker_NotBeforeThreshold(t *testing.T) {
	start := time.Unix(0, 0)
	tr := newIdleTracker(5*time.Second, start)

	if tr.Check(start.Add(4999 * time.Millisecond)) {
		t.Error("Check fired before threshold")
	}
	if !tr.Check(start.Add(5 * time.Second)) {
		t.Error("Check did not fire at threshold")
	}
	if tr.Check(start.Add(time.Hour)) {
		t.Error("Check fired twice in one episode")
	}
}

func TestIdleTracker_OutputResets(t *testing.T) {
	start := time.Unix(0, 0)
	tr := newIdleTracker(time.Second, start)

	for i := 1; i <= 10; i++ {
		now := start.Add(time.Duration(i) * 500 * time.Millisecond)
		tr.Output(now)
		if tr.Check(now) {
			t.Fatalf("fired at step %d despite steady output", i)
		}
	}
}

func TestIdleTracker_Disabled(t *testing.T) {
	tr := newIdleTracker(0, time.Unix(0, 0))
	if tr.Check(time.Unix(3600, 0)) {
		t.Error("zero threshold should disable the idle prompt")
	}
}
