package supervisor

import "time"

// idleTracker decides when to surface the idle prompt: once per idle
// episode, where an episode is a silence longer than the threshold that
// ends with new output.
type idleTracker struct {
	threshold  time.Duration
	lastOutput time.Time
	shown      bool
}

func newIdleTracker(threshold time.Duration, now time.Time) *idleTracker {
	return &idleTracker{threshold: threshold, lastOutput: now}
}

// Output records activity and starts a new episode.
func (t *idleTracker) Output(now time.Time) {
	t.lastOutput = now
	t.shown = false
}

// Check reports whether the prompt should be shown now. It returns true at
// most once per episode.
func (t *idleTracker) Check(now time.Time) bool {
	if t.threshold <= 0 || t.shown {
		return false
	}
	if now.Sub(t.lastOutput) < t.threshold {
		return false
	}
	t.shown = true
	return true
}
