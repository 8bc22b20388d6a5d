package defense

import "context"

// sweepConsistency is the periodic invariant checker: it clears
// assignment-ledger entries for threats that no longer exist, corrects
// interceptor target references pointing at dead threats, and releases
// being-intercepted claims that no interceptor actually backs. The
// adjudicator owns those flags in normal operation; the sweep only
// repairs leaks from missed cleanup. Running it twice in a row with no
// state change in between mutates nothing the second time.
func (e *Engine) sweepConsistency() {
	trackers := e.trackerCounts()

	// Ledger entries for threats that are gone or untracked.
	for threatID, count := range e.assignments {
		t := e.threatByID(threatID)
		if t == nil || !t.Active || count <= 0 {
			delete(e.assignments, threatID)
			continue
		}
		// Ledger drifted from reality: resync to the observed count.
		if actual := trackers[threatID]; actual != count {
			if actual == 0 {
				delete(e.assignments, threatID)
			} else {
				e.assignments[threatID] = actual
			}
		}
	}

	// Interceptors must reference a live threat or nothing.
	for _, i := range e.interceptors {
		if !i.Active || !i.HasTarget() {
			continue
		}
		t := e.threatByID(i.TargetID)
		if t == nil || !t.Active {
			e.guidance.Forget(i.ID)
			i.TargetID = 0
		}
	}

	// A being-intercepted claim with no interceptor behind it is a leak.
	for _, t := range e.threatIndex {
		if t.Active && t.BeingIntercepted() && trackers[t.ID] == 0 {
			t.Unclaim()
			e.log.Warn().Int("threat", t.ID).Msg("cleared leaked intercept claim")
		}
	}

	e.metrics.cacheSize.Record(context.Background(), int64(e.cache.Len()))
}
