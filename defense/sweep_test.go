package defense

import (
	"testing"

	"github.com/skyshield/skyshield/config"
	"github.com/skyshield/skyshield/sim"
)

func TestSweepClearsStaleLedgerEntries(t *testing.T) {
	e := newTestEngine(t, config.Default())
	live := slowThreat(1)
	e.indexWorld([]*sim.Threat{live}, nil)

	// Ledger entries for a threat that no longer exists and for a live
	// threat nothing actually tracks.
	e.assignments[99] = 2
	e.assignments[live.ID] = 3

	e.sweepConsistency()

	if _, ok := e.assignments[99]; ok {
		t.Fatal("ledger entry for a missing threat survived the sweep")
	}
	if _, ok := e.assignments[live.ID]; ok {
		t.Fatal("ledger entry with no interceptors behind it survived the sweep")
	}
}

func TestSweepResyncsLedgerToObservedTrackers(t *testing.T) {
	e := newTestEngine(t, config.Default())
	threat := slowThreat(1)
	e.indexWorld([]*sim.Threat{threat}, nil)

	interceptorOn(e, threat.ID, sim.Vec3{})
	interceptorOn(e, threat.ID, sim.Vec3{X: 50})
	e.assignments[threat.ID] = 5 // drifted

	e.sweepConsistency()

	if got := e.assignments[threat.ID]; got != 2 {
		t.Fatalf("ledger = %d after sweep, want observed count 2", got)
	}
}

func TestSweepClearsDeadTargetReferences(t *testing.T) {
	e := newTestEngine(t, config.Default())
	dead := slowThreat(1)
	dead.Active = false
	e.indexWorld([]*sim.Threat{dead}, nil)

	i := interceptorOn(e, dead.ID, sim.Vec3{})

	e.sweepConsistency()

	if i.HasTarget() {
		t.Fatalf("interceptor still references dead threat %d", i.TargetID)
	}
	// The interceptor itself keeps flying; retirement is the engine
	// loop's decision, not the sweep's.
	if !i.Active {
		t.Fatal("sweep killed the interceptor")
	}
}

func TestSweepReleasesLeakedClaims(t *testing.T) {
	e := newTestEngine(t, config.Default())
	threat := slowThreat(1)
	e.indexWorld([]*sim.Threat{threat}, nil)

	// A claim with no interceptor behind it: adjudication cleanup leaked.
	if !threat.Claim() {
		t.Fatal("setup claim failed")
	}

	e.sweepConsistency()

	if threat.BeingIntercepted() {
		t.Fatal("leaked claim survived the sweep")
	}
}

func TestSweepKeepsBackedClaims(t *testing.T) {
	e := newTestEngine(t, config.Default())
	threat := slowThreat(1)
	e.indexWorld([]*sim.Threat{threat}, nil)
	interceptorOn(e, threat.ID, threat.Pos)

	if !threat.Claim() {
		t.Fatal("setup claim failed")
	}

	e.sweepConsistency()

	if !threat.BeingIntercepted() {
		t.Fatal("sweep released a claim that an interceptor backs")
	}
}

func TestSweepIdempotent(t *testing.T) {
	e := newTestEngine(t, config.Default())

	live := slowThreat(1)
	dead := slowThreat(2)
	dead.Active = false
	e.indexWorld([]*sim.Threat{live, dead}, nil)

	interceptorOn(e, live.ID, sim.Vec3{})
	orphan := interceptorOn(e, dead.ID, sim.Vec3{X: 100})
	e.assignments[42] = 1
	_ = live.Claim()

	e.sweepConsistency()

	snapshot := func() (map[int]int, map[int]int, bool) {
		ledger := make(map[int]int, len(e.assignments))
		for k, v := range e.assignments {
			ledger[k] = v
		}
		targets := make(map[int]int, len(e.interceptors))
		for id, i := range e.interceptors {
			targets[id] = i.TargetID
		}
		return ledger, targets, live.BeingIntercepted()
	}

	ledger1, targets1, claim1 := snapshot()
	e.sweepConsistency()
	ledger2, targets2, claim2 := snapshot()

	if len(ledger1) != len(ledger2) {
		t.Fatalf("second sweep changed the ledger: %v -> %v", ledger1, ledger2)
	}
	for k, v := range ledger1 {
		if ledger2[k] != v {
			t.Fatalf("second sweep changed ledger[%d]: %d -> %d", k, v, ledger2[k])
		}
	}
	for id, tgt := range targets1 {
		if targets2[id] != tgt {
			t.Fatalf("second sweep changed interceptor %d target: %d -> %d", id, tgt, targets2[id])
		}
	}
	if claim1 != claim2 {
		t.Fatalf("second sweep changed the claim state: %v -> %v", claim1, claim2)
	}
	if orphan.HasTarget() {
		t.Fatal("orphan interceptor still references the dead threat")
	}
}
