package defense

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/skyshield/skyshield/config"
	"github.com/skyshield/skyshield/sim"
)

func testAllocator() *Allocator {
	return NewAllocator(config.Default(), zerolog.Nop())
}

func scoredThreat(id int, score float64, required int) ScoredThreat {
	return ScoredThreat{
		Threat: &sim.Threat{
			ID:       id,
			Category: sim.CategoryRocket,
			Pos:      sim.Vec3{X: float64(id * 100), Y: 2000},
			Vel:      sim.Vec3{X: -100, Y: -50},
			Active:   true,
		},
		Score:        score,
		Required:     required,
		TimeToImpact: 20,
	}
}

func planFor(b *sim.Battery, rate float64, threats ...ScoredThreat) *BatteryPlan {
	plan := &BatteryPlan{
		Battery:          b,
		Coverage:         make(map[int]Solution),
		AvgInterceptTime: 5,
		SuccessRate:      rate,
	}
	for _, st := range threats {
		plan.Coverage[st.Threat.ID] = Solution{
			Point:    sim.Vec3{X: 500, Y: 1000},
			Time:     5,
			Feasible: true,
		}
	}
	return plan
}

func TestAllocatePrefersBetterBattery(t *testing.T) {
	st := scoredThreat(1, 100, 1)

	weak := &sim.Battery{ID: 1, Available: 10, Capacity: 10, Operational: true, CanFireInterceptors: true}
	strong := &sim.Battery{ID: 2, Available: 10, Capacity: 10, Operational: true, CanFireInterceptors: true}

	result := testAllocator().Allocate(
		[]ScoredThreat{st},
		[]*BatteryPlan{planFor(weak, 0.5, st), planFor(strong, 0.95, st)},
		0,
	)

	if len(result.Assignments) != 1 {
		t.Fatalf("assignments = %d, want 1", len(result.Assignments))
	}
	if got := result.Assignments[0].BatteryID; got != strong.ID {
		t.Fatalf("assigned battery = %d, want the higher success rate battery %d", got, strong.ID)
	}
	if strong.Available != 9 {
		t.Fatalf("winning battery inventory = %d, want 9", strong.Available)
	}
	if weak.Available != 10 {
		t.Fatalf("losing battery inventory mutated: %d", weak.Available)
	}
}

func TestAllocateCommitsFullRequiredCount(t *testing.T) {
	st := scoredThreat(1, 100, 3)
	b := &sim.Battery{ID: 1, Available: 8, Capacity: 8, Operational: true, CanFireInterceptors: true}

	result := testAllocator().Allocate([]ScoredThreat{st}, []*BatteryPlan{planFor(b, 0.85, st)}, 0)

	if len(result.Assignments) != 1 || result.Assignments[0].Count != 3 {
		t.Fatalf("assignments = %+v, want one with count 3", result.Assignments)
	}
	if b.Available != 5 {
		t.Fatalf("inventory = %d, want 5", b.Available)
	}
}

func TestAllocateSkipsBatteryWithThinInventory(t *testing.T) {
	// A battery that cannot cover the full required count is not a
	// candidate; partial commitments are never made.
	st := scoredThreat(1, 100, 3)
	b := &sim.Battery{ID: 1, Available: 2, Capacity: 8, Operational: true, CanFireInterceptors: true}

	result := testAllocator().Allocate([]ScoredThreat{st}, []*BatteryPlan{planFor(b, 0.85, st)}, 0)

	if len(result.Assignments) != 0 {
		t.Fatalf("assignments = %+v, want none", result.Assignments)
	}
	if len(result.Unassigned) != 1 {
		t.Fatalf("unassigned = %d, want 1", len(result.Unassigned))
	}
	if b.Available != 2 {
		t.Fatalf("inventory mutated to %d on a skipped battery", b.Available)
	}
}

func TestAllocateInFlightCap(t *testing.T) {
	cfg := config.Default()
	a := testAllocator()

	threats := []ScoredThreat{
		scoredThreat(1, 300, 4),
		scoredThreat(2, 200, 4),
		scoredThreat(3, 100, 1),
	}
	b := &sim.Battery{ID: 1, Available: 100, Capacity: 100, Operational: true, CanFireInterceptors: true}
	plans := []*BatteryPlan{planFor(b, 0.85, threats...)}

	result := a.Allocate(threats, plans, 0)

	committed := 0
	for _, as := range result.Assignments {
		committed += as.Count
	}
	if committed > cfg.MaxInFlight {
		t.Fatalf("committed %d interceptors, cap is %d", committed, cfg.MaxInFlight)
	}
	// 4 + 4 fills the cap of 8: the third threat must be left over.
	if len(result.Assignments) != 2 {
		t.Fatalf("assignments = %d, want 2", len(result.Assignments))
	}
	if len(result.Unassigned) != 1 || result.Unassigned[0].Threat.ID != 3 {
		t.Fatalf("unassigned = %+v, want threat 3", result.Unassigned)
	}
}

func TestAllocateCapAlreadyReached(t *testing.T) {
	cfg := config.Default()
	st := scoredThreat(1, 100, 1)
	b := &sim.Battery{ID: 1, Available: 10, Capacity: 10, Operational: true, CanFireInterceptors: true}

	result := testAllocator().Allocate(
		[]ScoredThreat{st},
		[]*BatteryPlan{planFor(b, 0.85, st)},
		cfg.MaxInFlight,
	)

	if len(result.Assignments) != 0 {
		t.Fatalf("allocated past the in-flight cap: %+v", result.Assignments)
	}
	if len(result.Unassigned) != 1 {
		t.Fatalf("unassigned = %d, want 1", len(result.Unassigned))
	}
	if b.Available != 10 {
		t.Fatalf("inventory spent despite cap: %d", b.Available)
	}
}

func TestAllocatePriorityOrderUnderScarcity(t *testing.T) {
	// With inventory for only one shot, the higher-priority threat wins.
	high := scoredThreat(1, 200, 1)
	low := scoredThreat(2, 50, 1)
	b := &sim.Battery{ID: 1, Available: 1, Capacity: 10, Operational: true, CanFireInterceptors: true}

	result := testAllocator().Allocate(
		[]ScoredThreat{high, low},
		[]*BatteryPlan{planFor(b, 0.85, high, low)},
		0,
	)

	if len(result.Assignments) != 1 || result.Assignments[0].Threat.Threat.ID != 1 {
		t.Fatalf("assignments = %+v, want only the high-priority threat", result.Assignments)
	}
	if len(result.Unassigned) != 1 || result.Unassigned[0].Threat.ID != 2 {
		t.Fatalf("unassigned = %+v, want the low-priority threat", result.Unassigned)
	}
}

func TestAllocateEfficiency(t *testing.T) {
	covered := scoredThreat(1, 300, 1)
	uncovered := scoredThreat(2, 100, 1)
	b := &sim.Battery{ID: 1, Available: 10, Capacity: 10, Operational: true, CanFireInterceptors: true}

	// Only the first threat is in coverage.
	result := testAllocator().Allocate(
		[]ScoredThreat{covered, uncovered},
		[]*BatteryPlan{planFor(b, 0.85, covered)},
		0,
	)

	want := 300.0 / 400.0
	if result.Efficiency != want {
		t.Fatalf("efficiency = %v, want %v", result.Efficiency, want)
	}
}

func TestScoreCandidateScarcityBias(t *testing.T) {
	a := testAllocator()
	st := scoredThreat(1, 100, 1)

	broad := planFor(&sim.Battery{ID: 1, Available: 5, Capacity: 10}, 0.85,
		st, scoredThreat(2, 50, 1), scoredThreat(3, 50, 1), scoredThreat(4, 50, 1))
	narrow := planFor(&sim.Battery{ID: 2, Available: 5, Capacity: 10}, 0.85, st)

	if bs, ns := a.scoreCandidate(st, broad, 4), a.scoreCandidate(st, narrow, 4); ns <= bs {
		t.Fatalf("narrow-coverage battery score %v not above broad-coverage %v", ns, bs)
	}
}
