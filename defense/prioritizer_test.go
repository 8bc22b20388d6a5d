package defense

import (
	"math"
	"testing"

	"github.com/rs/zerolog"

	"github.com/skyshield/skyshield/config"
	"github.com/skyshield/skyshield/sim"
)

const rateTolerance = 1e-9

func testPrioritizer() *Prioritizer {
	return NewPrioritizer(config.Default(), zerolog.Nop())
}

func TestPrioritizeOrdering(t *testing.T) {
	// An imminent ballistic missile must outrank a loitering drone
	// regardless of the drone being closer to the ground.
	missile := &sim.Threat{
		ID:       1,
		Category: sim.CategoryBallisticMissile,
		Pos:      sim.Vec3{X: 2000, Y: 800, Z: 0},
		Vel:      sim.Vec3{X: -400, Y: -200, Z: 0},
		Active:   true,
	}
	drone := &sim.Threat{
		ID:       2,
		Category: sim.CategoryDrone,
		Pos:      sim.Vec3{X: 5000, Y: 400, Z: 0},
		Vel:      sim.Vec3{X: -50, Y: 0, Z: 0},
		Active:   true,
	}

	scored := testPrioritizer().Prioritize([]*sim.Threat{drone, missile})
	if len(scored) != 2 {
		t.Fatalf("scored %d threats, want 2", len(scored))
	}
	if scored[0].Threat.ID != missile.ID {
		t.Fatalf("top threat = %d, want ballistic missile %d", scored[0].Threat.ID, missile.ID)
	}
	if scored[0].Score <= scored[1].Score {
		t.Fatalf("scores not descending: %v <= %v", scored[0].Score, scored[1].Score)
	}
}

func TestPrioritizeSkipsInactive(t *testing.T) {
	dead := &sim.Threat{ID: 1, Category: sim.CategoryRocket, Pos: sim.Vec3{Y: 1000}, Active: false}
	live := &sim.Threat{ID: 2, Category: sim.CategoryRocket, Pos: sim.Vec3{Y: 1000}, Active: true}

	scored := testPrioritizer().Prioritize([]*sim.Threat{dead, live})
	if len(scored) != 1 || scored[0].Threat.ID != 2 {
		t.Fatalf("scored = %+v, want only the live threat", scored)
	}
}

func TestTTIUrgencyRaisesScore(t *testing.T) {
	p := testPrioritizer()

	// Same category and speed, different time to impact.
	imminent := &sim.Threat{
		ID:       1,
		Category: sim.CategoryRocket,
		Pos:      sim.Vec3{Y: 200},
		Vel:      sim.Vec3{X: 300, Y: -100},
		Active:   true,
	}
	distant := &sim.Threat{
		ID:       2,
		Category: sim.CategoryRocket,
		Pos:      sim.Vec3{Y: 8000},
		Vel:      sim.Vec3{X: 300, Y: -100},
		Active:   true,
	}

	scored := p.Prioritize([]*sim.Threat{distant, imminent})
	if scored[0].Threat.ID != 1 {
		t.Fatalf("imminent threat did not outrank distant one: %+v", scored)
	}
}

func TestRequiredInterceptors(t *testing.T) {
	p := testPrioritizer()

	// With the default 0.85 success rate a 95% cumulative kill needs
	// ceil(ln(0.05)/ln(0.15)) ≈ 2 shots at zero difficulty.
	easy := &sim.Threat{
		ID:       1,
		Category: sim.CategoryRocket,
		Pos:      sim.Vec3{Y: 6000},
		Vel:      sim.Vec3{X: 100, Y: -50},
		Active:   true,
	}
	// Fast, low, imminent and maneuvering maxes the difficulty out.
	hard := &sim.Threat{
		ID:       2,
		Category: sim.CategoryCruiseMissile,
		Pos:      sim.Vec3{Y: 300},
		Vel:      sim.Vec3{X: 700, Y: -20},
		Active:   true,
	}

	scored := p.Prioritize([]*sim.Threat{easy, hard})
	byID := map[int]ScoredThreat{}
	for _, st := range scored {
		byID[st.Threat.ID] = st
	}

	if got := byID[1].Required; got != 2 {
		t.Errorf("easy threat required = %d, want 2", got)
	}
	if got := byID[2].Required; got != maxRequiredInterceptors {
		t.Errorf("hard threat required = %d, want cap %d", got, maxRequiredInterceptors)
	}
	if byID[2].Difficulty != 1.0 {
		t.Errorf("hard threat difficulty = %v, want 1.0", byID[2].Difficulty)
	}
}

func TestRequiredInterceptorsBounded(t *testing.T) {
	p := testPrioritizer()

	// Degenerate learned rates must not blow the count up or zero it out.
	p.rates[sim.CategoryDrone] = 0.999999
	p.rates[sim.CategoryMortar] = 0.0000001

	if got := p.requiredInterceptors(sim.CategoryDrone, 0); got < 1 {
		t.Errorf("required = %d with near-perfect rate, want >= 1", got)
	}
	if got := p.requiredInterceptors(sim.CategoryMortar, 1); got > maxRequiredInterceptors {
		t.Errorf("required = %d with terrible rate, want <= %d", got, maxRequiredInterceptors)
	}
}

func TestRecordOutcomeEMA(t *testing.T) {
	p := testPrioritizer()
	cfg := config.Default()

	p.RecordOutcome(sim.CategoryRocket, true)
	want := cfg.DefaultSuccessRate + cfg.SuccessRateAlpha*(1.0-cfg.DefaultSuccessRate)
	if got := p.SuccessRate(sim.CategoryRocket); math.Abs(got-want) > rateTolerance {
		t.Errorf("rate after hit = %v, want %v", got, want)
	}

	p.RecordOutcome(sim.CategoryRocket, false)
	want = want + cfg.SuccessRateAlpha*(0.0-want)
	if got := p.SuccessRate(sim.CategoryRocket); math.Abs(got-want) > rateTolerance {
		t.Errorf("rate after miss = %v, want %v", got, want)
	}

	// Other categories keep the default.
	if got := p.SuccessRate(sim.CategoryDrone); got != cfg.DefaultSuccessRate {
		t.Errorf("unrelated category rate = %v, want default %v", got, cfg.DefaultSuccessRate)
	}
}
