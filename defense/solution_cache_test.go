package defense

import (
	"math"
	"testing"

	"github.com/skyshield/skyshield/sim"
)

const solveTolerance = 0.01 // seconds, matches the default bisection tolerance

func TestSolutionCacheTTL(t *testing.T) {
	c := NewSolutionCache(0.1, 100, 10)
	key := SolutionKey{ThreatID: 1, BatteryID: 2}
	sol := Solution{Point: sim.Vec3{X: 500, Y: 300}, Time: 2.5, Feasible: true}

	c.Put(key, sol, 0)

	if got, ok := c.Get(key, 0.05); !ok || got != sol {
		t.Fatalf("fresh entry: got %+v ok=%v", got, ok)
	}

	if _, ok := c.Get(key, 0.2); ok {
		t.Fatal("entry survived past TTL")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry still stored, len = %d", c.Len())
	}

	hits, misses := c.Stats()
	if hits != 1 || misses != 1 {
		t.Fatalf("stats = %d hits %d misses, want 1/1", hits, misses)
	}
}

func TestSolutionCacheInfeasibleIsCacheable(t *testing.T) {
	// A negative answer is still an answer; it must round-trip.
	c := NewSolutionCache(0.1, 100, 10)
	key := SolutionKey{ThreatID: 7, BatteryID: 1}

	c.Put(key, Solution{Feasible: false}, 0)
	got, ok := c.Get(key, 0.01)
	if !ok {
		t.Fatal("infeasible solution not cached")
	}
	if got.Feasible {
		t.Fatal("infeasible solution came back feasible")
	}
}

func TestSolutionCacheEviction(t *testing.T) {
	c := NewSolutionCache(10, 10, 5)

	for k := 1; k <= 11; k++ {
		c.Put(SolutionKey{ThreatID: k, BatteryID: 1}, Solution{Feasible: true}, float64(k))
	}

	if c.Len() != 6 {
		t.Fatalf("len after eviction = %d, want 6", c.Len())
	}
	// Oldest entries go first; the newest must survive.
	if _, ok := c.Get(SolutionKey{ThreatID: 11, BatteryID: 1}, 11); !ok {
		t.Fatal("newest entry evicted")
	}
	if _, ok := c.Get(SolutionKey{ThreatID: 1, BatteryID: 1}, 11); ok {
		t.Fatal("oldest entry survived eviction")
	}
}

func TestSolutionCacheInvalidate(t *testing.T) {
	c := NewSolutionCache(10, 100, 10)
	c.Put(SolutionKey{ThreatID: 1, BatteryID: 1}, Solution{Feasible: true}, 0)
	c.Put(SolutionKey{ThreatID: 1, BatteryID: 2}, Solution{Feasible: true}, 0)
	c.Put(SolutionKey{ThreatID: 2, BatteryID: 1}, Solution{Feasible: true}, 0)

	c.Invalidate(1)

	if _, ok := c.Get(SolutionKey{ThreatID: 1, BatteryID: 1}, 0); ok {
		t.Fatal("invalidated entry survived")
	}
	if _, ok := c.Get(SolutionKey{ThreatID: 1, BatteryID: 2}, 0); ok {
		t.Fatal("invalidated entry survived for second battery")
	}
	if _, ok := c.Get(SolutionKey{ThreatID: 2, BatteryID: 1}, 0); !ok {
		t.Fatal("unrelated threat entry was invalidated")
	}
}

func TestSolveIntercept(t *testing.T) {
	testCases := []struct {
		name         string
		threat       *sim.Threat
		battery      *sim.Battery
		wantFeasible bool
	}{
		{
			name: "DescendingThreatInRange",
			threat: &sim.Threat{
				ID:     1,
				Pos:    sim.Vec3{X: 1000, Y: 500, Z: 0},
				Vel:    sim.Vec3{X: -100, Y: -50, Z: 0},
				Active: true,
			},
			battery: &sim.Battery{
				ID: 1, Pos: sim.Vec3{}, MaxRange: 2000, InterceptorSpeed: 250,
				Available: 4, Operational: true, CanFireInterceptors: true,
			},
			wantFeasible: true,
		},
		{
			name: "OutOfRange",
			threat: &sim.Threat{
				ID:     2,
				Pos:    sim.Vec3{X: 5000, Y: 500, Z: 0},
				Vel:    sim.Vec3{X: -100, Y: -50, Z: 0},
				Active: true,
			},
			battery: &sim.Battery{
				ID: 1, Pos: sim.Vec3{}, MaxRange: 2000, InterceptorSpeed: 250,
			},
			wantFeasible: false,
		},
		{
			name: "ImpactsBeforeArrival",
			// Low and fast-descending: even the quickest flight time
			// exceeds the threat's time to impact (minTime > maxTime).
			threat: &sim.Threat{
				ID:     3,
				Pos:    sim.Vec3{X: 1900, Y: 50, Z: 0},
				Vel:    sim.Vec3{X: 0, Y: -100, Z: 0},
				Active: true,
			},
			battery: &sim.Battery{
				ID: 1, Pos: sim.Vec3{}, MaxRange: 2000, InterceptorSpeed: 250,
			},
			wantFeasible: false,
		},
		{
			name: "RecedingThreatNeverCaught",
			// Flying away faster than the interceptor for its whole
			// remaining flight: no root in the bracket.
			threat: &sim.Threat{
				ID:     4,
				Pos:    sim.Vec3{X: 800, Y: 1500, Z: 0},
				Vel:    sim.Vec3{X: 400, Y: 50, Z: 0},
				Active: true,
			},
			battery: &sim.Battery{
				ID: 1, Pos: sim.Vec3{}, MaxRange: 2000, InterceptorSpeed: 250,
			},
			wantFeasible: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sol := SolveIntercept(tc.threat, tc.battery, solveTolerance)
			if sol.Feasible != tc.wantFeasible {
				t.Fatalf("feasible = %v, want %v", sol.Feasible, tc.wantFeasible)
			}
			if !sol.Feasible {
				return
			}

			// The intercept point must be where the threat actually is at
			// the solution time, reachable by the interceptor in that time.
			future := sim.PropagateBallistic(tc.threat.Pos, tc.threat.Vel, sol.Time)
			if sim.Distance(future, sol.Point) > 1 {
				t.Errorf("intercept point %+v not on trajectory (expected %+v)", sol.Point, future)
			}
			flight := sim.Distance(tc.battery.Pos, sol.Point) / tc.battery.InterceptorSpeed
			if math.Abs(flight-sol.Time) > 2*solveTolerance {
				t.Errorf("flight time %v does not meet solution time %v", flight, sol.Time)
			}
			if sol.Point.Y <= 0 {
				t.Errorf("intercept point underground: %+v", sol.Point)
			}
			if sim.Distance(tc.battery.Pos, sol.Point) > tc.battery.MaxRange {
				t.Errorf("intercept point outside battery range")
			}
			if sol.Time > tc.threat.TimeToImpact() {
				t.Errorf("solution time %v past threat impact %v", sol.Time, tc.threat.TimeToImpact())
			}
		})
	}
}
