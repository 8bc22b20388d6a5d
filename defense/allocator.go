package defense

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/skyshield/skyshield/config"
	"github.com/skyshield/skyshield/sim"
)

// BatteryPlan is the per-tick capability view the allocator scores:
// which threats the battery can actually reach (with cached solutions),
// how fast it gets there on average, and how well it has done lately.
type BatteryPlan struct {
	Battery          *sim.Battery
	Coverage         map[int]Solution // threat id -> feasible solution
	AvgInterceptTime float64
	SuccessRate      float64
}

// Assignment commits a count of interceptors from one battery to one
// threat.
type Assignment struct {
	Threat    ScoredThreat
	BatteryID int
	Count     int
	Solution  Solution
	Score     float64
}

// AllocationResult is the outcome of one allocation pass.
type AllocationResult struct {
	Assignments []Assignment
	Unassigned  []ScoredThreat
	// Efficiency is the priority-weighted fraction of threats covered.
	Efficiency float64
}

// Allocator assigns interceptors from batteries to prioritized threats.
// It is a greedy single-pass heuristic: threats are taken in priority
// order, each gets the full required count from the best-scoring
// battery, and there is no backtracking. Low-priority threats can end
// up unassigned even when a different split would cover more of them;
// that trade is accepted for per-tick speed.
type Allocator struct {
	log zerolog.Logger
	cfg config.Engine
}

func NewAllocator(cfg config.Engine, log zerolog.Logger) *Allocator {
	return &Allocator{
		log: log.With().Str("comp", "allocator").Logger(),
		cfg: cfg,
	}
}

// Allocate processes threats in priority order against the battery
// plans. inFlight is the number of interceptors currently airborne; the
// global cap short-circuits the whole pass once reached. Committing an
// assignment decrements the battery inventory immediately.
func (a *Allocator) Allocate(threats []ScoredThreat, plans []*BatteryPlan, inFlight int) AllocationResult {
	result := AllocationResult{}
	committed := 0

	var totalPriority, coveredPriority float64
	for _, st := range threats {
		totalPriority += st.Score
	}

	for idx, st := range threats {
		if inFlight+committed >= a.cfg.MaxInFlight {
			result.Unassigned = append(result.Unassigned, threats[idx:]...)
			break
		}

		best := a.bestBattery(st, plans, len(threats))
		if best == nil {
			result.Unassigned = append(result.Unassigned, st)
			continue
		}

		count := st.Required
		if !best.plan.Battery.Expend(count) {
			// Inventory raced away within this pass; treat as uncovered.
			result.Unassigned = append(result.Unassigned, st)
			continue
		}

		committed += count
		coveredPriority += st.Score
		result.Assignments = append(result.Assignments, Assignment{
			Threat:    st,
			BatteryID: best.plan.Battery.ID,
			Count:     count,
			Solution:  best.solution,
			Score:     best.score,
		})
	}

	if totalPriority > 0 {
		result.Efficiency = coveredPriority / totalPriority
	}

	if len(result.Unassigned) > 0 {
		a.log.Debug().
			Int("unassigned", len(result.Unassigned)).
			Int("assigned", len(result.Assignments)).
			Float64("efficiency", result.Efficiency).
			Msg("allocation pass left threats uncovered")
	}

	return result
}

type batteryCandidate struct {
	plan     *BatteryPlan
	solution Solution
	score    float64
}

// bestBattery scores every battery that covers the threat with enough
// inventory and returns the highest scorer, or nil when none qualifies.
func (a *Allocator) bestBattery(st ScoredThreat, plans []*BatteryPlan, totalThreats int) *batteryCandidate {
	var best *batteryCandidate

	for _, plan := range plans {
		sol, covered := plan.Coverage[st.Threat.ID]
		if !covered || !sol.Feasible {
			continue
		}
		if plan.Battery.Available < st.Required {
			continue
		}

		score := a.scoreCandidate(st, plan, totalThreats)
		if best == nil || score > best.score {
			best = &batteryCandidate{plan: plan, solution: sol, score: score}
		}
	}

	return best
}

// scoreCandidate implements the multi-factor battery scoring: threat
// priority, battery track record, speed to intercept, inventory depth,
// and a scarcity bias that steers batteries with narrow coverage toward
// the threats only they can reach.
func (a *Allocator) scoreCandidate(st ScoredThreat, plan *BatteryPlan, totalThreats int) float64 {
	score := st.Score
	score += plan.SuccessRate * 50
	score += math.Max(0, 30-plan.AvgInterceptTime)

	if plan.Battery.Capacity > 0 {
		score += float64(plan.Battery.Available) / float64(plan.Battery.Capacity) * 20
	}

	if totalThreats > 0 {
		coverageRatio := float64(len(plan.Coverage)) / float64(totalThreats)
		score += (1 - coverageRatio) * 10
	}

	return score
}
