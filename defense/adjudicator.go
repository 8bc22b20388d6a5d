package defense

import (
	"context"
	"fmt"
	"math"

	"github.com/skyshield/skyshield/sim"
)

// adjudicateDetonation resolves one proximity-detonation event. The
// threat is claimed atomically first: a failed claim means another
// interceptor is already resolving this threat and the event is
// discarded without counting — the normal race outcome of concurrent
// terminal-guidance interceptors, not an error.
func (e *Engine) adjudicateDetonation(i *sim.Interceptor, detPos sim.Vec3, quality float64) {
	t := e.threatByID(i.TargetID)
	if t == nil || !t.Active {
		// Target already resolved; no double-counting.
		e.metrics.recordDetonation(context.Background(), "stale")
		return
	}

	if !t.Claim() {
		e.log.Debug().
			Int("interceptor", i.ID).
			Int("threat", t.ID).
			Msg("detonation discarded: threat already claimed")
		e.metrics.recordDetonation(context.Background(), "double_claim")
		return
	}

	missDist := sim.Distance(detPos, t.Pos)
	closing := closingVelocity(i, t, detPos)
	pk := sim.KillProbability(missDist, t.Speed(), closing, quality)

	e.emitExplosion(detPos, quality)

	if e.rng.Float64() < pk {
		e.recordKill(i, t, pk, missDist)
		return
	}

	// Miss: release the claim so other interceptors may still engage,
	// and feed the failure back into the success model.
	t.Unclaim()
	e.prioritizer.RecordOutcome(t.Category, false)
	e.metrics.recordDetonation(context.Background(), "miss")
	e.log.Info().
		Int("interceptor", i.ID).
		Int("threat", t.ID).
		Float64("missDist", missDist).
		Float64("pk", pk).
		Msg("proximity detonation missed")
}

// closingVelocity is the interceptor speed component toward the target
// at detonation; head-on geometry earns the blast model's directional
// bonus.
func closingVelocity(i *sim.Interceptor, t *sim.Threat, detPos sim.Vec3) float64 {
	toTarget := t.Pos.Sub(detPos)
	rng := toTarget.Length()
	if rng == 0 {
		return i.Vel.Sub(t.Vel).Length()
	}
	return i.Vel.Sub(t.Vel).Dot(toTarget.Normalize())
}

// recordKill marks the threat destroyed, updates the learning models
// and ledgers, emits the scoring events and repurposes any other
// interceptors that were chasing the same threat.
func (e *Engine) recordKill(i *sim.Interceptor, t *sim.Threat, pk, missDist float64) {
	t.Active = false
	e.destroyedByUs[t.ID] = true
	e.stats.ThreatsDestroyed++

	e.prioritizer.RecordOutcome(t.Category, true)
	delete(e.assignments, t.ID)
	e.cache.Invalidate(t.ID)
	e.tracker.Drop(t.ID)

	if engID, ok := e.threatEngagement[t.ID]; ok {
		if eng, ok := e.engagements[engID]; ok {
			e.completeEngagement(eng, sim.ResultHit)
		}
	}

	e.metrics.threatsDestroyed.Add(context.Background(), 1)
	e.metrics.recordDetonation(context.Background(), "hit")
	e.emit(Event{Kind: EventScore, ScoreDelta: scoreForCategory(t.Category)})
	e.emitInfo(fmt.Sprintf("threat %d (%s) destroyed, miss distance %.1fm pk %.2f",
		t.ID, t.Category, missDist, pk))

	e.log.Info().
		Int("interceptor", i.ID).
		Int("threat", t.ID).
		Str("category", t.Category.String()).
		Float64("missDist", missDist).
		Float64("pk", pk).
		Msg("threat destroyed")

	e.repurposeInterceptors(t.ID)
}

// scoreForCategory is the credit awarded for a kill.
func scoreForCategory(cat sim.ThreatCategory) int {
	switch cat {
	case sim.CategoryBallisticMissile:
		return 500
	case sim.CategoryCruiseMissile:
		return 400
	case sim.CategoryRocket:
		return 200
	case sim.CategoryMortar:
		return 150
	case sim.CategoryDrone:
		return 100
	}
	return 100
}

// repurposeInterceptors retargets every still-active interceptor whose
// target was just destroyed. Candidates are scored by proximity,
// urgency and how many interceptors already track them; an interceptor
// with no acceptable candidate self-destructs rather than descend
// uncontrolled.
func (e *Engine) repurposeInterceptors(destroyedThreatID int) {
	trackers := e.trackerCounts()

	for _, i := range e.interceptors {
		if !i.Active || i.TargetID != destroyedThreatID {
			continue
		}

		best := e.bestRetarget(i, trackers)
		e.guidance.Forget(i.ID)

		if best == nil {
			i.TargetID = 0
			e.selfDestruct(i, "no retarget candidate")
			continue
		}

		i.TargetID = best.ID
		trackers[best.ID]++
		e.assignments[best.ID]++
		e.emitInfo(fmt.Sprintf("interceptor %d retargeted to threat %d", i.ID, best.ID))
		e.log.Info().
			Int("interceptor", i.ID).
			Int("threat", best.ID).
			Msg("interceptor repurposed")
	}
}

// trackerCounts tallies how many active interceptors track each threat.
func (e *Engine) trackerCounts() map[int]int {
	counts := make(map[int]int)
	for _, i := range e.interceptors {
		if i.Active && i.HasTarget() {
			counts[i.TargetID]++
		}
	}
	return counts
}

// bestRetarget scans all other active threats for the best candidate:
// score = (1/distance) × (1/max(timeToImpact,1)) × (1/(trackers+1)),
// rejecting candidates beyond the retarget range or already saturated
// with interceptors.
func (e *Engine) bestRetarget(i *sim.Interceptor, trackers map[int]int) *sim.Threat {
	var best *sim.Threat
	bestScore := 0.0

	for _, t := range e.threatIndex {
		if !t.Active {
			continue
		}
		dist := sim.Distance(i.Pos, t.Pos)
		if dist > e.cfg.RetargetMaxDist {
			continue
		}
		if trackers[t.ID] >= e.cfg.RetargetMaxTrackers {
			continue
		}

		score := (1.0 / math.Max(dist, 1e-6)) *
			(1.0 / math.Max(t.TimeToImpact(), 1.0)) *
			(1.0 / float64(trackers[t.ID]+1))
		if score > bestScore {
			bestScore = score
			best = t
		}
	}

	return best
}

// selfDestruct ends an interceptor flight deliberately.
func (e *Engine) selfDestruct(i *sim.Interceptor, reason string) {
	i.Active = false
	e.stats.InterceptorsExpired++
	e.metrics.interceptorsExpired.Add(context.Background(), 1)
	pos := i.Pos
	e.emit(Event{Kind: EventSelfDestruct, Pos: &pos, Message: reason})
	e.emit(Event{Kind: EventSound, Pos: &pos, Sound: SoundSelfDestruct})
	e.log.Info().Int("interceptor", i.ID).Str("reason", reason).Msg("interceptor self-destructed")
}
