package defense

import (
	"container/heap"
	"fmt"

	"github.com/google/uuid"

	"github.com/skyshield/skyshield/sim"
)

// scheduledKind is the type of a deferred engagement action.
type scheduledKind int

const (
	actionSalvoShot scheduledKind = iota
	actionAssessment
)

// scheduledAction is one deferred action on the simulation clock.
// All delayed behavior (salvo stagger, shoot-look-shoot assessment)
// goes through this queue so the engine stays deterministic and
// testable without wall-clock timers.
type scheduledAction struct {
	at           float64
	seq          uint64 // tie-breaker for equal timestamps
	kind         scheduledKind
	engagementID uuid.UUID
}

type scheduleQueue []*scheduledAction

func (q scheduleQueue) Len() int { return len(q) }
func (q scheduleQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	return q[i].seq < q[j].seq
}
func (q scheduleQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *scheduleQueue) Push(x any) {
	*q = append(*q, x.(*scheduledAction))
}

func (q *scheduleQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

func (e *Engine) scheduleAction(kind scheduledKind, engagementID uuid.UUID, at float64) {
	e.scheduleSeq++
	heap.Push(&e.schedule, &scheduledAction{
		at:           at,
		seq:          e.scheduleSeq,
		kind:         kind,
		engagementID: engagementID,
	})
}

// chooseStrategy picks the firing doctrine for a newly assigned threat:
// multiple required interceptors go out as a salvo; a single-shot
// requirement uses shoot-look-shoot when there is time to observe the
// first round, otherwise a straight single shot.
func (e *Engine) chooseStrategy(st ScoredThreat) sim.EngagementStrategy {
	if st.Required > 1 {
		return sim.StrategySalvo
	}
	if st.TimeToImpact > e.cfg.SLSMinTTI {
		return sim.StrategyShootLookShoot
	}
	return sim.StrategySingle
}

// isEngaged reports whether any engagement in active or assessing state
// already references the threat.
func (e *Engine) isEngaged(threatID int) bool {
	id, ok := e.threatEngagement[threatID]
	if !ok {
		return false
	}
	eng, ok := e.engagements[id]
	return ok && eng.Open()
}

// engage commits one allocation assignment: creates the engagement,
// fires the opening round and schedules the rest of the doctrine.
func (e *Engine) engage(as Assignment) {
	t := as.Threat.Threat
	strategy := e.chooseStrategy(as.Threat)

	eng := &sim.Engagement{
		ID:        uuid.New(),
		ThreatID:  t.ID,
		BatteryID: as.BatteryID,
		Strategy:  strategy,
		Status:    sim.EngagementActive,
		Result:    sim.ResultPending,
		CreatedAt: e.clock,
	}

	fired := e.fireRound(eng, as.Solution.Point)
	if fired == 0 {
		eng.Status = sim.EngagementFailed
		eng.CompletedAt = e.clock
		e.engagements[eng.ID] = eng
		e.log.Warn().
			Int("threat", t.ID).
			Int("battery", as.BatteryID).
			Msg("engagement failed: battery could not fire")
		return
	}

	switch strategy {
	case sim.StrategySalvo:
		eng.PendingShots = as.Count - 1
		for k := 1; k <= eng.PendingShots; k++ {
			e.scheduleAction(actionSalvoShot, eng.ID, e.clock+float64(k)*e.cfg.SalvoDelay)
		}
	case sim.StrategyShootLookShoot:
		eng.Status = sim.EngagementAssessing
		e.scheduleAction(actionAssessment, eng.ID, e.clock+e.cfg.AssessmentDelay)
	}

	e.engagements[eng.ID] = eng
	e.threatEngagement[t.ID] = eng.ID

	e.log.Info().
		Int("threat", t.ID).
		Int("battery", as.BatteryID).
		Str("strategy", strategy.String()).
		Int("count", as.Count).
		Float64("interceptTime", as.Solution.Time).
		Msg("engagement opened")
}

// fireRound launches count interceptors for the engagement, aiming at
// the freshest lead point available. Returns how many actually went out.
func (e *Engine) fireRound(eng *sim.Engagement, fallbackAim sim.Vec3) int {
	b := e.batteries[eng.BatteryID]
	if b == nil || !b.Operational || !b.CanFireInterceptors {
		return 0
	}
	t := e.threatByID(eng.ThreatID)
	if t == nil || !t.Active {
		return 0
	}

	aim := fallbackAim
	if lead, ok := e.tracker.LeadPoint(t, b.Pos, b.InterceptorSpeed); ok {
		aim = lead.Point
	}
	if aim == (sim.Vec3{}) {
		aim = t.Pos
	}

	i := e.spawnInterceptor(b, t, aim)
	eng.InterceptorIDs = append(eng.InterceptorIDs, i.ID)
	return 1
}

// drainSchedule runs every deferred action whose time has come.
func (e *Engine) drainSchedule() {
	for e.schedule.Len() > 0 && e.schedule[0].at <= e.clock {
		action := heap.Pop(&e.schedule).(*scheduledAction)
		eng, ok := e.engagements[action.engagementID]
		if !ok {
			continue
		}

		switch action.kind {
		case actionSalvoShot:
			e.runSalvoShot(eng)
		case actionAssessment:
			e.runAssessment(eng)
		}
	}
}

// runSalvoShot fires the next scheduled salvo round, unless the
// engagement already resolved.
func (e *Engine) runSalvoShot(eng *sim.Engagement) {
	if eng.PendingShots <= 0 || !eng.Open() {
		return
	}
	eng.PendingShots--

	t := e.threatByID(eng.ThreatID)
	if t == nil || !t.Active {
		// Threat already resolved; the remaining rounds stay in the tubes.
		return
	}
	e.fireRound(eng, sim.Vec3{})
}

// runAssessment judges the first shoot-look-shoot round. If the threat
// is already dead the engagement completes as a hit. If the first
// interceptor is gone and there is still time, a second round goes out;
// otherwise the engagement completes as a miss.
func (e *Engine) runAssessment(eng *sim.Engagement) {
	if eng.Status != sim.EngagementAssessing {
		return
	}

	t := e.threatByID(eng.ThreatID)
	if t == nil || !t.Active {
		if e.destroyedByUs[eng.ThreatID] {
			e.completeEngagement(eng, sim.ResultHit)
		} else {
			e.completeEngagement(eng, sim.ResultMiss)
		}
		return
	}

	if e.anyInterceptorActive(eng) {
		// First round still in flight; look again shortly.
		e.scheduleAction(actionAssessment, eng.ID, e.clock+reassessInterval)
		return
	}

	// First shot missed.
	b := e.batteries[eng.BatteryID]
	canReshoot := t.TimeToImpact() > e.cfg.SecondShotWindow &&
		b != nil && b.Operational && b.Expend(1)

	if !canReshoot {
		e.completeEngagement(eng, sim.ResultMiss)
		return
	}

	eng.Status = sim.EngagementActive
	eng.SecondShotFired = true
	if fired := e.fireRound(eng, sim.Vec3{}); fired == 0 {
		// Inventory was spent but the launch could not happen; give the
		// round back and close out.
		b.Available++
		e.completeEngagement(eng, sim.ResultMiss)
		return
	}
	e.emitInfo(fmt.Sprintf("shoot-look-shoot second round against threat %d", eng.ThreatID))
}

// reassessInterval is how long an assessment is deferred while the
// first interceptor is still flying (seconds).
const reassessInterval = 0.5

// anyInterceptorActive reports whether any interceptor fired for the
// engagement is still airborne.
func (e *Engine) anyInterceptorActive(eng *sim.Engagement) bool {
	for _, id := range eng.InterceptorIDs {
		if i, ok := e.interceptors[id]; ok && i.Active {
			return true
		}
	}
	return false
}

// completeEngagement closes an open engagement, updates the owning
// battery's historical success rate and releases the threat claim slot.
func (e *Engine) completeEngagement(eng *sim.Engagement, result sim.EngagementResult) {
	if !eng.Open() {
		return
	}
	eng.Complete(result, e.clock)

	if id, ok := e.threatEngagement[eng.ThreatID]; ok && id == eng.ID {
		delete(e.threatEngagement, eng.ThreatID)
	}

	observed := 0.0
	if result == sim.ResultHit {
		observed = 1.0
	}
	prev, ok := e.batteryRates[eng.BatteryID]
	if !ok {
		prev = e.cfg.DefaultSuccessRate
	}
	e.batteryRates[eng.BatteryID] = prev + e.cfg.SuccessRateAlpha*(observed-prev)

	e.log.Info().
		Int("threat", eng.ThreatID).
		Int("battery", eng.BatteryID).
		Str("strategy", eng.Strategy.String()).
		Str("result", result.String()).
		Msg("engagement completed")
}

// resolveEngagements detects natural completion of open engagements and
// garbage-collects closed ones past the retention window.
func (e *Engine) resolveEngagements() {
	for id, eng := range e.engagements {
		if eng.Open() {
			t := e.threatByID(eng.ThreatID)
			if t == nil || !t.Active {
				// Threat is gone. Destroyed by us means hit; a ground
				// impact or external removal is a miss for this engagement.
				if e.destroyedByUs[eng.ThreatID] {
					e.completeEngagement(eng, sim.ResultHit)
				} else {
					e.completeEngagement(eng, sim.ResultMiss)
				}
				continue
			}
			if eng.Status == sim.EngagementActive &&
				eng.PendingShots == 0 &&
				!e.anyInterceptorActive(eng) {
				// Everything fired is gone and the threat survives.
				e.completeEngagement(eng, sim.ResultMiss)
			}
			continue
		}

		if e.clock-eng.CompletedAt > sim.EngagementRetention {
			delete(e.engagements, id)
			delete(e.destroyedByUs, eng.ThreatID)
		}
	}
}
