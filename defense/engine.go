package defense

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skyshield/skyshield/config"
	"github.com/skyshield/skyshield/sim"
)

// EngineStats is the cumulative diagnostic view exposed to observers.
type EngineStats struct {
	Tick                 uint64  `json:"tick"`
	Clock                float64 `json:"clock"`
	ThreatsDestroyed     int     `json:"threatsDestroyed"`
	ThreatsLeaked        int     `json:"threatsLeaked"`
	InterceptorsFired    int     `json:"interceptorsFired"`
	InterceptorsExpired  int     `json:"interceptorsExpired"`
	InFlight             int     `json:"inFlight"`
	OpenEngagements      int     `json:"openEngagements"`
	AllocationEfficiency float64 `json:"allocationEfficiency"`
	CacheHits            uint64  `json:"cacheHits"`
	CacheMisses          uint64  `json:"cacheMisses"`
}

// Engine is the engagement core. It owns all interceptors it launches
// and every engagement lifecycle; threats and batteries are supplied by
// the host every tick and treated as the authoritative kinematic state.
//
// Everything runs synchronously inside Update — the only "concurrency"
// is the sim-clock action queue for delayed shots and assessments.
type Engine struct {
	log zerolog.Logger
	cfg config.Engine

	clock float64
	tick  uint64

	prioritizer *Prioritizer
	tracker     *Tracker
	grid        *SpatialIndex
	cache       *SolutionCache
	allocator   *Allocator
	guidance    *Guidance

	// Per-tick views of the external world.
	threatIndex map[int]*sim.Threat
	batteries   map[int]*sim.Battery

	// Owned state.
	interceptors      map[int]*sim.Interceptor
	nextInterceptorID int
	engagements       map[uuid.UUID]*sim.Engagement
	threatEngagement  map[int]uuid.UUID // open engagement per threat
	schedule          scheduleQueue
	scheduleSeq       uint64

	// assignments is the per-threat ledger of interceptors currently
	// committed, used with the being-intercepted flag to enforce the
	// single-claim invariant.
	assignments map[int]int

	// batteryRates is the per-battery historical success model.
	batteryRates map[int]float64

	// Leak detection: threats we have seen vs. threats we killed.
	knownThreats  map[int]bool
	destroyedByUs map[int]bool

	lastSweep float64
	stats     EngineStats
	events    []Event
	metrics   *engineMetrics
	rng       *rand.Rand
}

// NewEngine builds an engagement core from the given configuration.
func NewEngine(cfg config.Engine, log zerolog.Logger) (*Engine, error) {
	metrics, err := newEngineMetrics()
	if err != nil {
		return nil, fmt.Errorf("creating engine metrics: %w", err)
	}

	e := &Engine{
		log:              log.With().Str("comp", "engine").Logger(),
		cfg:              cfg,
		prioritizer:      NewPrioritizer(cfg, log),
		tracker:          NewTracker(cfg, log),
		grid:             NewSpatialIndex(cfg.GridCellSize),
		cache:            NewSolutionCache(cfg.CacheTTL, cfg.CacheCap, cfg.CacheEvictN),
		allocator:        NewAllocator(cfg, log),
		guidance:         NewGuidance(cfg),
		threatIndex:      make(map[int]*sim.Threat),
		batteries:        make(map[int]*sim.Battery),
		interceptors:     make(map[int]*sim.Interceptor),
		engagements:      make(map[uuid.UUID]*sim.Engagement),
		threatEngagement: make(map[int]uuid.UUID),
		assignments:      make(map[int]int),
		batteryRates:     make(map[int]float64),
		knownThreats:     make(map[int]bool),
		destroyedByUs:    make(map[int]bool),
		metrics:          metrics,
		rng:              rand.New(rand.NewSource(cfg.Seed)),
	}
	return e, nil
}

// Update advances the core by dt seconds of simulation time. It returns
// the interceptors still in flight and the side-channel events produced
// this tick. The threat and battery slices are the host's authoritative
// state; the engine only mutates battery inventory (firing) and threat
// Active/claim flags (adjudication).
func (e *Engine) Update(threats []*sim.Threat, batteries []*sim.Battery, dt float64) ([]*sim.Interceptor, []Event) {
	e.clock += dt
	e.tick++
	e.events = e.events[:0]

	e.indexWorld(threats, batteries)
	e.observeThreats(threats)

	if e.clock-e.lastSweep >= e.cfg.SweepInterval {
		e.sweepConsistency()
		e.lastSweep = e.clock
	}

	scored := e.prioritizer.Prioritize(threats)
	e.grid.Rebuild(threats)

	e.allocateAndFire(scored, batteries)

	e.drainSchedule()
	e.updateInterceptors(dt)
	e.resolveEngagements()

	e.stats.Tick = e.tick
	e.stats.Clock = e.clock
	e.stats.InFlight = e.inFlightCount()
	e.stats.OpenEngagements = e.openEngagementCount()
	e.stats.CacheHits, e.stats.CacheMisses = e.cache.Stats()

	return e.InFlight(), append([]Event(nil), e.events...)
}

// indexWorld refreshes the per-tick lookup maps and detects leakers:
// threats that vanished from the input without being destroyed by us
// reached the ground.
func (e *Engine) indexWorld(threats []*sim.Threat, batteries []*sim.Battery) {
	current := make(map[int]bool, len(threats))
	for k := range e.threatIndex {
		delete(e.threatIndex, k)
	}
	for _, t := range threats {
		e.threatIndex[t.ID] = t
		current[t.ID] = true
	}

	for id := range e.knownThreats {
		if !current[id] && !e.destroyedByUs[id] {
			e.stats.ThreatsLeaked++
			e.metrics.threatsLeaked.Add(context.Background(), 1)
			e.emitInfo(fmt.Sprintf("threat %d reached the ground", id))
			delete(e.knownThreats, id)
		} else if !current[id] {
			delete(e.knownThreats, id)
		}
	}
	for id := range current {
		e.knownThreats[id] = true
	}

	for k := range e.batteries {
		delete(e.batteries, k)
	}
	for _, b := range batteries {
		e.batteries[b.ID] = b
	}
}

func (e *Engine) observeThreats(threats []*sim.Threat) {
	for _, t := range threats {
		if t.Active {
			e.tracker.Observe(t, e.clock)
		}
	}
	e.tracker.Purge(e.clock)
}

// allocateAndFire builds battery coverage plans, runs the allocation
// pass over unengaged threats and opens engagements for the winners.
func (e *Engine) allocateAndFire(scored []ScoredThreat, batteries []*sim.Battery) {
	pending := make([]ScoredThreat, 0, len(scored))
	for _, st := range scored {
		if e.isEngaged(st.Threat.ID) || st.Threat.BeingIntercepted() {
			continue
		}
		pending = append(pending, st)
	}
	if len(pending) == 0 {
		return
	}

	plans := e.buildBatteryPlans(batteries)
	if len(plans) == 0 {
		return
	}

	result := e.allocator.Allocate(pending, plans, e.inFlightCount())
	e.stats.AllocationEfficiency = result.Efficiency
	e.metrics.allocEfficiency.Record(context.Background(), result.Efficiency)

	for _, as := range result.Assignments {
		e.engage(as)
	}
}

// buildBatteryPlans computes, for every operational firing battery, the
// set of threats it can actually reach. Candidate threats come from the
// spatial index; interception solutions come from the TTL cache, with
// the bisection solver filling misses.
func (e *Engine) buildBatteryPlans(batteries []*sim.Battery) []*BatteryPlan {
	plans := make([]*BatteryPlan, 0, len(batteries))

	for _, b := range batteries {
		if !b.Operational || !b.CanFireInterceptors || b.Available <= 0 {
			continue
		}

		plan := &BatteryPlan{
			Battery:     b,
			Coverage:    make(map[int]Solution),
			SuccessRate: e.batterySuccessRate(b.ID),
		}

		var timeSum float64
		for _, tid := range e.grid.Query(b.Pos, b.MaxRange) {
			t := e.threatByID(tid)
			if t == nil || !t.Active {
				continue
			}

			key := SolutionKey{ThreatID: tid, BatteryID: b.ID}
			sol, ok := e.cache.Get(key, e.clock)
			if !ok {
				sol = SolveIntercept(t, b, e.cfg.BisectTolerance)
				e.cache.Put(key, sol, e.clock)
			}
			if !sol.Feasible {
				continue
			}
			plan.Coverage[tid] = sol
			timeSum += sol.Time
		}

		if len(plan.Coverage) == 0 {
			continue
		}
		plan.AvgInterceptTime = timeSum / float64(len(plan.Coverage))
		plans = append(plans, plan)
	}

	return plans
}

func (e *Engine) batterySuccessRate(batteryID int) float64 {
	if rate, ok := e.batteryRates[batteryID]; ok {
		return rate
	}
	return e.cfg.DefaultSuccessRate
}

// spawnInterceptor launches one interceptor from the battery toward the
// aim point and registers it with the engine. The detonation callback
// routes the proximity-fuse event into the kill adjudicator.
func (e *Engine) spawnInterceptor(b *sim.Battery, t *sim.Threat, aim sim.Vec3) *sim.Interceptor {
	e.nextInterceptorID++

	dir := aim.Sub(b.Pos).Normalize()
	if dir == (sim.Vec3{}) {
		dir = sim.Vec3{Y: 1}
	}

	i := &sim.Interceptor{
		ID:         e.nextInterceptorID,
		Pos:        b.Pos,
		Vel:        dir.Scale(b.InterceptorSpeed * launchSpeedFraction),
		TargetID:   t.ID,
		Active:     true,
		LaunchedAt: e.clock,
		MaxSpeed:   b.InterceptorSpeed,
	}
	i.OnDetonate = func(detPos sim.Vec3, quality float64) {
		e.adjudicateDetonation(i, detPos, quality)
	}

	e.interceptors[i.ID] = i
	e.assignments[t.ID]++
	e.stats.InterceptorsFired++
	e.metrics.interceptorsFired.Add(context.Background(), 1)

	pos := b.Pos
	e.emit(Event{Kind: EventLaunch, Pos: &pos, Message: fmt.Sprintf("battery %d -> threat %d", b.ID, t.ID)})
	e.emit(Event{Kind: EventSound, Pos: &pos, Sound: SoundLaunch})

	return i
}

// launchSpeedFraction is the fraction of max speed an interceptor has
// as it clears the launcher; the rest builds up during spin-up.
const launchSpeedFraction = 0.25

// updateInterceptors runs guidance, integrates motion, enforces flight
// limits and triggers the proximity fuse for every airborne interceptor.
func (e *Engine) updateInterceptors(dt float64) {
	for _, i := range e.interceptors {
		if !i.Active {
			continue
		}

		if e.clock-i.LaunchedAt > sim.InterceptorFlightTimeout {
			e.selfDestruct(i, "flight timeout")
			continue
		}

		t := e.threatByID(i.TargetID)
		if t == nil || !t.Active {
			i.TargetID = 0
			e.selfDestruct(i, "target lost")
			continue
		}

		cmd := e.guidance.Steer(i, t.Pos, t.Vel, e.tracker.Acceleration(t.ID), dt)

		// Axial thrust toward max speed, lateral command from guidance.
		speed := i.Vel.Length()
		if speed < i.MaxSpeed && e.cfg.SpinUpTime > 0 {
			thrust := i.MaxSpeed / e.cfg.SpinUpTime
			i.Vel = i.Vel.Add(i.Vel.Normalize().Scale(thrust * dt))
		}
		i.Vel = i.Vel.Add(cmd.Accel.Scale(dt)).ClampLength(i.MaxSpeed)
		i.Pos = i.Pos.Add(i.Vel.Scale(dt))

		if i.Pos.Y <= 0 {
			i.Active = false
			e.stats.InterceptorsExpired++
			e.metrics.interceptorsExpired.Add(context.Background(), 1)
			pos := i.Pos
			e.emit(Event{Kind: EventSound, Pos: &pos, Sound: SoundGroundImpact})
			continue
		}

		// Proximity fuse: detonate inside lethal range of the target.
		dist := sim.Distance(i.Pos, t.Pos)
		if dist <= sim.FuseRadius {
			quality := 1.0 - dist/sim.FuseRadius
			i.Active = false
			if i.OnDetonate != nil {
				i.OnDetonate(i.Pos, quality)
			}
		}
	}

	// Drop interceptors that finished their flight, releasing their
	// ledger slots.
	for id, i := range e.interceptors {
		if !i.Active {
			if i.HasTarget() && e.assignments[i.TargetID] > 0 {
				e.assignments[i.TargetID]--
			}
			e.guidance.Forget(id)
			delete(e.interceptors, id)
		}
	}
}

func (e *Engine) threatByID(id int) *sim.Threat {
	if id == 0 {
		return nil
	}
	return e.threatIndex[id]
}

func (e *Engine) inFlightCount() int {
	n := 0
	for _, i := range e.interceptors {
		if i.Active {
			n++
		}
	}
	return n
}

func (e *Engine) openEngagementCount() int {
	n := 0
	for _, eng := range e.engagements {
		if eng.Open() {
			n++
		}
	}
	return n
}

// InFlight returns a snapshot slice of the currently airborne interceptors.
func (e *Engine) InFlight() []*sim.Interceptor {
	out := make([]*sim.Interceptor, 0, len(e.interceptors))
	for _, i := range e.interceptors {
		if i.Active {
			out = append(out, i)
		}
	}
	return out
}

// Engagements returns all retained engagements, open and closed.
func (e *Engine) Engagements() []*sim.Engagement {
	out := make([]*sim.Engagement, 0, len(e.engagements))
	for _, eng := range e.engagements {
		out = append(out, eng)
	}
	return out
}

// Stats returns the cumulative diagnostics counters.
func (e *Engine) Stats() EngineStats {
	return e.stats
}

// Clock returns the current simulation time in seconds.
func (e *Engine) Clock() float64 {
	return e.clock
}
