package defense

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/skyshield/skyshield/config"
	"github.com/skyshield/skyshield/sim"
)

// trackSample is one kinematic observation of a threat.
type trackSample struct {
	Pos sim.Vec3
	Vel sim.Vec3
	T   float64
}

// track is the rolling observation history for one threat.
type track struct {
	samples    []trackSample
	lastUpdate float64
}

// Tracker maintains short per-threat histories, estimates instantaneous
// acceleration and produces confidence-weighted lead points for both
// allocation feasibility and guidance aiming.
type Tracker struct {
	log    zerolog.Logger
	cfg    config.Engine
	tracks map[int]*track
}

func NewTracker(cfg config.Engine, log zerolog.Logger) *Tracker {
	return &Tracker{
		log:    log.With().Str("comp", "tracker").Logger(),
		cfg:    cfg,
		tracks: make(map[int]*track),
	}
}

// Observe records the threat's current kinematic state.
func (tr *Tracker) Observe(t *sim.Threat, now float64) {
	tk, ok := tr.tracks[t.ID]
	if !ok {
		tk = &track{samples: make([]trackSample, 0, tr.cfg.HistoryDepth)}
		tr.tracks[t.ID] = tk
	}

	tk.samples = append(tk.samples, trackSample{Pos: t.Pos, Vel: t.Vel, T: now})
	if len(tk.samples) > tr.cfg.HistoryDepth {
		tk.samples = tk.samples[len(tk.samples)-tr.cfg.HistoryDepth:]
	}
	tk.lastUpdate = now
}

// Purge drops tracks that have not been updated within the track age
// limit, and tracks whose threat is simply gone.
func (tr *Tracker) Purge(now float64) {
	for id, tk := range tr.tracks {
		if now-tk.lastUpdate > tr.cfg.TrackMaxAge {
			delete(tr.tracks, id)
		}
	}
}

// Drop removes a single track immediately (threat destroyed).
func (tr *Tracker) Drop(threatID int) {
	delete(tr.tracks, threatID)
}

// Acceleration estimates the threat's instantaneous acceleration from
// the two most recent samples, clamped to reject physics/sensor noise
// spikes. With insufficient history it defaults to pure gravity.
func (tr *Tracker) Acceleration(threatID int) sim.Vec3 {
	gravity := sim.Vec3{X: 0, Y: -sim.Gravity, Z: 0}

	tk, ok := tr.tracks[threatID]
	if !ok {
		return gravity
	}
	return tr.trackAccel(tk)
}

// trackAccel is the Δvelocity/Δt estimate over the two newest samples.
func (tr *Tracker) trackAccel(tk *track) sim.Vec3 {
	gravity := sim.Vec3{X: 0, Y: -sim.Gravity, Z: 0}
	if len(tk.samples) < 2 {
		return gravity
	}

	last := tk.samples[len(tk.samples)-1]
	prev := tk.samples[len(tk.samples)-2]
	dt := last.T - prev.T
	if dt <= 0 {
		return gravity
	}

	accel := last.Vel.Sub(prev.Vel).Scale(1.0 / dt)
	return accel.ClampLength(tr.cfg.MaxAccelEst)
}

// Confidence returns the prediction confidence for a track in [0.5,1.0].
// Deep histories raise it; large estimated acceleration and poor
// constant-acceleration fit lower it.
func (tr *Tracker) Confidence(threatID int) float64 {
	tk, ok := tr.tracks[threatID]
	if !ok || len(tk.samples) == 0 {
		return 0.5
	}

	depth := float64(len(tk.samples)) / float64(tr.cfg.HistoryDepth)
	conf := 0.5 + 0.5*math.Min(1.0, depth)

	accelMag := tr.trackAccel(tk).Length()
	conf -= 0.2 * math.Min(1.0, accelMag/tr.cfg.MaxAccelEst)

	conf -= 0.2 * math.Min(1.0, tr.predictionRMSE(tk)/trackVarianceScale)

	return math.Max(0.5, math.Min(1.0, conf))
}

// trackVarianceScale is the position RMSE (meters) at which the
// trajectory-variance penalty saturates.
const trackVarianceScale = 50.0

// predictionRMSE measures how well a constant-acceleration projection
// from the oldest sample explains the subsequent samples.
func (tr *Tracker) predictionRMSE(tk *track) float64 {
	if len(tk.samples) < 3 {
		return 0
	}

	first := tk.samples[0]
	accel := tr.trackAccel(tk)
	var sumSq float64
	n := 0
	for _, s := range tk.samples[1:] {
		dt := s.T - first.T
		predicted := sim.PropagateConstantAccel(first.Pos, first.Vel, accel, dt)
		sumSq += predicted.Sub(s.Pos).LengthSq()
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sumSq / float64(n))
}

// LeadSolution is a confidence-weighted future aim point.
type LeadSolution struct {
	Point      sim.Vec3
	Time       float64 // seconds from now until the threat reaches Point
	Confidence float64
}

// LeadPoint predicts where an interceptor launched from launchPos should
// aim: it marches the threat forward under its estimated constant
// acceleration and finds the time at which the interceptor (acceleration
// phase then cruise) arrives at the same point at the same time.
// Returns false when no solution exists before the threat reaches the
// ground or the prediction horizon.
func (tr *Tracker) LeadPoint(t *sim.Threat, launchPos sim.Vec3, interceptorSpeed float64) (LeadSolution, bool) {
	accel := tr.Acceleration(t.ID)

	bestDiff := math.MaxFloat64
	var best LeadSolution
	found := false

	for tau := tr.cfg.LeadTimeStep; tau <= tr.cfg.LeadHorizon; tau += tr.cfg.LeadTimeStep {
		future := sim.PropagateConstantAccel(t.Pos, t.Vel, accel, tau)
		if future.Y <= 0 {
			// Threat is on the ground before any convergence: no shot.
			if !found {
				return LeadSolution{}, false
			}
			break
		}

		flight := sim.InterceptorFlightTime(sim.Distance(launchPos, future), interceptorSpeed, tr.cfg.SpinUpTime)
		diff := math.Abs(tau - flight)
		if diff < bestDiff {
			bestDiff = diff
			best = LeadSolution{Point: future, Time: tau, Confidence: tr.Confidence(t.ID)}
			found = true
		}
		if diff < tr.cfg.LeadTolerance {
			return best, true
		}
	}

	return best, found
}
