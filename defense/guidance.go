package defense

import (
	"github.com/skyshield/skyshield/config"
	"github.com/skyshield/skyshield/sim"
)

// GuidanceMode selects how the line-of-sight rotation rate is obtained.
type GuidanceMode int

const (
	// GuidanceTrue computes the LOS rate analytically from relative
	// position and velocity.
	GuidanceTrue GuidanceMode = iota
	// GuidanceAugmented estimates the LOS rate from the change in LOS
	// direction between consecutive ticks.
	GuidanceAugmented
)

// terminalPhaseTime is the time-to-go below which the terminal
// target-acceleration compensation kicks in (seconds).
const terminalPhaseTime = 5.0

// GuidanceCommand is the per-tick steering output for one interceptor.
type GuidanceCommand struct {
	Accel           sim.Vec3 // commanded lateral acceleration, already clamped
	RequiredG       float64  // G demanded before the clamp (diagnostics)
	TimeToGo        float64
	ClosingVelocity float64
}

// Guidance converts relative interceptor/target geometry into a
// commanded lateral acceleration via proportional navigation, clamped
// to the configured maximum-G limit.
type Guidance struct {
	mode        GuidanceMode
	navConstant float64
	maxAccel    float64
	minClosing  float64

	// lastLOS remembers the previous line-of-sight unit vector per
	// interceptor for the augmented LOS-rate estimate.
	lastLOS map[int]sim.Vec3
}

func NewGuidance(cfg config.Engine) *Guidance {
	mode := GuidanceTrue
	if cfg.GuidanceMode == "augmented" {
		mode = GuidanceAugmented
	}
	return &Guidance{
		mode:        mode,
		navConstant: cfg.NavigationConstant,
		maxAccel:    cfg.MaxAccel,
		minClosing:  cfg.MinClosing,
		lastLOS:     make(map[int]sim.Vec3),
	}
}

// Steer computes the proportional-navigation command for one
// interceptor against its target. targetAccel is the tracker's
// acceleration estimate, used for terminal compensation.
func (g *Guidance) Steer(i *sim.Interceptor, targetPos, targetVel, targetAccel sim.Vec3, dt float64) GuidanceCommand {
	r := targetPos.Sub(i.Pos)
	rng := r.Length()
	if rng == 0 {
		return GuidanceCommand{}
	}

	vr := targetVel.Sub(i.Vel)
	los := r.Normalize()

	// Closing velocity, floored to avoid time-to-go singularities when
	// geometry momentarily opens.
	closing := -r.Dot(vr) / rng
	if closing < g.minClosing {
		closing = g.minClosing
	}
	tgo := rng / closing

	var omega sim.Vec3
	switch g.mode {
	case GuidanceAugmented:
		if prev, ok := g.lastLOS[i.ID]; ok && dt > 0 {
			omega = prev.Cross(los).Scale(1.0 / dt)
		}
		g.lastLOS[i.ID] = los
	default:
		omega = r.Cross(vr).Scale(1.0 / (rng * rng))
	}

	accel := omega.Cross(los).Scale(g.navConstant * closing)

	// Terminal compensation: account for target acceleration normal to
	// the line of sight during the endgame.
	if tgo < terminalPhaseTime {
		aPerp := targetAccel.Sub(los.Scale(targetAccel.Dot(los)))
		accel = accel.Add(aPerp.Scale(tgo * g.navConstant / 2))
	}

	requiredG := accel.Length() / sim.Gravity
	accel = accel.ClampLength(g.maxAccel)

	return GuidanceCommand{
		Accel:           accel,
		RequiredG:       requiredG,
		TimeToGo:        tgo,
		ClosingVelocity: closing,
	}
}

// Forget drops per-interceptor guidance state after the interceptor is
// destroyed or retargeted.
func (g *Guidance) Forget(interceptorID int) {
	delete(g.lastLOS, interceptorID)
}

// ZeroEffortMiss returns the miss distance that would result if neither
// the interceptor nor the target accelerated from now on: both are
// projected forward by their mutual closing time and the separation
// normal to the line of sight is measured.
func ZeroEffortMiss(interceptorPos, interceptorVel, targetPos, targetVel sim.Vec3, minClosing float64) float64 {
	r := targetPos.Sub(interceptorPos)
	rng := r.Length()
	if rng == 0 {
		return 0
	}

	vr := targetVel.Sub(interceptorVel)
	closing := -r.Dot(vr) / rng
	if closing < minClosing {
		closing = minClosing
	}
	tgo := rng / closing

	zem := r.Add(vr.Scale(tgo))
	los := r.Normalize()
	perp := zem.Sub(los.Scale(zem.Dot(los)))
	return perp.Length()
}
