package sim

import "math"

// Blast damage model constants
const (
	// BlastLethalDist is the miss distance inside which the warhead is
	// fully effective.
	BlastLethalDist = 5.0

	// BlastMaxDist is the miss distance beyond which the blast has no
	// effect at all.
	BlastMaxDist = FuseRadius

	// blastBaseKill is the kill probability at point-blank detonation
	// against a slow target with a perfect fuse solution.
	blastBaseKill = 0.95

	// blastFloorKill is the residual kill probability at the edge of
	// the effective radius.
	blastFloorKill = 0.10

	// blastSpeedScale controls how quickly fast targets degrade the
	// kill probability (m/s).
	blastSpeedScale = 600.0

	// blastClosingScale converts interceptor closing velocity into the
	// directional bonus (m/s per point of bonus).
	blastClosingScale = 2000.0

	// blastClosingBonusCap limits the directional bonus.
	blastClosingBonusCap = 0.15
)

// KillProbability evaluates the blast-damage model for one proximity
// detonation. missDist is the distance between the detonation and the
// target, targetSpeed the target speed magnitude, closingVel the
// interceptor closing velocity toward the target at detonation, and
// fuseQuality in [0,1] the quality of the fuse trigger.
func KillProbability(missDist, targetSpeed, closingVel, fuseQuality float64) float64 {
	if missDist >= BlastMaxDist {
		return 0
	}

	// Linear falloff from full effect at the lethal distance to the
	// residual floor at the edge of the blast radius.
	pk := blastBaseKill
	if missDist > BlastLethalDist {
		frac := (missDist - BlastLethalDist) / (BlastMaxDist - BlastLethalDist)
		pk = blastBaseKill - (blastBaseKill-blastFloorKill)*frac
	}

	// Fast targets transit the fragmentation pattern quicker.
	pk *= 1.0 / (1.0 + targetSpeed/blastSpeedScale)

	// Head-on geometry concentrates fragments on the target.
	if closingVel > 0 {
		pk += math.Min(blastClosingBonusCap, closingVel/blastClosingScale)
	}

	pk *= clamp01(fuseQuality)

	return clamp01(pk)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
