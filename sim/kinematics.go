package sim

import "math"

// PropagateBallistic returns the position after t seconds of unpowered
// flight from pos with initial velocity vel under gravity.
func PropagateBallistic(pos, vel Vec3, t float64) Vec3 {
	return Vec3{
		X: pos.X + vel.X*t,
		Y: pos.Y + vel.Y*t - 0.5*Gravity*t*t,
		Z: pos.Z + vel.Z*t,
	}
}

// PropagateConstantAccel returns the position after t seconds under a
// constant acceleration estimate (used for lead prediction on tracks
// that are not purely ballistic).
func PropagateConstantAccel(pos, vel, accel Vec3, t float64) Vec3 {
	return Vec3{
		X: pos.X + vel.X*t + 0.5*accel.X*t*t,
		Y: pos.Y + vel.Y*t + 0.5*accel.Y*t*t,
		Z: pos.Z + vel.Z*t + 0.5*accel.Z*t*t,
	}
}

// TimeToGroundImpact solves the ballistic arc for the time at which the
// body reaches y=0. Returns 0 when the body is already at or below
// ground, and math.MaxFloat64 when the trajectory never comes down
// (defensive; gravity always brings it down eventually).
func TimeToGroundImpact(pos, vel Vec3) float64 {
	if pos.Y <= 0 {
		return 0
	}
	// 0 = y + vy*t - g/2*t²  →  t = (vy + sqrt(vy² + 2gy)) / g
	disc := vel.Y*vel.Y + 2*Gravity*pos.Y
	if disc < 0 {
		return math.MaxFloat64
	}
	return (vel.Y + math.Sqrt(disc)) / Gravity
}

// ImpactPoint returns the predicted ground impact position of a
// ballistic body.
func ImpactPoint(pos, vel Vec3) Vec3 {
	t := TimeToGroundImpact(pos, vel)
	p := PropagateBallistic(pos, vel, t)
	p.Y = 0
	return p
}

// InterceptorFlightTime models the time for an interceptor to cover
// dist meters: a spin-up phase accelerating linearly to maxSpeed over
// spinUp seconds, then cruise at maxSpeed.
func InterceptorFlightTime(dist, maxSpeed, spinUp float64) float64 {
	if dist <= 0 {
		return 0
	}
	if maxSpeed <= 0 {
		return math.MaxFloat64
	}
	if spinUp <= 0 {
		return dist / maxSpeed
	}
	// Distance covered while accelerating: ½·maxSpeed·spinUp
	accelDist := 0.5 * maxSpeed * spinUp
	if dist <= accelDist {
		// dist = ½·(maxSpeed/spinUp)·t²
		return math.Sqrt(2 * dist * spinUp / maxSpeed)
	}
	return spinUp + (dist-accelDist)/maxSpeed
}
