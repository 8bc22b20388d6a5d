package sim

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Simulation constants
const (
	// Gravity is the downward acceleration applied to ballistic bodies (m/s²)
	Gravity = 9.81

	// InterceptorFlightTimeout is the maximum flight time before an
	// interceptor self-destructs (seconds)
	InterceptorFlightTimeout = 30.0

	// FuseRadius is the proximity-fuse trigger distance (meters).
	// Detonation inside this radius relies on the blast model for the kill.
	FuseRadius = 15.0

	// EngagementRetention is how long completed/failed engagements are
	// kept around for observers before being discarded (seconds)
	EngagementRetention = 30.0
)

// ThreatCategory classifies an inbound threat. The category drives the
// priority weight, the required-interceptor estimate and whether the
// threat is treated as maneuvering.
type ThreatCategory int

const (
	CategoryBallisticMissile ThreatCategory = iota
	CategoryCruiseMissile
	CategoryRocket
	CategoryMortar
	CategoryDrone
)

var categoryNames = map[ThreatCategory]string{
	CategoryBallisticMissile: "ballistic_missile",
	CategoryCruiseMissile:    "cruise_missile",
	CategoryRocket:           "rocket",
	CategoryMortar:           "mortar",
	CategoryDrone:            "drone",
}

func (c ThreatCategory) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "unknown"
}

// PriorityWeight is the category contribution to the threat priority score.
func (c ThreatCategory) PriorityWeight() float64 {
	switch c {
	case CategoryBallisticMissile:
		return 30
	case CategoryCruiseMissile:
		return 25
	case CategoryRocket:
		return 15
	case CategoryMortar:
		return 10
	case CategoryDrone:
		return 5
	}
	return 0
}

// Maneuvering reports whether the category can actively change course,
// which makes interception harder than a pure ballistic arc.
func (c ThreatCategory) Maneuvering() bool {
	return c == CategoryCruiseMissile || c == CategoryDrone
}

// Threat is one inbound track as reported by the kinematic source.
// Position and velocity are refreshed externally every tick; the core
// treats them as read-only.
type Threat struct {
	ID       int            `json:"id"`
	Category ThreatCategory `json:"category"`
	Pos      Vec3           `json:"pos"`
	Vel      Vec3           `json:"vel"`
	Active   bool           `json:"active"`

	// beingIntercepted is the mutual-exclusion marker for kill claims.
	// Only the kill adjudicator flips it; everyone else just reads.
	beingIntercepted atomic.Bool
}

// TimeToImpact returns the seconds until the threat reaches the ground
// under its current ballistic trajectory.
func (t *Threat) TimeToImpact() float64 {
	return TimeToGroundImpact(t.Pos, t.Vel)
}

// Speed returns the current speed magnitude (m/s).
func (t *Threat) Speed() float64 {
	return t.Vel.Length()
}

// Claim atomically marks the threat as being intercepted. It returns
// false when another interceptor already holds the claim.
func (t *Threat) Claim() bool {
	return t.beingIntercepted.CompareAndSwap(false, true)
}

// Unclaim releases the being-intercepted marker after a miss so other
// interceptors may engage.
func (t *Threat) Unclaim() {
	t.beingIntercepted.Store(false)
}

// BeingIntercepted reports whether a kill attempt currently owns this threat.
func (t *Threat) BeingIntercepted() bool {
	return t.beingIntercepted.Load()
}

// DetonationFunc is invoked by the proximity fuse when an interceptor
// comes within lethal range of its target. Quality is in [0,1], higher
// meaning a tighter fuse solution.
type DetonationFunc func(detonationPos Vec3, quality float64)

// Interceptor is one in-flight effector. The engine owns its kinematics:
// guidance steers it every tick and the proximity fuse ends its flight.
type Interceptor struct {
	ID         int     `json:"id"`
	Pos        Vec3    `json:"pos"`
	Vel        Vec3    `json:"vel"`
	TargetID   int     `json:"targetId"` // 0 = no target (awaiting retarget or orphaned)
	Active     bool    `json:"active"`
	LaunchedAt float64 `json:"launchedAt"` // sim clock seconds
	MaxSpeed   float64 `json:"maxSpeed"`

	OnDetonate DetonationFunc `json:"-"`
}

// HasTarget reports whether the interceptor currently tracks a threat.
func (i *Interceptor) HasTarget() bool {
	return i.TargetID != 0
}

// Battery is the capability view of one launcher site. The allocator
// reads everything and decrements Available as a side effect of firing.
type Battery struct {
	ID               int     `json:"id"`
	Pos              Vec3    `json:"pos"`
	MaxRange         float64 `json:"maxRange"`
	InterceptorSpeed float64 `json:"interceptorSpeed"`
	Available        int     `json:"available"`
	Capacity         int     `json:"capacity"`
	Operational      bool    `json:"operational"`

	// CanFireInterceptors distinguishes launcher batteries from
	// sensor-only sites that contribute tracks but cannot shoot.
	CanFireInterceptors bool `json:"canFireInterceptors"`
}

// CanIntercept reports whether this battery is able to engage the given
// threat right now: operational, armed, and the threat inside max range.
func (b *Battery) CanIntercept(t *Threat) bool {
	if !b.Operational || !b.CanFireInterceptors || b.Available <= 0 {
		return false
	}
	return Distance(b.Pos, t.Pos) <= b.MaxRange
}

// Expend removes count interceptors from the battery inventory.
// It returns false without side effects when inventory is insufficient.
func (b *Battery) Expend(count int) bool {
	if count <= 0 || b.Available < count {
		return false
	}
	b.Available -= count
	return true
}

// EngagementStrategy selects the firing doctrine for one engagement.
type EngagementStrategy int

const (
	StrategySingle EngagementStrategy = iota
	StrategySalvo
	StrategyShootLookShoot
)

func (s EngagementStrategy) String() string {
	switch s {
	case StrategySingle:
		return "single"
	case StrategySalvo:
		return "salvo"
	case StrategyShootLookShoot:
		return "shoot_look_shoot"
	}
	return "unknown"
}

// EngagementStatus is the state-machine state of one engagement.
type EngagementStatus int

const (
	EngagementActive EngagementStatus = iota
	EngagementAssessing
	EngagementCompleted
	EngagementFailed
)

func (s EngagementStatus) String() string {
	switch s {
	case EngagementActive:
		return "active"
	case EngagementAssessing:
		return "assessing"
	case EngagementCompleted:
		return "completed"
	case EngagementFailed:
		return "failed"
	}
	return "unknown"
}

// EngagementResult is the adjudicated outcome of one engagement.
type EngagementResult int

const (
	ResultPending EngagementResult = iota
	ResultHit
	ResultMiss
)

func (r EngagementResult) String() string {
	switch r {
	case ResultHit:
		return "hit"
	case ResultMiss:
		return "miss"
	}
	return "pending"
}

// Engagement is the lifecycle of one battery's attempt(s) to destroy one
// threat. The engagement controller owns all state transitions.
type Engagement struct {
	ID             uuid.UUID          `json:"id"`
	ThreatID       int                `json:"threatId"`
	BatteryID      int                `json:"batteryId"`
	InterceptorIDs []int              `json:"interceptorIds"`
	Strategy       EngagementStrategy `json:"strategy"`
	Status         EngagementStatus   `json:"status"`
	Result         EngagementResult   `json:"result"`
	CreatedAt      float64            `json:"createdAt"`
	CompletedAt    float64            `json:"completedAt"`

	// PendingShots counts salvo rounds scheduled but not yet fired.
	PendingShots int `json:"pendingShots"`
	// SecondShotFired marks that the shoot-look-shoot follow-up went out.
	SecondShotFired bool `json:"secondShotFired"`
}

// Open reports whether the engagement still claims its threat
// (active or assessing).
func (e *Engagement) Open() bool {
	return e.Status == EngagementActive || e.Status == EngagementAssessing
}

// complete closes the engagement with the given result.
func (e *Engagement) Complete(result EngagementResult, now float64) {
	e.Status = EngagementCompleted
	e.Result = result
	e.CompletedAt = now
}
