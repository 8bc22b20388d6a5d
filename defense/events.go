package defense

import "github.com/skyshield/skyshield/sim"

// EventKind tags one side-channel event emitted by the engine during a
// tick. Events are how the core talks to the external renderer, audio
// and scoring collaborators without depending on them.
type EventKind string

const (
	EventExplosion    EventKind = "explosion"
	EventSound        EventKind = "sound"
	EventScore        EventKind = "score"
	EventInfo         EventKind = "info"
	EventLaunch       EventKind = "launch"
	EventSelfDestruct EventKind = "self_destruct"
)

// SoundCue names an audio cue for the external audio collaborator.
type SoundCue string

const (
	SoundLaunch       SoundCue = "launch"
	SoundExplosion    SoundCue = "explosion"
	SoundSelfDestruct SoundCue = "self_destruct"
	SoundGroundImpact SoundCue = "ground_impact"
)

// Event is one side-channel event. Only the fields relevant to its kind
// are populated.
type Event struct {
	Kind       EventKind `json:"kind"`
	Tick       uint64    `json:"tick"`
	Pos        *sim.Vec3 `json:"pos,omitempty"`
	Quality    float64   `json:"quality,omitempty"`
	Sound      SoundCue  `json:"sound,omitempty"`
	ScoreDelta int       `json:"scoreDelta,omitempty"`
	Message    string    `json:"message,omitempty"`
}

func (e *Engine) emit(ev Event) {
	ev.Tick = e.tick
	e.events = append(e.events, ev)
}

func (e *Engine) emitExplosion(pos sim.Vec3, quality float64) {
	e.emit(Event{Kind: EventExplosion, Pos: &pos, Quality: quality})
	e.emit(Event{Kind: EventSound, Pos: &pos, Sound: SoundExplosion})
}

func (e *Engine) emitInfo(msg string) {
	e.emit(Event{Kind: EventInfo, Message: msg})
}
