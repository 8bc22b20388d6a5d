package defense

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/skyshield/skyshield/config"
	"github.com/skyshield/skyshield/sim"
)

// Priority scoring bands. Tuned against the category weights in
// sim.ThreatCategory.PriorityWeight so that an imminent ballistic
// missile always outranks a loitering drone.
const (
	priorityBase = 50.0

	ttiBandCritical = 10.0 // seconds
	ttiBandUrgent   = 20.0
	ttiBandSoon     = 30.0

	speedBandFast   = 800.0 // m/s
	speedBandMedium = 400.0
	speedBandSlow   = 200.0

	altBandLow = 500.0 // meters
	altBandMid = 1000.0

	// Difficulty thresholds
	difficultySpeedThreshold = 600.0
	difficultyAltThreshold   = 1000.0
	difficultyTTIThreshold   = 15.0

	maxRequiredInterceptors = 4
	// cumulative leak probability the required-shot count drives toward
	requiredLeakTarget = 0.05
)

// ScoredThreat is one prioritized threat with its allocation inputs.
type ScoredThreat struct {
	Threat       *sim.Threat
	Score        float64
	Difficulty   float64
	Required     int
	TimeToImpact float64
}

// Prioritizer scores and orders threats and maintains the per-category
// historical success model that drives the required-interceptor count.
type Prioritizer struct {
	log   zerolog.Logger
	cfg   config.Engine
	rates map[sim.ThreatCategory]float64
}

func NewPrioritizer(cfg config.Engine, log zerolog.Logger) *Prioritizer {
	return &Prioritizer{
		log:   log.With().Str("comp", "prioritizer").Logger(),
		cfg:   cfg,
		rates: make(map[sim.ThreatCategory]float64),
	}
}

// Prioritize scores every active threat and returns them sorted by
// descending priority.
func (p *Prioritizer) Prioritize(threats []*sim.Threat) []ScoredThreat {
	scored := make([]ScoredThreat, 0, len(threats))
	for _, t := range threats {
		if !t.Active {
			continue
		}
		tti := t.TimeToImpact()
		difficulty := p.difficulty(t, tti)
		scored = append(scored, ScoredThreat{
			Threat:       t,
			Score:        p.score(t, tti),
			Difficulty:   difficulty,
			Required:     p.requiredInterceptors(t.Category, difficulty),
			TimeToImpact: tti,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}

// score computes the urgency score for one threat.
func (p *Prioritizer) score(t *sim.Threat, tti float64) float64 {
	score := priorityBase

	switch {
	case tti < ttiBandCritical:
		score += 40
	case tti < ttiBandUrgent:
		score += 25
	case tti < ttiBandSoon:
		score += 10
	}

	score += t.Category.PriorityWeight()

	speed := t.Speed()
	switch {
	case speed > speedBandFast:
		score += 20
	case speed > speedBandMedium:
		score += 10
	case speed > speedBandSlow:
		score += 5
	}

	switch {
	case t.Pos.Y < altBandLow:
		score += 10
	case t.Pos.Y < altBandMid:
		score += 5
	}

	return score
}

// difficulty estimates how hard the threat is to intercept, in [0,1].
func (p *Prioritizer) difficulty(t *sim.Threat, tti float64) float64 {
	d := 0.0
	if t.Speed() > difficultySpeedThreshold {
		d += 0.3
	}
	if t.Pos.Y < difficultyAltThreshold {
		d += 0.2
	}
	if tti < difficultyTTIThreshold {
		d += 0.3
	}
	if t.Category.Maneuvering() {
		d += 0.2
	}
	return math.Min(1.0, d)
}

// requiredInterceptors estimates how many shots the category needs for a
// 95% cumulative kill, scaled up by interception difficulty.
func (p *Prioritizer) requiredInterceptors(cat sim.ThreatCategory, difficulty float64) int {
	rate := p.SuccessRate(cat)
	// Guard the logarithm: a perfect record still needs one shot.
	if rate >= 0.99 {
		rate = 0.99
	}
	if rate <= 0.01 {
		rate = 0.01
	}

	shots := math.Log(requiredLeakTarget) / math.Log(1.0-rate)
	required := int(math.Ceil(shots * (1.0 + difficulty)))

	if required < 1 {
		required = 1
	}
	if required > maxRequiredInterceptors {
		required = maxRequiredInterceptors
	}
	return required
}

// SuccessRate returns the learned historical success rate for a category.
func (p *Prioritizer) SuccessRate(cat sim.ThreatCategory) float64 {
	if rate, ok := p.rates[cat]; ok {
		return rate
	}
	return p.cfg.DefaultSuccessRate
}

// RecordOutcome folds one observed engagement outcome into the
// per-category success model via an exponential moving average.
func (p *Prioritizer) RecordOutcome(cat sim.ThreatCategory, hit bool) {
	observed := 0.0
	if hit {
		observed = 1.0
	}
	prev := p.SuccessRate(cat)
	next := prev + p.cfg.SuccessRateAlpha*(observed-prev)
	p.rates[cat] = next
	p.log.Debug().
		Str("category", cat.String()).
		Bool("hit", hit).
		Float64("rate", next).
		Msg("success rate updated")
}
