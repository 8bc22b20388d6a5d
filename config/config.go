// Package config loads engine tunables from an optional JSON file with
// sane defaults for every knob. The engine itself never reads viper;
// it receives an immutable Engine snapshot at construction.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Engine is the full set of engagement-core tunables.
type Engine struct {
	// Tick
	TickRate float64 `mapstructure:"tickRate"` // simulation ticks per second

	// Guidance
	GuidanceMode       string  `mapstructure:"guidanceMode"` // "true" or "augmented"
	NavigationConstant float64 `mapstructure:"navigationConstant"`
	MaxAccel           float64 `mapstructure:"maxAccel"`   // m/s², commanded-acceleration clamp
	MinClosing         float64 `mapstructure:"minClosing"` // m/s, closing-velocity floor

	// Tracker
	HistoryDepth  int     `mapstructure:"historyDepth"`
	MaxAccelEst   float64 `mapstructure:"maxAccelEst"`  // m/s², acceleration-estimate clamp
	LeadTimeStep  float64 `mapstructure:"leadTimeStep"` // s
	LeadHorizon   float64 `mapstructure:"leadHorizon"`  // s
	LeadTolerance float64 `mapstructure:"leadTolerance"`
	SpinUpTime    float64 `mapstructure:"spinUpTime"` // s, interceptor acceleration phase
	TrackMaxAge   float64 `mapstructure:"trackMaxAge"`

	// Spatial index / solution cache
	GridCellSize    float64 `mapstructure:"gridCellSize"`
	CacheTTL        float64 `mapstructure:"cacheTTL"` // s
	CacheCap        int     `mapstructure:"cacheCap"`
	CacheEvictN     int     `mapstructure:"cacheEvictN"`
	BisectTolerance float64 `mapstructure:"bisectTolerance"` // s

	// Allocator
	MaxInFlight int `mapstructure:"maxInFlight"`

	// Engagement controller
	SalvoDelay       float64 `mapstructure:"salvoDelay"`       // s between salvo rounds
	AssessmentDelay  float64 `mapstructure:"assessmentDelay"`  // s before judging first shot
	SecondShotWindow float64 `mapstructure:"secondShotWindow"` // s of remaining TTI required to re-shoot
	SLSMinTTI        float64 `mapstructure:"slsMinTTI"`        // s of TTI required to prefer shoot-look-shoot

	// Prioritizer
	DefaultSuccessRate float64 `mapstructure:"defaultSuccessRate"`
	SuccessRateAlpha   float64 `mapstructure:"successRateAlpha"`
	SweepInterval      float64 `mapstructure:"sweepInterval"` // s between consistency sweeps

	// Adjudicator / repurposing
	RetargetMaxDist     float64 `mapstructure:"retargetMaxDist"`
	RetargetMaxTrackers int     `mapstructure:"retargetMaxTrackers"`
	Seed                int64   `mapstructure:"seed"`
}

func setDefaults() {
	viper.SetDefault("tickRate", 60.0)

	viper.SetDefault("guidanceMode", "true")
	viper.SetDefault("navigationConstant", 3.0)
	viper.SetDefault("maxAccel", 300.0)
	viper.SetDefault("minClosing", 50.0)

	viper.SetDefault("historyDepth", 10)
	viper.SetDefault("maxAccelEst", 50.0)
	viper.SetDefault("leadTimeStep", 0.1)
	viper.SetDefault("leadHorizon", 30.0)
	viper.SetDefault("leadTolerance", 0.01)
	viper.SetDefault("spinUpTime", 2.0)
	viper.SetDefault("trackMaxAge", 30.0)

	viper.SetDefault("gridCellSize", 1000.0)
	viper.SetDefault("cacheTTL", 0.1)
	viper.SetDefault("cacheCap", 1000)
	viper.SetDefault("cacheEvictN", 100)
	viper.SetDefault("bisectTolerance", 0.01)

	viper.SetDefault("maxInFlight", 8)

	viper.SetDefault("salvoDelay", 0.5)
	viper.SetDefault("assessmentDelay", 2.0)
	viper.SetDefault("secondShotWindow", 5.0)
	viper.SetDefault("slsMinTTI", 8.0)

	viper.SetDefault("defaultSuccessRate", 0.85)
	viper.SetDefault("successRateAlpha", 0.1)
	viper.SetDefault("sweepInterval", 0.333)

	viper.SetDefault("retargetMaxDist", 50.0)
	viper.SetDefault("retargetMaxTrackers", 3)
	viper.SetDefault("seed", 1)
}

// Load reads skyshield.cfg.json from configDir (when present) on top of
// the defaults and returns the resulting engine configuration. A missing
// config file is not an error; every value has a default.
func Load(configDir string) (Engine, error) {
	setDefaults()

	viper.SetConfigName("skyshield.cfg.json")
	viper.SetConfigType("json")
	viper.AddConfigPath(configDir)

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return Engine{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Engine
	if err := viper.Unmarshal(&cfg); err != nil {
		return Engine{}, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return cfg, nil
}

// Default returns the built-in engine configuration without touching
// the filesystem. Tests and library consumers start from here.
func Default() Engine {
	setDefaults()
	var cfg Engine
	// Unmarshal over pure defaults cannot fail.
	_ = viper.Unmarshal(&cfg)
	return cfg
}
