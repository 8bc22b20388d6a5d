package main

import (
	"flag"
	"math"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/skyshield/skyshield/config"
	"github.com/skyshield/skyshield/defense"
	"github.com/skyshield/skyshield/sim"
)

func main() {
	port := flag.String("port", "8080", "Telemetry server port")
	configDir := flag.String("config", ".", "Directory containing skyshield.cfg.json")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()

	cfg, err := config.Load(*configDir)
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	engine, err := defense.NewEngine(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("engine init failed")
	}

	telemetry := defense.NewTelemetryServer(log)

	http.HandleFunc("/ws", telemetry.HandleWebSocket)
	http.HandleFunc("/api/status", telemetry.HandleStatus(engine.Stats))
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	srv := &http.Server{
		Addr:         ":" + *port,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("telemetry server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("telemetry server failed")
		}
	}()

	stop := make(chan struct{})
	done := make(chan struct{})
	go runScenario(engine, telemetry, cfg, log, stop, done)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	close(stop)
	<-done
	srv.Close()
}

// runScenario drives the engine with scripted threat waves at a fixed
// timestep. It stands in for the external kinematic source: it owns the
// threat motion and the battery fleet, and feeds both to the engine
// every tick.
func runScenario(engine *defense.Engine, telemetry *defense.TelemetryServer,
	cfg config.Engine, log zerolog.Logger, stop, done chan struct{}) {
	defer close(done)

	rng := rand.New(rand.NewSource(cfg.Seed))

	batteries := []*sim.Battery{
		{ID: 1, Pos: sim.Vec3{X: 0, Y: 0, Z: 0}, MaxRange: 8000, InterceptorSpeed: 400,
			Available: 32, Capacity: 32, Operational: true, CanFireInterceptors: true},
		{ID: 2, Pos: sim.Vec3{X: 3000, Y: 0, Z: 2000}, MaxRange: 6000, InterceptorSpeed: 350,
			Available: 24, Capacity: 24, Operational: true, CanFireInterceptors: true},
		{ID: 3, Pos: sim.Vec3{X: -2500, Y: 0, Z: 1500}, MaxRange: 5000, InterceptorSpeed: 300,
			Available: 16, Capacity: 16, Operational: true, CanFireInterceptors: true},
	}

	var threats []*sim.Threat
	nextThreatID := 0
	dt := 1.0 / cfg.TickRate
	nextWave := 2.0
	clock := 0.0

	ticker := time.NewTicker(time.Duration(float64(time.Second) / cfg.TickRate))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		clock += dt

		if clock >= nextWave {
			wave := spawnWave(rng, &nextThreatID)
			threats = append(threats, wave...)
			nextWave = clock + 8.0 + rng.Float64()*7.0
			log.Info().Int("count", len(wave)).Float64("clock", clock).Msg("threat wave inbound")
		}

		threats = advanceThreats(threats, dt)

		interceptors, events := engine.Update(threats, batteries, dt)
		for _, ev := range events {
			if ev.Kind == defense.EventInfo {
				log.Info().Str("event", ev.Message).Msg("engine")
			}
		}

		telemetry.Broadcast(defense.Snapshot{
			Tick:         engine.Stats().Tick,
			Clock:        engine.Clock(),
			Threats:      threats,
			Interceptors: interceptors,
			Engagements:  engine.Engagements(),
			Events:       events,
			Stats:        engine.Stats(),
		})
	}
}

// spawnWave creates a mixed raid aimed at the defended area.
func spawnWave(rng *rand.Rand, nextID *int) []*sim.Threat {
	count := 2 + rng.Intn(4)
	wave := make([]*sim.Threat, 0, count)

	for k := 0; k < count; k++ {
		*nextID++
		cat := randomCategory(rng)

		// Launch from a ring 6-10 km out, aimed near the origin.
		bearing := rng.Float64() * 2 * math.Pi
		dist := 6000 + rng.Float64()*4000
		launch := sim.Vec3{
			X: math.Cos(bearing) * dist,
			Z: math.Sin(bearing) * dist,
		}
		aim := sim.Vec3{X: rng.Float64()*1000 - 500, Z: rng.Float64()*1000 - 500}

		t := &sim.Threat{ID: *nextID, Category: cat, Active: true}
		switch cat {
		case sim.CategoryBallisticMissile, sim.CategoryRocket, sim.CategoryMortar:
			// Lofted ballistic arc toward the aim point.
			speed := 300.0 + rng.Float64()*500
			if cat == sim.CategoryMortar {
				speed = 150 + rng.Float64()*100
			}
			toAim := aim.Sub(launch).Normalize()
			loft := 0.5 + rng.Float64()*0.4
			t.Pos = sim.Vec3{X: launch.X, Y: 1500 + rng.Float64()*2500, Z: launch.Z}
			t.Vel = sim.Vec3{X: toAim.X * speed, Y: -speed * loft * 0.3, Z: toAim.Z * speed}
		case sim.CategoryCruiseMissile:
			t.Pos = sim.Vec3{X: launch.X, Y: 200 + rng.Float64()*400, Z: launch.Z}
			t.Vel = aim.Sub(launch).Normalize().Scale(200 + rng.Float64()*100)
		case sim.CategoryDrone:
			t.Pos = sim.Vec3{X: launch.X, Y: 300 + rng.Float64()*700, Z: launch.Z}
			t.Vel = aim.Sub(launch).Normalize().Scale(40 + rng.Float64()*40)
		}
		wave = append(wave, t)
	}
	return wave
}

func randomCategory(rng *rand.Rand) sim.ThreatCategory {
	roll := rng.Float64()
	switch {
	case roll < 0.25:
		return sim.CategoryBallisticMissile
	case roll < 0.45:
		return sim.CategoryCruiseMissile
	case roll < 0.70:
		return sim.CategoryRocket
	case roll < 0.85:
		return sim.CategoryMortar
	default:
		return sim.CategoryDrone
	}
}

// advanceThreats integrates threat motion and removes tracks that were
// destroyed or reached the ground. Ballistic categories fall under
// gravity; cruise missiles and drones hold altitude.
func advanceThreats(threats []*sim.Threat, dt float64) []*sim.Threat {
	writeIdx := 0
	for _, t := range threats {
		if !t.Active {
			continue
		}

		switch t.Category {
		case sim.CategoryCruiseMissile, sim.CategoryDrone:
			t.Pos = t.Pos.Add(t.Vel.Scale(dt))
		default:
			t.Vel.Y -= sim.Gravity * dt
			t.Pos = t.Pos.Add(t.Vel.Scale(dt))
		}

		if t.Pos.Y <= 0 {
			t.Active = false
			continue
		}

		threats[writeIdx] = t
		writeIdx++
	}
	return threats[:writeIdx]
}
