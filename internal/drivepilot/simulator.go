package drivepilot

import (
	"context"
	"sync"
	"time"

	"github.com/drivepilot-io/drivepilot/internal/drivepilot/alerts"
	"github.com/drivepilot-io/drivepilot/internal/drivepilot/bus"
	"github.com/drivepilot-io/drivepilot/internal/drivepilot/core"
	"github.com/drivepilot-io/drivepilot/internal/drivepilot/drivermon"
	"github.com/drivepilot-io/drivepilot/internal/drivepilot/obstacle"
	"github.com/drivepilot-io/drivepilot/internal/drivepilot/ota"
	"github.com/drivepilot-io/drivepilot/internal/drivepilot/regulatory"
	"github.com/drivepilot-io/drivepilot/internal/drivepilot/speedlimit"
	"github.com/drivepilot-io/drivepilot/internal/pkg/metrics"
	"github.com/drivepilot-io/drivepilot/pkg/log"
)

// sourceName identifies the orchestrator on the bus.
const sourceName = "simulator"

// Simulator owns the bus, the shared vehicle state and the five feature
// modules, and drives them from a fixed-tick background loop. Stimulus and
// observation methods are safe to call from any goroutine while the loop
// runs.
type Simulator struct {
	cfg     *Config
	bus     *bus.Bus
	vehicle *core.VehicleState
	sink    *alerts.Sink

	drivermon  *drivermon.Monitor
	speedlimit *speedlimit.Limiter
	ota        *ota.Manager
	obstacle   *obstacle.Detector
	regulatory *regulatory.Switcher
	modules    []core.Module

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Start launches the background tick loop. Starting a running simulator is
// a no-op.
func (s *Simulator) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	s.mu.Unlock()

	go s.loop(ctx)

	s.bus.Publish(core.NewEvent(core.EventSimulationStarted, sourceName, nil))
	log.Info("Simulation started", "tickPeriod", s.cfg.TickPeriod)
}

// Stop signals the loop and waits up to one tick period for it to exit.
// Stopping a stopped simulator is a no-op.
func (s *Simulator) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(s.cfg.TickPeriod):
		log.Warn("Simulation loop did not stop within one tick period")
	}

	s.bus.Publish(core.NewEvent(core.EventSimulationStopped, sourceName, nil))
	log.Info("Simulation stopped")
}

// Run starts the simulation, blocks until the context is canceled, then
// stops it.
func (s *Simulator) Run(ctx context.Context) error {
	s.Start()
	defer s.Stop()
	<-ctx.Done()
	return nil
}

// Running reports whether the tick loop is active.
func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Simulator) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.TickPeriod)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			s.tick(now)
		case <-ctx.Done():
			return
		}
	}
}

// tick publishes the current vehicle state, then updates every feature
// module in the fixed order.
func (s *Simulator) tick(now time.Time) {
	metrics.TicksTotal.Inc()

	s.bus.Publish(core.NewEvent(core.EventVehicleStateUpdate, sourceName, s.vehicle.Snapshot()))

	for _, m := range s.modules {
		m.Update(now, s.vehicle)
	}
}

// --- Stimulus API ---

// SetVehicleSpeed applies a speed stimulus in km/h. It releases any
// emergency hold.
func (s *Simulator) SetVehicleSpeed(speed float64) {
	s.vehicle.SetSpeed(speed)
}

// SetVehiclePosition applies a GPS stimulus for geofencing.
func (s *Simulator) SetVehiclePosition(lat, lon float64) {
	s.vehicle.SetPosition(lat, lon)
}

// SimulateGazeDirection applies a gaze stimulus.
func (s *Simulator) SimulateGazeDirection(direction drivermon.GazeDirection) error {
	return s.drivermon.SimulateGazeDirection(direction)
}

// SimulateGazeAway sets the cumulative time looking away in seconds.
func (s *Simulator) SimulateGazeAway(seconds float64) {
	s.drivermon.SimulateGazeAway(seconds)
}

// SimulateEyesClosed applies the eyes-closed stimulus.
func (s *Simulator) SimulateEyesClosed(closed bool) {
	s.drivermon.SimulateEyesClosed(closed)
}

// SetWeatherCondition applies a named weather stimulus.
func (s *Simulator) SetWeatherCondition(condition string) error {
	return s.speedlimit.SetWeatherCondition(condition)
}

// SetTrafficDensity applies a traffic density factor.
func (s *Simulator) SetTrafficDensity(density float64) {
	s.speedlimit.SetTrafficDensity(density)
}

// SetSpeedZone switches to a named speed zone.
func (s *Simulator) SetSpeedZone(zone string) error {
	return s.speedlimit.SetSpeedZone(zone)
}

// StartUpdate begins an OTA update.
func (s *Simulator) StartUpdate(version, signature string, simulateFailure bool) bool {
	return s.ota.StartUpdate(version, signature, simulateFailure)
}

// SimulateNetworkFailure injects a network failure into an in-flight update.
func (s *Simulator) SimulateNetworkFailure() {
	s.ota.SimulateNetworkFailure()
}

// SimulatePowerFailure injects a power failure into an in-flight update.
func (s *Simulator) SimulatePowerFailure() {
	s.ota.SimulatePowerFailure()
}

// DetectObstacle injects a synthetic obstacle and reports admission.
func (s *Simulator) DetectObstacle(objectType obstacle.ObjectType, distance, bearing, velocity float64) bool {
	return s.obstacle.AddObstacle(objectType, distance, bearing, velocity)
}

// SimulatePedestrian injects a pedestrian scenario.
func (s *Simulator) SimulatePedestrian(distance float64, crossing bool) bool {
	return s.obstacle.SimulatePedestrian(distance, crossing)
}

// SimulateAnimal injects an animal scenario.
func (s *Simulator) SimulateAnimal(distance float64, night bool) bool {
	return s.obstacle.SimulateAnimal(distance, night)
}

// SimulateStaticObject injects a static object scenario.
func (s *Simulator) SimulateStaticObject(distance float64, size string) bool {
	return s.obstacle.SimulateStaticObject(distance, size)
}

// AttemptFeatureActivation checks a feature against the current region.
func (s *Simulator) AttemptFeatureActivation(feature string) bool {
	return s.regulatory.AttemptFeatureActivation(feature)
}

// SimulateBorderCrossing forces a region change between two region codes.
func (s *Simulator) SimulateBorderCrossing(from, to string) error {
	return s.regulatory.SimulateBorderCrossing(from, to)
}

// --- Observation API ---

// Alerts returns accumulated alerts, optionally clearing the sink.
func (s *Simulator) Alerts(clear bool) []core.Alert {
	return s.sink.Get(clear)
}

// EventLog returns the bus history, optionally filtered by type.
func (s *Simulator) EventLog(types ...core.EventType) []core.Event {
	return s.bus.History(types...)
}

// VehicleSnapshot returns the current shared vehicle state.
func (s *Simulator) VehicleSnapshot() core.Snapshot {
	return s.vehicle.Snapshot()
}

// Status returns a nested snapshot of the engine and every feature module.
func (s *Simulator) Status() map[string]any {
	features := make(map[string]any, len(s.modules))
	for _, m := range s.modules {
		features[m.Name()] = m.Status()
	}
	return map[string]any{
		"running":     s.Running(),
		"vehicle":     s.vehicle.Snapshot(),
		"alert_count": s.sink.Len(),
		"features":    features,
	}
}

// Typed module accessors for callers that need feature-specific knobs.

func (s *Simulator) DriverMonitoring() *drivermon.Monitor  { return s.drivermon }
func (s *Simulator) SpeedLimiting() *speedlimit.Limiter    { return s.speedlimit }
func (s *Simulator) OTA() *ota.Manager                     { return s.ota }
func (s *Simulator) ObstacleDetection() *obstacle.Detector { return s.obstacle }
func (s *Simulator) RegulatoryMode() *regulatory.Switcher  { return s.regulatory }
