package drivepilot

import (
	"fmt"
	"time"

	"github.com/drivepilot-io/drivepilot/internal/drivepilot/alerts"
	"github.com/drivepilot-io/drivepilot/internal/drivepilot/bus"
	"github.com/drivepilot-io/drivepilot/internal/drivepilot/core"
	"github.com/drivepilot-io/drivepilot/internal/drivepilot/drivermon"
	"github.com/drivepilot-io/drivepilot/internal/drivepilot/obstacle"
	"github.com/drivepilot-io/drivepilot/internal/drivepilot/ota"
	"github.com/drivepilot-io/drivepilot/internal/drivepilot/regulatory"
	"github.com/drivepilot-io/drivepilot/internal/drivepilot/speedlimit"
)

// DefaultTickPeriod is the fixed update-loop period.
const DefaultTickPeriod = 100 * time.Millisecond

// Config carries the tunable engine parameters.
type Config struct {
	// TickPeriod is the fixed update-loop period.
	TickPeriod time.Duration

	// HistoryLimit bounds the bus event history.
	HistoryLimit int

	// DriverAlertThreshold is the first escalation threshold in seconds.
	DriverAlertThreshold float64

	// DetectionRange is the obstacle tracking range in meters.
	DetectionRange float64

	// ConfidenceThreshold gates obstacle admission.
	ConfidenceThreshold float64

	// OTADurations sets the simulated update phase lengths.
	OTADurations ota.PhaseDurations
}

// NewConfig returns a Config with the reference defaults.
func NewConfig() *Config {
	return &Config{
		TickPeriod:           DefaultTickPeriod,
		HistoryLimit:         bus.DefaultHistoryLimit,
		DriverAlertThreshold: drivermon.DefaultAlertThreshold,
		DetectionRange:       obstacle.DefaultDetectionRange,
		ConfidenceThreshold:  obstacle.DefaultConfidenceThreshold,
		OTADurations:         ota.DefaultPhaseDurations(),
	}
}

// NewSimulator assembles the bus, shared vehicle state, alert sink and the
// five feature modules, and wires the cross-module glue.
func (cfg *Config) NewSimulator() (*Simulator, error) {
	if cfg.TickPeriod <= 0 {
		return nil, fmt.Errorf("tick period must be positive, got %v", cfg.TickPeriod)
	}

	eventBus := bus.New(cfg.HistoryLimit)
	vehicle := core.NewVehicleState()
	sink := alerts.NewSink()
	eventBus.Subscribe(core.EventAlert, sink.HandleEvent)

	monitor := drivermon.New(cfg.DriverAlertThreshold)
	limiter := speedlimit.New()
	updater := ota.New(cfg.OTADurations)
	detector := obstacle.New(vehicle)
	detector.SetDetectionRange(cfg.DetectionRange)
	detector.SetConfidenceThreshold(cfg.ConfidenceThreshold)
	switcher := regulatory.New()

	s := &Simulator{
		cfg:        cfg,
		bus:        eventBus,
		vehicle:    vehicle,
		sink:       sink,
		drivermon:  monitor,
		speedlimit: limiter,
		ota:        updater,
		obstacle:   detector,
		regulatory: switcher,
		// Fixed tick order; the speed ramp runs before obstacle response, so
		// the emergency hold on the vehicle state is what gives the stop
		// precedence, not evaluation order.
		modules: []core.Module{monitor, limiter, updater, detector, switcher},
	}

	for _, m := range s.modules {
		if err := m.Setup(eventBus); err != nil {
			return nil, fmt.Errorf("setup module %s: %w", m.Name(), err)
		}
	}

	// A compliance change caps the speed ramp at the new region's ceiling.
	eventBus.Subscribe(core.EventComplianceModeChanged, func(ev core.Event) error {
		change, ok := ev.Payload.(regulatory.ComplianceChange)
		if !ok {
			return fmt.Errorf("unexpected compliance payload %T", ev.Payload)
		}
		limiter.SetRegionCap(change.MaxSpeed)
		return nil
	})

	return s, nil
}
