// Package scenario loads declarative simulation scripts and replays them
// against a running simulator. A scenario is a YAML document with an ordered
// list of timed steps; each step waits for its offset and then applies one
// stimulus.
package scenario

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/drivepilot-io/drivepilot/internal/drivepilot"
	"github.com/drivepilot-io/drivepilot/internal/drivepilot/drivermon"
	"github.com/drivepilot-io/drivepilot/internal/drivepilot/obstacle"
	"github.com/drivepilot-io/drivepilot/pkg/log"
)

// Duration decodes Go duration strings ("250ms", "3s") from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Step is a single timed stimulus. At describes the offset from scenario
// start; Action selects the stimulus and the remaining fields parameterize it.
type Step struct {
	At     Duration `yaml:"at"`
	Action string   `yaml:"action"`

	// Vehicle stimuli.
	Speed float64 `yaml:"speed,omitempty"`
	Lat   float64 `yaml:"lat,omitempty"`
	Lon   float64 `yaml:"lon,omitempty"`

	// Driver stimuli.
	Gaze    string  `yaml:"gaze,omitempty"`
	Seconds float64 `yaml:"seconds,omitempty"`
	Closed  bool    `yaml:"closed,omitempty"`

	// Environment stimuli.
	Weather string  `yaml:"weather,omitempty"`
	Density float64 `yaml:"density,omitempty"`
	Zone    string  `yaml:"zone,omitempty"`

	// OTA stimuli.
	Version         string `yaml:"version,omitempty"`
	Signature       string `yaml:"signature,omitempty"`
	SimulateFailure bool   `yaml:"simulate_failure,omitempty"`

	// Obstacle stimuli.
	ObjectType string  `yaml:"object_type,omitempty"`
	Distance   float64 `yaml:"distance,omitempty"`
	Bearing    float64 `yaml:"bearing,omitempty"`
	Velocity   float64 `yaml:"velocity,omitempty"`
	Crossing   bool    `yaml:"crossing,omitempty"`
	Night      bool    `yaml:"night,omitempty"`
	Size       string  `yaml:"size,omitempty"`

	// Regulatory stimuli.
	Feature string `yaml:"feature,omitempty"`
	From    string `yaml:"from,omitempty"`
	To      string `yaml:"to,omitempty"`
}

// Scenario is an ordered script of stimuli plus a trailing settle time.
type Scenario struct {
	Name   string   `yaml:"name"`
	Settle Duration `yaml:"settle,omitempty"`
	Steps  []Step   `yaml:"steps"`
}

// Parse decodes a YAML scenario document.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if len(sc.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q has no steps", sc.Name)
	}
	for i, step := range sc.Steps {
		if step.At < 0 {
			return nil, fmt.Errorf("step %d: negative offset %v", i, step.At)
		}
		if i > 0 && step.At < sc.Steps[i-1].At {
			return nil, fmt.Errorf("step %d: offset %v precedes previous step", i, step.At)
		}
	}
	return &sc, nil
}

// Load reads and parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(data)
}

// Runner replays a scenario against a simulator.
type Runner struct {
	sim *drivepilot.Simulator
}

// NewRunner returns a runner bound to the given simulator.
func NewRunner(sim *drivepilot.Simulator) *Runner {
	return &Runner{sim: sim}
}

// Run applies each step at its offset, then waits for the settle period.
// It returns early when the context is cancelled.
func (r *Runner) Run(ctx context.Context, sc *Scenario) error {
	start := time.Now()
	log.Info("running scenario", "name", sc.Name, "steps", len(sc.Steps))

	for i, step := range sc.Steps {
		if err := sleepUntil(ctx, start.Add(time.Duration(step.At))); err != nil {
			return err
		}
		if err := r.apply(step); err != nil {
			return fmt.Errorf("step %d (%s): %w", i, step.Action, err)
		}
		log.Debug("applied step", "index", i, "action", step.Action, "at", step.At)
	}

	if sc.Settle > 0 {
		if err := sleepUntil(ctx, time.Now().Add(time.Duration(sc.Settle))); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) apply(step Step) error {
	switch step.Action {
	case "set_speed":
		r.sim.SetVehicleSpeed(step.Speed)
	case "set_position":
		r.sim.SetVehiclePosition(step.Lat, step.Lon)
	case "gaze":
		return r.sim.SimulateGazeDirection(drivermon.GazeDirection(step.Gaze))
	case "gaze_away":
		r.sim.SimulateGazeAway(step.Seconds)
	case "eyes_closed":
		r.sim.SimulateEyesClosed(step.Closed)
	case "weather":
		return r.sim.SetWeatherCondition(step.Weather)
	case "traffic":
		r.sim.SetTrafficDensity(step.Density)
	case "zone":
		return r.sim.SetSpeedZone(step.Zone)
	case "start_update":
		r.sim.StartUpdate(step.Version, step.Signature, step.SimulateFailure)
	case "network_failure":
		r.sim.SimulateNetworkFailure()
	case "power_failure":
		r.sim.SimulatePowerFailure()
	case "obstacle":
		r.sim.DetectObstacle(obstacle.ObjectType(step.ObjectType), step.Distance, step.Bearing, step.Velocity)
	case "pedestrian":
		r.sim.SimulatePedestrian(step.Distance, step.Crossing)
	case "animal":
		r.sim.SimulateAnimal(step.Distance, step.Night)
	case "static_object":
		r.sim.SimulateStaticObject(step.Distance, step.Size)
	case "activate_feature":
		r.sim.AttemptFeatureActivation(step.Feature)
	case "border_crossing":
		return r.sim.SimulateBorderCrossing(step.From, step.To)
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
	return nil
}

func sleepUntil(ctx context.Context, deadline time.Time) error {
	d := time.Until(deadline)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
