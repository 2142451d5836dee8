package core

import "time"

// Module is one drive-pilot feature state machine driven by the simulator.
// Update is invoked once per tick in a fixed order; it may mutate the shared
// vehicle state and publish events or alerts.
type Module interface {
	Name() string

	Setup(pub Publisher) error

	Update(now time.Time, vehicle *VehicleState)

	// Status returns a flat key-value snapshot for the observation API.
	Status() map[string]any
}
