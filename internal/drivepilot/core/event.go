package core

import (
	"time"

	"github.com/google/uuid"
)

// EventType tags events flowing through the simulation bus.
type EventType string

const (
	EventVehicleStateUpdate    EventType = "vehicle_state_update"
	EventDriverStateUpdate     EventType = "driver_state_update"
	EventSpeedAdjusted         EventType = "speed_adjusted"
	EventObstaclesDetected     EventType = "obstacles_detected"
	EventEmergencyStop         EventType = "emergency_stop"
	EventOTAStatus             EventType = "ota_status"
	EventOTASuccess            EventType = "ota_success"
	EventOTAFailed             EventType = "ota_failed"
	EventOTARollback           EventType = "ota_rollback"
	EventRegionChanged         EventType = "region_changed"
	EventComplianceModeChanged EventType = "compliance_mode_changed"
	EventFeatureBlocked        EventType = "feature_blocked"
	EventSimulationStarted     EventType = "simulation_started"
	EventSimulationStopped     EventType = "simulation_stopped"
	EventAlert                 EventType = "alert"
)

// Event is the generic envelope delivered to subscribers and appended to
// the bus history. Payload is event-type specific.
type Event struct {
	ID        string
	Type      EventType
	Source    string
	Timestamp time.Time
	Payload   any
}

// NewEvent stamps a fresh envelope with an ID and the current time.
func NewEvent(t EventType, source string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Source:    source,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// HandlerFunc consumes one published event. A returned error is logged by
// the bus and never stops delivery to the remaining subscribers.
type HandlerFunc func(Event) error

// Publisher is the bus capability handed to feature modules. Publication is
// synchronous: handlers run on the publishing goroutine, so a handler must
// not re-acquire a guard the publisher already holds.
type Publisher interface {
	Publish(event Event)
}
