package drivermon

import (
	"fmt"
	"sync"
	"time"

	"github.com/drivepilot-io/drivepilot/internal/drivepilot/core"
)

// ModuleName identifies the driver monitoring module on the bus.
const ModuleName = "driver-monitoring"

// DefaultAlertThreshold is the time looking away, in seconds, at which the
// first escalation level fires.
const DefaultAlertThreshold = 5.0

// GazeDirection is the simulated gaze input.
type GazeDirection string

const (
	GazeForward GazeDirection = "forward"
	GazeLeft    GazeDirection = "left"
	GazeRight   GazeDirection = "right"
	GazeDown    GazeDirection = "down"
	GazeAway    GazeDirection = "away"
)

func validGaze(d GazeDirection) bool {
	switch d {
	case GazeForward, GazeLeft, GazeRight, GazeDown, GazeAway:
		return true
	}
	return false
}

// Level is the discrete driver-inattention escalation tier.
type Level int

const (
	LevelNone Level = iota
	LevelVisual
	LevelAudible
	LevelHaptic
)

func (l Level) String() string {
	switch l {
	case LevelVisual:
		return "visual"
	case LevelAudible:
		return "audible"
	case LevelHaptic:
		return "haptic"
	default:
		return "none"
	}
}

// nextLevel is the pure escalation transition: the target tier for a given
// cumulative time looking away. Callers apply it escalate-only.
func nextLevel(away, threshold float64) Level {
	switch {
	case away >= threshold*3:
		return LevelHaptic
	case away >= threshold*2:
		return LevelAudible
	case away >= threshold:
		return LevelVisual
	default:
		return LevelNone
	}
}

// DriverState is the gaze and attention snapshot owned by this module.
type DriverState struct {
	Gaze            GazeDirection
	AttentionLevel  float64 // 0.0 to 1.0
	EyesClosed      bool
	TimeLookingAway float64 // seconds
}

// Monitor tracks simulated gaze input and escalates attention alerts. The
// escalation level only ever increases; a forward gaze resets both the
// away-timer and the level.
type Monitor struct {
	mu         sync.Mutex
	pub        core.Publisher
	enabled    bool
	threshold  float64
	state      DriverState
	level      Level
	lastUpdate time.Time
}

var _ core.Module = (*Monitor)(nil)

func New(threshold float64) *Monitor {
	if threshold <= 0 {
		threshold = DefaultAlertThreshold
	}
	return &Monitor{
		enabled:   true,
		threshold: threshold,
		state: DriverState{
			Gaze:           GazeForward,
			AttentionLevel: 1.0,
		},
	}
}

func (m *Monitor) Name() string { return ModuleName }

func (m *Monitor) Setup(pub core.Publisher) error {
	m.pub = pub
	return nil
}

// Update accumulates time looking away and applies the escalation policy.
func (m *Monitor) Update(now time.Time, vehicle *core.VehicleState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled {
		m.lastUpdate = now
		return
	}

	var dt float64
	if !m.lastUpdate.IsZero() {
		dt = now.Sub(m.lastUpdate).Seconds()
	}
	m.lastUpdate = now

	if m.state.Gaze != GazeForward {
		m.state.TimeLookingAway += dt
	}

	m.evaluateLocked()

	m.pub.Publish(core.NewEvent(core.EventDriverStateUpdate, ModuleName, m.state))
}

// SimulateGazeDirection applies a gaze stimulus. A forward gaze resets the
// away-timer and the escalation level immediately.
func (m *Monitor) SimulateGazeDirection(direction GazeDirection) error {
	if !validGaze(direction) {
		return fmt.Errorf("unknown gaze direction: %q", direction)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Gaze = direction
	if direction == GazeForward {
		m.state.AttentionLevel = min(1.0, m.state.AttentionLevel+0.2)
		m.state.TimeLookingAway = 0
		m.level = LevelNone
	} else {
		m.state.AttentionLevel = max(0.0, m.state.AttentionLevel-0.1)
	}
	return nil
}

// SimulateGazeAway sets the cumulative time looking away directly and
// evaluates the escalation policy at once.
func (m *Monitor) SimulateGazeAway(seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Gaze = GazeAway
	m.state.TimeLookingAway = seconds
	m.evaluateLocked()
}

// SimulateEyesClosed forces the continuous attention metric to zero while
// closed. It does not change the gaze direction or the escalation level.
func (m *Monitor) SimulateEyesClosed(closed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.EyesClosed = closed
	if closed {
		m.state.AttentionLevel = 0.0
	}
}

// SetAlertThreshold adjusts the base escalation threshold in seconds.
func (m *Monitor) SetAlertThreshold(seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if seconds > 0 {
		m.threshold = seconds
	}
}

func (m *Monitor) Enable() {
	m.mu.Lock()
	m.enabled = true
	m.mu.Unlock()
}

// Disable stops monitoring and resets the escalation level.
func (m *Monitor) Disable() {
	m.mu.Lock()
	m.enabled = false
	m.level = LevelNone
	m.mu.Unlock()
}

// Level returns the current escalation level.
func (m *Monitor) Level() Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// State returns a copy of the driver state.
func (m *Monitor) State() DriverState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) Status() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]any{
		"enabled":           m.enabled,
		"alert_threshold":   m.threshold,
		"gaze_direction":    string(m.state.Gaze),
		"attention_level":   m.state.AttentionLevel,
		"eyes_closed":       m.state.EyesClosed,
		"time_looking_away": m.state.TimeLookingAway,
		"alert_level":       m.level.String(),
	}
}

// evaluateLocked applies the escalate-only policy and emits exactly one
// alert per upward transition. Caller holds m.mu.
func (m *Monitor) evaluateLocked() {
	if !m.enabled {
		return
	}

	target := nextLevel(m.state.TimeLookingAway, m.threshold)
	if target <= m.level {
		return
	}
	m.level = target

	severity := core.SeverityWarning
	if target == LevelHaptic {
		severity = core.SeverityCritical
	}
	core.PublishAlert(m.pub, core.NewAlert(
		"driver_attention",
		severity,
		fmt.Sprintf("Driver attention required - %s alert", target),
		ModuleName,
	))
}
