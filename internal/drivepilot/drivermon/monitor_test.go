package drivermon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivepilot-io/drivepilot/internal/drivepilot/core"
)

type capture struct {
	events []core.Event
}

func (c *capture) Publish(ev core.Event) {
	c.events = append(c.events, ev)
}

func (c *capture) alerts() []core.Alert {
	var out []core.Alert
	for _, ev := range c.events {
		if ev.Type == core.EventAlert {
			out = append(out, ev.Payload.(core.Alert))
		}
	}
	return out
}

func newTestMonitor(t *testing.T, threshold float64) (*Monitor, *capture) {
	t.Helper()
	m := New(threshold)
	pub := &capture{}
	require.NoError(t, m.Setup(pub))
	return m, pub
}

func TestNextLevelThresholds(t *testing.T) {
	tests := []struct {
		away float64
		want Level
	}{
		{0, LevelNone},
		{4.9, LevelNone},
		{5.0, LevelVisual},
		{9.9, LevelVisual},
		{10.0, LevelAudible},
		{14.9, LevelAudible},
		{15.0, LevelHaptic},
		{60.0, LevelHaptic},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, nextLevel(tc.away, 5.0), "away=%v", tc.away)
	}
}

func TestEscalationEmitsOneAlertPerLevel(t *testing.T) {
	m, pub := newTestMonitor(t, 5.0)

	m.SimulateGazeAway(6.0)
	m.SimulateGazeAway(7.0) // still visual, no new alert
	m.SimulateGazeAway(11.0)
	m.SimulateGazeAway(16.0)

	got := pub.alerts()
	require.Len(t, got, 3)
	assert.Equal(t, "Driver attention required - visual alert", got[0].Message)
	assert.Equal(t, core.SeverityWarning, got[0].Severity)
	assert.Equal(t, "Driver attention required - audible alert", got[1].Message)
	assert.Equal(t, core.SeverityWarning, got[1].Severity)
	assert.Equal(t, "Driver attention required - haptic alert", got[2].Message)
	assert.Equal(t, core.SeverityCritical, got[2].Severity)
	assert.Equal(t, LevelHaptic, m.Level())
}

func TestLevelNeverDeEscalatesWithoutForwardGaze(t *testing.T) {
	m, pub := newTestMonitor(t, 5.0)

	m.SimulateGazeAway(12.0)
	require.Equal(t, LevelAudible, m.Level())

	// A shorter away-time must not lower the level or re-alert.
	m.SimulateGazeAway(6.0)
	assert.Equal(t, LevelAudible, m.Level())
	assert.Len(t, pub.alerts(), 1)
}

func TestForwardGazeResetsTimerAndLevel(t *testing.T) {
	m, pub := newTestMonitor(t, 5.0)

	m.SimulateGazeAway(16.0)
	require.Equal(t, LevelHaptic, m.Level())

	require.NoError(t, m.SimulateGazeDirection(GazeForward))

	assert.Equal(t, LevelNone, m.Level())
	assert.Zero(t, m.State().TimeLookingAway)

	// Escalation starts over from visual.
	m.SimulateGazeAway(5.0)
	got := pub.alerts()
	require.Len(t, got, 2)
	assert.Contains(t, got[1].Message, "visual")
}

func TestUpdateAccumulatesTimeLookingAway(t *testing.T) {
	m, pub := newTestMonitor(t, 5.0)
	vehicle := core.NewVehicleState()

	require.NoError(t, m.SimulateGazeDirection(GazeLeft))

	now := time.Unix(1000, 0)
	m.Update(now, vehicle) // first tick establishes lastUpdate
	for i := 1; i <= 6; i++ {
		m.Update(now.Add(time.Duration(i)*time.Second), vehicle)
	}

	assert.InDelta(t, 6.0, m.State().TimeLookingAway, 1e-9)
	assert.Equal(t, LevelVisual, m.Level())
	require.NotEmpty(t, pub.alerts())

	// Forward gaze stops accumulation.
	require.NoError(t, m.SimulateGazeDirection(GazeForward))
	m.Update(now.Add(10*time.Second), vehicle)
	assert.Zero(t, m.State().TimeLookingAway)
}

func TestUpdatePublishesDriverState(t *testing.T) {
	m, pub := newTestMonitor(t, 5.0)
	vehicle := core.NewVehicleState()

	m.Update(time.Unix(1000, 0), vehicle)

	var updates []core.Event
	for _, ev := range pub.events {
		if ev.Type == core.EventDriverStateUpdate {
			updates = append(updates, ev)
		}
	}
	require.Len(t, updates, 1)
	state, ok := updates[0].Payload.(DriverState)
	require.True(t, ok)
	assert.Equal(t, GazeForward, state.Gaze)
	assert.Equal(t, 1.0, state.AttentionLevel)
}

func TestAttentionLevelTracksGaze(t *testing.T) {
	m, _ := newTestMonitor(t, 5.0)

	require.NoError(t, m.SimulateGazeDirection(GazeDown))
	assert.InDelta(t, 0.9, m.State().AttentionLevel, 1e-9)

	require.NoError(t, m.SimulateGazeDirection(GazeLeft))
	assert.InDelta(t, 0.8, m.State().AttentionLevel, 1e-9)

	require.NoError(t, m.SimulateGazeDirection(GazeForward))
	assert.InDelta(t, 1.0, m.State().AttentionLevel, 1e-9)
}

func TestAttentionLevelClamps(t *testing.T) {
	m, _ := newTestMonitor(t, 5.0)

	for i := 0; i < 15; i++ {
		require.NoError(t, m.SimulateGazeDirection(GazeAway))
	}
	assert.Equal(t, 0.0, m.State().AttentionLevel)

	for i := 0; i < 10; i++ {
		require.NoError(t, m.SimulateGazeDirection(GazeForward))
	}
	assert.Equal(t, 1.0, m.State().AttentionLevel)
}

func TestSimulateEyesClosed(t *testing.T) {
	m, _ := newTestMonitor(t, 5.0)

	m.SimulateEyesClosed(true)

	state := m.State()
	assert.True(t, state.EyesClosed)
	assert.Equal(t, 0.0, state.AttentionLevel)
	assert.Equal(t, GazeForward, state.Gaze)

	m.SimulateEyesClosed(false)
	state = m.State()
	assert.False(t, state.EyesClosed)
	assert.Equal(t, 0.0, state.AttentionLevel, "reopening does not restore attention by itself")
}

func TestInvalidGazeDirectionRejected(t *testing.T) {
	m, _ := newTestMonitor(t, 5.0)

	err := m.SimulateGazeDirection("sideways")
	assert.Error(t, err)
	assert.Equal(t, GazeForward, m.State().Gaze)
}

func TestDisableSuppressesEscalation(t *testing.T) {
	m, pub := newTestMonitor(t, 5.0)

	m.Disable()
	m.SimulateGazeAway(30.0)

	assert.Equal(t, LevelNone, m.Level())
	assert.Empty(t, pub.alerts())

	m.Enable()
	m.SimulateGazeAway(30.0)
	assert.Equal(t, LevelHaptic, m.Level())
}

func TestSetAlertThreshold(t *testing.T) {
	m, _ := newTestMonitor(t, 5.0)

	m.SetAlertThreshold(2.0)
	m.SimulateGazeAway(6.0)
	assert.Equal(t, LevelHaptic, m.Level())

	// Non-positive values are ignored.
	m.SetAlertThreshold(-1.0)
	assert.Equal(t, 2.0, m.Status()["alert_threshold"])
}
