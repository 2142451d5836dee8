package scenario

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivepilot-io/drivepilot/internal/drivepilot"
)

const sampleYAML = `
name: pedestrian-crossing
settle: 5ms
steps:
  - at: 0ms
    action: set_speed
    speed: 50
  - at: 2ms
    action: zone
    zone: school
  - at: 4ms
    action: pedestrian
    distance: 15
    crossing: true
`

func TestParse(t *testing.T) {
	sc, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "pedestrian-crossing", sc.Name)
	assert.Equal(t, Duration(5*time.Millisecond), sc.Settle)
	require.Len(t, sc.Steps, 3)
	assert.Equal(t, "set_speed", sc.Steps[0].Action)
	assert.Equal(t, 50.0, sc.Steps[0].Speed)
	assert.Equal(t, "school", sc.Steps[1].Zone)
	assert.True(t, sc.Steps[2].Crossing)
}

func TestParseRejectsEmptyAndUnordered(t *testing.T) {
	_, err := Parse([]byte("name: empty\nsteps: []\n"))
	assert.Error(t, err)

	_, err = Parse([]byte(`
name: unordered
steps:
  - at: 10ms
    action: set_speed
  - at: 5ms
    action: set_speed
`))
	assert.Error(t, err)

	_, err = Parse([]byte("steps: ["))
	assert.Error(t, err)
}

func TestRunnerAppliesSteps(t *testing.T) {
	cfg := drivepilot.NewConfig()
	// Keep the pedestrian admission deterministic under confidence noise.
	cfg.ConfidenceThreshold = 0.5
	sim, err := cfg.NewSimulator()
	require.NoError(t, err)

	sc, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	require.NoError(t, NewRunner(sim).Run(context.Background(), sc))

	snap := sim.VehicleSnapshot()
	assert.Equal(t, 0.0, snap.Speed, "crossing pedestrian at 15m forces a stop")
	assert.True(t, snap.EmergencyHold)
	assert.Equal(t, 30.0, sim.SpeedLimiting().CurrentLimit())
}

func TestRunnerRejectsUnknownAction(t *testing.T) {
	cfg := drivepilot.NewConfig()
	sim, err := cfg.NewSimulator()
	require.NoError(t, err)

	sc := &Scenario{Name: "bad", Steps: []Step{{Action: "teleport"}}}

	err = NewRunner(sim).Run(context.Background(), sc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "teleport")
}

func TestRunnerStopsOnCancel(t *testing.T) {
	cfg := drivepilot.NewConfig()
	sim, err := cfg.NewSimulator()
	require.NoError(t, err)

	sc := &Scenario{Name: "slow", Steps: []Step{
		{At: Duration(time.Second), Action: "set_speed", Speed: 10},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = NewRunner(sim).Run(ctx, sc)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0.0, sim.VehicleSnapshot().Speed)
}
