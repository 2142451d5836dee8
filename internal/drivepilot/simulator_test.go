package drivepilot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivepilot-io/drivepilot/internal/drivepilot/core"
	"github.com/drivepilot-io/drivepilot/internal/drivepilot/ota"
)

// newTestSimulator builds a wired simulator without starting the tick loop;
// tests drive it with synthetic ticks.
func newTestSimulator(t *testing.T) *Simulator {
	t.Helper()
	cfg := NewConfig()
	cfg.OTADurations = ota.PhaseDurations{}
	// Keep obstacle admission deterministic under confidence noise.
	cfg.ConfidenceThreshold = 0.5
	sim, err := cfg.NewSimulator()
	require.NoError(t, err)
	return sim
}

// tickN advances the simulator n ticks of one tick period each.
func tickN(sim *Simulator, from time.Time, n int) time.Time {
	now := from
	for i := 0; i < n; i++ {
		now = now.Add(sim.cfg.TickPeriod)
		sim.tick(now)
	}
	return now
}

func TestNewSimulatorRejectsBadTickPeriod(t *testing.T) {
	cfg := NewConfig()
	cfg.TickPeriod = 0

	_, err := cfg.NewSimulator()

	assert.Error(t, err)
}

func TestTickPublishesVehicleState(t *testing.T) {
	sim := newTestSimulator(t)
	sim.SetVehicleSpeed(42)

	tickN(sim, time.Unix(1000, 0), 1)

	updates := sim.EventLog(core.EventVehicleStateUpdate)
	require.Len(t, updates, 1)
	snap := updates[0].Payload.(core.Snapshot)
	assert.Equal(t, 42.0, snap.Speed)
}

func TestRampReachesZoneTarget(t *testing.T) {
	sim := newTestSimulator(t)

	// 100ms ticks ramp 1 km/h each; the city target is 50 km/h.
	tickN(sim, time.Unix(1000, 0), 60)

	assert.InDelta(t, 50.0, sim.VehicleSnapshot().Speed, 1e-6)
	assert.NotEmpty(t, sim.EventLog(core.EventSpeedAdjusted))
}

func TestEmergencyStopOverridesRamp(t *testing.T) {
	sim := newTestSimulator(t)
	sim.SetVehicleSpeed(50)

	require.True(t, sim.SimulatePedestrian(10, true))
	snap := sim.VehicleSnapshot()
	require.Equal(t, 0.0, snap.Speed)
	require.True(t, snap.EmergencyHold)

	// The ramp must not creep the speed back up while the hold is in force.
	tickN(sim, time.Unix(1000, 0), 20)
	assert.Equal(t, 0.0, sim.VehicleSnapshot().Speed)

	// An explicit stimulus releases the hold and the ramp resumes.
	sim.SetVehicleSpeed(10)
	tickN(sim, time.Unix(2000, 0), 20)
	assert.Greater(t, sim.VehicleSnapshot().Speed, 10.0)
}

func TestComplianceChangeCapsSpeedTarget(t *testing.T) {
	sim := newTestSimulator(t)

	require.NoError(t, sim.SetSpeedZone("highway"))
	require.Equal(t, 120.0, sim.SpeedLimiting().TargetSpeed())

	require.NoError(t, sim.SimulateBorderCrossing("US", "JP"))

	assert.Equal(t, 100.0, sim.SpeedLimiting().TargetSpeed())

	// Back across a border with a higher ceiling, the zone limit rules again.
	require.NoError(t, sim.SimulateBorderCrossing("JP", "US"))
	assert.Equal(t, 120.0, sim.SpeedLimiting().TargetSpeed())
}

func TestGeofenceDrivesRegionFromPosition(t *testing.T) {
	sim := newTestSimulator(t)

	sim.SetVehiclePosition(35.6762, 139.6503)
	tickN(sim, time.Unix(1000, 0), 1)

	assert.Equal(t, "JP", sim.RegulatoryMode().CurrentRegion().Code)
	assert.NotEmpty(t, sim.EventLog(core.EventRegionChanged))
}

func TestOTAUpdateRunsOnTicks(t *testing.T) {
	sim := newTestSimulator(t)

	require.True(t, sim.StartUpdate("2.0.0", "sha256:abc123def456", false))
	tickN(sim, time.Unix(1000, 0), 3)

	assert.Equal(t, "2.0.0", sim.OTA().CurrentVersion())
	assert.NotEmpty(t, sim.EventLog(core.EventOTASuccess))
}

func TestDriverEscalationAcrossTicks(t *testing.T) {
	sim := newTestSimulator(t)

	require.NoError(t, sim.SimulateGazeDirection("down"))
	// 60 ticks at 100ms: 5.9s elapsed after the first tick anchors dt,
	// crossing the 5s visual threshold.
	tickN(sim, time.Unix(1000, 0), 60)

	var attention []core.Alert
	for _, a := range sim.Alerts(false) {
		if a.Kind == "driver_attention" {
			attention = append(attention, a)
		}
	}
	require.Len(t, attention, 1)
	assert.Contains(t, attention[0].Message, "visual")
}

func TestAlertsClear(t *testing.T) {
	sim := newTestSimulator(t)

	sim.AttemptFeatureActivation("ota_updates")
	require.NotEmpty(t, sim.Alerts(true))

	assert.Empty(t, sim.Alerts(false))
}

func TestStatusNamesEveryModule(t *testing.T) {
	sim := newTestSimulator(t)

	status := sim.Status()
	features, ok := status["features"].(map[string]any)
	require.True(t, ok)

	for _, name := range []string{
		"driver-monitoring", "speed-limiting", "ota-update",
		"obstacle-detection", "regulatory-mode",
	} {
		assert.Contains(t, features, name)
	}
	assert.Equal(t, false, status["running"])
}

func TestStartStopLifecycle(t *testing.T) {
	cfg := NewConfig()
	cfg.TickPeriod = 5 * time.Millisecond
	sim, err := cfg.NewSimulator()
	require.NoError(t, err)

	sim.Start()
	sim.Start() // idempotent
	assert.True(t, sim.Running())

	time.Sleep(30 * time.Millisecond)

	sim.Stop()
	sim.Stop() // idempotent
	assert.False(t, sim.Running())

	assert.Len(t, sim.EventLog(core.EventSimulationStarted), 1)
	assert.Len(t, sim.EventLog(core.EventSimulationStopped), 1)
	assert.NotEmpty(t, sim.EventLog(core.EventVehicleStateUpdate))
}

func TestRunStopsOnContextCancel(t *testing.T) {
	cfg := NewConfig()
	cfg.TickPeriod = 5 * time.Millisecond
	sim, err := cfg.NewSimulator()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	require.NoError(t, sim.Run(ctx))
	assert.False(t, sim.Running())
}

func TestEventLogFilters(t *testing.T) {
	sim := newTestSimulator(t)

	sim.AttemptFeatureActivation("highway_autopilot")
	tickN(sim, time.Unix(1000, 0), 1)

	all := sim.EventLog()
	blocked := sim.EventLog(core.EventFeatureBlocked)

	assert.Greater(t, len(all), len(blocked))
	require.Len(t, blocked, 1)
	assert.Equal(t, "highway_autopilot", blocked[0].Payload.(string))
}
