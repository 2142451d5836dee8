package ota

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

func (c *capture) ofType(t core.EventType) []core.Event {
	var out []core.Event
	for _, ev := range c.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (c *capture) alertMessages() []string {
	var out []string
	for _, ev := range c.events {
		if ev.Type == core.EventAlert {
			out = append(out, ev.Payload.(core.Alert).Message)
		}
	}
	return out
}

// instant phases: each tick completes one phase.
func newTestManager(t *testing.T) (*Manager, *capture) {
	t.Helper()
	m := New(PhaseDurations{})
	pub := &capture{}
	require.NoError(t, m.Setup(pub))
	return m, pub
}

func tickThrough(m *Manager, from time.Time, n int) time.Time {
	now := from
	for i := 0; i < n; i++ {
		now = now.Add(100 * time.Millisecond)
		m.Update(now, nil)
	}
	return now
}

func TestSuccessfulUpdateWalksEveryPhase(t *testing.T) {
	m, pub := newTestManager(t)
	now := time.Unix(1000, 0)

	require.True(t, m.StartUpdate("2.0.0", "sha256:abc123def456", false))
	assert.Equal(t, StatusDownloading, m.CurrentStatus())

	now = tickThrough(m, now, 1)
	assert.Equal(t, StatusValidating, m.CurrentStatus())

	now = tickThrough(m, now, 1)
	assert.Equal(t, StatusInstalling, m.CurrentStatus())

	tickThrough(m, now, 1)
	assert.Equal(t, StatusIdle, m.CurrentStatus(), "terminal states settle back to idle")

	assert.Equal(t, "2.0.0", m.CurrentVersion())
	assert.Equal(t, "1.0.0", m.BackupVersion())

	success := pub.ofType(core.EventOTASuccess)
	require.Len(t, success, 1)
	report := success[0].Payload.(StatusReport)
	assert.Equal(t, StatusSuccess, report.Status)
	assert.Equal(t, "2.0.0", report.Version)

	msgs := pub.alertMessages()
	assert.Contains(t, msgs, "Starting update to version 2.0.0")
	assert.Contains(t, msgs, "Download complete, validating package")
	assert.Contains(t, msgs, "Validation complete, installing update")
	assert.Contains(t, msgs, "Update completed successfully to version 2.0.0")
}

func TestInvalidSignatureStaysIdle(t *testing.T) {
	m, pub := newTestManager(t)

	require.False(t, m.StartUpdate("2.0.0", "sha256:wrong", false))

	assert.Equal(t, StatusIdle, m.CurrentStatus())
	assert.Equal(t, "1.0.0", m.CurrentVersion())
	assert.Contains(t, pub.alertMessages(), "Invalid signature for version 2.0.0")
	require.Len(t, pub.ofType(core.EventOTAFailed), 1)
	assert.Empty(t, pub.ofType(core.EventOTARollback), "a rejected start is not a rollback")
}

func TestUnknownVersionRejected(t *testing.T) {
	m, _ := newTestManager(t)

	assert.False(t, m.StartUpdate("9.9.9", "sha256:abc123def456", false))
	assert.Equal(t, StatusIdle, m.CurrentStatus())
}

func TestConcurrentUpdateRejected(t *testing.T) {
	m, pub := newTestManager(t)

	require.True(t, m.StartUpdate("2.0.0", "sha256:abc123def456", false))
	assert.False(t, m.StartUpdate("1.1.0", "sha256:fed456cba321", false))

	assert.Contains(t, pub.alertMessages(), "Update already in progress or system disabled")
	assert.Equal(t, StatusDownloading, m.CurrentStatus(), "in-flight update unaffected")
}

func TestValidationFailureRollsBack(t *testing.T) {
	m, pub := newTestManager(t)
	now := time.Unix(1000, 0)

	require.True(t, m.StartUpdate("2.0.0", "sha256:abc123def456", true))

	tickThrough(m, now, 2) // download, then failing validation

	assert.Equal(t, StatusIdle, m.CurrentStatus())
	assert.Equal(t, "1.0.0", m.CurrentVersion(), "rollback keeps the pre-update version")

	rollbacks := pub.ofType(core.EventOTARollback)
	require.Len(t, rollbacks, 1)
	assert.Contains(t, pub.alertMessages(), "Update rolled back: Package validation failed")
	assert.Empty(t, pub.ofType(core.EventOTASuccess))
}

func TestNetworkFailureDuringDownloadRollsBack(t *testing.T) {
	m, pub := newTestManager(t)

	require.True(t, m.StartUpdate("2.0.0", "sha256:abc123def456", false))
	m.SimulateNetworkFailure()

	assert.Equal(t, StatusIdle, m.CurrentStatus())
	assert.Contains(t, pub.alertMessages(), "Update rolled back: Network failure during update")
}

func TestNetworkFailureWhileIdleIsNoOp(t *testing.T) {
	m, pub := newTestManager(t)

	m.SimulateNetworkFailure()

	assert.Equal(t, StatusIdle, m.CurrentStatus())
	assert.Empty(t, pub.events)
}

func TestPowerFailureDuringInstallRollsBack(t *testing.T) {
	m, pub := newTestManager(t)
	now := time.Unix(1000, 0)

	require.True(t, m.StartUpdate("2.0.0", "sha256:abc123def456", false))
	tickThrough(m, now, 2)
	require.Equal(t, StatusInstalling, m.CurrentStatus())

	m.SimulatePowerFailure()

	assert.Equal(t, StatusIdle, m.CurrentStatus())
	assert.Equal(t, "1.0.0", m.CurrentVersion())
	assert.Contains(t, pub.alertMessages(), "Update rolled back: Power failure during installation")
}

func TestPowerFailureOutsideInstallIsNoOp(t *testing.T) {
	m, pub := newTestManager(t)

	require.True(t, m.StartUpdate("2.0.0", "sha256:abc123def456", false))
	require.Equal(t, StatusDownloading, m.CurrentStatus())

	m.SimulatePowerFailure()

	assert.Equal(t, StatusDownloading, m.CurrentStatus())
	assert.Empty(t, pub.ofType(core.EventOTARollback))
}

func TestRetryAfterRollbackSucceeds(t *testing.T) {
	m, _ := newTestManager(t)
	now := time.Unix(1000, 0)

	require.True(t, m.StartUpdate("2.0.0", "sha256:abc123def456", true))
	now = tickThrough(m, now, 2)
	require.Equal(t, StatusIdle, m.CurrentStatus())

	// The failure flag does not leak into the next attempt.
	require.True(t, m.StartUpdate("2.0.0", "sha256:abc123def456", false))
	tickThrough(m, now, 3)

	assert.Equal(t, "2.0.0", m.CurrentVersion())
}

func TestProgressTracksElapsedPhaseTime(t *testing.T) {
	m := New(PhaseDurations{Download: 10 * time.Second, Validate: 2 * time.Second, Install: 10 * time.Second})
	pub := &capture{}
	require.NoError(t, m.Setup(pub))

	start := time.Unix(1000, 0)
	m.clock = func() time.Time { return start }

	require.True(t, m.StartUpdate("2.0.0", "sha256:abc123def456", false))
	assert.Equal(t, 0.0, m.Progress())

	m.Update(start.Add(5*time.Second), nil)
	assert.InDelta(t, 0.5, m.Progress(), 1e-9)
	assert.Equal(t, StatusDownloading, m.CurrentStatus())

	m.Update(start.Add(10*time.Second), nil)
	assert.Equal(t, StatusValidating, m.CurrentStatus())
	assert.Equal(t, 0.0, m.Progress(), "progress resets on phase entry")
}

func TestCheckForUpdates(t *testing.T) {
	m, _ := newTestManager(t)

	info := m.CheckForUpdates()
	require.NotNil(t, info)
	assert.Equal(t, "2.0.0", info.Version)
	assert.Equal(t, "sha256:abc123def456", info.Signature)

	require.True(t, m.StartUpdate(info.Version, info.Signature, false))
	assert.Nil(t, m.CheckForUpdates(), "no offers while an update is in flight")
}

func TestDisabledManagerRejectsStart(t *testing.T) {
	m, pub := newTestManager(t)

	m.Disable()

	assert.False(t, m.StartUpdate("2.0.0", "sha256:abc123def456", false))
	assert.Contains(t, pub.alertMessages(), "Update already in progress or system disabled")
	assert.Nil(t, m.CheckForUpdates())
}
