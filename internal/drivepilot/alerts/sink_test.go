package alerts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivepilot-io/drivepilot/internal/drivepilot/core"
)

func TestSinkBuffersAlertsInArrivalOrder(t *testing.T) {
	s := NewSink()

	first := core.NewAlert("a", core.SeverityInfo, "first", "test")
	second := core.NewAlert("b", core.SeverityCritical, "second", "test")
	require.NoError(t, s.HandleEvent(core.NewEvent(core.EventAlert, "test", first)))
	require.NoError(t, s.HandleEvent(core.NewEvent(core.EventAlert, "test", second)))

	got := s.Get(false)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Message)
	assert.Equal(t, "second", got[1].Message)
	assert.Equal(t, 2, s.Len())
}

func TestGetWithClearEmptiesBuffer(t *testing.T) {
	s := NewSink()
	require.NoError(t, s.HandleEvent(core.NewEvent(core.EventAlert, "test",
		core.NewAlert("a", core.SeverityInfo, "m", "test"))))

	got := s.Get(true)
	require.Len(t, got, 1)
	assert.Zero(t, s.Len())
	assert.Empty(t, s.Get(false))
}

func TestClear(t *testing.T) {
	s := NewSink()
	require.NoError(t, s.HandleEvent(core.NewEvent(core.EventAlert, "test",
		core.NewAlert("a", core.SeverityInfo, "m", "test"))))

	s.Clear()

	assert.Zero(t, s.Len())
}

func TestNonAlertPayloadIgnored(t *testing.T) {
	s := NewSink()

	require.NoError(t, s.HandleEvent(core.NewEvent(core.EventAlert, "test", "not an alert")))

	assert.Zero(t, s.Len())
}
