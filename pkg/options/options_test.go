package options

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimOptionsDefaultsValidate(t *testing.T) {
	o := NewSimOptions()

	assert.Empty(t, o.Validate())
	assert.Equal(t, 100*time.Millisecond, o.TickPeriod)

	cfg := o.ToConfig()
	assert.Equal(t, o.TickPeriod, cfg.TickPeriod)
	assert.Equal(t, o.DownloadDuration, cfg.OTADurations.Download)
}

func TestSimOptionsRejectBadValues(t *testing.T) {
	o := NewSimOptions()
	o.TickPeriod = 0
	o.HistoryLimit = -1
	o.ConfidenceThreshold = 1.5

	assert.Len(t, o.Validate(), 3)
}

func TestSimOptionsFlags(t *testing.T) {
	o := NewSimOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.AddFlags(fs)

	require.NoError(t, fs.Parse([]string{
		"--sim.tick-period=50ms",
		"--sim.driver-alert-threshold=2.5",
	}))

	assert.Equal(t, 50*time.Millisecond, o.TickPeriod)
	assert.Equal(t, 2.5, o.DriverAlertThreshold)
}

func TestMetricsOptionsValidate(t *testing.T) {
	o := NewMetricsOptions()
	assert.Empty(t, o.Validate())

	o.Addr = "no-port"
	assert.NotEmpty(t, o.Validate())

	// A disabled endpoint skips address validation.
	o.Enabled = false
	assert.Empty(t, o.Validate())
}
