package options

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/drivepilot-io/drivepilot/pkg/log"
	"github.com/drivepilot-io/drivepilot/pkg/options"
)

// Options aggregates every option group of the simulator command.
type Options struct {
	Sim     *options.SimOptions     `json:"sim"     mapstructure:"sim"`
	Metrics *options.MetricsOptions `json:"metrics" mapstructure:"metrics"`
	Log     *log.Options            `json:"log"     mapstructure:"log"`

	// Scenario is the path of a YAML script to replay. Empty runs the
	// simulator idle until Duration elapses or a signal arrives.
	Scenario string `json:"scenario" mapstructure:"scenario"`

	// Duration bounds an idle run. Zero means run until interrupted.
	Duration time.Duration `json:"duration" mapstructure:"duration"`

	// ConfigFile optionally merges flag defaults from a file.
	ConfigFile string `json:"-" mapstructure:"-"`
}

func NewOptions() *Options {
	return &Options{
		Sim:     options.NewSimOptions(),
		Metrics: options.NewMetricsOptions(),
		Log:     log.NewOptions(),
	}
}

func (o *Options) AddFlags(fs *pflag.FlagSet) {
	o.Sim.AddFlags(fs)
	o.Metrics.AddFlags(fs)
	o.Log.AddFlags(fs)

	fs.StringVar(&o.Scenario, "scenario", o.Scenario,
		"Path of a YAML scenario to replay against the simulator.")
	fs.DurationVar(&o.Duration, "duration", o.Duration,
		"How long an idle run lasts. Zero runs until interrupted.")
	fs.StringVarP(&o.ConfigFile, "config", "c", o.ConfigFile,
		"Read configuration from the given file.")
}

func (o *Options) Validate() error {
	var errs []error

	errs = append(errs, o.Sim.Validate()...)
	errs = append(errs, o.Metrics.Validate()...)
	errs = append(errs, o.Log.Validate()...)

	if o.Duration < 0 {
		errs = append(errs, fmt.Errorf("duration must not be negative, got %v", o.Duration))
	}

	return errors.Join(errs...)
}
