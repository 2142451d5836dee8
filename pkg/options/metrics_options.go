package options

import (
	"github.com/spf13/pflag"
)

var _ IOptions = (*MetricsOptions)(nil)

// MetricsOptions configures the Prometheus scrape endpoint.
type MetricsOptions struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr"    mapstructure:"addr"`
}

// NewMetricsOptions returns options with the metrics endpoint on the
// loopback interface.
func NewMetricsOptions() *MetricsOptions {
	return &MetricsOptions{
		Enabled: true,
		Addr:    "127.0.0.1:9090",
	}
}

func (o *MetricsOptions) Validate() []error {
	var errs []error

	if o.Enabled {
		if err := ValidateAddress(o.Addr); err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}

func (o *MetricsOptions) AddFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Enabled, "metrics.enabled", o.Enabled,
		"Serve Prometheus metrics while the simulation runs.")
	fs.StringVar(&o.Addr, "metrics.addr", o.Addr,
		"Listen address of the metrics endpoint.")
}
