package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/drivepilot-io/drivepilot/internal/drivepilot"
	"github.com/drivepilot-io/drivepilot/internal/drivepilot/ota"
)

var _ IOptions = (*SimOptions)(nil)

// SimOptions holds the tunables of the simulation loop and its
// feature subsystems.
type SimOptions struct {
	TickPeriod           time.Duration `json:"tick-period"            mapstructure:"tick-period"`
	HistoryLimit         int           `json:"history-limit"          mapstructure:"history-limit"`
	DriverAlertThreshold float64       `json:"driver-alert-threshold" mapstructure:"driver-alert-threshold"`
	DetectionRange       float64       `json:"detection-range"        mapstructure:"detection-range"`
	ConfidenceThreshold  float64       `json:"confidence-threshold"   mapstructure:"confidence-threshold"`
	DownloadDuration     time.Duration `json:"download-duration"      mapstructure:"download-duration"`
	ValidationDuration   time.Duration `json:"validation-duration"    mapstructure:"validation-duration"`
	InstallDuration      time.Duration `json:"install-duration"       mapstructure:"install-duration"`
}

// NewSimOptions returns options with the stock defaults.
func NewSimOptions() *SimOptions {
	cfg := drivepilot.NewConfig()

	return &SimOptions{
		TickPeriod:           cfg.TickPeriod,
		HistoryLimit:         cfg.HistoryLimit,
		DriverAlertThreshold: cfg.DriverAlertThreshold,
		DetectionRange:       cfg.DetectionRange,
		ConfidenceThreshold:  cfg.ConfidenceThreshold,
		DownloadDuration:     cfg.OTADurations.Download,
		ValidationDuration:   cfg.OTADurations.Validate,
		InstallDuration:      cfg.OTADurations.Install,
	}
}

func (o *SimOptions) Validate() []error {
	var errs []error

	if o.TickPeriod <= 0 {
		errs = append(errs, fmt.Errorf("tick period must be positive, got %v", o.TickPeriod))
	}
	if o.HistoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("history limit must be positive, got %d", o.HistoryLimit))
	}
	if o.DriverAlertThreshold <= 0 {
		errs = append(errs, fmt.Errorf("driver alert threshold must be positive, got %v", o.DriverAlertThreshold))
	}
	if o.DetectionRange <= 0 {
		errs = append(errs, fmt.Errorf("detection range must be positive, got %v", o.DetectionRange))
	}
	if o.ConfidenceThreshold < 0 || o.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("confidence threshold must be in [0,1], got %v", o.ConfidenceThreshold))
	}

	return errs
}

func (o *SimOptions) AddFlags(fs *pflag.FlagSet) {
	fs.DurationVar(&o.TickPeriod, "sim.tick-period", o.TickPeriod,
		"Period of the fixed simulation tick.")
	fs.IntVar(&o.HistoryLimit, "sim.history-limit", o.HistoryLimit,
		"Maximum number of events retained in the bus history.")
	fs.Float64Var(&o.DriverAlertThreshold, "sim.driver-alert-threshold", o.DriverAlertThreshold,
		"Seconds of sustained gaze deviation before the first driver alert.")
	fs.Float64Var(&o.DetectionRange, "sim.detection-range", o.DetectionRange,
		"Obstacle detection range in meters.")
	fs.Float64Var(&o.ConfidenceThreshold, "sim.confidence-threshold", o.ConfidenceThreshold,
		"Minimum fused confidence for an obstacle to be tracked.")
	fs.DurationVar(&o.DownloadDuration, "sim.ota-download-duration", o.DownloadDuration,
		"Simulated duration of the OTA download phase.")
	fs.DurationVar(&o.ValidationDuration, "sim.ota-validation-duration", o.ValidationDuration,
		"Simulated duration of the OTA validation phase.")
	fs.DurationVar(&o.InstallDuration, "sim.ota-install-duration", o.InstallDuration,
		"Simulated duration of the OTA install phase.")
}

// ToConfig builds the simulator config from the options.
func (o *SimOptions) ToConfig() *drivepilot.Config {
	return &drivepilot.Config{
		TickPeriod:           o.TickPeriod,
		HistoryLimit:         o.HistoryLimit,
		DriverAlertThreshold: o.DriverAlertThreshold,
		DetectionRange:       o.DetectionRange,
		ConfidenceThreshold:  o.ConfidenceThreshold,
		OTADurations: ota.PhaseDurations{
			Download: o.DownloadDuration,
			Validate: o.ValidationDuration,
			Install:  o.InstallDuration,
		},
	}
}
