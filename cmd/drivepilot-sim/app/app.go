// Package app wires the simulator command line: flag and config-file
// handling, the simulation engine, the metrics endpoint and the final
// run report.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/gosuri/uitable"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/drivepilot-io/drivepilot/cmd/drivepilot-sim/app/options"
	"github.com/drivepilot-io/drivepilot/internal/drivepilot"
	"github.com/drivepilot-io/drivepilot/internal/pkg/metrics"
	"github.com/drivepilot-io/drivepilot/internal/scenario"
	"github.com/drivepilot-io/drivepilot/pkg/log"
)

const (
	commandName = "drivepilot-sim"
	commandDesc = `The DrivePilot simulator exercises the drive pilot subsystems against a
shared vehicle model on a fixed tick: driver attention monitoring, adaptive
speed limiting, OTA updates, obstacle response and regulatory mode switching.
Stimuli come from a YAML scenario or from the public engine API.`
)

// NewCommand builds the root cobra command.
func NewCommand() *cobra.Command {
	opts := options.NewOptions()

	cmd := &cobra.Command{
		Use:           commandName,
		Short:         "Run the drive pilot simulation engine",
		Long:          commandDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfigFile(cmd, opts); err != nil {
				return err
			}

			log.Init(opts.Log)
			defer log.Sync()

			if err := opts.Validate(); err != nil {
				return err
			}
			return run(opts)
		},
	}

	opts.AddFlags(cmd.Flags())

	return cmd
}

// loadConfigFile merges a config file under the flags: values given on the
// command line still win.
func loadConfigFile(cmd *cobra.Command, opts *options.Options) error {
	if opts.ConfigFile == "" {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(opts.ConfigFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if err := v.Unmarshal(opts); err != nil {
		return fmt.Errorf("unmarshal config file: %w", err)
	}
	return nil
}

func run(opts *options.Options) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sim, err := opts.Sim.ToConfig().NewSimulator()
	if err != nil {
		return fmt.Errorf("create simulator: %w", err)
	}

	var sc *scenario.Scenario
	if opts.Scenario != "" {
		if sc, err = scenario.Load(opts.Scenario); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	if opts.Metrics.Enabled {
		srv := metricsServer(opts.Metrics.Addr)
		g.Go(func() error {
			log.Info("metrics endpoint listening", "addr", opts.Metrics.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		defer report(sim)

		switch {
		case sc != nil:
			sim.Start()
			defer sim.Stop()
			return scenario.NewRunner(sim).Run(ctx, sc)
		case opts.Duration > 0:
			runCtx, cancel := context.WithTimeout(ctx, opts.Duration)
			defer cancel()
			return sim.Run(runCtx)
		default:
			return sim.Run(ctx)
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func metricsServer(addr string) *http.Server {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// report prints the final subsystem status and the alert log.
func report(sim *drivepilot.Simulator) {
	snap := sim.VehicleSnapshot()

	table := uitable.New()
	table.MaxColWidth = 60
	table.AddRow("SUBSYSTEM", "STATUS")
	table.AddRow("vehicle", fmt.Sprintf("speed=%.1f km/h stationary=%v", snap.Speed, snap.Stationary))

	status := sim.Status()
	names := make([]string, 0, len(status))
	for name := range status {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		table.AddRow(name, summarize(status[name]))
	}
	fmt.Fprintln(os.Stdout, table)

	alertLog := sim.Alerts(false)
	if len(alertLog) == 0 {
		return
	}

	fmt.Fprintf(os.Stdout, "\n%d alerts:\n", len(alertLog))
	alertTable := uitable.New()
	alertTable.MaxColWidth = 80
	alertTable.AddRow("SEVERITY", "KIND", "MESSAGE")
	for _, a := range alertLog {
		alertTable.AddRow(string(a.Severity), a.Kind, a.Message)
	}
	fmt.Fprintln(os.Stdout, alertTable)
}

func summarize(v any) string {
	fields, ok := v.(map[string]any)
	if !ok {
		return fmt.Sprint(v)
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return strings.Join(parts, " ")
}
