// Command rwchcd is the weather-compensated central-heating controller
// daemon: it loads a plant configuration, brings every backend and
// actuator online, and drives the master control loop until asked to stop
// or until its watchdog decides it has wedged.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thatsimonsguy/rwchcd/internal/circuit"
	"github.com/thatsimonsguy/rwchcd/internal/config"
	"github.com/thatsimonsguy/rwchcd/internal/logging"
	"github.com/thatsimonsguy/rwchcd/internal/master"
	"github.com/thatsimonsguy/rwchcd/internal/metrics"
	"github.com/thatsimonsguy/rwchcd/internal/store"
	"github.com/thatsimonsguy/rwchcd/internal/sysmetrics"
	"github.com/thatsimonsguy/rwchcd/internal/timekeep"
)

// version is set at release time via -ldflags; unset builds report "dev".
var version = "dev"

var (
	configPath string
	testConfig bool
)

var rootCmd = &cobra.Command{
	Use:   "rwchcd",
	Short: "Weather-compensated central-heating controller daemon",
	Long: `rwchcd drives a plant of heat sources, hydraulic circuits and
domestic hot water tanks from a declarative configuration, applying a
weather-compensated heating curve and enforcing safety invariants under
sensor or actuator failure.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "/etc/rwchcd.yaml", "path to the configuration file")
	rootCmd.Flags().BoolVarP(&testConfig, "test-config", "t", false, "parse and validate the configuration, then exit")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the daemon version and exit",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("rwchcd %s\n", version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		return err
	}
	if testConfig {
		fmt.Println("configuration OK")
		return nil
	}

	if err := logging.Init(logging.ParseLevel(cfg.LogLevel), cfg.LogFile); err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logging:", err)
		return err
	}

	lock, err := acquireLock("/run/rwchcd.lock")
	if err != nil {
		log.Error().Err(err).Msg("failed to acquire single-instance lock")
		return err
	}
	defer lock.release()

	clock := timekeep.NewReal()
	defer clock.Stop()

	sys, err := config.Build(cfg, clock.Now())
	if err != nil {
		log.Error().Err(err).Msg("failed to build plant from configuration")
		return err
	}

	var st *store.Store
	if cfg.StorePath != "" {
		st, err = store.Open(cfg.StorePath)
		if err != nil {
			log.Error().Err(err).Msg("failed to open persistent store")
			return err
		}
		defer st.Close()
		restoreRelays(sys, st)
	}

	reg := prometheus.DefaultRegisterer
	met := metrics.New(reg, metrics.DatadogConfig{
		Enabled:   cfg.Datadog.Enabled,
		AgentAddr: cfg.Datadog.AgentAddr,
		Namespace: cfg.Datadog.Namespace,
		Tags:      cfg.Datadog.Tags,
	})
	var sysmet *sysmetrics.Sampler
	if cfg.SysmetricsEnabled {
		sysmet = sysmetrics.New(reg)
	}

	if cfg.MetricsEnabled && cfg.MetricsListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.MetricsListenAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	if err := sys.Plant.Online(); err != nil {
		log.Error().Err(err).Msg("plant online reported failures")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wdog := cfg.NewWatchdog()
	go wdog.Run(ctx)

	scheduler := master.NewScheduler(scheduleEntries(cfg), applyModeFunc(sys), time.Now)
	go scheduler.Run(ctx)

	if st != nil {
		persist := master.NewPeriodicTimer(time.Minute, func() { persistRelays(sys, st) })
		go persist.Run(ctx)
	}
	if sysmet != nil {
		healthLog := master.NewPeriodicTimer(time.Minute, sysmet.LogSummary)
		go healthLog.Run(ctx)
	}

	lastSample := clock.Now()
	loop := &master.Loop{
		Clock:           clock,
		Runtime:         sys.Runtime,
		Outdoor:         sys.Outdoor,
		Alarms:          sys.Alarms,
		Watchdog:        wdog,
		Period:          time.Duration(cfg.MasterLoop.PeriodSeconds * float64(time.Second)),
		WatchdogAckWait: time.Duration(cfg.MasterLoop.WatchdogAckWaitSeconds * float64(time.Second)),
		InputSample: func(now timekeep.Tick) {
			dt := timekeep.TkToSec(now - lastSample)
			lastSample = now
			sampleInputs(sys, met, sysmet, now, dt)
		},
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGCHLD)

	loopErr := make(chan error, 1)
	go func() { loopErr <- loop.Run(ctx) }()

	for {
		select {
		case s := <-sig:
			switch s {
			case syscall.SIGUSR1:
				dumpConfig(cfg)
			case syscall.SIGCHLD:
				// Alarm notifier children are reaped by the goroutine that
				// launched them (internal/alarms.Run); nothing to do here
				// beyond draining the signal so it does not interrupt
				// anything else.
			default:
				log.Info().Str("signal", s.String()).Msg("shutdown signal received")
				cancel()
				_ = sys.Plant.Offline()
				sys.Registry.Exit()
				return nil
			}
		case err := <-loopErr:
			if err := sys.Plant.Offline(); err != nil {
				log.Error().Err(err).Msg("plant offline reported failures")
			}
			sys.Registry.Exit()
			if err != nil && err != context.Canceled {
				log.Error().Err(err).Msg("master loop terminated")
				return err
			}
			return nil
		}
	}
}

func loadConfig(path string) (*config.Config, error) {
	return config.Load(path)
}

func dumpConfig(cfg *config.Config) {
	out, err := cfg.Dump()
	if err != nil {
		log.Error().Err(err).Msg("failed to dump configuration")
		return
	}
	fmt.Println(out)
}

func scheduleEntries(cfg *config.Config) []master.ScheduleEntry {
	entries := make([]master.ScheduleEntry, 0, len(cfg.Schedule))
	for _, e := range cfg.Schedule {
		entries = append(entries, master.ScheduleEntry{
			Weekday:     time.Weekday(e.Weekday),
			Hour:        e.Hour,
			Minute:      e.Minute,
			CircuitName: e.Circuit,
			Mode:        config.ParseRunMode(e.Mode),
		})
	}
	return entries
}

func applyModeFunc(sys *config.System) master.ApplyModeFunc {
	return func(circuitName string, mode circuit.RunMode) error {
		for _, c := range sys.Plant.Circuits() {
			if circuitName != "" && c.Name != circuitName {
				continue
			}
			if err := c.SetMode(mode); err != nil {
				return err
			}
		}
		return nil
	}
}

func sampleInputs(sys *config.System, met *metrics.Registry, sysmet *sysmetrics.Sampler, now timekeep.Tick, dt float64) {
	sys.Outdoor.Update(sys.OutdoorSensor.Temp(), dt)

	raw, mixed, attenuated := sys.OutdoorSensor.Temp(), sys.Outdoor.Mixed(), sys.Outdoor.Attenuated()
	met.SetOutdoor(raw, mixed, attenuated, sys.Outdoor.Summer())

	for _, c := range sys.Plant.Circuits() {
		pos, hasValve := c.ValvePosition()
		met.SetCircuit(c.Name, c.HeatRequest(now), pos, hasValve)
	}
	for _, d := range sys.Plant.DHWTs() {
		met.SetDHWT(d.Name, d.Charging(), d.ElectricOn(), d.Cfg.Target)
	}
	for _, h := range sys.Plant.HeatSources() {
		met.SetBoiler(h.Name, h.Target(), h.ConsumerShift(), h.BurnerOn())
	}
	publishRelayMetrics(sys, met)
	met.SetAlarmsPending(sys.Alarms.Pending())

	if sysmet != nil {
		sysmet.Sample()
	}
}
