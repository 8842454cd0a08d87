package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/brickscan/internal/health"
	"github.com/srg/brickscan/internal/observer"
	"github.com/srg/brickscan/internal/present"
	"github.com/srg/brickscan/internal/radio"
	"github.com/srg/brickscan/internal/radio/goble"
	"github.com/srg/brickscan/internal/script"
	"github.com/srg/brickscan/pkg/config"
)

// observeCmd represents the observe command
var observeCmd = &cobra.Command{
	Use:   "observe",
	Short: "Watch hub broadcasts",
	Long: `Scan for hub broadcast advertisements and print one line per
value change. Runs until interrupted or until --duration elapses, then
prints a session summary.`,
	RunE: runObserve,
}

var (
	observeConfigPath string
	observeDuration   time.Duration
	observeFormat     string
	observeTheme      string
	observeActive     bool
	observeNoDedup    bool
	observeInterval   time.Duration
	observeWindow     time.Duration
	observeWatchdog   time.Duration
	observePreventive uint64
	observeAlpha      float64
	observeQueue      int
	observeHeartbeat  time.Duration
	observeScript     string
	observeVerbose    bool
)

func init() {
	observeCmd.Flags().StringVarP(&observeConfigPath, "config", "c", "", "YAML config file")
	observeCmd.Flags().DurationVarP(&observeDuration, "duration", "d", 0, "Observation duration (0 for indefinite)")
	observeCmd.Flags().StringVarP(&observeFormat, "format", "f", "text", "Output format (text, json)")
	observeCmd.Flags().StringVar(&observeTheme, "theme", "", "Color theme (dark, light)")
	observeCmd.Flags().BoolVar(&observeActive, "active", true, "Active scan (required to capture hub names)")
	observeCmd.Flags().BoolVar(&observeNoDedup, "no-dedup", false, "Print every broadcast, not just value changes")
	observeCmd.Flags().DurationVar(&observeInterval, "interval", 0, "Scan interval")
	observeCmd.Flags().DurationVar(&observeWindow, "window", 0, "Scan window")
	observeCmd.Flags().DurationVar(&observeWatchdog, "watchdog", 0, "Silence watchdog timeout (0 keeps the config value)")
	observeCmd.Flags().Uint64Var(&observePreventive, "preventive-events", 0, "Preventive restart event threshold (0 keeps the config value)")
	observeCmd.Flags().Float64Var(&observeAlpha, "alpha", 0, "RSSI smoothing factor in (0,1]")
	observeCmd.Flags().IntVar(&observeQueue, "queue", 0, "Capture queue capacity")
	observeCmd.Flags().DurationVar(&observeHeartbeat, "heartbeat", 0, "Status heartbeat interval")
	observeCmd.Flags().StringVar(&observeScript, "script", "", "Lua hook script defining on_broadcast(event)")
	observeCmd.Flags().BoolVar(&observeVerbose, "verbose", false, "Debug logging")
}

// buildConfig layers flag overrides over the file (or default) config.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if observeConfigPath != "" {
		cfg, err = config.Load(observeConfigPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.DefaultConfig()
	}

	flags := cmd.Flags()
	if flags.Changed("theme") {
		cfg.Theme = observeTheme
	}
	if flags.Changed("active") {
		cfg.ActiveScan = observeActive
	}
	if flags.Changed("no-dedup") {
		cfg.SuppressDuplicates = !observeNoDedup
	}
	if flags.Changed("interval") {
		cfg.ScanInterval = config.Duration(observeInterval)
	}
	if flags.Changed("window") {
		cfg.ScanWindow = config.Duration(observeWindow)
	}
	if flags.Changed("watchdog") {
		cfg.WatchdogTimeout = config.Duration(observeWatchdog)
	}
	if flags.Changed("preventive-events") {
		cfg.PreventiveRestartEvents = observePreventive
	}
	if flags.Changed("alpha") {
		cfg.RSSISmoothing = observeAlpha
	}
	if flags.Changed("queue") {
		cfg.QueueCapacity = observeQueue
	}
	if flags.Changed("heartbeat") {
		cfg.HeartbeatInterval = config.Duration(observeHeartbeat)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runObserve(cmd *cobra.Command, args []string) error {
	if observeFormat != "text" && observeFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [text json]", observeFormat)
	}

	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}

	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	printer := present.NewPrinter(os.Stdout, present.Theme(cfg.Theme), cfg.SignalLevels,
		present.Format(observeFormat), logger)
	ring := present.NewEventRing(cfg.EventRingCapacity)

	// The controller needs the delivery callbacks before the observer
	// exists; closures over obs break the construction cycle.
	var obs *observer.Observer
	ctrl := goble.NewController(
		func(f radio.Frame) { obs.HandleFrame(f) },
		func() { obs.HandleScanStopped() },
		logger,
	)
	monitor := health.NewMonitor(ctrl, health.Options{
		Watchdog:         cfg.WatchdogTimeout.Std(),
		PreventiveEvents: cfg.PreventiveRestartEvents,
		Active:           cfg.ActiveScan,
		Interval:         cfg.ScanInterval.Std(),
		Window:           cfg.ScanWindow.Std(),
	}, logger)
	obs = observer.New(observer.Options{
		QueueCapacity: cfg.QueueCapacity,
		Dedup:         cfg.SuppressDuplicates,
		Alpha:         cfg.RSSISmoothing,
		PaletteSize:   printer.PaletteSize(),
		PollInterval:  cfg.PollInterval.Std(),
		Heartbeat:     cfg.HeartbeatInterval.Std(),
	}, monitor, ring.Publish, logger)

	sinks := []present.Sink{printer.Line}
	if observeScript != "" {
		engine := script.NewEngine(logger)
		if err := engine.LoadFile(observeScript); err != nil {
			return err
		}
		defer engine.Close()
		sinks = append(sinks, engine.Sink())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if observeDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, observeDuration)
		defer cancel()
	}

	drainer := present.NewDrainer(ctx, ring, logger, sinks...)

	printer.Banner(formatVersion(version), cfg.SuppressDuplicates, cfg.ActiveScan)
	printer.Header()

	runErr := obs.Run(ctx)

	// Flush whatever the dispatch loop emitted before summarizing
	drainer.Cancel()
	drainer.Wait()
	printer.Summary(obs.Summary(time.Now()))

	return runErr
}
