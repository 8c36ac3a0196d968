package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smazurov/framebus/cmd"
	"github.com/smazurov/framebus/internal/api"
	"github.com/smazurov/framebus/internal/config"
	"github.com/smazurov/framebus/internal/events"
	"github.com/smazurov/framebus/internal/logging"
	"github.com/smazurov/framebus/internal/metrics"
	"github.com/smazurov/framebus/internal/sim"
	"github.com/smazurov/framebus/internal/version"
	"github.com/spf13/cobra"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"framebus.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Auth settings, disabled when either is empty
	AuthUsername string `help:"Basic auth username" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Simulation settings
	SimScenario      string `help:"Scenario file" default:"scenario.toml" toml:"sim.scenario" env:"SIM_SCENARIO"`
	SimFrames        int    `help:"Frames to run before idling, 0 runs until stopped" default:"0" toml:"sim.frames" env:"SIM_FRAMES"`
	SimWatch         bool   `help:"Reload the scenario file when it changes" default:"true" toml:"sim.watch" env:"SIM_WATCH"`
	SimWatchDebounce string `help:"Quiet period before a changed scenario is reloaded" default:"500ms" toml:"sim.watch_debounce" env:"SIM_WATCH_DEBOUNCE"`

	// Metrics settings
	MetricsEnabled bool `help:"Serve Prometheus metrics at /metrics" default:"true" toml:"metrics.enabled" env:"METRICS_ENABLED"`

	// Logging settings
	LoggingLevel    string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat   string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingEventbus string `help:"Event bus logging level" default:"info" toml:"logging.eventbus" env:"LOGGING_EVENTBUS"`
	LoggingSim      string `help:"Simulator logging level" default:"info" toml:"logging.sim" env:"LOGGING_SIM"`
	LoggingConfig   string `help:"Config watcher logging level" default:"info" toml:"logging.config" env:"LOGGING_CONFIG"`
	LoggingAPI      string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP     string `help:"HTTP request logging level" default:"info" toml:"logging.http" env:"LOGGING_HTTP"`
}

func main() {
	var root *cobra.Command

	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		loadErr := config.LoadConfig(opts, root)

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"eventbus": opts.LoggingEventbus,
				"sim":      opts.LoggingSim,
				"config":   opts.LoggingConfig,
				"api":      opts.LoggingAPI,
				"http":     opts.LoggingHTTP,
			},
		})
		logger := logging.GetLogger("main")
		if loadErr != nil {
			logger.Warn("Failed to load config", "path", opts.Config, "error", loadErr)
		}
		logger.Info("Starting", "version", version.String())

		a := &app{opts: opts, logger: logger}
		hooks.OnStart(a.start)
		hooks.OnStop(a.stop)
	})

	root = cli.Root()
	root.Version = version.String()
	root.AddCommand(cmd.CreateSimulateCmd())
	root.AddCommand(cmd.CreatePlanCmd())

	cli.Run()
}

// app owns everything the server command runs. Subcommands share the option
// parsing in main but never build it.
type app struct {
	opts   *Options
	logger *slog.Logger

	eventBus    *events.Bus
	simulator   *sim.Simulator
	server      *api.Server
	watcher     *config.Watcher[config.Scenario]
	stopMetrics func()
	cancel      context.CancelFunc
	running     sync.WaitGroup
}

func (a *app) start() {
	opts := a.opts
	a.eventBus = events.New()
	logging.SetSink(events.LogSink(a.eventBus))

	scenario, err := config.LoadScenario(opts.SimScenario)
	if err != nil {
		a.logger.Error("Failed to load scenario", "path", opts.SimScenario, "error", err)
		os.Exit(1)
	}
	a.simulator, err = sim.New(scenario,
		sim.WithLogger(logging.GetLogger("sim")),
		sim.WithBusLogger(logging.GetLogger("eventbus")),
		sim.WithDiagnostics(a.eventBus),
	)
	if err != nil {
		a.logger.Error("Failed to build simulation", "scenario", scenario.Name, "error", err)
		os.Exit(1)
	}

	apiOpts := &api.Options{
		AuthUsername: opts.AuthUsername,
		AuthPassword: opts.AuthPassword,
		Simulation:   a.simulator,
		Events:       a.eventBus,
	}
	a.stopMetrics = func() {}
	if opts.MetricsEnabled {
		prometheus.MustRegister(metrics.NewBusCollector(a.simulator))
		a.stopMetrics = metrics.SubscribeDiagnostics(a.eventBus)
		apiOpts.MetricsHandler = metrics.HTTPHandler()
	}
	a.server = api.NewServer(apiOpts)

	var ctx context.Context
	ctx, a.cancel = context.WithCancel(context.Background())

	if opts.SimWatch {
		debounce, err := time.ParseDuration(opts.SimWatchDebounce)
		if err != nil {
			a.logger.Warn("Invalid watch debounce, using default", "value", opts.SimWatchDebounce, "error", err)
			debounce = 0
		}
		a.watcher, err = a.simulator.Watch(ctx, opts.SimScenario, logging.GetLogger("config"), debounce)
		if err != nil {
			a.logger.Warn("Scenario watch disabled", "error", err)
		}
	}

	a.running.Add(1)
	go func() {
		defer a.running.Done()
		sum, err := a.simulator.Run(ctx, opts.SimFrames)
		if err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("Simulation stopped", "error", err)
			return
		}
		a.logger.Info("Simulation finished", "frames", sum.Frames, "delivered", sum.Delivered,
			"failed_posts", sum.FailedPosts)
	}()

	if err := a.server.Start(opts.Port); err != nil {
		a.logger.Error("Failed to start HTTP server", "error", err)
		os.Exit(1)
	}
}

func (a *app) stop() {
	a.logger.Info("Shutting down")
	if a.server != nil {
		ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := a.server.Stop(ctx); err != nil {
			a.logger.Error("Error stopping HTTP server", "error", err)
		}
	}

	if a.cancel != nil {
		a.cancel()
	}
	a.running.Wait()
	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			a.logger.Warn("Error stopping scenario watcher", "error", err)
		}
	}
	if a.stopMetrics != nil {
		a.stopMetrics()
	}
	if a.simulator != nil {
		a.simulator.Close()
	}
	logging.SetSink(nil)
}
