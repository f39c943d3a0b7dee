// pattern: Imperative Shell
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	flag "github.com/spf13/pflag"

	"unigen/internal/appstate"
	"unigen/internal/approle"
	"unigen/internal/bootstrap"
	"unigen/internal/broker"
	"unigen/internal/cli"
	"unigen/internal/config"
	"unigen/internal/evtbus"
	"unigen/internal/instance"
	"unigen/internal/logging"
	"unigen/internal/mqttclient"
	"unigen/internal/process"
)

var version = "dev"

// options are the parsed command-line flags.
type options struct {
	configDir string
	kill      bool
	debug     bool
	logFilter string
	logFile   string
}

func main() {
	// Stop parsing flags after the first non-flag arg (a command or the
	// project directory), so that --help after a command reaches the command.
	flag.CommandLine.SetInterspersed(false)

	var opts options
	flag.StringVarP(&opts.configDir, "config-dir", "c", "", "config directory (default: ~/.config/unigen)")
	flag.BoolVarP(&opts.kill, "kill", "k", false, "ask the running control plane to shut down")
	flag.BoolVarP(&opts.debug, "debug", "d", false, "log at debug level")
	flag.StringVarP(&opts.logFilter, "log-filter", "f", "", "minimum log level (debug, info, warn, error)")
	flag.StringVar(&opts.logFile, "log-file", "", "write logs to this file")

	flag.Usage = func() {
		cli.BuildApp(version, cli.Env{}).PrintHelp(os.Stderr)
		flag.PrintDefaults()
	}

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, opts, flag.Args())
	stop()
	os.Exit(code)
}

// run selects the process role and returns the exit code.
func run(ctx context.Context, opts options, args []string) int {
	cfg, err := loadConfig(opts.configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
	}
	dataDir := cfg.ResolveDataDir(opts.configDir)
	level := logLevel(opts, cfg)

	if approle.FromEnv() == approle.ControlPlane {
		return runControlPlane(ctx, cfg, dataDir, level)
	}

	endpoints, err := broker.DefaultEndpoints()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	logPath := opts.logFile
	if logPath == "" {
		logPath = filepath.Join(dataDir, "unigen.log")
	}
	logManager, err := logging.NewManager(logging.Config{
		FilePath:   logPath,
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 7,
		Level:      level,
		Console:    os.Stderr,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		return 1
	}
	defer func() { _ = logManager.Close() }()
	mqttclient.InstallLogger(logManager.For("mqtt"))

	env := cli.Env{
		Context:   ctx,
		Config:    cfg,
		LogPath:   bootstrap.DefaultLogPath(),
		Endpoints: endpoints,
		Logger:    logManager.For("cli"),
	}

	if opts.kill {
		return cli.RunKill(env)
	}

	app := cli.BuildApp(version, env)
	if !app.Execute(args) {
		return 0
	}

	var project string
	if len(args) > 0 {
		project, err = cli.ResolveProjectDir(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
	}

	return runPrimary(ctx, primaryConfig{
		cfg:       cfg,
		configDir: opts.configDir,
		endpoints: endpoints,
		project:   project,
	}, logManager)
}

// loadConfig loads the configuration from the specified directory or default location.
func loadConfig(configDir string) (config.Config, error) {
	if configDir != "" {
		return config.LoadFromDir(configDir)
	}
	return config.Load()
}

// logLevel applies flag precedence: --debug, then --log-filter, then the
// config file, then info.
func logLevel(opts options, cfg config.Config) string {
	switch {
	case opts.debug:
		return "debug"
	case opts.logFilter != "":
		return opts.logFilter
	case cfg.LogLevel != "":
		return cfg.LogLevel
	default:
		return "info"
	}
}

// runControlPlane is the body of the detached control-plane process. Losing
// the singleton race is a normal outcome and exits 0.
func runControlPlane(ctx context.Context, cfg config.Config, dataDir, level string) int {
	if _, err := broker.LoadStaticConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid broker configuration: %v\n", err)
		return 1
	}

	// A losing control plane leaves no trace: the log opens only once the
	// lock is ours.
	lock, err := instance.ControlPlane("", nil).Acquire()
	switch {
	case errors.Is(err, instance.ErrAlreadyRunning):
		return 0
	case err != nil:
		fmt.Fprintf(os.Stderr, "Failed to take control-plane lock: %v\n", err)
		return 1
	}

	logManager, err := logging.NewManager(logging.Config{
		FilePath:   filepath.Join(dataDir, "control-plane.log"),
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 7,
		Level:      level,
		Console:    os.Stderr,
	})
	if err != nil {
		_ = lock.Release()
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		return 1
	}
	defer func() { _ = logManager.Close() }()

	logger := logManager.For("app")
	logger.Info("control plane starting", "pid", os.Getpid(), "version", version)
	if err := lock.PIDError(); err != nil {
		logger.Warn("lock held but PID not recorded", "error", err)
	}
	mqttclient.InstallLogger(logManager.For("mqtt"))

	svc := broker.NewService(broker.Config{
		Registry:     broker.HeldLock(lock),
		GracePeriod:  cfg.ControlPlane.GracePeriod.Std(),
		StartupDelay: cfg.ControlPlane.StartupDelay.Std(),
		RetryDelay:   cfg.ControlPlane.RetryDelay.Std(),
	}, logManager)

	if err := svc.Run(ctx); err != nil {
		logger.Error("control plane failed", "error", err)
		return 1
	}
	logger.Info("control plane exiting")
	return 0
}

type primaryConfig struct {
	cfg       config.Config
	configDir string
	endpoints broker.Endpoints
	project   string
}

// runPrimary makes sure the control plane is up, then holds the project lock
// until interrupted. A project already open elsewhere is handed to its owner.
func runPrimary(ctx context.Context, pc primaryConfig, logProvider logging.LoggerProvider) int {
	logger := logProvider.For("app")
	logger.Info("application starting", "pid", os.Getpid(), "version", version)

	var childArgs []string
	if pc.configDir != "" {
		childArgs = []string{"--config-dir", pc.configDir}
	}
	boot := bootstrap.New(bootstrap.Config{
		Registry:    instance.ControlPlane("", logProvider.For("instance")),
		Launcher:    process.NewDetached(logProvider.For("process")),
		Args:        childArgs,
		SettleDelay: pc.cfg.ControlPlane.SettleDelay.Std(),
	}, logProvider.For("bootstrap"))
	if !boot.EnsureControlPlane(ctx) {
		logger.Warn("control plane unavailable, continuing without it")
	}

	app := appstate.New(appstate.NewHeadlessWindow(logProvider.For("window")), logProvider.For("appstate"))

	bus := evtbus.New(evtbus.Config{BrokerURL: pc.endpoints.EventBus}, app, logProvider.For("evtbus"))
	if err := bus.Connect(ctx); err != nil {
		logger.Warn("event bus unavailable", "error", err)
	} else {
		defer bus.Close()
	}

	if pc.project != "" {
		if !app.LockProject(pc.project) {
			logger.Info("project open in another instance, handing off", "project", pc.project)
			if err := bus.EmitFocus(pc.project); err != nil {
				logger.Warn("focus hand-off failed", "project", pc.project, "error", err)
			}
			fmt.Fprintf(os.Stderr, "%s is already open in another unigen instance\n", pc.project)
			return 0
		}
		defer app.UnlockProject()
	}

	app.SetInitialized(true)
	logger.Info("ready", "project", pc.project)

	<-ctx.Done()
	logger.Info("application stopped")
	return 0
}
