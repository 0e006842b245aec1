// Command beacond is the beacon relay daemon.
//
// It browses for beacons announced over mDNS, drives subscriptions through
// the status gate and serves relay clients over TCP and WebSocket.
//
// Usage:
//
//	beacond [flags]
//
// Flags:
//
//	-config string      Configuration file path
//	-listen string      TCP listen address (default ":7420")
//	-ws string          WebSocket listen address (empty disables)
//	-log-level string   Log level: empty, info, warning, verbose (default "info")
//	-event-log string   CBOR event log file
//	-log-events         Also write protocol events to the console
//	-interface string   Network interface to browse on
//	-policy string      Prompt policy: grant-always, grant-when-in-use, deny, manual
//	-no-background      Reject background monitoring requests
//
// Signals:
//
//	SIGINT, SIGTERM   shut down
//	SIGUSR1           pause (the host application went to the background)
//	SIGUSR2           resume
//
// Examples:
//
//	# Start with defaults on all interfaces
//	beacond
//
//	# Start from a config file with verbose logging
//	beacond -config /etc/beaconrelay/beacond.yaml -log-level verbose
//
//	# Serve WebSocket clients only, answering prompts by hand
//	beacond -listen "" -ws :7422 -policy manual
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/beaconrelay/beaconrelay/pkg/authority"
	"github.com/beaconrelay/beaconrelay/pkg/config"
	"github.com/beaconrelay/beaconrelay/pkg/coordinator"
	"github.com/beaconrelay/beaconrelay/pkg/log"
	"github.com/beaconrelay/beaconrelay/pkg/model"
	"github.com/beaconrelay/beaconrelay/pkg/scanner/mdns"
	"github.com/beaconrelay/beaconrelay/pkg/service"
	"github.com/beaconrelay/beaconrelay/pkg/transport"
)

// Flags holds the command-line flags. Flags that are set override the
// configuration file.
type Flags struct {
	ConfigFile   string
	Listen       string
	WebSocket    string
	LogLevel     string
	EventLog     string
	LogEvents    bool
	Interface    string
	Policy       string
	NoBackground bool
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "Configuration file path")
	flag.StringVar(&flags.Listen, "listen", "", "TCP listen address (empty disables)")
	flag.StringVar(&flags.WebSocket, "ws", "", "WebSocket listen address (empty disables)")
	flag.StringVar(&flags.LogLevel, "log-level", "", "Log level: empty, info, warning, verbose")
	flag.StringVar(&flags.EventLog, "event-log", "", "CBOR event log file")
	flag.BoolVar(&flags.LogEvents, "log-events", false, "Also write protocol events to the console")
	flag.StringVar(&flags.Interface, "interface", "", "Network interface to browse on")
	flag.StringVar(&flags.Policy, "policy", "", "Prompt policy: grant-always, grant-when-in-use, deny, manual")
	flag.BoolVar(&flags.NoBackground, "no-background", false, "Reject background monitoring requests")
}

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "beacond: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration file, if any, and applies the flags
// that were given on the command line.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if flags.ConfigFile != "" {
		loaded, err := config.Load(flags.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Listen.Address = flags.Listen
		case "ws":
			cfg.Listen.WebSocket = flags.WebSocket
		case "log-level":
			cfg.Log.Level = flags.LogLevel
		case "event-log":
			cfg.Log.EventLog = flags.EventLog
		case "interface":
			cfg.Scanner.Interface = flags.Interface
		case "policy":
			cfg.Authority.Policy = flags.Policy
		case "no-background":
			cfg.Background.Enabled = !flags.NoBackground
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	level := new(slog.LevelVar)
	level.Set(cfg.LogLevel().SlogLevel())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("beacon relay starting",
		"tcp", cfg.Listen.Address,
		"ws", cfg.Listen.WebSocket,
		"service", cfg.Scanner.ServiceType,
		"policy", cfg.Authority.Policy,
		"background", cfg.Background.Enabled)

	eventLog, closeEventLog, err := openEventLog(cfg, logger)
	if err != nil {
		return err
	}
	defer closeEventLog()

	authCfg, err := cfg.Authority.Options()
	if err != nil {
		return err
	}
	authCfg.Logger = logger
	auth, err := authority.New(authCfg)
	if err != nil {
		return fmt.Errorf("authority: %w", err)
	}
	defer auth.Close()

	scannerCfg := cfg.Scanner.MDNS()
	scannerCfg.Logger = logger
	scanner := mdns.NewScanner(scannerCfg)

	var background *coordinator.BackgroundNotifier
	if cfg.Background.Enabled {
		background = coordinator.NewBackgroundNotifier()
		background.AddCallback(func(ev coordinator.BackgroundEvent) {
			logger.Info("background transition", "event", ev.Type, "region", ev.Region.Identifier, "state", ev.State)
		})
	}

	coord, err := coordinator.New(coordinator.Config{
		Scanner:     scanner,
		Environment: authority.NewEnvironment(cfg.Capabilities),
		Authority:   auth,
		Background:  background,
		Logger:      logger,
		LogLevel:    level,
		EventLog:    eventLog,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := coord.Start(ctx); err != nil {
		return fmt.Errorf("start coordinator: %w", err)
	}
	defer coord.Stop()

	if err := coord.Configure(model.Settings{Logs: cfg.LogLevel()}); err != nil {
		return err
	}

	svc, err := service.New(service.Config{
		Coordinator: coord,
		Authority:   auth,
		Logger:      logger,
		EventLog:    eventLog,
	})
	if err != nil {
		return err
	}

	serverCfg := transport.ServerConfig{
		Address:          cfg.Listen.Address,
		WebSocketAddress: cfg.Listen.WebSocket,
		WebSocketPath:    cfg.Listen.WebSocketPath,
		Logger:           logger,
		EventLog:         eventLog,
		OnError: func(sc *transport.ServerConn, err error) {
			logger.Debug("connection error", "error", err)
		},
	}
	if cfg.TLS.Enabled() {
		tlsConf, err := transport.ServerTLSConfig(cfg.TLS)
		if err != nil {
			return err
		}
		serverCfg.TLS = tlsConf
	}
	svc.Attach(&serverCfg)

	server, err := transport.NewServer(serverCfg)
	if err != nil {
		return err
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	defer server.Stop()

	waitForSignals(coord, logger)
	logger.Info("shutting down",
		"sessions", svc.SessionCount(),
		"streams", svc.StreamCount())
	return nil
}

// openEventLog opens the configured event sinks. The returned close
// function is always safe to call.
func openEventLog(cfg *config.Config, logger *slog.Logger) (log.Logger, func(), error) {
	var sinks []log.Logger
	closeFn := func() {}

	if cfg.Log.EventLog != "" {
		fl, err := log.NewFileLogger(cfg.Log.EventLog)
		if err != nil {
			return nil, closeFn, fmt.Errorf("open event log: %w", err)
		}
		closeFn = func() {
			if n := fl.Dropped(); n > 0 {
				logger.Warn("event log dropped events", "count", n)
			}
			if err := fl.Close(); err != nil {
				logger.Warn("close event log", "error", err)
			}
		}
		sinks = append(sinks, fl)
		logger.Info("event log enabled", "path", cfg.Log.EventLog)
	}
	if flags.LogEvents {
		sinks = append(sinks, log.NewSlogAdapter(logger))
	}

	if len(sinks) == 0 {
		return nil, closeFn, nil
	}
	return log.NewMultiLogger(sinks...), closeFn, nil
}

// waitForSignals blocks until SIGINT or SIGTERM. SIGUSR1 and SIGUSR2 pause
// and resume the coordinator.
func waitForSignals(coord *coordinator.Coordinator, logger *slog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sigCh)

	for sig := range sigCh {
		switch sig {
		case syscall.SIGUSR1:
			if err := coord.Pause(); err != nil {
				logger.Warn("pause failed", "error", err)
			}
		case syscall.SIGUSR2:
			if err := coord.Resume(); err != nil {
				logger.Warn("resume failed", "error", err)
			}
		default:
			logger.Info("received signal", "signal", sig)
			return
		}
	}
}
