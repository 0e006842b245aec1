// Command beacon-sim announces simulated beacons over mDNS.
//
// A relay browsing the same network sees the beacons as if they were in
// radio range. Signal strengths drift over time and, with -walk, beacons
// leave and re-enter range so monitored regions see transitions.
//
// Usage:
//
//	beacon-sim [flags]
//
// Flags:
//
//	-scenario string   Scenario file (YAML); overrides the generator flags
//	-uuid string       Proximity UUID of generated beacons (random if empty)
//	-major int         Major value of generated beacons (default 1)
//	-count int         Number of generated beacons (default 3)
//	-prefix string     Instance name prefix (default "beacon")
//	-interval duration Update period (default 2s)
//	-walk              Move beacons in and out of range
//	-interface string  Network interface to announce on
//	-seed uint         Random seed (default: time based)
//	-log-level string  Log level: empty, info, warning, verbose (default "info")
//
// Examples:
//
//	# Three beacons of one region
//	beacon-sim -uuid f7826da6-4fa2-4e98-8024-bc5b71e0893e -major 10
//
//	# A scripted scenario with beacons coming and going
//	beacon-sim -scenario lobby.yaml -walk
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/beaconrelay/beaconrelay/pkg/model"
	"github.com/beaconrelay/beaconrelay/pkg/scanner/mdns"
)

// Config holds the command-line flags.
type Config struct {
	ScenarioFile string
	UUID         string
	Major        uint
	Count        int
	Prefix       string
	Interval     time.Duration
	Walk         bool
	Interface    string
	Seed         uint64
	LogLevel     string
}

var config Config

func init() {
	flag.StringVar(&config.ScenarioFile, "scenario", "", "Scenario file (YAML)")
	flag.StringVar(&config.UUID, "uuid", "", "Proximity UUID of generated beacons (random if empty)")
	flag.UintVar(&config.Major, "major", 1, "Major value of generated beacons")
	flag.IntVar(&config.Count, "count", 3, "Number of generated beacons")
	flag.StringVar(&config.Prefix, "prefix", "beacon", "Instance name prefix")
	flag.DurationVar(&config.Interval, "interval", 2*time.Second, "Update period")
	flag.BoolVar(&config.Walk, "walk", false, "Move beacons in and out of range")
	flag.StringVar(&config.Interface, "interface", "", "Network interface to announce on")
	flag.Uint64Var(&config.Seed, "seed", 0, "Random seed (default: time based)")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level: empty, info, warning, verbose")
}

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "beacon-sim: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	level, ok := model.ParseLogLevel(config.LogLevel)
	if !ok {
		return fmt.Errorf("unknown log level %q", config.LogLevel)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level.SlogLevel()}))

	sc, err := scenario()
	if err != nil {
		return err
	}

	seed := config.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	advCfg := mdns.DefaultAdvertiserConfig()
	advCfg.Interface = config.Interface
	sim := NewSimulation(sc, mdns.NewAdvertiser(advCfg), seed, logger)

	if err := sim.Start(); err != nil {
		return err
	}
	logger.Info("[SIM] simulation running", "beacons", len(sc.Beacons), "interval", sc.Interval,
		"walk", sc.Walk, "seed", seed)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	sim.Run(ctx)

	logger.Info("[SIM] beacons withdrawn")
	return nil
}

// scenario returns the scenario file or the generated one. Flags given on
// the command line override the file's interval and walk settings.
func scenario() (*Scenario, error) {
	var (
		sc  *Scenario
		err error
	)
	if config.ScenarioFile != "" {
		sc, err = LoadScenario(config.ScenarioFile)
	} else {
		if config.Major > 0xFFFF {
			return nil, fmt.Errorf("major %d out of range", config.Major)
		}
		sc, err = GenerateScenario(config.Prefix, config.UUID, uint16(config.Major), config.Count)
	}
	if err != nil {
		return nil, err
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "interval":
			sc.Interval = config.Interval
		case "walk":
			sc.Walk = config.Walk
		}
	})
	if config.ScenarioFile == "" {
		sc.Interval = config.Interval
		sc.Walk = config.Walk
	}
	if sc.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	return sc, nil
}
