// Command beaconctl is a client for the beacon relay.
//
// Usage:
//
//	beaconctl [flags] <command> [args]
//
// Commands:
//
//	status [ranging] [monitoring] [level]   Check preconditions without prompting
//	permission <when-in-use|always>         Request a permission level
//	range <id> [uuid|any] [major] [minor]   Stream ranging results until interrupted
//	monitor <id> [uuid|any] [major] [minor] [--background]
//	                                        Stream monitoring transitions
//	background                              Stream background transitions
//	pause | resume                          Drive the relay lifecycle
//	configure <level>                       Set the relay log level
//	authorize <status>                      Set the authorization decision
//	stats                                   Show relay statistics
//	shell                                   Interactive mode (default)
//
// Flags:
//
//	-addr string      Relay address: host:port or ws://host:port/relay (default "localhost:7420")
//	-tls              Use TLS
//	-ca string        CA file for the relay certificate
//	-cert string      Client certificate file
//	-key string       Client key file
//	-insecure         Skip relay certificate verification
//	-timeout duration Per-call timeout (default 10s)
//	-log-level string Client log level: empty, info, warning, verbose (default "warning")
//
// Examples:
//
//	# Check that ranging is possible
//	beaconctl status ranging when-in-use
//
//	# Range every beacon of one UUID
//	beaconctl range lobby f7826da6-4fa2-4e98-8024-bc5b71e0893e
//
//	# Open a shell against a WebSocket listener
//	beaconctl -addr ws://relay.local:7422/relay
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/beaconrelay/beaconrelay/pkg/model"
	"github.com/beaconrelay/beaconrelay/pkg/transport"
)

// Config holds the command-line flags.
type Config struct {
	Address  string
	TLS      bool
	TLSFiles transport.TLSFiles
	Insecure bool
	Timeout  time.Duration
	LogLevel string
}

var config Config

func init() {
	flag.StringVar(&config.Address, "addr", fmt.Sprintf("localhost:%d", transport.DefaultPort), "Relay address")
	flag.BoolVar(&config.TLS, "tls", false, "Use TLS")
	flag.StringVar(&config.TLSFiles.CAFile, "ca", "", "CA file for the relay certificate")
	flag.StringVar(&config.TLSFiles.CertFile, "cert", "", "Client certificate file")
	flag.StringVar(&config.TLSFiles.KeyFile, "key", "", "Client key file")
	flag.BoolVar(&config.Insecure, "insecure", false, "Skip relay certificate verification")
	flag.DurationVar(&config.Timeout, "timeout", 10*time.Second, "Per-call timeout")
	flag.StringVar(&config.LogLevel, "log-level", "warning", "Client log level: empty, info, warning, verbose")
	flag.Usage = printUsage
}

func main() {
	flag.Parse()

	if err := run(flag.Args()); err != nil {
		if errors.Is(err, errUsage) {
			printUsage()
			os.Exit(2)
		}
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	yellow := color.New(color.FgYellow)

	fmt.Fprintln(os.Stderr, "Usage: beaconctl [flags] <command> [args]")
	fmt.Fprintln(os.Stderr)
	yellow.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  status [ranging] [monitoring] [level]   Check preconditions without prompting")
	fmt.Fprintln(os.Stderr, "  permission <when-in-use|always>         Request a permission level")
	fmt.Fprintln(os.Stderr, "  range <id> [uuid|any] [major] [minor]   Stream ranging results")
	fmt.Fprintln(os.Stderr, "  monitor <id> [uuid|any] [major] [minor] [--background]")
	fmt.Fprintln(os.Stderr, "                                          Stream monitoring transitions")
	fmt.Fprintln(os.Stderr, "  background                              Stream background transitions")
	fmt.Fprintln(os.Stderr, "  pause | resume                          Drive the relay lifecycle")
	fmt.Fprintln(os.Stderr, "  configure <level>                       Set the relay log level")
	fmt.Fprintln(os.Stderr, "  authorize <status>                      Set the authorization decision")
	fmt.Fprintln(os.Stderr, "  stats                                   Show relay statistics")
	fmt.Fprintln(os.Stderr, "  shell                                   Interactive mode (default)")
	fmt.Fprintln(os.Stderr)
	yellow.Fprintln(os.Stderr, "Flags:")
	flag.PrintDefaults()
}

func run(args []string) error {
	level, ok := model.ParseLogLevel(config.LogLevel)
	if !ok {
		return fmt.Errorf("unknown log level %q", config.LogLevel)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level.SlogLevel()}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clientCfg := transport.ClientConfig{Logger: logger}
	if config.TLS || strings.HasPrefix(config.Address, "wss://") {
		tlsConf, err := transport.ClientTLSConfig(config.TLSFiles, serverName(config.Address), config.Insecure)
		if err != nil {
			return err
		}
		clientCfg.TLS = tlsConf
	}

	dialCtx, cancel := context.WithTimeout(ctx, config.Timeout)
	client, err := transport.Dial(dialCtx, config.Address, clientCfg)
	cancel()
	if err != nil {
		return err
	}
	defer client.Close()

	cmd := "shell"
	if len(args) > 0 {
		cmd = strings.ToLower(args[0])
		args = args[1:]
	}

	if cmd == "shell" {
		sh, err := NewShell(client, config.Timeout)
		if err != nil {
			return err
		}
		logger = slog.New(slog.NewTextHandler(sh.Stdout(), &slog.HandlerOptions{Level: level.SlogLevel()}))
		slog.SetDefault(logger)

		go func() {
			// A dropped connection ends the shell.
			select {
			case <-client.Done():
				color.New(color.FgRed).Fprintf(sh.Stdout(), "connection closed: %v\n", client.Err())
				stop()
			case <-ctx.Done():
			}
		}()
		sh.Run(ctx)
		return nil
	}

	c := &commands{client: client, out: color.Output}
	callCtx, cancelCall := context.WithTimeout(ctx, config.Timeout)
	defer cancelCall()

	switch cmd {
	case "status":
		return c.status(callCtx, args)
	case "permission":
		return c.permission(ctx, args)
	case "range":
		return c.subscribe(ctx, model.KindRanging, args, 1)
	case "monitor":
		return c.subscribe(ctx, model.KindMonitoring, args, 1)
	case "background":
		return c.background(ctx)
	case "pause":
		return c.pause(callCtx)
	case "resume":
		return c.resume(callCtx)
	case "configure":
		return c.configure(callCtx, args)
	case "authorize":
		return c.authorize(callCtx, args)
	case "stats":
		return c.stats(callCtx)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

// serverName extracts the host name used for certificate verification.
func serverName(address string) string {
	if u, err := url.Parse(address); err == nil && u.Host != "" {
		return u.Hostname()
	}
	address = strings.TrimPrefix(address, "tcp://")
	if host, _, err := net.SplitHostPort(address); err == nil {
		return host
	}
	return address
}
