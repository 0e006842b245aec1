package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"github.com/beaconrelay/beaconrelay/pkg/model"
)

// Shell is the interactive beaconctl mode. Streams opened from the shell
// run in the background and print through readline so output does not
// clobber the prompt.
type Shell struct {
	client  relayClient
	rl      *readline.Instance
	timeout time.Duration

	mu      sync.Mutex
	next    int
	streams map[int]*shellStream
	wg      sync.WaitGroup
}

type shellStream struct {
	desc   string
	cancel context.CancelFunc
}

// NewShell creates a shell on client.
func NewShell(client relayClient, timeout time.Duration) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "beacon> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("status", readline.PcItem("ranging"), readline.PcItem("monitoring")),
			readline.PcItem("permission", readline.PcItem("when-in-use"), readline.PcItem("always")),
			readline.PcItem("range"),
			readline.PcItem("monitor"),
			readline.PcItem("background"),
			readline.PcItem("streams"),
			readline.PcItem("cancel"),
			readline.PcItem("pause"),
			readline.PcItem("resume"),
			readline.PcItem("configure",
				readline.PcItem("empty"), readline.PcItem("info"),
				readline.PcItem("warning"), readline.PcItem("verbose")),
			readline.PcItem("authorize",
				readline.PcItem("undetermined"), readline.PcItem("denied"), readline.PcItem("restricted"),
				readline.PcItem("when-in-use"), readline.PcItem("always")),
			readline.PcItem("stats"),
			readline.PcItem("help"),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Shell{
		client:  client,
		rl:      rl,
		timeout: timeout,
		streams: make(map[int]*shellStream),
	}, nil
}

// Stdout returns a writer that coordinates with the readline input.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Run reads commands until quit, EOF or ctx is done. Open streams are
// cancelled before Run returns.
func (s *Shell) Run(ctx context.Context) {
	defer s.rl.Close()
	defer s.cancelAll()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		parts := strings.Fields(input)
		if !s.dispatch(ctx, strings.ToLower(parts[0]), parts[1:]) {
			return
		}
	}
}

// dispatch runs one command. It returns false when the shell should exit.
func (s *Shell) dispatch(ctx context.Context, cmd string, args []string) bool {
	out := s.rl.Stdout()
	c := &commands{client: s.client, out: out}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var err error
	switch cmd {
	case "help", "?":
		s.printHelp()
	case "status", "st":
		err = c.status(callCtx, args)
	case "permission", "perm":
		err = c.permission(ctx, args)
	case "range", "r":
		err = s.startStream(ctx, c, model.KindRanging, args)
	case "monitor", "m":
		err = s.startStream(ctx, c, model.KindMonitoring, args)
	case "background", "bg":
		err = s.startBackground(ctx, c)
	case "streams", "ls":
		s.printStreams()
	case "cancel", "c":
		err = s.cancelStream(args)
	case "pause":
		err = c.pause(callCtx)
	case "resume":
		err = c.resume(callCtx)
	case "configure", "conf":
		err = c.configure(callCtx, args)
	case "authorize", "auth":
		err = c.authorize(callCtx, args)
	case "stats":
		err = c.stats(callCtx)
	case "quit", "exit", "q":
		fmt.Fprintln(out, "Exiting...")
		return false
	default:
		fmt.Fprintf(out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}

	if errors.Is(err, errUsage) {
		fmt.Fprintf(out, "Usage: see 'help' for %s\n", cmd)
	} else if err != nil {
		errColor.Fprintf(out, "Error: %v\n", err)
	}
	return true
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.rl.Stdout(), `
Beacon Relay Commands:
  Status:
    status [ranging] [monitoring] [level]     - Check preconditions without prompting
    permission <when-in-use|always>           - Request a permission level

  Subscriptions:
    range <id> [uuid|any] [major] [minor]     - Start ranging a region
    monitor <id> [uuid|any] [major] [minor] [--background]
                                              - Start monitoring a region
    background                                - Stream background transitions
    streams                                   - List open streams
    cancel <n>|all                            - Cancel a stream

  Lifecycle:
    pause                                     - Host went to the background
    resume                                    - Host returned to the foreground
    configure <empty|info|warning|verbose>    - Set the relay log level
    authorize <status>                        - Set the decision (manual policy)

  General:
    stats                                     - Show relay statistics
    help                                      - Show this help
    quit                                      - Exit`)
}

func (s *Shell) track(desc string, cancel context.CancelFunc) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.streams[s.next] = &shellStream{desc: desc, cancel: cancel}
	return s.next
}

func (s *Shell) untrack(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.streams, n)
}

// startStream validates args, then runs the subscription in the
// background until it is cancelled or the relay ends it.
func (s *Shell) startStream(ctx context.Context, c *commands, kind model.Kind, args []string) error {
	sub, err := parseSubscription(kind, args)
	if err != nil {
		return err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	n := s.track(strings.ToLower(kind.String())+" "+sub.Region.String(), cancel)

	ch, err := s.client.Subscribe(streamCtx, kind, sub)
	if err != nil {
		s.untrack(n)
		cancel()
		return err
	}
	okColor.Fprintf(c.out, "stream %d opened\n", n)

	tag := tagFor(kind, sub.Region, n)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.untrack(n)
		defer cancel()
		for res := range ch {
			printUpdate(c.out, tag, kind, res)
		}
		dimColor.Fprintf(c.out, "stream %d closed\n", n)
	}()
	return nil
}

func (s *Shell) startBackground(ctx context.Context, c *commands) error {
	streamCtx, cancel := context.WithCancel(ctx)
	n := s.track("background", cancel)

	ch, err := s.client.BackgroundEvents(streamCtx)
	if err != nil {
		s.untrack(n)
		cancel()
		return err
	}
	okColor.Fprintf(c.out, "stream %d opened\n", n)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.untrack(n)
		defer cancel()
		for ev := range ch {
			printBackground(c.out, ev)
		}
		dimColor.Fprintf(c.out, "stream %d closed\n", n)
	}()
	return nil
}

func (s *Shell) printStreams() {
	s.mu.Lock()
	ids := make([]int, 0, len(s.streams))
	for n := range s.streams {
		ids = append(ids, n)
	}
	sort.Ints(ids)
	lines := make([]string, 0, len(ids))
	for _, n := range ids {
		lines = append(lines, fmt.Sprintf("  %d  %s", n, s.streams[n].desc))
	}
	s.mu.Unlock()

	out := s.rl.Stdout()
	if len(lines) == 0 {
		fmt.Fprintln(out, "No open streams")
		return
	}
	fmt.Fprintf(out, "Open streams (%d):\n", len(lines))
	for _, l := range lines {
		fmt.Fprintln(out, l)
	}
}

func (s *Shell) cancelStream(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	if args[0] == "all" {
		s.cancelAll()
		return nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid stream number %q", args[0])
	}
	s.mu.Lock()
	st, ok := s.streams[n]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no stream %d", n)
	}
	st.cancel()
	return nil
}

// cancelAll cancels every stream and waits for their output to finish.
func (s *Shell) cancelAll() {
	s.mu.Lock()
	for _, st := range s.streams {
		st.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}
