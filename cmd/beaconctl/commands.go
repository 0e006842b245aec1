package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/beaconrelay/beaconrelay/pkg/model"
	"github.com/beaconrelay/beaconrelay/pkg/transport"
	"github.com/beaconrelay/beaconrelay/pkg/wire"
)

var errUsage = errors.New("usage")

// relayClient is the part of transport.Client the commands use.
type relayClient interface {
	CheckStatus(ctx context.Context, req model.StatusRequest) (model.Result[bool], error)
	RequestPermission(ctx context.Context, level model.Permission) (model.Result[bool], error)
	Subscribe(ctx context.Context, kind model.Kind, sub wire.SubscribePayload) (<-chan model.Result[model.Update], error)
	BackgroundEvents(ctx context.Context) (<-chan wire.BackgroundPayload, error)
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Configure(ctx context.Context, settings model.Settings) error
	SetAuthorization(ctx context.Context, status model.AuthorizationStatus) error
	Stats(ctx context.Context) (wire.StatsPayload, error)
}

var _ relayClient = (*transport.Client)(nil)

// parseStatusArgs parses "[ranging] [monitoring] [permission]".
func parseStatusArgs(args []string) (model.StatusRequest, error) {
	var req model.StatusRequest
	for _, a := range args {
		switch strings.ToLower(a) {
		case "ranging":
			req.Ranging = true
		case "monitoring":
			req.Monitoring = true
		default:
			p, ok := model.ParsePermission(strings.ToLower(a))
			if !ok {
				return req, fmt.Errorf("unknown status check %q", a)
			}
			req.Permission = p
		}
	}
	return req, nil
}

func parsePermission(s string) (model.Permission, error) {
	p, ok := model.ParsePermission(strings.ToLower(s))
	if !ok || p == model.PermissionNone {
		return 0, fmt.Errorf("unknown permission %q (use when-in-use or always)", s)
	}
	return p, nil
}

// parseSubscription parses
// "<identifier> [uuid|any] [major] [minor] [--background] [--permission=<level>]".
func parseSubscription(kind model.Kind, args []string) (wire.SubscribePayload, error) {
	var sub wire.SubscribePayload
	var positional []string
	for _, a := range args {
		switch {
		case a == "--background" || a == "-b":
			sub.InBackground = true
		case strings.HasPrefix(a, "--permission="):
			p, err := parsePermission(strings.TrimPrefix(a, "--permission="))
			if err != nil {
				return sub, err
			}
			sub.Permission = p
		default:
			positional = append(positional, a)
		}
	}
	if len(positional) == 0 || len(positional) > 4 {
		return sub, errUsage
	}

	sub.Region.Identifier = positional[0]
	if len(positional) > 1 && positional[1] != "any" && positional[1] != "-" {
		id, err := uuid.Parse(positional[1])
		if err != nil {
			return sub, fmt.Errorf("invalid uuid %q: %w", positional[1], err)
		}
		sub.Region.UUID = id.String()
	}
	for i, name := range []string{"major", "minor"} {
		if len(positional) <= i+2 {
			break
		}
		v, err := strconv.ParseUint(positional[i+2], 10, 16)
		if err != nil {
			return sub, fmt.Errorf("invalid %s %q", name, positional[i+2])
		}
		n := uint16(v)
		if i == 0 {
			sub.Region.Major = &n
		} else {
			sub.Region.Minor = &n
		}
	}

	if sub.InBackground && kind != model.KindMonitoring {
		return sub, errors.New("--background applies to monitoring only")
	}
	if sub.Permission == model.PermissionNone {
		sub.Permission = model.PermissionWhenInUse
		if sub.InBackground {
			sub.Permission = model.PermissionAlways
		}
	}
	return sub, nil
}

func parseAuthorization(s string) (model.AuthorizationStatus, error) {
	st, ok := model.ParseAuthorizationStatus(strings.ToLower(s))
	if !ok {
		return 0, fmt.Errorf("unknown authorization status %q", s)
	}
	return st, nil
}

// commands runs one-shot operations against a relay. Streaming commands
// return once their stream ends.
type commands struct {
	client relayClient
	out    io.Writer
}

func (c *commands) status(ctx context.Context, args []string) error {
	req, err := parseStatusArgs(args)
	if err != nil {
		return err
	}
	res, err := c.client.CheckStatus(ctx, req)
	if err != nil {
		return err
	}
	printBool(c.out, "status", res)
	return nil
}

func (c *commands) permission(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	level, err := parsePermission(args[0])
	if err != nil {
		return err
	}
	res, err := c.client.RequestPermission(ctx, level)
	if err != nil {
		return err
	}
	printBool(c.out, "permission "+level.String(), res)
	return nil
}

// subscribe streams results until ctx is done or the relay ends the
// stream.
func (c *commands) subscribe(ctx context.Context, kind model.Kind, args []string, n int) error {
	sub, err := parseSubscription(kind, args)
	if err != nil {
		return err
	}
	ch, err := c.client.Subscribe(ctx, kind, sub)
	if err != nil {
		return err
	}
	tag := tagFor(kind, sub.Region, n)
	for res := range ch {
		printUpdate(c.out, tag, kind, res)
	}
	return nil
}

func (c *commands) background(ctx context.Context) error {
	ch, err := c.client.BackgroundEvents(ctx)
	if err != nil {
		return err
	}
	for ev := range ch {
		printBackground(c.out, ev)
	}
	return nil
}

func (c *commands) pause(ctx context.Context) error {
	if err := c.client.Pause(ctx); err != nil {
		return err
	}
	okColor.Fprintln(c.out, "paused")
	return nil
}

func (c *commands) resume(ctx context.Context) error {
	if err := c.client.Resume(ctx); err != nil {
		return err
	}
	okColor.Fprintln(c.out, "resumed")
	return nil
}

func (c *commands) configure(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	level, ok := model.ParseLogLevel(args[0])
	if !ok {
		return fmt.Errorf("unknown log level %q", args[0])
	}
	if err := c.client.Configure(ctx, model.Settings{Logs: level}); err != nil {
		return err
	}
	okColor.Fprintf(c.out, "log level %s\n", level)
	return nil
}

func (c *commands) authorize(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	st, err := parseAuthorization(args[0])
	if err != nil {
		return err
	}
	if err := c.client.SetAuthorization(ctx, st); err != nil {
		return err
	}
	okColor.Fprintf(c.out, "authorization %s\n", st)
	return nil
}

func (c *commands) stats(ctx context.Context) error {
	st, err := c.client.Stats(ctx)
	if err != nil {
		return err
	}
	printStats(c.out, st)
	return nil
}
