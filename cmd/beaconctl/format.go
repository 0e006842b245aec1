package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/beaconrelay/beaconrelay/pkg/model"
	"github.com/beaconrelay/beaconrelay/pkg/wire"
)

var (
	okColor    = color.New(color.FgGreen)
	errColor   = color.New(color.FgRed)
	warnColor  = color.New(color.FgYellow)
	labelColor = color.New(color.FgCyan)
	dimColor   = color.New(color.Faint)
)

// printBool prints the outcome of checkStatus or requestPermission.
func printBool(w io.Writer, what string, res model.Result[bool]) {
	if res.Err != nil {
		errColor.Fprintf(w, "%s: %s\n", what, res.Err)
		return
	}
	if res.Value {
		okColor.Fprintf(w, "%s: ok\n", what)
		return
	}
	warnColor.Fprintf(w, "%s: not granted\n", what)
}

// printUpdate prints one stream event. tag identifies the stream.
func printUpdate(w io.Writer, tag string, kind model.Kind, res model.Result[model.Update]) {
	prefix := labelColor.Sprintf("[%s]", tag)
	if res.Err != nil {
		mark := "error"
		if res.Err.Fatal {
			mark = "fatal"
		}
		fmt.Fprintf(w, "%s %s %s\n", prefix, errColor.Sprint(mark), res.Err)
		return
	}

	region := ""
	if res.Region != nil {
		region = res.Region.Identifier
	}

	if kind == model.KindMonitoring {
		state := res.Value.State.String()
		switch res.Value.State {
		case model.MonitoringEnterOrInside:
			state = okColor.Sprint(state)
		case model.MonitoringExitOrOutside:
			state = warnColor.Sprint(state)
		}
		fmt.Fprintf(w, "%s %s %s\n", prefix, region, state)
		return
	}

	fmt.Fprintf(w, "%s %s %d beacon(s)\n", prefix, region, len(res.Value.Beacons))
	for _, b := range res.Value.Beacons {
		fmt.Fprintf(w, "    %s %5d %5d  rssi %4d  %s\n",
			b.UUID, b.Major, b.Minor, b.RSSI, formatDistance(b))
	}
}

func formatDistance(b model.Beacon) string {
	if b.Accuracy < 0 {
		return dimColor.Sprint(b.Proximity.String())
	}
	return fmt.Sprintf("%.2fm %s", b.Accuracy, b.Proximity)
}

// printBackground prints one background monitoring transition.
func printBackground(w io.Writer, ev wire.BackgroundPayload) {
	state := ev.State.String()
	if ev.State == model.MonitoringEnterOrInside {
		state = okColor.Sprint(state)
	} else {
		state = warnColor.Sprint(state)
	}
	fmt.Fprintf(w, "%s %s %s %s\n", labelColor.Sprint("[background]"), ev.Type, ev.Region.Identifier, state)
}

// printStats prints relay statistics as a table.
func printStats(w io.Writer, st wire.StatsPayload) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := []struct {
		name  string
		value any
	}{
		{"registered", st.Registered},
		{"running", st.Running},
		{"sessions", st.Sessions},
		{"pending permissions", st.PendingPermissions},
		{"scanner connected", st.Connected},
		{"paused", st.Paused},
		{"client streams", st.Streams},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%v\n", labelColor.Sprint(r.name), r.value)
	}
	tw.Flush()
}

// tagFor names a stream in output.
func tagFor(kind model.Kind, region model.Region, n int) string {
	return fmt.Sprintf("%d %s %s", n, strings.ToLower(kind.String()), region.Identifier)
}
