package commands

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/beaconrelay/beaconrelay/pkg/log"
)

func statsEvents() []log.Event {
	base := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	return []log.Event{
		{Timestamp: base, ConnectionID: "conn-aaaaaaaa", RemoteAddr: "10.0.0.2:5000",
			Direction: log.DirectionIn, Layer: log.LayerTransport, Category: log.CategoryMessage,
			Frame: &log.FrameEvent{Size: 12}},
		{Timestamp: base.Add(time.Second), Layer: log.LayerCoordinator, Category: log.CategoryRequest,
			RegionID: "lobby", Request: &log.RequestEvent{Action: log.RequestRegistered, Kind: "MONITORING"}},
		{Timestamp: base.Add(2 * time.Second), Layer: log.LayerCoordinator, Category: log.CategoryDispatch,
			RegionID: "lobby", Dispatch: &log.DispatchEvent{Kind: "MONITORING", Recipients: 1, State: "enterOrInside"}},
		{Timestamp: base.Add(3 * time.Second), Layer: log.LayerCoordinator, Category: log.CategoryDispatch,
			RegionID: "lobby", Dispatch: &log.DispatchEvent{Kind: "MONITORING", Recipients: 1, State: "enterOrInside"}},
		{Timestamp: base.Add(4 * time.Second), Layer: log.LayerCoordinator, Category: log.CategoryDispatch,
			RegionID: "lobby", Dispatch: &log.DispatchEvent{Kind: "MONITORING", Recipients: 1, State: "exitOrOutside"}},
		{Timestamp: base.Add(5 * time.Second), Layer: log.LayerGate, Category: log.CategoryError,
			Error: &log.ErrorEventData{Layer: log.LayerGate, Message: "prompt failed"}},
	}
}

func TestStatsAggregates(t *testing.T) {
	stats := newStats()
	for _, e := range statsEvents() {
		stats.add(e)
	}

	if stats.TotalEvents != 6 {
		t.Errorf("expected 6 events, got %d", stats.TotalEvents)
	}
	if got := stats.EventsByLayer[log.LayerCoordinator]; got != 4 {
		t.Errorf("expected 4 coordinator events, got %d", got)
	}
	if got := stats.EventsByCategory[log.CategoryDispatch]; got != 3 {
		t.Errorf("expected 3 dispatch events, got %d", got)
	}
	if got := stats.EventsByDirection[log.DirectionIn]; got != 1 {
		t.Errorf("direction counts only connection events, got %d", got)
	}
	if got := stats.RequestActions[log.RequestRegistered]; got != 1 {
		t.Errorf("expected 1 registration, got %d", got)
	}
	if stats.Errors != 1 {
		t.Errorf("expected 1 error, got %d", stats.Errors)
	}
	if len(stats.Connections) != 1 || stats.Connections["conn-aaaaaaaa"].RemoteAddr != "10.0.0.2:5000" {
		t.Errorf("unexpected connections: %+v", stats.Connections)
	}

	lobby := stats.Regions["lobby"]
	if lobby == nil {
		t.Fatal("region lobby missing")
	}
	if lobby.Events != 4 || lobby.Dispatches != 3 {
		t.Errorf("unexpected region counts: %+v", lobby)
	}
	if lobby.Transitions != 2 || lobby.LastState != "exitOrOutside" {
		t.Errorf("expected 2 transitions ending outside, got %+v", lobby)
	}
	if d := stats.TimeRange.End.Sub(stats.TimeRange.Start); d != 5*time.Second {
		t.Errorf("expected 5s range, got %s", d)
	}
}

func TestRunStatsOutput(t *testing.T) {
	path := createTestLogFile(t, statsEvents())

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"Total Events: 6",
		"COORDINATOR:",
		"DISPATCH:",
		"REGISTERED:",
		"Connections: 1",
		"[conn-aaa]",
		"Remote: 10.0.0.2:5000",
		"lobby: 4 events, 3 dispatches, 2 transitions (last: exitOrOutside)",
		"Errors: 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestRunStatsEmptyLog(t *testing.T) {
	path := createTestLogFile(t, nil)

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Total Events: 0") {
		t.Errorf("unexpected output: %s", buf.String())
	}
	if strings.Contains(buf.String(), "Time Range") {
		t.Error("empty log has no time range")
	}
}
