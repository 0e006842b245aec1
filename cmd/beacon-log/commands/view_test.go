package commands

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/beaconrelay/beaconrelay/pkg/log"
)

var viewTS = time.Date(2026, 1, 28, 10, 15, 32, 123456000, time.UTC)

func format(event log.Event) string {
	var buf bytes.Buffer
	formatEvent(&buf, event)
	return buf.String()
}

func assertContains(t *testing.T, output string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestFormatFrameEvent(t *testing.T) {
	output := format(log.Event{
		Timestamp:    viewTS,
		ConnectionID: "abc12345-6789-0123-4567-890abcdef012",
		Direction:    log.DirectionOut,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Frame: &log.FrameEvent{
			Size:      128,
			Data:      []byte{0xa1, 0x01, 0x02, 0x03},
			Truncated: true,
		},
	})

	assertContains(t, output,
		"2026-01-28T10:15:32.123456Z",
		"[conn:abc12345]",
		"OUT",
		"TRANSPORT Frame",
		"Size: 128 bytes",
		"Data: a1010203 (truncated)",
	)
}

func TestFormatMessageEventResponse(t *testing.T) {
	d := 1500 * time.Microsecond
	output := format(log.Event{
		Timestamp:    viewTS,
		ConnectionID: "abc12345-6789",
		Direction:    log.DirectionOut,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		Message: &log.MessageEvent{
			Type:           log.MessageTypeResponse,
			MessageID:      7,
			Status:         "ok",
			StreamID:       3,
			ProcessingTime: &d,
		},
	})

	assertContains(t, output, "WIRE RESPONSE", "MessageID: 7", "Status: ok", "Duration: 1.500ms", "StreamID: 3")
}

func TestFormatControlMsgEvent(t *testing.T) {
	output := format(log.Event{
		Timestamp:    viewTS,
		ConnectionID: "abc12345",
		Layer:        log.LayerTransport,
		Category:     log.CategoryControl,
		ControlMsg:   &log.ControlMsgEvent{Type: log.ControlMsgPing},
	})
	assertContains(t, output, "CTRL PING")
}

func TestFormatStateChangeEvent(t *testing.T) {
	output := format(log.Event{
		Timestamp: viewTS,
		Layer:     log.LayerCoordinator,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityLifecycle,
			OldState: "RUNNING",
			NewState: "PAUSED",
			Reason:   "pause requested",
		},
	})

	if strings.Contains(output, "[conn:") {
		t.Errorf("events without connection have no connection tag:\n%s", output)
	}
	assertContains(t, output, "COORDINATOR State", "RUNNING -> PAUSED", "Reason: pause requested")
}

func TestFormatRequestEvent(t *testing.T) {
	output := format(log.Event{
		Timestamp: viewTS,
		Layer:     log.LayerCoordinator,
		Category:  log.CategoryRequest,
		RegionID:  "lobby",
		Request: &log.RequestEvent{
			Action:       log.RequestGateFailed,
			Kind:         "MONITORING",
			InBackground: true,
			Reason:       "permissionDenied",
		},
	})
	assertContains(t, output,
		"COORDINATOR Request GATE_FAILED region=lobby",
		"Kind: MONITORING (background)",
		"Reason: permissionDenied",
	)
}

func TestFormatSessionPermissionDispatch(t *testing.T) {
	session := format(log.Event{
		Timestamp: viewTS,
		Layer:     log.LayerSession,
		Category:  log.CategorySession,
		RegionID:  "lobby",
		Session: &log.SessionEvent{
			Action: log.SessionStart,
			Path:   "RANGING",
			Key:    "lobby",
			Error:  "radio off",
		},
	})
	assertContains(t, session, "SESSION Session", "Path: RANGING", "Key: lobby", "Error: radio off")

	perm := format(log.Event{
		Timestamp: viewTS,
		Layer:     log.LayerGate,
		Category:  log.CategoryPermission,
		Permission: &log.PermissionEvent{
			Action:  log.PermissionResolved,
			Level:   "always",
			Status:  "authorizedAlways",
			Waiters: 2,
		},
	})
	assertContains(t, perm, "GATE Permission", "Level: always", "Status: authorizedAlways", "Waiters: 2")

	dispatch := format(log.Event{
		Timestamp: viewTS,
		Layer:     log.LayerCoordinator,
		Category:  log.CategoryDispatch,
		RegionID:  "lobby",
		Dispatch: &log.DispatchEvent{
			Kind:       "RANGING",
			Recipients: 2,
			Beacons:    3,
		},
	})
	assertContains(t, dispatch, "COORDINATOR Dispatch region=lobby", "Recipients: 2", "Beacons: 3")
}

func TestViewFiltersByRegion(t *testing.T) {
	path := createTestLogFile(t, []log.Event{
		{Timestamp: viewTS, Layer: log.LayerCoordinator, Category: log.CategoryDispatch, RegionID: "lobby",
			Dispatch: &log.DispatchEvent{Kind: "RANGING", Recipients: 1}},
		{Timestamp: viewTS, Layer: log.LayerCoordinator, Category: log.CategoryDispatch, RegionID: "door",
			Dispatch: &log.DispatchEvent{Kind: "RANGING", Recipients: 1}},
	})

	var buf bytes.Buffer
	if err := RunView(path, ViewFilter{RegionID: "door"}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	if strings.Contains(buf.String(), "region=lobby") {
		t.Errorf("lobby should be filtered out:\n%s", buf.String())
	}
	assertContains(t, buf.String(), "region=door")
}

func TestViewFiltersByLayer(t *testing.T) {
	path := createTestLogFile(t, []log.Event{
		{Timestamp: viewTS, Layer: log.LayerGate, Category: log.CategoryPermission,
			Permission: &log.PermissionEvent{Action: log.PermissionQueued}},
		{Timestamp: viewTS, Layer: log.LayerSession, Category: log.CategorySession,
			Session: &log.SessionEvent{Action: log.SessionStop, Path: "MONITORING", Key: "x"}},
	})

	layer := log.LayerGate
	var buf bytes.Buffer
	if err := RunView(path, ViewFilter{Layer: &layer}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	if strings.Contains(buf.String(), "SESSION") {
		t.Errorf("session event should be filtered out:\n%s", buf.String())
	}
	assertContains(t, buf.String(), "GATE Permission")
}

func TestParseLayer(t *testing.T) {
	tests := []struct {
		input string
		want  log.Layer
	}{
		{"transport", log.LayerTransport},
		{"WIRE", log.LayerWire},
		{"Coordinator", log.LayerCoordinator},
		{"session", log.LayerSession},
		{"gate", log.LayerGate},
	}
	for _, tt := range tests {
		got, err := ParseLayerFlag(tt.input)
		if err != nil {
			t.Errorf("ParseLayerFlag(%q) error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLayerFlag(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
	if _, err := ParseLayerFlag("service"); err == nil {
		t.Error("expected error for unknown layer")
	}
}

func TestParseDirection(t *testing.T) {
	if d, err := ParseDirectionFlag("IN"); err != nil || d != log.DirectionIn {
		t.Errorf("ParseDirectionFlag(IN) = %v, %v", d, err)
	}
	if d, err := ParseDirectionFlag("out"); err != nil || d != log.DirectionOut {
		t.Errorf("ParseDirectionFlag(out) = %v, %v", d, err)
	}
	if _, err := ParseDirectionFlag("both"); err == nil {
		t.Error("expected error for unknown direction")
	}
}

func TestParseCategory(t *testing.T) {
	for name, want := range categoryNames {
		got, err := ParseCategoryFlag(strings.ToUpper(name))
		if err != nil || got != want {
			t.Errorf("ParseCategoryFlag(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := ParseCategoryFlag("snapshot"); err == nil {
		t.Error("expected error for unknown category")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[time.Duration]string{
		500 * time.Nanosecond:   "0.500us",
		2500 * time.Microsecond: "2.500ms",
		1500 * time.Millisecond: "1.500s",
	}
	for d, want := range tests {
		if got := formatDuration(d); got != want {
			t.Errorf("formatDuration(%s) = %q, want %q", d, got, want)
		}
	}
}
