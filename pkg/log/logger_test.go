package log

import (
	"testing"
	"time"
)

func TestNoopLoggerDoesNotPanic(t *testing.T) {
	logger := NoopLogger{}

	event := Event{
		Timestamp: time.Now(),
		Layer:     LayerCoordinator,
		Category:  CategoryRequest,
		RegionID:  "lobby",
	}
	logger.Log(event)

	event.Request = &RequestEvent{Action: RequestRegistered, Kind: "RANGING"}
	logger.Log(event)

	event.Request = nil
	event.Session = &SessionEvent{Action: SessionStart, Path: "RANGING", Key: "RANGING:lobby"}
	logger.Log(event)
}

func TestOrNoop(t *testing.T) {
	if _, ok := OrNoop(nil).(NoopLogger); !ok {
		t.Error("OrNoop(nil) should return NoopLogger")
	}

	rec := NewRecorder()
	if OrNoop(rec) != Logger(rec) {
		t.Error("OrNoop should return a non-nil logger unchanged")
	}
}

func TestEventSummary(t *testing.T) {
	tests := []struct {
		event Event
		want  string
	}{
		{Event{Session: &SessionEvent{Action: SessionStop, Path: "BACKGROUND"}}, "BACKGROUND STOP"},
		{Event{Request: &RequestEvent{Action: RequestGateDropped, Kind: "MONITORING"}}, "MONITORING GATE_DROPPED"},
		{Event{Message: &MessageEvent{Type: MessageTypeRequest, Method: "checkStatus"}}, "REQUEST checkStatus"},
		{Event{Permission: &PermissionEvent{Action: PermissionPrompted}}, "permission PROMPTED"},
		{Event{}, "unknown"},
	}

	for _, tt := range tests {
		if got := tt.event.Summary(); got != tt.want {
			t.Errorf("Summary() = %q, want %q", got, tt.want)
		}
	}
}

func TestRecorderSessions(t *testing.T) {
	rec := NewRecorder()
	rec.Log(Event{Category: CategoryRequest, Request: &RequestEvent{Action: RequestRegistered}})
	rec.Log(Event{Category: CategorySession, Session: &SessionEvent{Action: SessionStart, Key: "RANGING:A"}})

	if got := len(rec.Events()); got != 2 {
		t.Fatalf("Events() len = %d, want 2", got)
	}
	sessions := rec.Sessions()
	if len(sessions) != 1 || sessions[0].Key != "RANGING:A" {
		t.Errorf("Sessions() = %+v", sessions)
	}
}
