package log

import "testing"

func TestMultiLoggerFansOut(t *testing.T) {
	a := NewRecorder()
	b := NewRecorder()
	m := NewMultiLogger(a, nil, b)

	m.Log(Event{RegionID: "A"})
	m.Log(Event{RegionID: "B"})

	if len(a.Events()) != 2 || len(b.Events()) != 2 {
		t.Errorf("got %d and %d events, want 2 each", len(a.Events()), len(b.Events()))
	}
}

func TestMultiLoggerEmpty(t *testing.T) {
	m := NewMultiLogger()
	m.Log(Event{})
}
