package coordinator

import (
	"context"
	"sync"
	"testing"

	"github.com/beaconrelay/beaconrelay/pkg/log"
	"github.com/beaconrelay/beaconrelay/pkg/model"
	"github.com/beaconrelay/beaconrelay/pkg/session"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// stubScanner
// ---------------------------------------------------------------------------

type stubScanner struct {
	mock.Mock
	events session.Events
}

func (s *stubScanner) Bind(e session.Events) error {
	s.events = e
	return s.Called(e).Error(0)
}
func (s *stubScanner) Unbind()                                     { s.Called() }
func (s *stubScanner) StartRanging(r model.Region) error           { return s.Called(r).Error(0) }
func (s *stubScanner) StopRanging(r model.Region) error            { return s.Called(r).Error(0) }
func (s *stubScanner) StartMonitoring(r model.Region) error        { return s.Called(r).Error(0) }
func (s *stubScanner) StopMonitoring(r model.Region) error         { return s.Called(r).Error(0) }
func (s *stubScanner) AddBackgroundRegion(r model.Region) error    { return s.Called(r).Error(0) }
func (s *stubScanner) RemoveBackgroundRegion(r model.Region) error { return s.Called(r).Error(0) }

// count returns the number of calls of method for the region identifier.
func (s *stubScanner) count(method, regionID string) int {
	n := 0
	for _, call := range s.Calls {
		if call.Method != method || len(call.Arguments) == 0 {
			continue
		}
		if r, ok := call.Arguments.Get(0).(model.Region); ok && r.Identifier == regionID {
			n++
		}
	}
	return n
}

func newStubScanner() *stubScanner {
	s := &stubScanner{}
	s.On("Bind", mock.Anything).Return(nil).Maybe()
	s.On("Unbind").Return().Maybe()
	for _, m := range []string{"StartRanging", "StopRanging", "StartMonitoring", "StopMonitoring", "AddBackgroundRegion", "RemoveBackgroundRegion"} {
		s.On(m, mock.Anything).Return(nil).Maybe()
	}
	return s
}

// ---------------------------------------------------------------------------
// stubEnvironment / stubAuthority
// ---------------------------------------------------------------------------

type stubEnvironment struct{}

func (stubEnvironment) LocationServicesEnabled() bool { return true }
func (stubEnvironment) RangingAvailable() bool        { return true }
func (stubEnvironment) MonitoringAvailable() bool     { return true }

type stubAuthority struct {
	mock.Mock

	mu      sync.Mutex
	handler func(model.AuthorizationStatus)
}

func (a *stubAuthority) Status() model.AuthorizationStatus {
	return a.Called().Get(0).(model.AuthorizationStatus)
}
func (a *stubAuthority) Declared(level model.Permission) bool { return a.Called(level).Bool(0) }
func (a *stubAuthority) Prompt(level model.Permission) error  { return a.Called(level).Error(0) }
func (a *stubAuthority) Listen(h func(model.AuthorizationStatus)) func() {
	a.mu.Lock()
	a.handler = h
	a.mu.Unlock()
	return func() {}
}

// change simulates the authority reporting a new status.
func (a *stubAuthority) change(st model.AuthorizationStatus) {
	a.mu.Lock()
	h := a.handler
	a.mu.Unlock()
	h(st)
}

func grantingAuthority() *stubAuthority {
	a := &stubAuthority{}
	a.On("Status").Return(model.AuthorizationAlways).Maybe()
	a.On("Declared", mock.Anything).Return(true).Maybe()
	return a
}

// ---------------------------------------------------------------------------
// harness
// ---------------------------------------------------------------------------

type harness struct {
	c       *Coordinator
	scanner *stubScanner
	auth    *stubAuthority
	rec     *log.Recorder
}

type harnessOption func(*Config)

func withBackground(n *BackgroundNotifier) harnessOption {
	return func(c *Config) { c.Background = n }
}

func newHarness(t *testing.T, auth *stubAuthority, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{scanner: newStubScanner(), auth: auth, rec: log.NewRecorder()}

	cfg := Config{
		Scanner:     h.scanner,
		Environment: stubEnvironment{},
		Authority:   auth,
		EventLog:    h.rec,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	c, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { c.Stop() })
	h.c = c
	return h
}

// settle waits until every task queued so far has run.
func (h *harness) settle(t *testing.T) {
	t.Helper()
	require.NoError(t, h.c.do(func() {}))
}

func (h *harness) connect(t *testing.T) {
	t.Helper()
	h.scanner.events.Connected()
	h.settle(t)
}

func (h *harness) stats(t *testing.T) Stats {
	t.Helper()
	st, err := h.c.Stats()
	require.NoError(t, err)
	return st
}

func (h *harness) running(t *testing.T, req *model.ActiveRequest) bool {
	t.Helper()
	var r bool
	require.NoError(t, h.c.do(func() { r = req.IsRunning() }))
	return r
}

func (h *harness) registered(t *testing.T, req *model.ActiveRequest) bool {
	t.Helper()
	var r bool
	require.NoError(t, h.c.do(func() { r = h.c.registry.Contains(req) }))
	return r
}

// ---------------------------------------------------------------------------
// collector
// ---------------------------------------------------------------------------

type collector struct {
	mu      sync.Mutex
	results []model.Result[model.Update]
}

func (c *collector) callback(res model.Result[model.Update]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, res)
}

func (c *collector) all() []model.Result[model.Update] {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Result[model.Update], len(c.results))
	copy(out, c.results)
	return out
}

func (c *collector) len() int {
	return len(c.all())
}

func newRequest(kind model.Kind, id string, background bool, col *collector) *model.ActiveRequest {
	var cb model.Callback
	if col != nil {
		cb = col.callback
	}
	return model.NewActiveRequest(kind, model.Region{Identifier: id}, background, cb)
}
