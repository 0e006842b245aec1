package session

import (
	"errors"
	"testing"

	"github.com/beaconrelay/beaconrelay/pkg/log"
	"github.com/beaconrelay/beaconrelay/pkg/model"
	"github.com/beaconrelay/beaconrelay/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type stubScanner struct{ mock.Mock }

func (s *stubScanner) Bind(e Events) error                  { return s.Called(e).Error(0) }
func (s *stubScanner) Unbind()                              { s.Called() }
func (s *stubScanner) StartRanging(r model.Region) error    { return s.Called(r).Error(0) }
func (s *stubScanner) StopRanging(r model.Region) error     { return s.Called(r).Error(0) }
func (s *stubScanner) StartMonitoring(r model.Region) error { return s.Called(r).Error(0) }
func (s *stubScanner) StopMonitoring(r model.Region) error  { return s.Called(r).Error(0) }
func (s *stubScanner) AddBackgroundRegion(r model.Region) error {
	return s.Called(r).Error(0)
}
func (s *stubScanner) RemoveBackgroundRegion(r model.Region) error {
	return s.Called(r).Error(0)
}

var (
	regionA = model.Region{Identifier: "A", UUID: "2f234454-cf6d-4a0f-adf2-f4911ba9ffa6"}
	regionB = model.Region{Identifier: "B"}
)

func newTestManager(scanner *stubScanner) (*Manager, *registry.Registry, *log.Recorder) {
	reg := registry.New()
	rec := log.NewRecorder()
	m := NewManager(Config{Scanner: scanner, Registry: reg, EventLog: rec})
	m.MarkConnected()
	return m, reg, rec
}

// start mirrors the coordinator: session first, then the running flag.
func start(t *testing.T, m *Manager, req *model.ActiveRequest) {
	t.Helper()
	require.NoError(t, m.EnsureStarted(req))
	req.SetRunning(true)
}

// stop mirrors the coordinator: running flag first, then the session.
func stop(t *testing.T, m *Manager, req *model.ActiveRequest) {
	t.Helper()
	req.SetRunning(false)
	require.NoError(t, m.EnsureStopped(req))
}

func TestSharedRangingSession(t *testing.T) {
	scanner := &stubScanner{}
	scanner.On("StartRanging", regionA).Return(nil).Once()
	scanner.On("StopRanging", regionA).Return(nil).Once()

	m, reg, rec := newTestManager(scanner)
	first := model.NewActiveRequest(model.KindRanging, regionA, false, nil)
	second := model.NewActiveRequest(model.KindRanging, regionA, false, nil)
	reg.Add(first)
	reg.Add(second)

	start(t, m, first)
	start(t, m, second)
	assert.Equal(t, 1, m.Active())

	stop(t, m, first)
	scanner.AssertNotCalled(t, "StopRanging", regionA)

	stop(t, m, second)
	scanner.AssertExpectations(t)
	assert.Equal(t, 0, m.Active())

	var actions []log.SessionAction
	for _, s := range rec.Sessions() {
		actions = append(actions, s.Action)
	}
	assert.Equal(t, []log.SessionAction{log.SessionStart, log.SessionShared, log.SessionStop}, actions)
}

func TestKindsDoNotShareSessions(t *testing.T) {
	scanner := &stubScanner{}
	scanner.On("StartRanging", regionA).Return(nil).Once()
	scanner.On("StartMonitoring", regionA).Return(nil).Once()

	m, reg, _ := newTestManager(scanner)
	ranging := model.NewActiveRequest(model.KindRanging, regionA, false, nil)
	monitoring := model.NewActiveRequest(model.KindMonitoring, regionA, false, nil)
	reg.Add(ranging)
	reg.Add(monitoring)

	start(t, m, ranging)
	start(t, m, monitoring)

	scanner.AssertExpectations(t)
	assert.Equal(t, 2, m.Active())
}

func TestBackgroundMonitoringUsesSharedSet(t *testing.T) {
	scanner := &stubScanner{}
	scanner.On("AddBackgroundRegion", regionA).Return(nil).Once()
	scanner.On("AddBackgroundRegion", regionB).Return(nil).Once()
	scanner.On("RemoveBackgroundRegion", regionA).Return(nil).Once()

	m, reg, _ := newTestManager(scanner)
	a := model.NewActiveRequest(model.KindMonitoring, regionA, true, nil)
	b := model.NewActiveRequest(model.KindMonitoring, regionB, true, nil)
	reg.Add(a)
	reg.Add(b)

	start(t, m, a)
	start(t, m, b)
	stop(t, m, a)

	scanner.AssertExpectations(t)
	scanner.AssertNotCalled(t, "StartMonitoring", mock.Anything)
	scanner.AssertNotCalled(t, "StopMonitoring", mock.Anything)
}

func TestStopUsesPathSessionWasStartedOn(t *testing.T) {
	scanner := &stubScanner{}
	scanner.On("AddBackgroundRegion", regionA).Return(nil).Once()
	scanner.On("RemoveBackgroundRegion", regionA).Return(nil).Once()

	m, reg, _ := newTestManager(scanner)
	background := model.NewActiveRequest(model.KindMonitoring, regionA, true, nil)
	foreground := model.NewActiveRequest(model.KindMonitoring, regionA, false, nil)
	reg.Add(background)
	reg.Add(foreground)

	start(t, m, background)
	start(t, m, foreground)
	stop(t, m, background)
	stop(t, m, foreground)

	scanner.AssertExpectations(t)
	scanner.AssertNotCalled(t, "StopMonitoring", mock.Anything)
}

func TestNotConnected(t *testing.T) {
	scanner := &stubScanner{}
	m := NewManager(Config{Scanner: scanner, Registry: registry.New()})
	req := model.NewActiveRequest(model.KindRanging, regionA, false, nil)

	assert.False(t, m.Connected())
	assert.ErrorIs(t, m.EnsureStarted(req), ErrNotConnected)
	assert.ErrorIs(t, m.EnsureStopped(req), ErrNotConnected)
	scanner.AssertNotCalled(t, "StartRanging", mock.Anything)
}

func TestStartFailureLeavesNoSession(t *testing.T) {
	scanner := &stubScanner{}
	scanner.On("StartRanging", regionA).Return(errors.New("radio busy")).Once()
	scanner.On("StartRanging", regionA).Return(nil).Once()

	m, reg, rec := newTestManager(scanner)
	req := model.NewActiveRequest(model.KindRanging, regionA, false, nil)
	reg.Add(req)

	err := m.EnsureStarted(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "radio busy")
	assert.Equal(t, 0, m.Active())
	require.Len(t, rec.Sessions(), 1)
	assert.Equal(t, "radio busy", rec.Sessions()[0].Error)

	start(t, m, req)
	assert.Equal(t, 1, m.Active())
}

func TestUnbindForgetsSessions(t *testing.T) {
	scanner := &stubScanner{}
	scanner.On("StartRanging", regionA).Return(nil)
	scanner.On("Unbind").Return()

	m, reg, _ := newTestManager(scanner)
	req := model.NewActiveRequest(model.KindRanging, regionA, false, nil)
	reg.Add(req)
	start(t, m, req)

	m.Unbind()

	assert.False(t, m.Connected())
	assert.Equal(t, 0, m.Active())
	scanner.AssertCalled(t, "Unbind")
}

func TestBindWrapsError(t *testing.T) {
	scanner := &stubScanner{}
	bindErr := errors.New("no interface")
	scanner.On("Bind", mock.Anything).Return(bindErr)

	m := NewManager(Config{Scanner: scanner, Registry: registry.New()})
	err := m.Bind(nil)

	assert.ErrorIs(t, err, bindErr)
}

func TestPathFor(t *testing.T) {
	assert.Equal(t, PathRanging, PathFor(model.NewActiveRequest(model.KindRanging, regionA, true, nil)))
	assert.Equal(t, PathMonitoring, PathFor(model.NewActiveRequest(model.KindMonitoring, regionA, false, nil)))
	assert.Equal(t, PathBackground, PathFor(model.NewActiveRequest(model.KindMonitoring, regionA, true, nil)))
}
