package session

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/beaconrelay/beaconrelay/pkg/log"
	"github.com/beaconrelay/beaconrelay/pkg/model"
)

// ErrNotConnected is returned when a session call is made before the
// scanning service reported Connected.
var ErrNotConnected = errors.New("scanner not connected")

// Registry answers whether a session key is still held by a running
// request.
type Registry interface {
	AnyRunning(key model.SessionKey) bool
}

// Path is the scanner call family used for a session.
type Path uint8

const (
	PathRanging Path = iota
	PathMonitoring
	PathBackground
)

// String returns the path name.
func (p Path) String() string {
	switch p {
	case PathRanging:
		return "RANGING"
	case PathMonitoring:
		return "MONITORING"
	case PathBackground:
		return "BACKGROUND"
	default:
		return "UNKNOWN"
	}
}

// PathFor returns the path a request starts its session on.
func PathFor(req *model.ActiveRequest) Path {
	switch {
	case req.Kind == model.KindRanging:
		return PathRanging
	case req.InBackground:
		return PathBackground
	default:
		return PathMonitoring
	}
}

// Config configures a Manager.
type Config struct {
	Scanner  Scanner
	Registry Registry
	Logger   *slog.Logger
	EventLog log.Logger
}

// Manager owns scanning sessions. It starts a session for the first
// running request of a key and stops it when no running request holds the
// key any more. Whether a key is held is always recomputed from the
// registry.
//
// Manager is not safe for concurrent use; it is driven by the
// coordinator loop.
type Manager struct {
	scanner  Scanner
	registry Registry
	logger   *slog.Logger
	eventLog log.Logger

	connected bool

	// active records the path each live session was started on.
	active map[model.SessionKey]Path
}

// NewManager creates a Manager.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		scanner:  cfg.Scanner,
		registry: cfg.Registry,
		logger:   logger,
		eventLog: log.OrNoop(cfg.EventLog),
		active:   make(map[model.SessionKey]Path),
	}
}

// Bind binds the scanner to events.
func (m *Manager) Bind(events Events) error {
	if err := m.scanner.Bind(events); err != nil {
		return fmt.Errorf("bind scanner: %w", err)
	}
	return nil
}

// Unbind unbinds the scanner and forgets all sessions.
func (m *Manager) Unbind() {
	m.scanner.Unbind()
	m.connected = false
	clear(m.active)
	m.logState("disconnected")
}

// MarkConnected records that the scanner reported Connected.
func (m *Manager) MarkConnected() {
	m.connected = true
	m.logState("connected")
}

// Connected reports whether hardware calls may be issued.
func (m *Manager) Connected() bool {
	return m.connected
}

// Active returns the number of live sessions.
func (m *Manager) Active() int {
	return len(m.active)
}

// Path returns the path the live session for key was started on.
func (m *Manager) Path(key model.SessionKey) (Path, bool) {
	p, ok := m.active[key]
	return p, ok
}

// EnsureStarted starts the session for req's key unless another running
// request already holds it. Call it before marking req running.
func (m *Manager) EnsureStarted(req *model.ActiveRequest) error {
	if !m.connected {
		return ErrNotConnected
	}

	key := req.Key()
	path := PathFor(req)
	if m.registry.AnyRunning(key) {
		m.logSession(log.SessionShared, path, req, nil)
		return nil
	}

	var err error
	switch path {
	case PathRanging:
		err = m.scanner.StartRanging(req.Region)
	case PathBackground:
		err = m.scanner.AddBackgroundRegion(req.Region)
	default:
		err = m.scanner.StartMonitoring(req.Region)
	}
	m.logSession(log.SessionStart, path, req, err)
	if err != nil {
		return fmt.Errorf("start %s session %s: %w", path, key, err)
	}

	m.active[key] = path
	m.logger.Debug("session started", "key", key, "path", path)
	return nil
}

// EnsureStopped stops the session for req's key when no running request
// holds it any more. Call it after clearing req's running flag.
func (m *Manager) EnsureStopped(req *model.ActiveRequest) error {
	if !m.connected {
		return ErrNotConnected
	}

	key := req.Key()
	if m.registry.AnyRunning(key) {
		return nil
	}

	path, ok := m.active[key]
	if !ok {
		path = PathFor(req)
	}
	delete(m.active, key)

	var err error
	switch path {
	case PathRanging:
		err = m.scanner.StopRanging(req.Region)
	case PathBackground:
		err = m.scanner.RemoveBackgroundRegion(req.Region)
	default:
		err = m.scanner.StopMonitoring(req.Region)
	}
	m.logSession(log.SessionStop, path, req, err)
	if err != nil {
		m.logger.Warn("session stop failed", "key", key, "path", path, "error", err)
		return fmt.Errorf("stop %s session %s: %w", path, key, err)
	}

	m.logger.Debug("session stopped", "key", key, "path", path)
	return nil
}

func (m *Manager) logSession(action log.SessionAction, path Path, req *model.ActiveRequest, err error) {
	ev := &log.SessionEvent{
		Action: action,
		Path:   path.String(),
		Key:    req.Key().String(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	m.eventLog.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerSession,
		Category:  log.CategorySession,
		RegionID:  req.Region.Identifier,
		Session:   ev,
	})
}

func (m *Manager) logState(state string) {
	m.eventLog.Log(log.Event{
		Timestamp:   time.Now(),
		Layer:       log.LayerSession,
		Category:    log.CategoryState,
		StateChange: &log.StateChangeEvent{Entity: log.StateEntityScanner, NewState: state},
	})
}
