package service

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/beaconrelay/beaconrelay/pkg/log"
	"github.com/beaconrelay/beaconrelay/pkg/transport"
)

// ErrInvalidConfig is returned by New when a required dependency is missing.
var ErrInvalidConfig = errors.New("invalid service config")

// Config configures a RelayService.
type Config struct {
	// Coordinator executes relay operations. Required.
	Coordinator Coordinator

	// Authority, when set, enables setAuthorization.
	Authority AuthorizationSetter

	// Logger is used for operational logging. Defaults to slog.Default().
	Logger *slog.Logger

	// EventLog captures decoded requests and responses.
	EventLog log.Logger
}

// RelayService tracks one ClientSession per connection.
type RelayService struct {
	config   Config
	logger   *slog.Logger
	eventLog log.Logger

	mu       sync.Mutex
	sessions map[transport.MessageSender]*ClientSession
}

// New creates a RelayService.
func New(cfg Config) (*RelayService, error) {
	if cfg.Coordinator == nil {
		return nil, ErrInvalidConfig
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RelayService{
		config:   cfg,
		logger:   logger,
		eventLog: log.OrNoop(cfg.EventLog),
		sessions: make(map[transport.MessageSender]*ClientSession),
	}, nil
}

// Attach installs the service's connection callbacks on cfg.
func (s *RelayService) Attach(cfg *transport.ServerConfig) {
	cfg.OnConnect = func(sc *transport.ServerConn) { s.Open(sc, sc.ConnID()) }
	cfg.OnMessage = func(sc *transport.ServerConn, data []byte) { s.Handle(sc, data) }
	cfg.OnDisconnect = func(sc *transport.ServerConn) { s.Close(sc) }
}

// Open starts a session for a new connection.
func (s *RelayService) Open(sender transport.MessageSender, connID string) *ClientSession {
	cs := newClientSession(s, sender, connID)
	s.mu.Lock()
	s.sessions[sender] = cs
	s.mu.Unlock()
	return cs
}

// Handle dispatches one message received on sender's connection.
func (s *RelayService) Handle(sender transport.MessageSender, data []byte) {
	s.mu.Lock()
	cs := s.sessions[sender]
	s.mu.Unlock()
	if cs == nil {
		s.logger.Debug("message for unknown session dropped")
		return
	}
	cs.HandleMessage(data)
}

// Close ends the session of a closed connection and removes its
// subscriptions.
func (s *RelayService) Close(sender transport.MessageSender) {
	s.mu.Lock()
	cs := s.sessions[sender]
	delete(s.sessions, sender)
	s.mu.Unlock()
	if cs != nil {
		cs.Close()
	}
}

// SessionCount returns the number of open sessions.
func (s *RelayService) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// StreamCount returns the number of open streams across all sessions.
func (s *RelayService) StreamCount() int {
	s.mu.Lock()
	sessions := make([]*ClientSession, 0, len(s.sessions))
	for _, cs := range s.sessions {
		sessions = append(sessions, cs)
	}
	s.mu.Unlock()

	n := 0
	for _, cs := range sessions {
		n += cs.StreamCount()
	}
	return n
}
