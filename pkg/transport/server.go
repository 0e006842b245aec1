package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/beaconrelay/beaconrelay/pkg/log"
	"github.com/beaconrelay/beaconrelay/pkg/wire"
)

// DefaultSendQueueSize is the number of outbound messages buffered per
// connection. A client that falls further behind is disconnected.
const DefaultSendQueueSize = 256

// ErrSendQueueFull is reported when a connection's outbound queue overflows.
var ErrSendQueueFull = errors.New("send queue full")

// Transport names.
const (
	TransportTCP       = "tcp"
	TransportWebSocket = "ws"
)

// ServerConfig configures a relay server.
type ServerConfig struct {
	// Address is the TCP listen address. Empty disables the TCP listener.
	Address string

	// WebSocketAddress is the HTTP listen address for WebSocket clients.
	// Empty disables the WebSocket listener.
	WebSocketAddress string

	// WebSocketPath is the upgraded path (default: DefaultWebSocketPath).
	WebSocketPath string

	// TLS, when set, is applied to both listeners.
	TLS *tls.Config

	// MaxMessageSize is the maximum message size (default: 64KB).
	MaxMessageSize uint32

	// SendQueueSize is the per-connection outbound buffer
	// (default: DefaultSendQueueSize).
	SendQueueSize int

	// Logger is used for operational logging. Defaults to slog.Default().
	Logger *slog.Logger

	// EventLog captures connection state, control messages and frames.
	EventLog log.Logger

	// OnConnect is called when a connection is established, before its
	// first message is read.
	OnConnect func(conn *ServerConn)

	// OnDisconnect is called once the connection is closed.
	OnDisconnect func(conn *ServerConn)

	// OnMessage is called for every non-control message, in order, from
	// the connection's read goroutine.
	OnMessage func(conn *ServerConn, msg []byte)

	// OnError is called for accept, handshake and read errors.
	OnError func(conn *ServerConn, err error)
}

// Server accepts relay clients over TCP and WebSocket.
type Server struct {
	config   ServerConfig
	logger   *slog.Logger
	eventLog log.Logger

	listener   net.Listener
	wsListener net.Listener
	httpServer *http.Server
	upgrader   websocket.Upgrader

	conns   map[*ServerConn]struct{}
	connsMu sync.RWMutex

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a relay server.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Address == "" && config.WebSocketAddress == "" {
		return nil, errors.New("at least one of Address and WebSocketAddress is required")
	}
	if config.WebSocketPath == "" {
		config.WebSocketPath = DefaultWebSocketPath
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.SendQueueSize <= 0 {
		config.SendQueueSize = DefaultSendQueueSize
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		config:   config,
		logger:   logger,
		eventLog: log.OrNoop(config.EventLog),
		conns:    make(map[*ServerConn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}, nil
}

// Start opens the configured listeners and begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return errors.New("server already running")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	if s.config.Address != "" {
		ln, err := s.listen(s.config.Address)
		if err != nil {
			s.cancel()
			return err
		}
		s.listener = ln
		s.logger.Info("relay listening", "transport", TransportTCP, "address", ln.Addr().String(),
			"tls", s.config.TLS != nil)
	}

	if s.config.WebSocketAddress != "" {
		ln, err := s.listen(s.config.WebSocketAddress)
		if err != nil {
			if s.listener != nil {
				s.listener.Close()
			}
			s.cancel()
			return err
		}
		s.wsListener = ln
		mux := http.NewServeMux()
		mux.HandleFunc(s.config.WebSocketPath, s.handleWebSocket)
		s.httpServer = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		s.logger.Info("relay listening", "transport", TransportWebSocket, "address", ln.Addr().String(),
			"path", s.config.WebSocketPath, "tls", s.config.TLS != nil)
	}

	s.running.Store(true)

	if s.listener != nil {
		s.wg.Add(1)
		go s.acceptLoop()
	}
	if s.httpServer != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.httpServer.Serve(s.wsListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.reportError(nil, fmt.Errorf("websocket server: %w", err))
			}
		}()
	}
	return nil
}

func (s *Server) listen(address string) (net.Listener, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", address, err)
	}
	if s.config.TLS != nil {
		ln = tls.NewListener(ln, s.config.TLS)
	}
	return ln, nil
}

// Stop closes the listeners and every open connection, then waits for
// the connection goroutines to finish.
func (s *Server) Stop() error {
	if !s.running.Swap(false) {
		return nil
	}
	s.cancel()

	if s.listener != nil {
		s.listener.Close()
	}
	if s.httpServer != nil {
		// Hijacked WebSocket connections are closed below.
		s.httpServer.Close()
	}

	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()
	return nil
}

// Addr returns the TCP listen address, or nil when TCP is disabled.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// WebSocketAddr returns the WebSocket listen address, or nil when disabled.
func (s *Server) WebSocketAddr() net.Addr {
	if s.wsListener != nil {
		return s.wsListener.Addr()
	}
	return nil
}

// ConnectionCount returns the number of open connections.
func (s *Server) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() {
				return
			}
			s.reportError(nil, fmt.Errorf("accept: %w", err))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleStream(conn)
		}()
	}
}

func (s *Server) handleStream(conn net.Conn) {
	if tlsConn, ok := conn.(*tls.Conn); ok {
		if err := tlsConn.HandshakeContext(s.ctx); err != nil {
			conn.Close()
			s.reportError(nil, fmt.Errorf("TLS handshake: %w", err))
			return
		}
		if err := VerifyConnection(tlsConn.ConnectionState()); err != nil {
			conn.Close()
			s.reportError(nil, err)
			return
		}
	}
	s.serve(NewStreamConn(conn, s.config.MaxMessageSize), TransportTCP)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.running.Load() {
		http.Error(w, "relay stopping", http.StatusServiceUnavailable)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.reportError(nil, fmt.Errorf("websocket upgrade: %w", err))
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()
	s.serve(NewWebSocketConn(ws, s.config.MaxMessageSize), TransportWebSocket)
}

// serve runs one connection until it closes.
func (s *Server) serve(conn Conn, transport string) {
	connID := uuid.New().String()
	if l, ok := conn.(loggable); ok && s.config.EventLog != nil {
		l.setLogger(s.config.EventLog, connID)
	}

	sc := &ServerConn{
		conn:       conn,
		server:     s,
		connID:     connID,
		transport:  transport,
		remoteAddr: conn.RemoteAddr(),
		sendCh:     make(chan []byte, s.config.SendQueueSize),
		closeCh:    make(chan struct{}),
	}

	s.connsMu.Lock()
	if !s.running.Load() {
		s.connsMu.Unlock()
		conn.Close()
		return
	}
	s.conns[sc] = struct{}{}
	s.connsMu.Unlock()

	s.logState(sc, "", "CONNECTED")
	s.logger.Debug("client connected", "conn", connID, "transport", transport, "remote", sc.remoteAddr)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		sc.writePump()
	}()

	if s.config.OnConnect != nil {
		s.config.OnConnect(sc)
	}

	sc.readLoop()
	sc.Close()
	<-writerDone

	s.connsMu.Lock()
	delete(s.conns, sc)
	s.connsMu.Unlock()

	s.logState(sc, "CONNECTED", "DISCONNECTED")
	s.logger.Debug("client disconnected", "conn", connID, "transport", transport)

	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(sc)
	}
}

func (s *Server) reportError(conn *ServerConn, err error) {
	if conn != nil {
		s.logger.Debug("connection error", "conn", conn.connID, "error", err)
	} else {
		s.logger.Warn("relay server error", "error", err)
	}
	if s.config.OnError != nil {
		s.config.OnError(conn, err)
	}
}

func (s *Server) logState(sc *ServerConn, oldState, newState string) {
	s.eventLog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: sc.connID,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		RemoteAddr:   addrString(sc.remoteAddr),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
			Reason:   sc.transport,
		},
	})
}

// ServerConn is one client connection.
type ServerConn struct {
	conn       Conn
	server     *Server
	connID     string
	transport  string
	remoteAddr net.Addr

	sendCh    chan []byte
	closeCh   chan struct{}
	closeOnce sync.Once
}

// RemoteAddr returns the remote address of the client.
func (c *ServerConn) RemoteAddr() net.Addr {
	return c.remoteAddr
}

// ConnID returns the unique connection identifier.
func (c *ServerConn) ConnID() string {
	return c.connID
}

// Transport returns TransportTCP or TransportWebSocket.
func (c *ServerConn) Transport() string {
	return c.transport
}

// Send queues a message for the client. It never blocks; a client whose
// queue overflows is disconnected.
func (c *ServerConn) Send(data []byte) error {
	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.sendCh <- data:
		return nil
	default:
		c.server.logger.Warn("client too slow, disconnecting", "conn", c.connID,
			"queued", len(c.sendCh))
		c.Close()
		return ErrSendQueueFull
	}
}

// Done is closed when the connection closes.
func (c *ServerConn) Done() <-chan struct{} {
	return c.closeCh
}

// Close closes the connection.
func (c *ServerConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}

func (c *ServerConn) writePump() {
	for {
		select {
		case <-c.closeCh:
			return
		case data := <-c.sendCh:
			if err := c.conn.WriteFrame(data); err != nil {
				c.server.reportError(c, fmt.Errorf("write: %w", err))
				c.Close()
				return
			}
		}
	}
}

func (c *ServerConn) readLoop() {
	for {
		data, err := c.conn.ReadFrame()
		if err != nil {
			select {
			case <-c.closeCh:
			default:
				if c.server.running.Load() {
					c.server.reportError(c, err)
				}
			}
			return
		}

		// Control messages share the integer key space with requests, so
		// they are told apart by peeking rather than by decoding.
		if t, err := wire.PeekMessageType(data); err == nil && t == wire.MessageTypeControl {
			if msg, err := wire.DecodeControlMessage(data); err == nil {
				if !c.handleControlMessage(msg) {
					return
				}
				continue
			}
		}

		if c.server.config.OnMessage != nil {
			c.server.config.OnMessage(c, data)
		}
	}
}

// handleControlMessage answers pings and closes. It returns false when the
// connection should stop reading.
func (c *ServerConn) handleControlMessage(msg *wire.ControlMessage) bool {
	c.logControlMessage(msg.Type, log.DirectionIn)

	switch msg.Type {
	case wire.ControlPing:
		pong, _ := EncodePong(msg.Sequence)
		if c.Send(pong) == nil {
			c.logControlMessage(wire.ControlPong, log.DirectionOut)
		}
	case wire.ControlClose:
		c.logControlMessage(wire.ControlClose, log.DirectionOut)
		if ack, err := EncodeClose(); err == nil {
			_ = c.conn.WriteFrame(ack)
		}
		c.Close()
		return false
	}
	return true
}

func (c *ServerConn) logControlMessage(t wire.ControlMessageType, direction log.Direction) {
	ct, ok := controlMsgType(t)
	if !ok {
		return
	}
	c.server.eventLog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Direction:    direction,
		Layer:        log.LayerTransport,
		Category:     log.CategoryControl,
		RemoteAddr:   addrString(c.remoteAddr),
		ControlMsg:   &log.ControlMsgEvent{Type: ct},
	})
}

func controlMsgType(t wire.ControlMessageType) (log.ControlMsgType, bool) {
	switch t {
	case wire.ControlPing:
		return log.ControlMsgPing, true
	case wire.ControlPong:
		return log.ControlMsgPong, true
	case wire.ControlClose:
		return log.ControlMsgClose, true
	}
	return 0, false
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}

// EncodePing encodes a ping control message.
func EncodePing(seq uint32) ([]byte, error) {
	return wire.EncodeControlMessage(&wire.ControlMessage{Type: wire.ControlPing, Sequence: seq})
}

// EncodePong encodes a pong control message.
func EncodePong(seq uint32) ([]byte, error) {
	return wire.EncodeControlMessage(&wire.ControlMessage{Type: wire.ControlPong, Sequence: seq})
}

// EncodeClose encodes a close control message.
func EncodeClose() ([]byte, error) {
	return wire.EncodeControlMessage(&wire.ControlMessage{Type: wire.ControlClose})
}
