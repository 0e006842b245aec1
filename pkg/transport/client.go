package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/beaconrelay/beaconrelay/pkg/log"
	"github.com/beaconrelay/beaconrelay/pkg/model"
	"github.com/beaconrelay/beaconrelay/pkg/wire"
)

// Client defaults.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultStreamBuffer   = 64
	cancelTimeout         = 5 * time.Second
)

// ErrInvalidStream is returned when a stream method answers without a
// usable stream ID.
var ErrInvalidStream = errors.New("invalid stream response")

// ClientConfig configures a relay client.
type ClientConfig struct {
	// TLS, when set, is used for tcp and wss addresses.
	TLS *tls.Config

	// MaxMessageSize is the maximum message size (default: 64KB).
	MaxMessageSize uint32

	// ConnectTimeout bounds dialing when ctx has no deadline.
	ConnectTimeout time.Duration

	// KeepAlive configures pings. The zero value selects the defaults.
	KeepAlive KeepAliveConfig

	// StreamBuffer is the channel capacity of each stream
	// (default: DefaultStreamBuffer). A full stream channel stalls every
	// other stream on the connection until it drains.
	StreamBuffer int

	// Logger is used for operational logging. Defaults to slog.Default().
	Logger *slog.Logger

	// EventLog captures frames.
	EventLog log.Logger
}

// Client is a connection to a relay. Its methods are safe for concurrent
// use.
type Client struct {
	conn      Conn
	config    ClientConfig
	logger    *slog.Logger
	keepAlive *KeepAlive

	nextID atomic.Uint32

	mu      sync.Mutex
	pending map[uint32]*pendingCall
	streams map[uint32]streamSink
	closed  bool
	err     error

	closeCh   chan struct{}
	closeOnce sync.Once
}

type pendingCall struct {
	ch chan *wire.Response

	// onSuccess runs on the read goroutine before the next message is
	// read, so a stream is registered before its first event arrives.
	onSuccess func(*wire.Response)
}

// Dial connects to a relay. Addresses of the form ws://host/path and
// wss://host/path use WebSocket; host:port and tcp://host:port use TCP.
func Dial(ctx context.Context, address string, config ClientConfig) (*Client, error) {
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.StreamBuffer <= 0 {
		config.StreamBuffer = DefaultStreamBuffer
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.ConnectTimeout)
		defer cancel()
	}

	conn, err := dial(ctx, address, config)
	if err != nil {
		return nil, err
	}
	return NewClient(conn, config), nil
}

func dial(ctx context.Context, address string, config ClientConfig) (Conn, error) {
	if strings.HasPrefix(address, "ws://") || strings.HasPrefix(address, "wss://") {
		dialer := websocket.Dialer{
			TLSClientConfig:  config.TLS,
			HandshakeTimeout: config.ConnectTimeout,
		}
		ws, _, err := dialer.DialContext(ctx, address, nil)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", address, err)
		}
		return NewWebSocketConn(ws, config.MaxMessageSize), nil
	}

	address = strings.TrimPrefix(address, "tcp://")
	if config.TLS != nil {
		dialer := &tls.Dialer{Config: config.TLS}
		nc, err := dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", address, err)
		}
		if err := VerifyConnection(nc.(*tls.Conn).ConnectionState()); err != nil {
			nc.Close()
			return nil, err
		}
		return NewStreamConn(nc, config.MaxMessageSize), nil
	}

	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return NewStreamConn(nc, config.MaxMessageSize), nil
}

// NewClient runs the client protocol over an established connection.
func NewClient(conn Conn, config ClientConfig) *Client {
	if config.StreamBuffer <= 0 {
		config.StreamBuffer = DefaultStreamBuffer
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if l, ok := conn.(loggable); ok && config.EventLog != nil {
		l.setLogger(config.EventLog, "client")
	}

	c := &Client{
		conn:    conn,
		config:  config,
		logger:  logger,
		pending: make(map[uint32]*pendingCall),
		streams: make(map[uint32]streamSink),
		closeCh: make(chan struct{}),
	}

	if config.KeepAlive.Enabled() {
		c.keepAlive = NewKeepAlive(config.KeepAlive,
			func(seq uint32) error {
				ping, err := EncodePing(seq)
				if err != nil {
					return err
				}
				return c.conn.WriteFrame(ping)
			},
			func() { c.shutdown(errors.New("keep-alive timeout")) },
		)
		c.keepAlive.Start(context.Background())
	}

	go c.readLoop()
	return c
}

// Done is closed when the connection is closed.
func (c *Client) Done() <-chan struct{} {
	return c.closeCh
}

// Err returns the reason the connection closed, or nil while it is open.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// KeepAliveStats returns the keep-alive state.
func (c *Client) KeepAliveStats() KeepAliveStats {
	if c.keepAlive == nil {
		return KeepAliveStats{}
	}
	return c.keepAlive.Stats()
}

// Close sends a close message and closes the connection.
func (c *Client) Close() error {
	if msg, err := EncodeClose(); err == nil {
		_ = c.conn.WriteFrame(msg)
	}
	c.shutdown(ErrConnectionClosed)
	return nil
}

// CheckStatus evaluates the preconditions of req without prompting.
func (c *Client) CheckStatus(ctx context.Context, req model.StatusRequest) (model.Result[bool], error) {
	return callResult[model.Result[bool]](ctx, c, wire.MethodCheckStatus, req)
}

// RequestPermission asks the relay for level. It returns once the
// authority decided.
func (c *Client) RequestPermission(ctx context.Context, level model.Permission) (model.Result[bool], error) {
	return callResult[model.Result[bool]](ctx, c, wire.MethodRequestPermission, wire.PermissionPayload{Permission: level})
}

// Subscribe opens a ranging or monitoring subscription. Results arrive on
// the returned channel until ctx is cancelled, a fatal failure is
// delivered or the connection closes; the channel is then closed.
func (c *Client) Subscribe(ctx context.Context, kind model.Kind, sub wire.SubscribePayload) (<-chan model.Result[model.Update], error) {
	var method wire.Method
	switch kind {
	case model.KindRanging:
		method = wire.MethodStartRanging
	case model.KindMonitoring:
		method = wire.MethodStartMonitoring
	default:
		return nil, fmt.Errorf("subscribe: unknown kind %d", kind)
	}
	return openStream(ctx, c, method, sub, func(r model.Result[model.Update]) bool {
		return r.Err != nil && r.Err.Fatal
	})
}

// BackgroundEvents opens a stream of background monitoring transitions.
func (c *Client) BackgroundEvents(ctx context.Context) (<-chan wire.BackgroundPayload, error) {
	return openStream[wire.BackgroundPayload](ctx, c, wire.MethodAddBackgroundCallback, nil, nil)
}

// Pause moves the relay to the background lifecycle state.
func (c *Client) Pause(ctx context.Context) error {
	_, err := c.call(ctx, wire.MethodPause, nil, nil)
	return err
}

// Resume moves the relay to the foreground lifecycle state.
func (c *Client) Resume(ctx context.Context) error {
	_, err := c.call(ctx, wire.MethodResume, nil, nil)
	return err
}

// Configure applies runtime settings on the relay.
func (c *Client) Configure(ctx context.Context, settings model.Settings) error {
	_, err := c.call(ctx, wire.MethodConfigure, settings, nil)
	return err
}

// SetAuthorization sets the relay's authorization decision.
func (c *Client) SetAuthorization(ctx context.Context, status model.AuthorizationStatus) error {
	_, err := c.call(ctx, wire.MethodSetAuthorization, wire.AuthorizationPayload{Status: status}, nil)
	return err
}

// Stats returns the relay's coordinator statistics.
func (c *Client) Stats(ctx context.Context) (wire.StatsPayload, error) {
	return callResult[wire.StatsPayload](ctx, c, wire.MethodStats, nil)
}

func callResult[T any](ctx context.Context, c *Client, method wire.Method, payload any) (T, error) {
	var out T
	resp, err := c.call(ctx, method, payload, nil)
	if err != nil {
		return out, err
	}
	if err := resp.DecodePayload(&out); err != nil {
		return out, fmt.Errorf("%s: %w", method, err)
	}
	return out, nil
}

func (c *Client) nextMessageID() uint32 {
	for {
		if id := c.nextID.Add(1); id != wire.StreamMessageID {
			return id
		}
	}
}

// call sends a request and waits for its response. Failed statuses are
// returned as *wire.StatusError.
func (c *Client) call(ctx context.Context, method wire.Method, payload any, onSuccess func(*wire.Response)) (*wire.Response, error) {
	id := c.nextMessageID()
	req, err := wire.NewRequest(id, method, payload)
	if err != nil {
		return nil, err
	}
	data, err := wire.EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	pc := &pendingCall{ch: make(chan *wire.Response, 1), onSuccess: onSuccess}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	c.pending[id] = pc
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.conn.WriteFrame(data); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	select {
	case resp := <-pc.ch:
		if err := resp.Err(); err != nil {
			return nil, err
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closeCh:
		return nil, ErrConnectionClosed
	}
}

func (c *Client) readLoop() {
	for {
		data, err := c.conn.ReadFrame()
		if err != nil {
			c.shutdown(err)
			return
		}

		t, err := wire.PeekMessageType(data)
		if err != nil {
			c.logger.Debug("dropping undecodable message", "error", err)
			continue
		}
		switch t {
		case wire.MessageTypeResponse:
			c.handleResponse(data)
		case wire.MessageTypeStream:
			c.handleStreamEvent(data)
		case wire.MessageTypeControl:
			if !c.handleControl(data) {
				return
			}
		default:
			c.logger.Debug("dropping unexpected message", "type", t)
		}
	}
}

func (c *Client) handleResponse(data []byte) {
	resp, err := wire.DecodeResponse(data)
	if err != nil {
		c.logger.Debug("dropping bad response", "error", err)
		return
	}
	c.mu.Lock()
	pc := c.pending[resp.MessageID]
	delete(c.pending, resp.MessageID)
	c.mu.Unlock()
	if pc == nil {
		return
	}
	if resp.IsSuccess() && pc.onSuccess != nil {
		pc.onSuccess(resp)
	}
	pc.ch <- resp
}

func (c *Client) handleStreamEvent(data []byte) {
	ev, err := wire.DecodeStreamEvent(data)
	if err != nil {
		c.logger.Debug("dropping bad stream event", "error", err)
		return
	}
	c.mu.Lock()
	s := c.streams[ev.StreamID]
	c.mu.Unlock()
	if s == nil {
		return
	}
	if !s.deliver(ev) {
		c.dropStream(ev.StreamID)
	}
}

func (c *Client) handleControl(data []byte) bool {
	msg, err := wire.DecodeControlMessage(data)
	if err != nil {
		return true
	}
	switch msg.Type {
	case wire.ControlPong:
		if c.keepAlive != nil {
			c.keepAlive.PongReceived(msg.Sequence)
		}
	case wire.ControlPing:
		if pong, err := EncodePong(msg.Sequence); err == nil {
			_ = c.conn.WriteFrame(pong)
		}
	case wire.ControlClose:
		c.shutdown(ErrConnectionClosed)
		return false
	}
	return true
}

func (c *Client) addStream(id uint32, s streamSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		s.end()
		return
	}
	c.streams[id] = s
}

// dropStream ends the stream locally without notifying the relay.
func (c *Client) dropStream(id uint32) {
	c.mu.Lock()
	s := c.streams[id]
	delete(c.streams, id)
	c.mu.Unlock()
	if s != nil {
		s.end()
	}
}

func (c *Client) shutdown(reason error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.err = reason
		streams := c.streams
		c.streams = make(map[uint32]streamSink)
		c.mu.Unlock()

		close(c.closeCh)
		if c.keepAlive != nil {
			c.keepAlive.Stop()
		}
		c.conn.Close()
		for _, s := range streams {
			s.end()
		}
		if !errors.Is(reason, ErrConnectionClosed) {
			c.logger.Debug("relay connection closed", "reason", reason)
		}
	})
}

// streamSink receives the events of one open stream.
type streamSink interface {
	// deliver hands ev to the consumer. It returns false when the stream
	// ended with this event.
	deliver(ev *wire.StreamEvent) bool
	end()
}

type stream[T any] struct {
	ch   chan T
	done chan struct{}
	last func(T) bool

	once   sync.Once
	mu     sync.Mutex
	closed bool
}

func (s *stream[T]) deliver(ev *wire.StreamEvent) bool {
	var v T
	if err := ev.DecodePayload(&v); err != nil {
		return true
	}

	s.mu.Lock()
	if !s.closed {
		select {
		case s.ch <- v:
		case <-s.done:
		}
	}
	s.mu.Unlock()

	return s.last == nil || !s.last(v)
}

// end closes the channel. done is closed first so a deliver blocked on a
// full channel releases the lock.
func (s *stream[T]) end() {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}

func openStream[T any](ctx context.Context, c *Client, method wire.Method, payload any, last func(T) bool) (<-chan T, error) {
	s := &stream[T]{
		ch:   make(chan T, c.config.StreamBuffer),
		done: make(chan struct{}),
		last: last,
	}

	var id uint32
	_, err := c.call(ctx, method, payload, func(resp *wire.Response) {
		var sp wire.StreamPayload
		if resp.DecodePayload(&sp) == nil && sp.StreamID != 0 {
			id = sp.StreamID
			c.addStream(id, s)
		}
	})
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, fmt.Errorf("%s: %w", method, ErrInvalidStream)
	}

	go func() {
		select {
		case <-ctx.Done():
			c.dropStream(id)
			cctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
			defer cancel()
			if _, err := c.call(cctx, wire.MethodCancel, wire.StreamPayload{StreamID: id}, nil); err != nil &&
				!errors.Is(err, ErrConnectionClosed) {
				c.logger.Debug("stream cancel failed", "stream", id, "error", err)
			}
		case <-s.done:
		}
	}()
	return s.ch, nil
}
