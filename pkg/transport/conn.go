package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/beaconrelay/beaconrelay/pkg/log"
)

// ErrConnectionClosed is returned when sending on a closed connection.
var ErrConnectionClosed = errors.New("connection closed")

// closeWriteTimeout bounds the WebSocket close handshake write.
const closeWriteTimeout = time.Second

// ErrUnexpectedMessage is returned when a WebSocket peer sends a text
// message.
var ErrUnexpectedMessage = errors.New("unexpected websocket message type")

// Conn carries whole CBOR messages in both directions. WriteFrame is safe
// for concurrent use; ReadFrame must be called from a single goroutine.
type Conn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
	RemoteAddr() net.Addr
	Close() error
}

// streamConn frames messages over a byte stream with a length prefix.
type streamConn struct {
	conn   net.Conn
	framer *Framer
}

// NewStreamConn wraps a stream connection with length-prefixed framing.
func NewStreamConn(conn net.Conn, maxSize uint32) Conn {
	return &streamConn{conn: conn, framer: NewFramer(conn, maxSize)}
}

func (c *streamConn) ReadFrame() ([]byte, error)   { return c.framer.ReadFrame() }
func (c *streamConn) WriteFrame(data []byte) error { return c.framer.WriteFrame(data) }
func (c *streamConn) RemoteAddr() net.Addr         { return c.conn.RemoteAddr() }
func (c *streamConn) Close() error                 { return c.conn.Close() }

func (c *streamConn) setLogger(logger log.Logger, connID string) {
	c.framer.SetLogger(logger, connID)
}

// wsConn carries one message per binary WebSocket message.
type wsConn struct {
	ws      *websocket.Conn
	maxSize uint32
	writeMu sync.Mutex
	frameLog
}

// NewWebSocketConn wraps a WebSocket connection.
func NewWebSocketConn(ws *websocket.Conn, maxSize uint32) Conn {
	if maxSize == 0 {
		maxSize = DefaultMaxMessageSize
	}
	ws.SetReadLimit(int64(maxSize))
	return &wsConn{ws: ws, maxSize: maxSize}
}

func (c *wsConn) ReadFrame() ([]byte, error) {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, ErrConnectionClosed
			}
			if errors.Is(err, websocket.ErrReadLimit) {
				return nil, fmt.Errorf("%w: limit %d", ErrMessageTooLarge, c.maxSize)
			}
			return nil, err
		}
		if mt != websocket.BinaryMessage {
			return nil, fmt.Errorf("%w: %d", ErrUnexpectedMessage, mt)
		}
		if len(data) == 0 {
			continue
		}
		c.log(data, len(data), log.DirectionIn)
		return data, nil
	}
}

func (c *wsConn) WriteFrame(data []byte) error {
	if len(data) == 0 {
		return ErrMessageEmpty
	}
	if uint32(len(data)) > c.maxSize {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(data), c.maxSize)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	c.log(data, len(data), log.DirectionOut)
	return nil
}

func (c *wsConn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

func (c *wsConn) Close() error {
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeWriteTimeout))
	return c.ws.Close()
}

func (c *wsConn) setLogger(logger log.Logger, connID string) {
	c.frameLog = frameLog{logger: logger, connID: connID}
}

// loggable is implemented by the connections in this package.
type loggable interface {
	setLogger(logger log.Logger, connID string)
}
