package service

import (
	"log/slog"
	"sync"
	"time"

	"github.com/beaconrelay/beaconrelay/pkg/log"
	"github.com/beaconrelay/beaconrelay/pkg/model"
	"github.com/beaconrelay/beaconrelay/pkg/transport"
	"github.com/beaconrelay/beaconrelay/pkg/wire"
)

// stream is one open stream of a session. Exactly one of req and
// removeCallback is set.
type stream struct {
	id     uint32
	method wire.Method

	// req is the subscription behind a startRanging/startMonitoring stream.
	req *model.ActiveRequest

	// removeCallback unregisters an addBackgroundCallback stream.
	removeCallback func()
}

// ClientSession serves one connection.
//
// Stream callbacks check registration under mu before sending, and a
// stream is registered under mu together with its opening response, so a
// client never sees an event before the response that announced the stream.
type ClientSession struct {
	service *RelayService
	sender  transport.MessageSender
	connID  string
	logger  *slog.Logger

	mu         sync.Mutex
	streams    map[uint32]*stream
	nextStream uint32
	closed     bool
}

func newClientSession(s *RelayService, sender transport.MessageSender, connID string) *ClientSession {
	return &ClientSession{
		service: s,
		sender:  sender,
		connID:  connID,
		logger:  s.logger.With("conn", connID),
		streams: make(map[uint32]*stream),
	}
}

// ConnID returns the connection identifier.
func (cs *ClientSession) ConnID() string {
	return cs.connID
}

// StreamCount returns the number of open streams.
func (cs *ClientSession) StreamCount() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.streams)
}

// HandleMessage decodes and serves one message. Messages that are not
// requests are dropped.
func (cs *ClientSession) HandleMessage(data []byte) {
	var req wire.Request
	if err := wire.Unmarshal(data, &req); err != nil || req.MessageID == wire.StreamMessageID {
		cs.logger.Debug("dropping message that is not a request", "error", err)
		return
	}
	cs.logMessage(log.DirectionIn, &log.MessageEvent{
		Type:      log.MessageTypeRequest,
		MessageID: req.MessageID,
		Method:    string(req.Method),
	})
	cs.HandleRequest(&req, time.Now())
}

// Close removes every stream of the session. Later requests are refused.
func (cs *ClientSession) Close() {
	cs.mu.Lock()
	if cs.closed {
		cs.mu.Unlock()
		return
	}
	cs.closed = true
	streams := make([]*stream, 0, len(cs.streams))
	for _, st := range cs.streams {
		streams = append(streams, st)
	}
	clear(cs.streams)
	cs.mu.Unlock()

	for _, st := range streams {
		cs.release(st)
	}
	if len(streams) > 0 {
		cs.logger.Debug("session closed", "streams", len(streams))
	}
}

// openStream assigns st its ID, registers it and sends the response
// announcing it. register, when set, runs under the session lock after the
// ID is assigned and before the stream is visible to emit.
func (cs *ClientSession) openStream(req *wire.Request, received time.Time, st *stream, register func() error) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.closed {
		cs.fail(req, received, wire.StatusUnavailable, "session closed")
		return false
	}
	cs.nextStream++
	st.id = cs.nextStream
	if register != nil {
		if err := register(); err != nil {
			cs.fail(req, received, statusFor(err), err.Error())
			return false
		}
	}
	cs.streams[st.id] = st
	cs.reply(req, received, wire.StreamPayload{StreamID: st.id})
	return true
}

// closeStream removes a stream and releases its coordinator resources.
func (cs *ClientSession) closeStream(id uint32) bool {
	cs.mu.Lock()
	st, ok := cs.streams[id]
	delete(cs.streams, id)
	cs.mu.Unlock()
	if !ok {
		return false
	}
	cs.release(st)
	return true
}

func (cs *ClientSession) release(st *stream) {
	if st.req != nil {
		if err := cs.service.config.Coordinator.Remove(st.req); err != nil {
			cs.logger.Debug("remove subscription failed", "stream", st.id, "error", err)
		}
	}
	if st.removeCallback != nil {
		st.removeCallback()
	}
}

// emit sends payload on stream id if it is still open.
func (cs *ClientSession) emit(id uint32, payload any) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if _, ok := cs.streams[id]; !ok {
		return
	}

	ev, err := wire.NewStreamEvent(id, payload)
	if err != nil {
		cs.logger.Warn("encode stream event failed", "stream", id, "error", err)
		return
	}
	data, err := wire.EncodeStreamEvent(ev)
	if err != nil {
		cs.logger.Warn("encode stream event failed", "stream", id, "error", err)
		return
	}
	if err := cs.sender.Send(data); err != nil {
		return
	}
	cs.logMessage(log.DirectionOut, &log.MessageEvent{Type: log.MessageTypeStream, StreamID: id})
}

// reply sends a successful response.
func (cs *ClientSession) reply(req *wire.Request, received time.Time, payload any) {
	resp, err := wire.NewResponse(req.MessageID, wire.StatusSuccess, payload)
	if err != nil {
		cs.fail(req, received, wire.StatusInternal, err.Error())
		return
	}
	cs.send(req, received, resp)
}

// fail sends an error response.
func (cs *ClientSession) fail(req *wire.Request, received time.Time, status wire.Status, message string) {
	cs.send(req, received, wire.NewErrorResponse(req.MessageID, status, message))
}

func (cs *ClientSession) send(req *wire.Request, received time.Time, resp *wire.Response) {
	data, err := wire.EncodeResponse(resp)
	if err != nil {
		cs.logger.Warn("encode response failed", "method", req.Method, "error", err)
		return
	}
	if err := cs.sender.Send(data); err != nil {
		cs.logger.Debug("send response failed", "method", req.Method, "error", err)
		return
	}
	elapsed := time.Since(received)
	cs.logMessage(log.DirectionOut, &log.MessageEvent{
		Type:           log.MessageTypeResponse,
		MessageID:      resp.MessageID,
		Method:         string(req.Method),
		Status:         resp.Status.String(),
		ProcessingTime: &elapsed,
	})
}

func (cs *ClientSession) logMessage(direction log.Direction, msg *log.MessageEvent) {
	cs.service.eventLog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: cs.connID,
		Direction:    direction,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		Message:      msg,
	})
}
