// Package commands implements the beacon-log CLI commands.
package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/beaconrelay/beaconrelay/pkg/log"
)

// ViewFilter specifies criteria for filtering events in the view command.
type ViewFilter struct {
	Layer     *log.Layer
	Direction *log.Direction
	Category  *log.Category
	RegionID  string
	Kind      string
}

func (f ViewFilter) logFilter() log.Filter {
	return log.Filter{
		Layer:     f.Layer,
		Direction: f.Direction,
		Category:  f.Category,
		RegionID:  f.RegionID,
		Kind:      f.Kind,
	}
}

const timestampFormat = "2006-01-02T15:04:05.000000Z"

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [conn:id] DIRECTION LAYER Type
	ts := event.Timestamp.UTC().Format(timestampFormat)

	var typeLabel string
	switch {
	case event.Frame != nil:
		typeLabel = "Frame"
	case event.Message != nil:
		typeLabel = event.Message.Type.String()
	case event.StateChange != nil:
		typeLabel = "State"
	case event.ControlMsg != nil:
		typeLabel = event.ControlMsg.Type.String()
	case event.Error != nil:
		typeLabel = "Error"
	case event.Request != nil:
		typeLabel = "Request " + event.Request.Action.String()
	case event.Session != nil:
		typeLabel = "Session " + event.Session.Action.String()
	case event.Permission != nil:
		typeLabel = "Permission " + event.Permission.Action.String()
	case event.Dispatch != nil:
		typeLabel = "Dispatch"
	default:
		typeLabel = "Unknown"
	}

	layerStr := event.Layer.String()
	if event.Category == log.CategoryControl {
		layerStr = "CTRL"
	}

	// Direction is only meaningful for traffic on a connection.
	if event.ConnectionID != "" {
		fmt.Fprintf(w, "%s [conn:%s] %-3s %s %s", ts, shortenConnID(event.ConnectionID),
			event.Direction.String(), layerStr, typeLabel)
	} else {
		fmt.Fprintf(w, "%s %s %s", ts, layerStr, typeLabel)
	}
	if event.RegionID != "" {
		fmt.Fprintf(w, " region=%s", event.RegionID)
	}
	fmt.Fprintln(w)

	switch {
	case event.Frame != nil:
		formatFrameDetails(w, event.Frame)
	case event.Message != nil:
		formatMessageDetails(w, event.Message)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	case event.Request != nil:
		formatRequestDetails(w, event.Request)
	case event.Session != nil:
		formatSessionDetails(w, event.Session)
	case event.Permission != nil:
		formatPermissionDetails(w, event.Permission)
	case event.Dispatch != nil:
		formatDispatchDetails(w, event.Dispatch)
	}

	fmt.Fprintln(w) // Blank line between events
}

// shortenConnID returns the first 8 characters of the connection ID.
func shortenConnID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatFrameDetails(w io.Writer, frame *log.FrameEvent) {
	fmt.Fprintf(w, "  Size: %d bytes\n", frame.Size)
	if len(frame.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(frame.Data))
		if frame.Truncated {
			fmt.Fprintf(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

func formatMessageDetails(w io.Writer, msg *log.MessageEvent) {
	fmt.Fprintf(w, "  MessageID: %d\n", msg.MessageID)

	switch msg.Type {
	case log.MessageTypeRequest:
		if msg.Method != "" {
			fmt.Fprintf(w, "  Method: %s\n", msg.Method)
		}
	case log.MessageTypeResponse:
		if msg.Status != "" {
			fmt.Fprintf(w, "  Status: %s\n", msg.Status)
		}
		if msg.ProcessingTime != nil {
			fmt.Fprintf(w, "  Duration: %s\n", formatDuration(*msg.ProcessingTime))
		}
	}
	if msg.StreamID != 0 {
		fmt.Fprintf(w, "  StreamID: %d\n", msg.StreamID)
	}
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity.String())
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer.String())
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Kind != "" {
		fmt.Fprintf(w, "  Kind: %s\n", err.Kind)
	}
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

func formatRequestDetails(w io.Writer, req *log.RequestEvent) {
	fmt.Fprintf(w, "  Kind: %s", req.Kind)
	if req.InBackground {
		fmt.Fprint(w, " (background)")
	}
	fmt.Fprintln(w)
	if req.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", req.Reason)
	}
	if req.Registered > 0 {
		fmt.Fprintf(w, "  Registered: %d\n", req.Registered)
	}
}

func formatSessionDetails(w io.Writer, s *log.SessionEvent) {
	fmt.Fprintf(w, "  Path: %s\n", s.Path)
	fmt.Fprintf(w, "  Key: %s\n", s.Key)
	if s.Error != "" {
		fmt.Fprintf(w, "  Error: %s\n", s.Error)
	}
}

func formatPermissionDetails(w io.Writer, p *log.PermissionEvent) {
	if p.Level != "" {
		fmt.Fprintf(w, "  Level: %s\n", p.Level)
	}
	if p.Status != "" {
		fmt.Fprintf(w, "  Status: %s\n", p.Status)
	}
	if p.Waiters > 0 {
		fmt.Fprintf(w, "  Waiters: %d\n", p.Waiters)
	}
}

func formatDispatchDetails(w io.Writer, d *log.DispatchEvent) {
	fmt.Fprintf(w, "  Kind: %s\n", d.Kind)
	fmt.Fprintf(w, "  Recipients: %d\n", d.Recipients)
	if d.Beacons > 0 {
		fmt.Fprintf(w, "  Beacons: %d\n", d.Beacons)
	}
	if d.State != "" {
		fmt.Fprintf(w, "  State: %s\n", d.State)
	}
	if d.Failure != "" {
		fmt.Fprintf(w, "  Failure: %s\n", d.Failure)
	}
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

var layerNames = map[string]log.Layer{
	"transport":   log.LayerTransport,
	"wire":        log.LayerWire,
	"coordinator": log.LayerCoordinator,
	"session":     log.LayerSession,
	"gate":        log.LayerGate,
}

// ParseLayerFlag parses a layer string from command-line flag (case-insensitive).
func ParseLayerFlag(s string) (log.Layer, error) {
	return parseLayer(s)
}

func parseLayer(s string) (log.Layer, error) {
	if l, ok := layerNames[strings.ToLower(s)]; ok {
		return l, nil
	}
	return 0, fmt.Errorf("invalid layer: %s (must be transport, wire, coordinator, session, or gate)", s)
}

// ParseDirectionFlag parses a direction string from command-line flag (case-insensitive).
func ParseDirectionFlag(s string) (log.Direction, error) {
	return parseDirection(s)
}

func parseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

var categoryNames = map[string]log.Category{
	"message":    log.CategoryMessage,
	"control":    log.CategoryControl,
	"state":      log.CategoryState,
	"error":      log.CategoryError,
	"request":    log.CategoryRequest,
	"session":    log.CategorySession,
	"permission": log.CategoryPermission,
	"dispatch":   log.CategoryDispatch,
}

// ParseCategoryFlag parses a category string from command-line flag (case-insensitive).
func ParseCategoryFlag(s string) (log.Category, error) {
	return parseCategory(s)
}

func parseCategory(s string) (log.Category, error) {
	if c, ok := categoryNames[strings.ToLower(s)]; ok {
		return c, nil
	}
	return 0, fmt.Errorf("invalid category: %s (must be message, control, state, error, request, session, permission, or dispatch)", s)
}

// RunView executes the view command.
func RunView(path string, filter ViewFilter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter.logFilter())
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for event, err := range reader.Events() {
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(output, event)
	}
	if reader.Truncated() {
		fmt.Fprintln(output, "(log ends in a partial record)")
	}
	return nil
}
