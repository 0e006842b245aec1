package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes events to an slog.Logger.
// Useful for development when you want to see coordinator events in the console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}

	if event.ConnectionID != "" {
		attrs = append(attrs,
			slog.String("conn_id", event.ConnectionID),
			slog.String("direction", event.Direction.String()),
		)
	}
	if event.RegionID != "" {
		attrs = append(attrs, slog.String("region", event.RegionID))
	}

	switch {
	case event.Frame != nil:
		attrs = append(attrs,
			slog.Int("frame_size", event.Frame.Size),
			slog.Bool("truncated", event.Frame.Truncated),
		)
	case event.Message != nil:
		attrs = append(attrs,
			slog.Uint64("msg_id", uint64(event.Message.MessageID)),
			slog.String("msg_type", event.Message.Type.String()),
		)
		if event.Message.Method != "" {
			attrs = append(attrs, slog.String("method", event.Message.Method))
		}
		if event.Message.Status != "" {
			attrs = append(attrs, slog.String("status", event.Message.Status))
		}
		if event.Message.StreamID != 0 {
			attrs = append(attrs, slog.Uint64("stream", uint64(event.Message.StreamID)))
		}
		if event.Message.ProcessingTime != nil {
			attrs = append(attrs, slog.Duration("processing_time", *event.Message.ProcessingTime))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.ControlMsg != nil:
		attrs = append(attrs, slog.String("ctrl_type", event.ControlMsg.Type.String()))
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
		)
		if event.Error.Kind != "" {
			attrs = append(attrs, slog.String("error_kind", event.Error.Kind))
		}
		if event.Error.Context != "" {
			attrs = append(attrs, slog.String("error_context", event.Error.Context))
		}
	case event.Request != nil:
		attrs = append(attrs,
			slog.String("action", event.Request.Action.String()),
			slog.String("kind", event.Request.Kind),
			slog.Bool("background", event.Request.InBackground),
			slog.Int("registered", event.Request.Registered),
		)
		if event.Request.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.Request.Reason))
		}
	case event.Session != nil:
		attrs = append(attrs,
			slog.String("action", event.Session.Action.String()),
			slog.String("path", event.Session.Path),
			slog.String("key", event.Session.Key),
		)
		if event.Session.Error != "" {
			attrs = append(attrs, slog.String("error", event.Session.Error))
		}
	case event.Permission != nil:
		attrs = append(attrs,
			slog.String("action", event.Permission.Action.String()),
			slog.Int("waiters", event.Permission.Waiters),
		)
		if event.Permission.Level != "" {
			attrs = append(attrs, slog.String("level", event.Permission.Level))
		}
		if event.Permission.Status != "" {
			attrs = append(attrs, slog.String("status", event.Permission.Status))
		}
	case event.Dispatch != nil:
		attrs = append(attrs,
			slog.String("kind", event.Dispatch.Kind),
			slog.Int("recipients", event.Dispatch.Recipients),
		)
		if event.Dispatch.Beacons > 0 {
			attrs = append(attrs, slog.Int("beacons", event.Dispatch.Beacons))
		}
		if event.Dispatch.State != "" {
			attrs = append(attrs, slog.String("state", event.Dispatch.State))
		}
		if event.Dispatch.Failure != "" {
			attrs = append(attrs, slog.String("failure", event.Dispatch.Failure))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "event", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
