package log

import (
	"context"
	"log/slog"
)

// SlogAdapter mirrors protocol events onto an slog.Logger at Debug
// level. Meant for development; capture files are the durable record.
type SlogAdapter struct {
	logger *slog.Logger
}

func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("conn_id", event.ConnectionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}
	if event.PV != "" {
		attrs = append(attrs, slog.String("pv", event.PV))
	}
	if event.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote", event.RemoteAddr))
	}

	switch {
	case event.Frame != nil:
		attrs = appendFrameAttrs(attrs, event.Frame)
	case event.Message != nil:
		attrs = appendMessageAttrs(attrs, event.Message)
	case event.StateChange != nil:
		attrs = appendStateAttrs(attrs, event.StateChange)
	case event.ControlMsg != nil:
		attrs = append(attrs, slog.String("ctrl_type", event.ControlMsg.Type.String()))
	case event.Error != nil:
		attrs = appendErrorAttrs(attrs, event.Error)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "protocol", attrs...)
}

func appendFrameAttrs(attrs []slog.Attr, f *FrameEvent) []slog.Attr {
	return append(attrs,
		slog.Int("frame_size", f.Size),
		slog.Bool("truncated", f.Truncated),
	)
}

func appendMessageAttrs(attrs []slog.Attr, m *MessageEvent) []slog.Attr {
	attrs = append(attrs,
		slog.Uint64("msg_id", uint64(m.MessageID)),
		slog.String("msg_type", m.Type.String()),
	)
	if m.Operation != nil {
		attrs = append(attrs, slog.String("operation", m.Operation.String()))
	}
	if m.PV != "" {
		attrs = append(attrs, slog.String("pv", m.PV))
	}
	if m.Status != nil {
		attrs = append(attrs, slog.String("status", m.Status.String()))
	}
	if m.SubscriptionID != nil {
		attrs = append(attrs, slog.Uint64("sub_id", uint64(*m.SubscriptionID)))
	}
	if m.EventKind != nil {
		attrs = append(attrs, slog.String("event", m.EventKind.String()))
	}
	if m.ProcessingTime != nil {
		attrs = append(attrs, slog.Duration("processing_time", *m.ProcessingTime))
	}
	return attrs
}

func appendStateAttrs(attrs []slog.Attr, sc *StateChangeEvent) []slog.Attr {
	attrs = append(attrs,
		slog.String("entity", sc.Entity.String()),
		slog.String("old_state", sc.OldState),
		slog.String("new_state", sc.NewState),
	)
	if sc.Reason != "" {
		attrs = append(attrs, slog.String("reason", sc.Reason))
	}
	return attrs
}

func appendErrorAttrs(attrs []slog.Attr, e *ErrorEventData) []slog.Attr {
	attrs = append(attrs,
		slog.String("error_layer", e.Layer.String()),
		slog.String("error_msg", e.Message),
		slog.String("error_context", e.Context),
	)
	if e.Code != nil {
		attrs = append(attrs, slog.Int("error_code", *e.Code))
	}
	return attrs
}

var _ Logger = (*SlogAdapter)(nil)
