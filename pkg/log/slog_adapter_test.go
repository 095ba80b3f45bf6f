package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/pvaccess-protocol/pva-go/pkg/wire"
)

// logJSON runs one event through the adapter and parses the JSON line
// it emits.
func logJSON(t *testing.T, event Event) map[string]any {
	t.Helper()

	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	NewSlogAdapter(slog.New(handler)).Log(event)

	if buf.Len() == 0 {
		t.Fatal("adapter produced no output")
	}
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("parse adapter output: %v", err)
	}
	return entry
}

func TestSlogAdapterAttrs(t *testing.T) {
	op := wire.OpGet

	cases := []struct {
		name  string
		event Event
		want  map[string]any
	}{
		{
			name: "frame",
			event: Event{
				Timestamp:    time.Now(),
				ConnectionID: "conn-123",
				Direction:    DirectionIn,
				Layer:        LayerTransport,
				Category:     CategoryMessage,
				Frame:        &FrameEvent{Size: 256, Data: []byte{0x01, 0x02}},
			},
			want: map[string]any{
				"conn_id":    "conn-123",
				"direction":  "IN",
				"layer":      "TRANSPORT",
				"frame_size": float64(256),
			},
		},
		{
			name: "message",
			event: Event{
				Timestamp:    time.Now(),
				ConnectionID: "conn-456",
				Direction:    DirectionOut,
				Layer:        LayerWire,
				Category:     CategoryMessage,
				Message: &MessageEvent{
					Type:      MessageTypeRequest,
					MessageID: 42,
					Operation: &op,
					PV:        "demo:counter",
				},
			},
			want: map[string]any{
				"msg_id":    float64(42),
				"msg_type":  "REQUEST",
				"operation": "Get",
				"pv":        "demo:counter",
			},
		},
		{
			name: "state change",
			event: Event{
				Timestamp:    time.Now(),
				ConnectionID: "abc12345-def6-7890",
				Direction:    DirectionIn,
				Layer:        LayerService,
				Category:     CategoryState,
				StateChange: &StateChangeEvent{
					Entity:   StateEntityConnection,
					OldState: "CONNECTING",
					NewState: "CONNECTED",
					Reason:   "dial succeeded",
				},
			},
			want: map[string]any{
				"conn_id":   "abc12345-def6-7890",
				"entity":    "CONNECTION",
				"old_state": "CONNECTING",
				"new_state": "CONNECTED",
				"reason":    "dial succeeded",
			},
		},
		{
			name: "error",
			event: Event{
				Timestamp:    time.Now(),
				ConnectionID: "conn-789",
				Direction:    DirectionIn,
				Layer:        LayerWire,
				Category:     CategoryError,
				Error: &ErrorEventData{
					Layer:   LayerWire,
					Message: "decode failed",
					Context: "monitor update",
				},
			},
			want: map[string]any{
				"error_layer":   "WIRE",
				"error_msg":     "decode failed",
				"error_context": "monitor update",
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			entry := logJSON(t, tc.event)
			for key, want := range tc.want {
				if got := entry[key]; got != want {
					t.Errorf("%s = %v, want %v", key, got, want)
				}
			}
		})
	}
}
