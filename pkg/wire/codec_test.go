package wire

import (
	"testing"
)

func TestRequestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{
			name: "get request",
			req: Request{
				MessageID: 1,
				Operation: OpGet,
				PV:        "demo:temperature",
			},
		},
		{
			name: "put request",
			req: Request{
				MessageID: 2,
				Operation: OpPut,
				PV:        "demo:setpoint",
				Payload: PutPayload{
					Value: &Value{Kind: 1, Double: 21.5},
				},
			},
		},
		{
			name: "put sub-field",
			req: Request{
				MessageID: 3,
				Operation: OpPut,
				PV:        "demo:setpoint",
				Payload: PutPayload{
					Field: "display.units",
					Value: &Value{Kind: 3, Str: "degC"},
				},
			},
		},
		{
			name: "rpc request",
			req: Request{
				MessageID: 4,
				Operation: OpRpc,
				PV:        "demo:sum",
				Payload: ValuePayload{
					Value: &Value{
						Kind:   8,
						Names:  []string{"lhs", "rhs"},
						Fields: []Value{{Kind: 1, Double: 2}, {Kind: 1, Double: 3}},
					},
				},
			},
		},
		{
			name: "monitor request",
			req: Request{
				MessageID: 5,
				Operation: OpMonitor,
				PV:        "demo:counter",
			},
		},
		{
			name: "monitor cancel",
			req: Request{
				MessageID: 6,
				Operation: OpMonitorCancel,
				Payload:   MonitorCancelPayload{SubscriptionID: 7},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeRequest(&tt.req)
			if err != nil {
				t.Fatalf("EncodeRequest failed: %v", err)
			}

			decoded, err := DecodeRequest(data)
			if err != nil {
				t.Fatalf("DecodeRequest failed: %v", err)
			}

			if decoded.MessageID != tt.req.MessageID {
				t.Errorf("MessageID mismatch: got %d, want %d", decoded.MessageID, tt.req.MessageID)
			}
			if decoded.Operation != tt.req.Operation {
				t.Errorf("Operation mismatch: got %v, want %v", decoded.Operation, tt.req.Operation)
			}
			if decoded.PV != tt.req.PV {
				t.Errorf("PV mismatch: got %q, want %q", decoded.PV, tt.req.PV)
			}
		})
	}
}

func TestResponseRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		resp Response
	}{
		{
			name: "success response",
			resp: Response{
				MessageID: 1,
				Status:    StatusSuccess,
				Payload: ValuePayload{
					Value: &Value{Kind: 2, Int: 42},
				},
			},
		},
		{
			name: "error response",
			resp: Response{
				MessageID: 2,
				Status:    StatusTypeMismatch,
				Payload: ErrorPayload{
					Message: "field \"value\" is string, requested double",
				},
			},
		},
		{
			name: "monitor response",
			resp: Response{
				MessageID: 3,
				Status:    StatusSuccess,
				Payload: MonitorResponsePayload{
					SubscriptionID: 5001,
					Current:        &Value{Kind: 1, Double: 3.14},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeResponse(&tt.resp)
			if err != nil {
				t.Fatalf("EncodeResponse failed: %v", err)
			}

			decoded, err := DecodeResponse(data)
			if err != nil {
				t.Fatalf("DecodeResponse failed: %v", err)
			}

			if decoded.MessageID != tt.resp.MessageID {
				t.Errorf("MessageID mismatch: got %d, want %d", decoded.MessageID, tt.resp.MessageID)
			}
			if decoded.Status != tt.resp.Status {
				t.Errorf("Status mismatch: got %v, want %v", decoded.Status, tt.resp.Status)
			}
		})
	}
}

func TestNotificationRoundTrip(t *testing.T) {
	notif := Notification{
		SubscriptionID: 5001,
		Kind:           EventData,
		Value:          &Value{Kind: 2, Int: 99},
	}

	data, err := EncodeNotification(&notif)
	if err != nil {
		t.Fatalf("EncodeNotification failed: %v", err)
	}

	decoded, err := DecodeNotification(data)
	if err != nil {
		t.Fatalf("DecodeNotification failed: %v", err)
	}

	if decoded.SubscriptionID != notif.SubscriptionID {
		t.Errorf("SubscriptionID mismatch: got %d, want %d", decoded.SubscriptionID, notif.SubscriptionID)
	}
	if decoded.Kind != notif.Kind {
		t.Errorf("Kind mismatch: got %v, want %v", decoded.Kind, notif.Kind)
	}
	if decoded.Value == nil || decoded.Value.Int != 99 {
		t.Errorf("Value mismatch: got %+v", decoded.Value)
	}
}

func TestErrorNotificationRoundTrip(t *testing.T) {
	notif := Notification{
		SubscriptionID: 12,
		Kind:           EventError,
		Reason:         "handler crashed",
	}

	data, err := EncodeNotification(&notif)
	if err != nil {
		t.Fatalf("EncodeNotification failed: %v", err)
	}

	decoded, err := DecodeNotification(data)
	if err != nil {
		t.Fatalf("DecodeNotification failed: %v", err)
	}

	if decoded.Kind != EventError {
		t.Errorf("Kind mismatch: got %v, want %v", decoded.Kind, EventError)
	}
	if decoded.Reason != notif.Reason {
		t.Errorf("Reason mismatch: got %q, want %q", decoded.Reason, notif.Reason)
	}
}

func TestControlMessageRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  ControlMessage
	}{
		{
			name: "ping",
			msg:  ControlMessage{Type: ControlPing, Sequence: 1},
		},
		{
			name: "pong",
			msg:  ControlMessage{Type: ControlPong, Sequence: 1},
		},
		{
			name: "close",
			msg:  ControlMessage{Type: ControlClose},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeControlMessage(&tt.msg)
			if err != nil {
				t.Fatalf("EncodeControlMessage failed: %v", err)
			}

			decoded, err := DecodeControlMessage(data)
			if err != nil {
				t.Fatalf("DecodeControlMessage failed: %v", err)
			}

			if decoded.Type != tt.msg.Type {
				t.Errorf("Type mismatch: got %v, want %v", decoded.Type, tt.msg.Type)
			}
			if decoded.Sequence != tt.msg.Sequence {
				t.Errorf("Sequence mismatch: got %d, want %d", decoded.Sequence, tt.msg.Sequence)
			}
		})
	}
}

func TestRequestValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{
			name:    "valid request",
			req:     Request{MessageID: 1, Operation: OpGet, PV: "demo:pv"},
			wantErr: false,
		},
		{
			name:    "messageId 0 reserved",
			req:     Request{MessageID: 0, Operation: OpGet, PV: "demo:pv"},
			wantErr: true,
		},
		{
			name:    "control messageId reserved",
			req:     Request{MessageID: ControlMessageID, Operation: OpGet, PV: "demo:pv"},
			wantErr: true,
		},
		{
			name:    "invalid operation",
			req:     Request{MessageID: 1, Operation: Operation(99), PV: "demo:pv"},
			wantErr: true,
		},
		{
			name:    "missing pv name",
			req:     Request{MessageID: 1, Operation: OpGet},
			wantErr: true,
		},
		{
			name: "cancel needs no pv name",
			req: Request{
				MessageID: 1,
				Operation: OpMonitorCancel,
				Payload:   MonitorCancelPayload{SubscriptionID: 3},
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPeekMessageType(t *testing.T) {
	reqData, err := EncodeRequest(&Request{MessageID: 7, Operation: OpGet, PV: "demo:pv"})
	if err != nil {
		t.Fatalf("EncodeRequest failed: %v", err)
	}
	respData, err := EncodeResponse(&Response{MessageID: 7, Status: StatusSuccess})
	if err != nil {
		t.Fatalf("EncodeResponse failed: %v", err)
	}
	notifData, err := EncodeNotification(&Notification{SubscriptionID: 1, Kind: EventData})
	if err != nil {
		t.Fatalf("EncodeNotification failed: %v", err)
	}
	ctrlData, err := EncodeControlMessage(&ControlMessage{Type: ControlPing, Sequence: 9})
	if err != nil {
		t.Fatalf("EncodeControlMessage failed: %v", err)
	}

	tests := []struct {
		name string
		data []byte
		want MessageType
	}{
		{"request", reqData, MessageTypeRequest},
		{"response", respData, MessageTypeResponse},
		{"notification", notifData, MessageTypeNotification},
		{"control", ctrlData, MessageTypeControl},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PeekMessageType(tt.data)
			if err != nil {
				t.Fatalf("PeekMessageType failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("PeekMessageType = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodePayload(t *testing.T) {
	// Simulate a server-side round trip: typed payload in, raw map out.
	req := Request{
		MessageID: 1,
		Operation: OpPut,
		PV:        "demo:pv",
		Payload: PutPayload{
			Field: "value",
			Value: &Value{Kind: 1, Double: 4.5},
		},
	}

	data, err := EncodeRequest(&req)
	if err != nil {
		t.Fatalf("EncodeRequest failed: %v", err)
	}
	decoded, err := DecodeRequest(data)
	if err != nil {
		t.Fatalf("DecodeRequest failed: %v", err)
	}

	var pp PutPayload
	ok, err := DecodePayload(decoded.Payload, &pp)
	if err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if !ok {
		t.Fatal("DecodePayload reported no payload")
	}
	if pp.Field != "value" {
		t.Errorf("Field mismatch: got %q", pp.Field)
	}
	if pp.Value == nil || pp.Value.Double != 4.5 {
		t.Errorf("Value mismatch: got %+v", pp.Value)
	}

	var empty PutPayload
	ok, err = DecodePayload(nil, &empty)
	if err != nil {
		t.Fatalf("DecodePayload(nil) failed: %v", err)
	}
	if ok {
		t.Error("DecodePayload(nil) should report absent payload")
	}
}

func TestUnknownFieldsIgnored(t *testing.T) {
	// Forward compatibility: unknown keys from a newer protocol version
	// must decode without error.
	msg := map[int]any{
		1:  uint32(1),
		2:  uint8(1),
		3:  "demo:pv",
		99: "future field",
	}

	data, err := Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	decoded, err := DecodeRequest(data)
	if err != nil {
		t.Fatalf("DecodeRequest should succeed with unknown fields: %v", err)
	}

	if decoded.MessageID != 1 {
		t.Errorf("MessageID mismatch: got %d, want 1", decoded.MessageID)
	}
	if decoded.PV != "demo:pv" {
		t.Errorf("PV mismatch: got %q", decoded.PV)
	}
}

func TestClone(t *testing.T) {
	original := Request{
		MessageID: 1,
		Operation: OpGet,
		PV:        "demo:pv",
	}

	cloned, err := Clone(original)
	if err != nil {
		t.Fatalf("Clone failed: %v", err)
	}

	if cloned.MessageID != original.MessageID {
		t.Errorf("MessageID mismatch")
	}
	if cloned.PV != original.PV {
		t.Errorf("PV mismatch")
	}
}

func TestEqual(t *testing.T) {
	a := Request{MessageID: 1, Operation: OpGet, PV: "demo:pv"}
	b := Request{MessageID: 1, Operation: OpGet, PV: "demo:pv"}
	c := Request{MessageID: 2, Operation: OpGet, PV: "demo:pv"}

	if !Equal(a, b) {
		t.Errorf("Equal(a, b) should be true")
	}
	if Equal(a, c) {
		t.Errorf("Equal(a, c) should be false")
	}
}
