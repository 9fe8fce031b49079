package protocol

import (
	"testing"

	"github.com/bytedance/sonic"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	data, err := Marshal(MsgResetSession, ResetSessionPayload{SessionID: "s1", Reason: "operator"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	msgType, raw, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if msgType != MsgResetSession {
		t.Errorf("type = %q, want %q", msgType, MsgResetSession)
	}
	p, err := UnmarshalPayload[ResetSessionPayload](raw)
	if err != nil {
		t.Fatalf("UnmarshalPayload: %v", err)
	}
	if p.SessionID != "s1" || p.Reason != "operator" {
		t.Errorf("payload = %+v", p)
	}
}

func TestUnmarshal_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"invalid json", `{`},
		{"missing type", `{"payload":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := Unmarshal([]byte(tt.data)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestUnmarshalPayload_Empty(t *testing.T) {
	p, err := UnmarshalPayload[ShutdownPayload](nil)
	if err != nil {
		t.Fatalf("UnmarshalPayload(nil): %v", err)
	}
	if p.Reason != "" {
		t.Errorf("payload = %+v, want zero value", p)
	}
}

func TestMarshalWireEvent(t *testing.T) {
	frame, err := MarshalWireEvent("memory.turn_persisted", struct {
		TurnID string `json:"turn_id"`
	}{TurnID: "t1"})
	if err != nil {
		t.Fatalf("MarshalWireEvent: %v", err)
	}

	var decoded struct {
		ID      string `json:"id"`
		Payload struct {
			TurnID string `json:"turn_id"`
		} `json:"payload"`
	}
	if err := sonic.Unmarshal(frame, &decoded); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if decoded.ID != "memory.turn_persisted" || decoded.Payload.TurnID != "t1" {
		t.Errorf("frame = %s", frame)
	}
}
