// ABOUTME: Tests for control message encoding and decoding
// ABOUTME: Verifies round-trips and rejection of unknown types
package wire

import "testing"

func TestControlRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Control
	}{
		{"join", MeshJoin{DeviceName: "relay-east", DeviceType: "audio_client", Mac: "AA:BB:CC:DD:EE:FF"}},
		{"ack joined", MeshAck{Status: StatusJoined}},
		{"ack failed", MeshAck{Status: StatusFailed}},
		{"ready", MeshReady{Source: "relay-east"}},
		{"heartbeat", MeshHeartbeat{Devices: 3, Mac: "11:22:33:44:55:66"}},
		{"status", MeshStatus{TotalDevices: 2, Devices: []DeviceStatus{
			{Name: "relay-east", DevType: "audio_client", Mac: "AABBCCDDEEFF", LastSeen: 12, Quality: 100},
		}}},
		{"leave", MeshLeave{}},
		{"audio ack", AudioAck{Sequence: 900, Chunk: 4, Status: StatusReceived}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeControl(tt.msg)
			if err != nil {
				t.Fatalf("encode failed: %v", err)
			}

			got, err := DecodeControl(data)
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}

			switch want := tt.msg.(type) {
			case MeshJoin:
				m, ok := got.(MeshJoin)
				if !ok {
					t.Fatalf("decoded %T, want MeshJoin", got)
				}
				if m.DeviceName != want.DeviceName || m.DeviceType != want.DeviceType || m.Mac != want.Mac {
					t.Errorf("got %+v, want %+v", m, want)
				}
			case MeshAck:
				m, ok := got.(MeshAck)
				if !ok {
					t.Fatalf("decoded %T, want MeshAck", got)
				}
				if m.Status != want.Status {
					t.Errorf("status %q, want %q", m.Status, want.Status)
				}
			case MeshHeartbeat:
				m, ok := got.(MeshHeartbeat)
				if !ok {
					t.Fatalf("decoded %T, want MeshHeartbeat", got)
				}
				if m.Devices != want.Devices || m.Mac != want.Mac {
					t.Errorf("got %+v, want %+v", m, want)
				}
			case MeshStatus:
				m, ok := got.(MeshStatus)
				if !ok {
					t.Fatalf("decoded %T, want MeshStatus", got)
				}
				if m.TotalDevices != want.TotalDevices || len(m.Devices) != len(want.Devices) {
					t.Errorf("got %+v, want %+v", m, want)
				}
			case AudioAck:
				m, ok := got.(AudioAck)
				if !ok {
					t.Fatalf("decoded %T, want AudioAck", got)
				}
				if m.Sequence != want.Sequence || m.Chunk != want.Chunk || m.Status != want.Status {
					t.Errorf("got %+v, want %+v", m, want)
				}
			}
		})
	}
}

func TestControlStaysWithinDatagramLimit(t *testing.T) {
	// Status broadcasts carry at most two device rows so they fit one datagram.
	status := MeshStatus{TotalDevices: 4, Devices: []DeviceStatus{
		{Name: "relay-lounge-speaker", DevType: "audio_client", Mac: "AABBCCDDEEFF", LastSeen: 9999, Quality: 100},
		{Name: "relay-kitchen-speaker", DevType: "audio_client", Mac: "112233445566", LastSeen: 9999, Quality: 100},
	}}

	data, err := EncodeControl(status)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if len(data) > MaxDatagram {
		t.Errorf("status message is %d bytes, exceeds %d", len(data), MaxDatagram)
	}
}

func TestDecodeControlRejectsUnknownType(t *testing.T) {
	if _, err := DecodeControl([]byte(`{"type":"mesh_teleport"}`)); err == nil {
		t.Error("expected error for unknown control type")
	}
	if _, err := DecodeControl([]byte(`not json at all`)); err == nil {
		t.Error("expected error for non-JSON input")
	}
}
