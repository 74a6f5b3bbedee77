// ABOUTME: Typed JSON control messages for the membership and link layer
// ABOUTME: Tagged union with explicit rejection of unknown message types
package wire

import (
	"encoding/json"
	"fmt"
)

// Control message type tags as they appear on the wire.
const (
	TypeMeshJoin      = "mesh_join"
	TypeMeshAck       = "mesh_ack"
	TypeMeshReady     = "mesh_ready"
	TypeMeshHeartbeat = "mesh_heartbeat"
	TypeMeshStatus    = "mesh_status"
	TypeMeshLeave     = "mesh_leave"
	TypeAudioAck      = "audio_ack"
)

// Ack status values.
const (
	StatusJoined   = "joined"
	StatusFailed   = "failed"
	StatusReceived = "received"
)

// Control is the closed set of membership/link messages. Decode returns one
// of the concrete variants below; unknown types are an error, not a silent
// skip.
type Control interface {
	controlType() string
}

// MeshJoin asks a coordinator for admission to the mesh.
type MeshJoin struct {
	Type       string `json:"type"`
	DeviceName string `json:"device_name"`
	DeviceType string `json:"device_type"`
	Mac        string `json:"mac"`
}

// MeshAck answers a join request with "joined" or "failed".
type MeshAck struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

// MeshReady confirms the joiner is reachable; it completes the handshake and
// activates the membership entry.
type MeshReady struct {
	Type   string `json:"type"`
	Source string `json:"source"`
}

// MeshHeartbeat is the coordinator's periodic liveness beacon.
type MeshHeartbeat struct {
	Type    string `json:"type"`
	Devices int    `json:"devices"`
	Mac     string `json:"mac"`
}

// DeviceStatus is one row of a status broadcast, with short keys so the
// message stays inside the datagram limit.
type DeviceStatus struct {
	Name     string `json:"n"`
	DevType  string `json:"t"`
	Mac      string `json:"m"`
	LastSeen int64  `json:"s"` // seconds since the device was last heard
	Quality  int    `json:"q"`
}

// MeshStatus summarizes the membership table for observers.
type MeshStatus struct {
	Type         string         `json:"type"`
	TotalDevices int            `json:"total_devices"`
	Devices      []DeviceStatus `json:"devices,omitempty"`
}

// MeshLeave announces a voluntary departure.
type MeshLeave struct {
	Type string `json:"type"`
}

// AudioAck acknowledges one relayed audio chunk.
type AudioAck struct {
	Type     string `json:"type"`
	Sequence uint32 `json:"sequence"`
	Chunk    uint16 `json:"chunk"`
	Status   string `json:"status"`
}

func (MeshJoin) controlType() string      { return TypeMeshJoin }
func (MeshAck) controlType() string       { return TypeMeshAck }
func (MeshReady) controlType() string     { return TypeMeshReady }
func (MeshHeartbeat) controlType() string { return TypeMeshHeartbeat }
func (MeshStatus) controlType() string    { return TypeMeshStatus }
func (MeshLeave) controlType() string     { return TypeMeshLeave }
func (AudioAck) controlType() string      { return TypeAudioAck }

// EncodeControl marshals a control message, stamping its type tag.
func EncodeControl(c Control) ([]byte, error) {
	switch m := c.(type) {
	case MeshJoin:
		m.Type = TypeMeshJoin
		return json.Marshal(m)
	case MeshAck:
		m.Type = TypeMeshAck
		return json.Marshal(m)
	case MeshReady:
		m.Type = TypeMeshReady
		return json.Marshal(m)
	case MeshHeartbeat:
		m.Type = TypeMeshHeartbeat
		return json.Marshal(m)
	case MeshStatus:
		m.Type = TypeMeshStatus
		return json.Marshal(m)
	case MeshLeave:
		m.Type = TypeMeshLeave
		return json.Marshal(m)
	case AudioAck:
		m.Type = TypeAudioAck
		return json.Marshal(m)
	default:
		return nil, fmt.Errorf("wire: unsupported control message %T", c)
	}
}

// DecodeControl parses a JSON control datagram into its typed variant.
func DecodeControl(data []byte) (Control, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("wire: bad control message: %w", err)
	}

	switch envelope.Type {
	case TypeMeshJoin:
		var m MeshJoin
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("wire: bad %s: %w", envelope.Type, err)
		}
		return m, nil
	case TypeMeshAck:
		var m MeshAck
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("wire: bad %s: %w", envelope.Type, err)
		}
		return m, nil
	case TypeMeshReady:
		var m MeshReady
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("wire: bad %s: %w", envelope.Type, err)
		}
		return m, nil
	case TypeMeshHeartbeat:
		var m MeshHeartbeat
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("wire: bad %s: %w", envelope.Type, err)
		}
		return m, nil
	case TypeMeshStatus:
		var m MeshStatus
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("wire: bad %s: %w", envelope.Type, err)
		}
		return m, nil
	case TypeMeshLeave:
		var m MeshLeave
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("wire: bad %s: %w", envelope.Type, err)
		}
		return m, nil
	case TypeAudioAck:
		var m AudioAck
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("wire: bad %s: %w", envelope.Type, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("wire: unknown control type %q", envelope.Type)
	}
}
