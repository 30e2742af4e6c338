package models

import (
	"encoding/json"
	"time"
)

// MessageType discriminates the WebSocket envelope payloads
type MessageType string

const (
	MessageTypeSnapshot  MessageType = "snapshot"
	MessageTypeBatch     MessageType = "batch"
	MessageTypeHeartbeat MessageType = "heartbeat"
	MessageTypeAck       MessageType = "ack"
	MessageTypeError     MessageType = "error"
)

// Message is the envelope every frame on the wire is wrapped in.
// The payload stays raw until the receiver knows the type.
type Message struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage wraps a payload in an envelope stamped with the current time
func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{Type: msgType, Payload: raw, Timestamp: time.Now()}, nil
}

// UnmarshalPayload decodes the raw payload into v
func (m *Message) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(m.Payload, v)
}

// SnapshotMessage carries one full read-out of the engine's channels
type SnapshotMessage struct {
	VehicleID string   `json:"vehicle_id"`
	Mileage   float64  `json:"mileage"`
	Readings  Snapshot `json:"readings"`
}

// BatchMessage carries snapshots buffered while the stream was down.
// Mileage is the vehicle's mileage at send time, not per snapshot.
type BatchMessage struct {
	VehicleID string     `json:"vehicle_id"`
	Mileage   float64    `json:"mileage"`
	Snapshots []Snapshot `json:"snapshots"`
	Count     int        `json:"count"`
}

// HeartbeatMessage doubles as registration: the first heartbeat after a
// dial tells the server which vehicle owns the connection.
type HeartbeatMessage struct {
	VehicleID  string `json:"vehicle_id"`
	Uptime     int64  `json:"uptime"`
	BufferSize int    `json:"buffer_size"`
}

// AckMessage confirms receipt of a client message
type AckMessage struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

// ErrorMessage reports a server-side rejection back to the client
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
