package protocol

import "encoding/json"

// RPCMessage is the stream envelope on /ws/generate. A client request
// carries an optional ID that every message of the resulting run echoes
// back, so runs can be multiplexed over one connection.
type RPCMessage struct {
	ID      any             `json:"id,omitempty"` // string or number
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// EncodeRPC encodes any payload into a RawMessage for inclusion in an
// RPCMessage.
func EncodeRPC(v any) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}
