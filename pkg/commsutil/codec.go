package commsutil

import (
	"encoding/json"
	"fmt"

	comms "github.com/nats-io/nats.go"
)

// EncodePayload serializes a value to JSON bytes.
func EncodePayload(v any) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePayload deserializes JSON bytes into the given target.
func DecodePayload(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Respond JSON-encodes v and replies to msg.
func Respond(msg *comms.Msg, v any) error {
	data, err := EncodePayload(v)
	if err != nil {
		return fmt.Errorf("commsutil:codec - failed to encode reply: %w", err)
	}
	return msg.Respond(data)
}
