// Package hub fans dashboard messages out to websocket subscribers.
package hub

import "encoding/json"

// Kind tells the client pump which websocket frame type to write.
type Kind int

const (
	Text Kind = iota
	Binary
)

// Message is one broadcast payload.
type Message struct {
	Kind Kind
	Data []byte
}

// TextMessage wraps pre-encoded text (usually JSON).
func TextMessage(data []byte) Message {
	return Message{Kind: Text, Data: data}
}

// BinaryMessage wraps raw bytes such as a JPEG frame.
func BinaryMessage(data []byte) Message {
	return Message{Kind: Binary, Data: data}
}

// JSONMessage marshals v into a text message.
func JSONMessage(v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	return TextMessage(data), nil
}
