// Package hub fans websocket messages out to connected clients.
package hub

import "encoding/json"

// Message is one websocket write. Binary messages carry JPEG frames; all
// others are JSON envelopes sent as text.
type Message struct {
	Binary bool
	Data   []byte
}

// Envelope is the JSON shape of every status-socket message.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Event encodes v as an envelope of the given type.
func Event(typ string, v any) (Message, error) {
	data, err := json.Marshal(Envelope{Type: typ, Data: v})
	if err != nil {
		return Message{}, err
	}
	return Message{Data: data}, nil
}

// Frame wraps an encoded image.
func Frame(jpeg []byte) Message {
	return Message{Binary: true, Data: jpeg}
}
