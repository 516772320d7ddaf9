// Package channel defines the message envelope exchanged between the host and
// the content surface, the typed bus that routes it, and the transports that
// carry it across the isolation boundary.
package channel

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Name identifies a message channel.
type Name string

// Channels known to either side of the boundary.
const (
	ContentChanged     Name = "content-changed"
	SessionEstablished Name = "session-established"
	QueryUnreadCount   Name = "query-unread-count"
	UnreadCountReply   Name = "unread-count-reply"
	OpenDevTools       Name = "open-devtools"
)

// Direction is the side of the boundary a message travels towards.
type Direction string

// Message directions.
const (
	ContentToHost Direction = "content-to-host"
	HostToContent Direction = "host-to-content"
)

// UnknownAddress is sent in place of an identity the content surface cannot determine.
const UnknownAddress = "<unknown>"

var vocabulary = map[Name]Direction{
	ContentChanged:     ContentToHost,
	SessionEstablished: ContentToHost,
	UnreadCountReply:   ContentToHost,
	QueryUnreadCount:   HostToContent,
	OpenDevTools:       HostToContent,
}

// ErrUnknownChannel is returned when a channel is outside the vocabulary.
var ErrUnknownChannel = errors.New("unknown channel")

// DirectionOf returns the direction a channel travels, and false for unknown names.
func DirectionOf(name Name) (Direction, bool) {
	d, ok := vocabulary[name]
	return d, ok
}

// Accepts reports whether name is a known channel travelling in direction d.
func Accepts(name Name, d Direction) bool {
	got, ok := vocabulary[name]
	return ok && got == d
}

// Message is the envelope that crosses the boundary. It is immutable once sent.
type Message struct {
	Channel   Name            `json:"channel"`
	Direction Direction       `json:"direction"`
	RequestID uint64          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// New builds a message on a known channel. A nil payload produces an empty body.
func New(name Name, requestID uint64, payload any) (Message, error) {
	d, ok := vocabulary[name]
	if !ok {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownChannel, name)
	}

	msg := Message{Channel: name, Direction: d, RequestID: requestID}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Message{}, fmt.Errorf("encode %s payload: %w", name, err)
		}
		msg.Payload = data
	}
	return msg, nil
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("decode %s payload: empty", m.Channel)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Channel, err)
	}
	return nil
}

// String returns a compact description for logs.
func (m Message) String() string {
	if m.RequestID != 0 {
		return fmt.Sprintf("%s#%d", m.Channel, m.RequestID)
	}
	return string(m.Channel)
}

// Session is the payload of SessionEstablished.
type Session struct {
	Address   string `json:"address"`
	SessionID string `json:"session_id"`
}

// UnreadCount is the payload of UnreadCountReply.
type UnreadCount struct {
	Count int `json:"count"`
}
