package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"parley/models"
)

// Kind names a realtime event on the wire.
type Kind string

// Event kinds
const (
	KindNewMessage  Kind = "new_message"  // message delivered to the receiver
	KindMessageSent Kind = "message_sent" // echo of a message the local user sent
	KindUserOnline  Kind = "user_online"
	KindUserOffline Kind = "user_offline"
	KindError       Kind = "error"
	KindSendMessage Kind = "send_message" // client -> server
)

var ErrUnknownEvent = errors.New("unknown event")

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindNewMessage, KindMessageSent, KindUserOnline, KindUserOffline, KindError, KindSendMessage:
		return true
	}
	return false
}

// Inbound reports whether k is sent by the server to clients.
func (k Kind) Inbound() bool {
	return k.Valid() && k != KindSendMessage
}

// Envelope is the frame exchanged over the channel.
type Envelope struct {
	Event Kind            `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Presence is the payload of user_online / user_offline.
type Presence struct {
	UserID int64 `json:"user_id"`
}

// ErrorPayload is the payload of error.
type ErrorPayload struct {
	Message string `json:"message"`
}

// SendMessage is the payload of send_message.
type SendMessage struct {
	Token      string `json:"token"`
	ReceiverID int64  `json:"receiver_id"`
	Message    string `json:"message"`
}

// Event is a decoded frame.
type Event interface {
	Kind() Kind
}

type NewMessage struct{ models.Message }

type MessageSent struct{ models.Message }

type UserOnline struct{ Presence }

type UserOffline struct{ Presence }

type ChannelError struct{ ErrorPayload }

type SendMessageEvent struct{ SendMessage }

func (NewMessage) Kind() Kind       { return KindNewMessage }
func (MessageSent) Kind() Kind      { return KindMessageSent }
func (UserOnline) Kind() Kind       { return KindUserOnline }
func (UserOffline) Kind() Kind      { return KindUserOffline }
func (ChannelError) Kind() Kind     { return KindError }
func (SendMessageEvent) Kind() Kind { return KindSendMessage }

// Encode wraps payload into an envelope of the given kind.
func Encode(kind Kind, payload any) ([]byte, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, kind)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return json.Marshal(Envelope{Event: kind, Data: data})
}

// EncodeEvent encodes a typed event.
func EncodeEvent(ev Event) ([]byte, error) {
	switch e := ev.(type) {
	case NewMessage:
		return Encode(e.Kind(), e.Message)
	case MessageSent:
		return Encode(e.Kind(), e.Message)
	case UserOnline:
		return Encode(e.Kind(), e.Presence)
	case UserOffline:
		return Encode(e.Kind(), e.Presence)
	case ChannelError:
		return Encode(e.Kind(), e.ErrorPayload)
	case SendMessageEvent:
		return Encode(e.Kind(), e.SendMessage)
	}
	return nil, fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
}

// Decode parses a frame into its typed event.
func Decode(frame []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	var (
		ev     Event
		target any
	)
	switch env.Event {
	case KindNewMessage:
		e := &NewMessage{}
		ev, target = e, &e.Message
	case KindMessageSent:
		e := &MessageSent{}
		ev, target = e, &e.Message
	case KindUserOnline:
		e := &UserOnline{}
		ev, target = e, &e.Presence
	case KindUserOffline:
		e := &UserOffline{}
		ev, target = e, &e.Presence
	case KindError:
		e := &ChannelError{}
		ev, target = e, &e.ErrorPayload
	case KindSendMessage:
		e := &SendMessageEvent{}
		ev, target = e, &e.SendMessage
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	if err := decodePayload(env, target); err != nil {
		return nil, err
	}
	return deref(ev), nil
}

// deref returns decoded events by value so callers can type-switch on the
// plain struct types.
func deref(ev Event) Event {
	switch e := ev.(type) {
	case *NewMessage:
		return *e
	case *MessageSent:
		return *e
	case *UserOnline:
		return *e
	case *UserOffline:
		return *e
	case *ChannelError:
		return *e
	case *SendMessageEvent:
		return *e
	}
	return ev
}

func decodePayload(env Envelope, v any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("decode %s: empty payload", env.Event)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", env.Event, err)
	}
	return nil
}
