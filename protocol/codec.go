package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrUnknownMessageType = errors.New("unknown-message-type")
	ErrMalformedMessage   = errors.New("malformed-message")
	ErrUnknownCodec       = errors.New("unknown-codec")
	// ErrRateLimited rejects intents sent faster than a player may send them.
	ErrRateLimited = errors.New("rate-limited")
)

// Codec turns messages into websocket frames and back. Binary codecs are sent as binary
// frames, the others as text frames.
type Codec interface {
	Name() string
	Binary() bool
	EncodeEvent(Event) ([]byte, error)
	DecodeEvent([]byte) (Event, error)
	EncodeIntent(Intent) ([]byte, error)
	DecodeIntent([]byte) (Intent, error)
}

var (
	JSON    Codec = jsonCodec{}
	MsgPack Codec = msgpackCodec{}
)

// CodecByName resolves the ?codec= query value. The empty name selects JSON.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", JSON.Name():
		return JSON, nil
	case MsgPack.Name():
		return MsgPack, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
}

type jsonFrame struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }
func (jsonCodec) Binary() bool { return false }

func (c jsonCodec) EncodeEvent(e Event) ([]byte, error)   { return c.encode(e.Type(), e) }
func (c jsonCodec) EncodeIntent(i Intent) ([]byte, error) { return c.encode(i.Type(), i) }

func (jsonCodec) encode(t MessageType, payload any) ([]byte, error) {
	p, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jsonFrame{Type: t, Payload: p})
}

func (jsonCodec) DecodeEvent(data []byte) (Event, error) {
	return decodeJSON(data, eventFactories)
}

func (jsonCodec) DecodeIntent(data []byte) (Intent, error) {
	return decodeJSON(data, intentFactories)
}

func decodeJSON[T any](data []byte, factories map[MessageType]func() T) (T, error) {
	var zero T
	var f jsonFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return zero, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	factory, ok := factories[f.Type]
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrUnknownMessageType, f.Type)
	}
	msg := factory()
	if len(f.Payload) > 0 && !bytes.Equal(f.Payload, []byte("null")) {
		if err := json.Unmarshal(f.Payload, msg); err != nil {
			return zero, fmt.Errorf("%w: %s: %w", ErrMalformedMessage, f.Type, err)
		}
	}
	return msg, nil
}

type msgpackFrame struct {
	Type    MessageType        `json:"type"`
	Payload msgpack.RawMessage `json:"payload,omitempty"`
}

// msgpackCodec reuses the json struct tags so both codecs agree on field names.
type msgpackCodec struct{}

func (msgpackCodec) Name() string { return "msgpack" }
func (msgpackCodec) Binary() bool { return true }

func (c msgpackCodec) EncodeEvent(e Event) ([]byte, error)   { return c.encode(e.Type(), e) }
func (c msgpackCodec) EncodeIntent(i Intent) ([]byte, error) { return c.encode(i.Type(), i) }

func (msgpackCodec) encode(t MessageType, payload any) ([]byte, error) {
	p, err := marshalMsgpack(payload)
	if err != nil {
		return nil, err
	}
	return marshalMsgpack(&msgpackFrame{Type: t, Payload: p})
}

func (msgpackCodec) DecodeEvent(data []byte) (Event, error) {
	return decodeMsgpack(data, eventFactories)
}

func (msgpackCodec) DecodeIntent(data []byte) (Intent, error) {
	return decodeMsgpack(data, intentFactories)
}

func marshalMsgpack(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unmarshalMsgpack(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}

func decodeMsgpack[T any](data []byte, factories map[MessageType]func() T) (T, error) {
	var zero T
	var f msgpackFrame
	if err := unmarshalMsgpack(data, &f); err != nil {
		return zero, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	factory, ok := factories[f.Type]
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrUnknownMessageType, f.Type)
	}
	msg := factory()
	if len(f.Payload) > 0 {
		if err := unmarshalMsgpack(f.Payload, msg); err != nil {
			return zero, fmt.Errorf("%w: %s: %w", ErrMalformedMessage, f.Type, err)
		}
	}
	return msg, nil
}
