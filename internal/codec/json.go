package codec

import (
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
)

// JSONCodec writes text frames.
type JSONCodec struct{}

type inboundJSON struct {
	Type EventType `json:"type"`
	SendMessage
}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) FrameType() int { return websocket.TextMessage }

func (JSONCodec) Encode(env *Envelope) ([]byte, error) {
	return json.Marshal(env)
}

func (JSONCodec) Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &env, nil
}

func (JSONCodec) EncodeInbound(msg *SendMessage) ([]byte, error) {
	return json.Marshal(inboundJSON{Type: EventSendMessage, SendMessage: *msg})
}

func (JSONCodec) DecodeInbound(data []byte) (*SendMessage, error) {
	var in inboundJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decode inbound event: %w", err)
	}
	if in.Type != "" && in.Type != EventSendMessage {
		return nil, fmt.Errorf("unsupported inbound event type %q", in.Type)
	}
	return &in.SendMessage, nil
}
