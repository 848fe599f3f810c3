package codec

import (
	"fmt"
)

// Codec converts events to and from websocket frames.
type Codec interface {
	Name() string
	// FrameType is the websocket message type frames are written with.
	FrameType() int
	Encode(env *Envelope) ([]byte, error)
	Decode(data []byte) (*Envelope, error)
	EncodeInbound(msg *SendMessage) ([]byte, error)
	DecodeInbound(data []byte) (*SendMessage, error)
}

func New(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "protobuf", "proto":
		return ProtoCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported codec %q", name)
	}
}
