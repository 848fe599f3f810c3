package codec

import (
	"fmt"

	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// ProtoCodec writes binary frames laid out as described in events.proto.
type ProtoCodec struct{}

// Envelope field numbers
const (
	envType          protowire.Number = 1
	envMessage       protowire.Number = 2
	envOnlineUserIDs protowire.Number = 3
	envClientMsgID   protowire.Number = 4
	envCode          protowire.Number = 5
	envReason        protowire.Number = 6
)

// ChatMessage field numbers
const (
	msgID         protowire.Number = 1
	msgSenderID   protowire.Number = 2
	msgReceiverID protowire.Number = 3
	msgText       protowire.Number = 4
	msgImage      protowire.Number = 5
	msgCreatedAt  protowire.Number = 6
)

// SendMessage field numbers
const (
	sendClientMsgID protowire.Number = 1
	sendReceiverID  protowire.Number = 2
	sendText        protowire.Number = 3
	sendImage       protowire.Number = 4
)

func (ProtoCodec) Name() string { return "protobuf" }

func (ProtoCodec) FrameType() int { return websocket.BinaryMessage }

func (ProtoCodec) Encode(env *Envelope) ([]byte, error) {
	var b []byte
	b = appendString(b, envType, string(env.Type))
	if env.Message != nil {
		m, err := marshalChatMessage(env.Message)
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, envMessage, protowire.BytesType)
		b = protowire.AppendBytes(b, m)
	}
	if len(env.OnlineUserIDs) > 0 {
		var packed []byte
		for _, id := range env.OnlineUserIDs {
			packed = protowire.AppendVarint(packed, id)
		}
		b = protowire.AppendTag(b, envOnlineUserIDs, protowire.BytesType)
		b = protowire.AppendBytes(b, packed)
	}
	b = appendString(b, envClientMsgID, env.ClientMsgID)
	b = appendString(b, envCode, env.Code)
	b = appendString(b, envReason, env.Reason)
	return b, nil
}

func (ProtoCodec) Decode(data []byte) (*Envelope, error) {
	env := &Envelope{}
	err := consumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == envType && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			env.Type = EventType(v)
			return n, nil
		case num == envMessage && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			m, err := unmarshalChatMessage(v)
			if err != nil {
				return 0, err
			}
			env.Message = m
			return n, nil
		case num == envOnlineUserIDs && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			for len(v) > 0 {
				id, m := protowire.ConsumeVarint(v)
				if m < 0 {
					return 0, protowire.ParseError(m)
				}
				env.OnlineUserIDs = append(env.OnlineUserIDs, id)
				v = v[m:]
			}
			return n, nil
		case num == envOnlineUserIDs && typ == protowire.VarintType:
			// unpacked encoding
			id, n := protowire.ConsumeVarint(b)
			if n >= 0 {
				env.OnlineUserIDs = append(env.OnlineUserIDs, id)
			}
			return n, nil
		case num == envClientMsgID && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			env.ClientMsgID = v
			return n, nil
		case num == envCode && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			env.Code = v
			return n, nil
		case num == envReason && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			env.Reason = v
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

func (ProtoCodec) EncodeInbound(msg *SendMessage) ([]byte, error) {
	var b []byte
	b = appendString(b, sendClientMsgID, msg.ClientMsgID)
	if msg.ReceiverID != 0 {
		b = protowire.AppendTag(b, sendReceiverID, protowire.VarintType)
		b = protowire.AppendVarint(b, msg.ReceiverID)
	}
	b = appendString(b, sendText, msg.Text)
	b = appendString(b, sendImage, msg.Image)
	return b, nil
}

func (ProtoCodec) DecodeInbound(data []byte) (*SendMessage, error) {
	msg := &SendMessage{}
	err := consumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == sendClientMsgID && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			msg.ClientMsgID = v
			return n, nil
		case num == sendReceiverID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			msg.ReceiverID = v
			return n, nil
		case num == sendText && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			msg.Text = v
			return n, nil
		case num == sendImage && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			msg.Image = v
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return nil, fmt.Errorf("decode inbound event: %w", err)
	}
	return msg, nil
}

func marshalChatMessage(m *ChatMessage) ([]byte, error) {
	var b []byte
	for _, f := range []struct {
		num protowire.Number
		v   uint64
	}{{msgID, m.ID}, {msgSenderID, m.SenderID}, {msgReceiverID, m.ReceiverID}} {
		if f.v != 0 {
			b = protowire.AppendTag(b, f.num, protowire.VarintType)
			b = protowire.AppendVarint(b, f.v)
		}
	}
	b = appendString(b, msgText, m.Text)
	b = appendString(b, msgImage, m.Image)
	if !m.CreatedAt.IsZero() {
		ts, err := proto.Marshal(timestamppb.New(m.CreatedAt))
		if err != nil {
			return nil, fmt.Errorf("marshal created_at: %w", err)
		}
		b = protowire.AppendTag(b, msgCreatedAt, protowire.BytesType)
		b = protowire.AppendBytes(b, ts)
	}
	return b, nil
}

func unmarshalChatMessage(data []byte) (*ChatMessage, error) {
	m := &ChatMessage{}
	err := consumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(b)
			switch num {
			case msgID:
				m.ID = v
			case msgSenderID:
				m.SenderID = v
			case msgReceiverID:
				m.ReceiverID = v
			}
			return n, nil
		}
		switch {
		case num == msgText && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			m.Text = v
			return n, nil
		case num == msgImage && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			m.Image = v
			return n, nil
		case num == msgCreatedAt && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			var ts timestamppb.Timestamp
			if err := proto.Unmarshal(v, &ts); err != nil {
				return 0, fmt.Errorf("unmarshal created_at: %w", err)
			}
			m.CreatedAt = ts.AsTime()
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// consumeFields walks the top-level fields of data. fn consumes one field value and returns
// the number of bytes read, negative on a wire error.
func consumeFields(data []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		m, err := fn(num, typ, data)
		if err != nil {
			return err
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		data = data[m:]
	}
	return nil
}
