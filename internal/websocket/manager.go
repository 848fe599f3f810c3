package websocket

import (
	"context"
	"fmt"
	"go-direct-chat/internal/apperr"
	"go-direct-chat/internal/codec"
	"go-direct-chat/internal/interfaces"
	"go-direct-chat/internal/presence"
	"go-direct-chat/pkg/logger"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// lifecycle is what a Client's pumps call back into.
type lifecycle interface {
	HandleInbound(ctx context.Context, client *Client, raw []byte)
	Disconnect(client *Client)
}

// ConnectionManager owns every connection from handshake to teardown and keeps the presence
// registry in step with it.
type ConnectionManager struct {
	registry    *presence.Registry
	verifier    interfaces.IdentityVerifier
	codec       codec.Codec
	settings    Settings
	connections sync.Map // connID -> *Client

	handler      interfaces.MessageHandler
	eventHandler interfaces.ConnectionEventHandler
}

func NewConnectionManager(registry *presence.Registry, verifier interfaces.IdentityVerifier, c codec.Codec, settings Settings) *ConnectionManager {
	return &ConnectionManager{
		registry: registry,
		verifier: verifier,
		codec:    c,
		settings: settings,
	}
}

// 设置消息处理器
func (m *ConnectionManager) SetMessageHandler(handler interfaces.MessageHandler) {
	m.handler = handler
}

// 设置事件处理器
func (m *ConnectionManager) SetEventHandler(handler interfaces.ConnectionEventHandler) {
	m.eventHandler = handler
}

// Connect authenticates creds and only then calls upgrade, so a rejected handshake never gets a
// channel. The returned client is registered and Open; start it with Serve.
func (m *ConnectionManager) Connect(ctx context.Context, creds interfaces.Credentials, upgrade func() (Conn, error)) (*Client, error) {
	client := newClient(m, m.codec.FrameType(), m.settings)

	userID, err := m.verifier.Authenticate(ctx, creds)
	if err != nil {
		client.setState(StateClosed)
		if !apperr.IsAuthError(err) {
			err = &apperr.AuthError{Err: err}
		}
		logger.L.Info("Websocket handshake rejected", zap.String("connID", client.ID), zap.Error(err))
		return nil, err
	}
	client.UserID = userID
	client.transition(StateConnecting, StateAuthenticated)

	conn, err := upgrade()
	if err != nil {
		client.setState(StateClosed)
		logger.L.Error("Failed to upgrade websocket connection", zap.Uint("userID", userID), zap.Error(err))
		return nil, fmt.Errorf("upgrade: %w", err)
	}
	client.Conn = conn

	// Disconnect waits on lifeMu, so a concurrent Shutdown only sees the client once it is Open
	// and its connected event has been emitted.
	client.lifeMu.Lock()
	defer client.lifeMu.Unlock()

	m.connections.Store(client.ID, client)
	first := m.registry.Register(userID, client)
	client.transition(StateAuthenticated, StateOpen)

	logger.L.Info("Client registered",
		zap.String("connID", client.ID),
		zap.Uint("userID", userID),
		zap.Bool("firstConnection", first))

	if m.eventHandler != nil {
		m.eventHandler.HandleUserConnected(userID)
	}
	return client, nil
}

// Serve starts the client's pumps. Teardown happens when the read side ends.
func (m *ConnectionManager) Serve(ctx context.Context, client *Client) {
	go client.WritePump()
	go client.ReadPump(ctx)
}

// HandleInbound decodes and validates one frame and passes it to the message handler.
// Malformed frames are answered with an error event on the same connection only.
func (m *ConnectionManager) HandleInbound(ctx context.Context, client *Client, raw []byte) {
	if client.State() != StateOpen {
		return
	}

	msg, err := m.codec.DecodeInbound(raw)
	if err != nil {
		logger.L.Warn("Failed to decode inbound frame", zap.String("connID", client.ID), zap.Uint("userID", client.UserID), zap.Error(err))
		m.reply(client, codec.ErrorEvent("", codec.CodeInvalidMessage, "malformed event"))
		return
	}
	if err := codec.Validate(client.UserID, msg); err != nil {
		logger.L.Debug("Rejected inbound message", zap.String("connID", client.ID), zap.Uint("userID", client.UserID), zap.Error(err))
		m.reply(client, codec.ErrorEvent(msg.ClientMsgID, codec.CodeInvalidMessage, err.Error()))
		return
	}

	if m.handler == nil {
		logger.L.Error("No message handler configured, dropping inbound message", zap.Uint("userID", client.UserID))
		return
	}
	m.handler.HandleMessage(ctx, client, msg)
}

func (m *ConnectionManager) reply(client *Client, env *codec.Envelope) {
	data, err := m.codec.Encode(env)
	if err != nil {
		logger.L.Error("Failed to encode reply", zap.Error(err))
		return
	}
	if err := client.QueueBytes(data); err != nil {
		logger.L.Warn("Failed to queue reply", zap.Error(&apperr.PushError{ConnID: client.ID, UserID: client.UserID, Err: err}))
	}
}

// Disconnect tears the client down exactly once, whichever trigger gets here first.
func (m *ConnectionManager) Disconnect(client *Client) {
	client.lifeMu.Lock()
	defer client.lifeMu.Unlock()
	if !client.transition(StateOpen, StateClosing) {
		return
	}

	last := m.registry.Deregister(client.UserID, client)
	m.connections.Delete(client.ID)
	client.Close()
	if client.Conn != nil {
		deadline := time.Now().Add(m.settings.WriteWait)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := client.Conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			logger.L.Debug("Failed to send close frame", zap.String("connID", client.ID), zap.Error(err))
		}
		if err := client.Conn.Close(); err != nil {
			logger.L.Debug("Error closing connection", zap.String("connID", client.ID), zap.Error(err))
		}
	}
	client.setState(StateClosed)

	logger.L.Info("Client unregistered",
		zap.String("connID", client.ID),
		zap.Uint("userID", client.UserID),
		zap.Bool("lastConnection", last))

	if m.eventHandler != nil {
		m.eventHandler.HandleUserDisconnected(client.UserID)
	}
}

// OpenClients enumerates every connection currently in the Open state.
func (m *ConnectionManager) OpenClients() []interfaces.Client {
	var clients []interfaces.Client
	m.connections.Range(func(_, value any) bool {
		client := value.(*Client)
		if client.State() == StateOpen {
			clients = append(clients, client)
		}
		return true
	})
	return clients
}

// Shutdown closes every connection.
func (m *ConnectionManager) Shutdown(ctx context.Context) error {
	count := 0
	m.connections.Range(func(_, value any) bool {
		m.Disconnect(value.(*Client))
		count++
		return ctx.Err() == nil
	})
	logger.L.Info("Connection manager shut down", zap.Int("closed", count))
	return ctx.Err()
}
