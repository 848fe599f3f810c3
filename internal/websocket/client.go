package websocket

import (
	"context"
	"go-direct-chat/internal/apperr"
	"go-direct-chat/pkg/logger"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Conn is the part of *websocket.Conn the client pumps use.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client is one live connection handle. Only the ConnectionManager closes it.
type Client struct {
	ID     string
	UserID uint
	Conn   Conn
	Send   chan []byte

	frameType int
	settings  Settings
	manager   lifecycle
	state     atomic.Int32

	lifeMu sync.Mutex // serializes Connect's open step with Disconnect

	mu     sync.Mutex // guards closed and sends on Send
	closed bool
	done   chan struct{}
}

func newClient(manager lifecycle, frameType int, settings Settings) *Client {
	c := &Client{
		ID:        uuid.NewString(),
		Send:      make(chan []byte, settings.SendBufferSize),
		frameType: frameType,
		settings:  settings,
		manager:   manager,
		done:      make(chan struct{}),
	}
	c.state.Store(int32(StateConnecting))
	return c
}

func (c *Client) GetID() string { return c.ID }

func (c *Client) GetUserID() uint { return c.UserID }

func (c *Client) State() State { return State(c.state.Load()) }

func (c *Client) transition(from, to State) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

func (c *Client) setState(s State) { c.state.Store(int32(s)) }

// QueueBytes enqueues a frame without blocking the caller for longer than the retry budget.
// A buffer that stays full closes the underlying connection so the read side tears it down.
func (c *Client) QueueBytes(data []byte) error {
	for attempt := 0; ; attempt++ {
		queued, err := c.tryQueue(data)
		if err != nil {
			return err
		}
		if queued {
			return nil
		}
		if attempt >= c.settings.RetryCount {
			break
		}

		logger.L.Warn("Client send buffer full, retry attempt",
			zap.String("connID", c.ID),
			zap.Uint("userID", c.UserID),
			zap.Int("attempt", attempt+1))
		timer := time.NewTimer(c.settings.RetryInterval)
		select {
		case <-timer.C:
		case <-c.done:
			timer.Stop()
			return apperr.ErrClientClosed
		}
	}

	logger.L.Error("Client send buffer still full after retries, closing connection",
		zap.String("connID", c.ID),
		zap.Uint("userID", c.UserID),
		zap.Int("attempts", c.settings.RetryCount))
	if c.Conn != nil {
		_ = c.Conn.Close()
	}
	return apperr.ErrSendBufferFull
}

func (c *Client) tryQueue(data []byte) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, apperr.ErrClientClosed
	}
	select {
	case c.Send <- data:
		return true, nil
	default:
		return false, nil
	}
}

// Close stops accepting frames and ends WritePump. Safe to call repeatedly.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	close(c.Send)
}

// ReadPump reads until the connection fails and always ends in the manager's teardown.
func (c *Client) ReadPump(ctx context.Context) {
	defer c.manager.Disconnect(c)

	c.Conn.SetReadLimit(c.settings.MaxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(c.settings.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(c.settings.PongWait))
	})

	for {
		messageType, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.L.Warn("Unexpected websocket close", zap.String("connID", c.ID), zap.Uint("userID", c.UserID), zap.Error(err))
			} else {
				logger.L.Debug("Websocket read ended", zap.String("connID", c.ID), zap.Uint("userID", c.UserID), zap.Error(err))
			}
			return
		}

		if messageType != c.frameType {
			logger.L.Warn("Ignoring frame of unexpected type",
				zap.String("connID", c.ID),
				zap.Int("messageType", messageType),
				zap.Int("expected", c.frameType))
			continue
		}
		c.manager.HandleInbound(ctx, c, data)
	}
}

// WritePump is the only writer of data frames on Conn.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.settings.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(c.settings.WriteWait))
			if !ok {
				// Send 通道已关闭, close帧由Disconnect发送
				return
			}
			if err := c.Conn.WriteMessage(c.frameType, data); err != nil {
				logger.L.Debug("Failed to write frame", zap.String("connID", c.ID), zap.Uint("userID", c.UserID), zap.Error(err))
				return
			}

			// 批量写出已排队的消息
			n := len(c.Send)
			for i := 0; i < n; i++ {
				batch, ok := <-c.Send
				if !ok {
					break
				}
				if err := c.Conn.WriteMessage(c.frameType, batch); err != nil {
					logger.L.Debug("Failed to write batched frame", zap.String("connID", c.ID), zap.Uint("userID", c.UserID), zap.Error(err))
					return
				}
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(c.settings.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.L.Debug("Failed to send ping", zap.String("connID", c.ID), zap.Error(err))
				return
			}
		}
	}
}
