package mocks

import (
	"sync"

	"go-direct-chat/internal/apperr"

	"github.com/google/uuid"
)

// FakeClient is an in-memory connection handle that records every pushed frame.
type FakeClient struct {
	ID     string
	UserID uint

	// Received gets a copy of every accepted frame.
	Received chan []byte

	mu      sync.Mutex
	frames  [][]byte
	failErr error
	closes  int
}

func NewFakeClient(userID uint) *FakeClient {
	return &FakeClient{
		ID:       uuid.NewString(),
		UserID:   userID,
		Received: make(chan []byte, 64),
	}
}

func (c *FakeClient) GetID() string { return c.ID }

func (c *FakeClient) GetUserID() uint { return c.UserID }

func (c *FakeClient) QueueBytes(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closes > 0 {
		return apperr.ErrClientClosed
	}
	if c.failErr != nil {
		return c.failErr
	}
	c.frames = append(c.frames, data)
	select {
	case c.Received <- data:
	default:
	}
	return nil
}

func (c *FakeClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
}

// FailWith makes every later QueueBytes return err.
func (c *FakeClient) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failErr = err
}

func (c *FakeClient) Frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.frames...)
}

func (c *FakeClient) CloseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}
