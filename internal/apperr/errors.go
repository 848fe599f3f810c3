package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrUserNotFound      = errors.New("user not found")
	ErrInvalidMessage    = errors.New("invalid message")
	ErrClientClosed      = errors.New("client connection closed")
	ErrSendBufferFull    = errors.New("client send buffer full")
	ErrDispatchQueueFull = errors.New("delivery queue full")
)

// AuthError rejects a connection or request before anything is registered.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("authentication failed: %v", e.Err) }

func (e *AuthError) Unwrap() error { return e.Err }

// StoreError means a message was not persisted and must not be delivered.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store %s failed: %v", e.Op, e.Err) }

func (e *StoreError) Unwrap() error { return e.Err }

// PushError is a failed live push to one connection. It is logged, never returned to a client.
type PushError struct {
	ConnID string
	UserID uint
	Err    error
}

func (e *PushError) Error() string {
	return fmt.Sprintf("push to connection %s of user %d failed: %v", e.ConnID, e.UserID, e.Err)
}

func (e *PushError) Unwrap() error { return e.Err }

func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

func IsStoreError(err error) bool {
	var storeErr *StoreError
	return errors.As(err, &storeErr)
}
