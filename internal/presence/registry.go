// Package presence tracks which users are reachable over a live connection.
package presence

import (
	"slices"
	"sync"

	"go-direct-chat/internal/interfaces"

	"github.com/samber/lo"
)

// Registry maps a user to the set of its live connection handles. A user with no handles has no
// entry at all. The registry never closes a handle; the connection manager owns them.
//
// All operations serialize on one RWMutex, so every snapshot reflects a state between two mutations.
type Registry struct {
	mu    sync.RWMutex
	users map[uint]map[string]interfaces.Client // userID -> connID -> handle
	conns map[string]uint                       // connID -> userID
}

func NewRegistry() *Registry {
	return &Registry{
		users: make(map[uint]map[string]interfaces.Client),
		conns: make(map[string]uint),
	}
}

// Register adds client under userID. It reports whether this is the user's first live connection.
// Registering a handle that is already present is a no-op; a handle registered under another
// user is moved.
func (r *Registry) Register(userID uint, client interfaces.Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	connID := client.GetID()
	if owner, ok := r.conns[connID]; ok {
		if owner == userID {
			return false
		}
		r.removeLocked(owner, connID)
	}

	handles, ok := r.users[userID]
	if !ok {
		handles = make(map[string]interfaces.Client)
		r.users[userID] = handles
	}
	handles[connID] = client
	r.conns[connID] = userID
	return !ok
}

// Deregister removes client from userID's set and reports whether that was the user's last
// connection. Unknown users or handles are ignored.
func (r *Registry) Deregister(userID uint, client interfaces.Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	connID := client.GetID()
	if owner, ok := r.conns[connID]; !ok || owner != userID {
		return false
	}
	return r.removeLocked(userID, connID)
}

func (r *Registry) removeLocked(userID uint, connID string) bool {
	delete(r.conns, connID)
	handles, ok := r.users[userID]
	if !ok {
		return false
	}
	delete(handles, connID)
	if len(handles) == 0 {
		delete(r.users, userID)
		return true
	}
	return false
}

func (r *Registry) IsOnline(userID uint) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

// LiveHandles returns a copy of the user's handles; nil when offline.
func (r *Registry) LiveHandles(userID uint) []interfaces.Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handles := r.users[userID]
	if len(handles) == 0 {
		return nil
	}
	return lo.Values(handles)
}

// OnlineUsers returns the ids of every user with at least one handle, ascending.
func (r *Registry) OnlineUsers() []uint {
	r.mu.RLock()
	ids := lo.Keys(r.users)
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
