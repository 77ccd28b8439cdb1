package core

import (
	"sort"
	"sync"
	"sync/atomic"
)

// State is a connection's position in the session lifecycle.
type State int32

const (
	// StateConnecting is a connection whose token has not been verified yet.
	StateConnecting State = iota
	// StateAuthenticated is a verified connection not yet attached to the hub.
	StateAuthenticated
	// StateActive accepts inbound actions.
	StateActive
	// StateDisconnecting is a connection being detached from the hub.
	StateDisconnecting
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateDisconnecting:
		return "disconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CloseReason says why the core asked the transport to drop a connection.
type CloseReason int

const (
	// CloseNone means the core has not asked for the connection to close.
	CloseNone CloseReason = iota
	// CloseSuperseded means a newer connection registered for the same identity.
	CloseSuperseded
	// CloseSlowConsumer means the outbound queue overflowed.
	CloseSlowConsumer
	// CloseShutdown means the hub stopped.
	CloseShutdown
)

func (r CloseReason) String() string {
	switch r {
	case CloseSuperseded:
		return "superseded by a newer connection"
	case CloseSlowConsumer:
		return "slow consumer"
	case CloseShutdown:
		return "server shutting down"
	default:
		return ""
	}
}

// DefaultSendBuffer is the outbound queue size used when none is configured.
const DefaultSendBuffer = 64

// Client is one live connection as seen by the core layer.
//
// Every event for the connection goes through its single outbound queue, so
// events arrive in the order the hub produced them.
type Client struct {
	ID       string
	Identity Identity

	events chan *Event
	done   chan struct{}

	state     atomic.Int32
	closeOnce sync.Once
	reason    atomic.Int32

	mu    sync.RWMutex
	rooms map[string]struct{}
}

// NewClient constructs a client in StateConnecting with an outbound queue of
// the given size.
func NewClient(id string, identity Identity, buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	if identity.DisplayName == "" {
		identity.DisplayName = identity.UserID
	}
	return &Client{
		ID:       id,
		Identity: identity,
		events:   make(chan *Event, buffer),
		done:     make(chan struct{}),
		rooms:    make(map[string]struct{}),
	}
}

// UserID is shorthand for c.Identity.UserID.
func (c *Client) UserID() string {
	return c.Identity.UserID
}

// Events is the connection's outbound queue.
func (c *Client) Events() <-chan *Event {
	return c.events
}

// Done is closed when the core wants the transport to drop the connection.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// CloseReason reports why Done was closed.
func (c *Client) CloseReason() CloseReason {
	return CloseReason(c.reason.Load())
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

// transition moves from one state to another and reports whether it happened.
func (c *Client) transition(from, to State) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

// Deliver queues an event without blocking. A full queue closes the
// connection as a slow consumer instead of dropping events silently.
func (c *Client) Deliver(ev *Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.events <- ev:
		return true
	default:
		c.close(CloseSlowConsumer)
		return false
	}
}

func (c *Client) close(reason CloseReason) {
	c.closeOnce.Do(func() {
		c.reason.Store(int32(reason))
		close(c.done)
	})
}

// Rooms returns the sorted names of rooms the client is subscribed to.
func (c *Client) Rooms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.rooms))
	for name := range c.rooms {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// InRoom reports whether the client is subscribed to room.
func (c *Client) InRoom(room string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.rooms[room]
	return ok
}

func (c *Client) addRoom(room string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rooms[room]; ok {
		return false
	}
	c.rooms[room] = struct{}{}
	return true
}

func (c *Client) clearRooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for name := range c.rooms {
		out = append(out, name)
	}
	c.rooms = make(map[string]struct{})
	return out
}
