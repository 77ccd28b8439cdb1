package core

import (
	"sort"
	"sync"
)

// Room groups clients subscribed to the same channel.
type Room struct {
	Name    string
	clients map[*Client]struct{}
}

// NewRoom constructs a room with no clients.
func NewRoom(name string) *Room {
	return &Room{
		Name:    name,
		clients: make(map[*Client]struct{}),
	}
}

// AddClient inserts a client into the room. Returns true if newly added.
func (r *Room) AddClient(c *Client) bool {
	if _, exists := r.clients[c]; exists {
		return false
	}
	r.clients[c] = struct{}{}
	return true
}

// RemoveClient deletes a client from the room. Returns true if removed.
func (r *Room) RemoveClient(c *Client) bool {
	if _, exists := r.clients[c]; !exists {
		return false
	}
	delete(r.clients, c)
	return true
}

// Empty returns true if no clients are in the room.
func (r *Room) Empty() bool {
	return len(r.clients) == 0
}

// Rooms is the index of named rooms and their subscribers.
type Rooms struct {
	mu     sync.RWMutex
	byName map[string]*Room
}

// NewRooms creates an empty room index.
func NewRooms() *Rooms {
	return &Rooms{byName: make(map[string]*Room)}
}

// Join subscribes c to the named room, creating it on demand.
// Returns false if c was already subscribed.
func (rs *Rooms) Join(name string, c *Client) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	room, ok := rs.byName[name]
	if !ok {
		room = NewRoom(name)
		rs.byName[name] = room
	}
	added := room.AddClient(c)
	if added {
		c.addRoom(name)
	}
	return added
}

// LeaveAll removes c from every room it is subscribed to. Empty rooms are dropped.
func (rs *Rooms) LeaveAll(c *Client) []string {
	names := c.clearRooms()

	rs.mu.Lock()
	defer rs.mu.Unlock()
	for _, name := range names {
		room, ok := rs.byName[name]
		if !ok {
			continue
		}
		room.RemoveClient(c)
		if room.Empty() {
			delete(rs.byName, name)
		}
	}
	return names
}

// Members returns a snapshot of the clients subscribed to the named room.
func (rs *Rooms) Members(name string) []*Client {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	room, ok := rs.byName[name]
	if !ok {
		return nil
	}
	out := make([]*Client, 0, len(room.clients))
	for c := range room.clients {
		out = append(out, c)
	}
	return out
}

// Names returns the sorted names of rooms that have at least one subscriber.
func (rs *Rooms) Names() []string {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make([]string, 0, len(rs.byName))
	for name := range rs.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
