package core

import (
	"sort"
	"sync"
)

// Presence maps each online identity to its one active connection.
// The connection side of the mapping is Client.Identity.
type Presence struct {
	mu     sync.RWMutex
	byUser map[string]*Client
}

// NewPresence creates an empty registry.
func NewPresence() *Presence {
	return &Presence{byUser: make(map[string]*Client)}
}

// Register makes c the active connection for its identity and returns the
// connection it replaced, if any. Last writer wins.
func (p *Presence) Register(c *Client) *Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	previous := p.byUser[c.UserID()]
	p.byUser[c.UserID()] = c
	if previous == c {
		return nil
	}
	return previous
}

// Unregister removes the entry for c's identity only if c is still the
// registered connection. A superseded connection cannot remove its successor.
func (p *Presence) Unregister(c *Client) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.byUser[c.UserID()] != c {
		return false
	}
	delete(p.byUser, c.UserID())
	return true
}

// Lookup returns the active connection for userID.
func (p *Presence) Lookup(userID string) (*Client, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.byUser[userID]
	return c, ok
}

// OnlineUserIDs returns a sorted snapshot of online user IDs.
func (p *Presence) OnlineUserIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.byUser))
	for id := range p.byUser {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Clients returns a snapshot of every active connection.
func (p *Presence) Clients() []*Client {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Client, 0, len(p.byUser))
	for _, c := range p.byUser {
		out = append(out, c)
	}
	return out
}

// Count returns the number of online identities.
func (p *Presence) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byUser)
}
