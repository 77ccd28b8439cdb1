package core

import (
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// Router decides which connections receive an event. It only reads Presence
// and Rooms; every delivery goes through the recipient's outbound queue.
type Router struct {
	presence   *Presence
	rooms      *Rooms
	globalRoom string
	log        *zerolog.Logger
}

// NewRouter builds a router over the given registries.
func NewRouter(presence *Presence, rooms *Rooms, globalRoom string, logger *zerolog.Logger) *Router {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Router{
		presence:   presence,
		rooms:      rooms,
		globalRoom: globalRoom,
		log:        logger,
	}
}

// RouteMessage fans out a freshly stored message from origin.
func (r *Router) RouteMessage(origin *Client, msg store.Message) int {
	if msg.IsPrivate() {
		return r.routePrivate(origin, msg)
	}

	delivered := r.ToRoom(msg.Room, &Event{Kind: EventNewMessage, Room: msg.Room, Message: &msg}, nil)

	// Everyone online gets the hint, origin included; UIs de-duplicate by identity.
	r.ToAll(&Event{
		Kind: EventNotification,
		Notification: &Notification{
			Type: NotificationMessage,
			From: msg.FromUserID,
			Text: msg.Text,
		},
	}, nil)
	return delivered
}

func (r *Router) routePrivate(origin *Client, msg store.Message) int {
	ev := &Event{Kind: EventPrivateMessage, Message: &msg}
	delivered := 0
	if origin.Deliver(ev) {
		delivered++
	}

	target, ok := r.presence.Lookup(msg.ToUserID)
	if !ok {
		r.log.Debug().
			Str("message_id", msg.ID).
			Str("to", msg.ToUserID).
			Msg("private message target offline, stored without live delivery")
		return delivered
	}
	if target == origin {
		return delivered
	}
	if target.Deliver(ev) {
		delivered++
	}
	target.Deliver(&Event{
		Kind: EventNotification,
		Notification: &Notification{
			Type: NotificationMessage,
			From: msg.FromUserID,
			Text: msg.Text,
		},
	})
	return delivered
}

// RouteTyping relays a typing signal to one user or to a room, never back to origin.
func (r *Router) RouteTyping(origin *Client, sig TypingSignal) int {
	ev := &Event{Kind: EventTyping, Room: sig.Room, Typing: &sig}
	if sig.To != "" {
		target, ok := r.presence.Lookup(sig.To)
		if !ok || target == origin {
			return 0
		}
		if target.Deliver(ev) {
			return 1
		}
		return 0
	}
	return r.ToRoom(sig.Room, ev, origin)
}

// RouteUpdate rebroadcasts a message whose read receipts or reactions changed.
// Public messages go to their room; private messages only to the two parties.
func (r *Router) RouteUpdate(msg store.Message) int {
	ev := &Event{Kind: EventMessageUpdated, Room: msg.Room, Message: &msg}
	if !msg.IsPrivate() {
		room := msg.Room
		if room == "" {
			room = r.globalRoom
		}
		return r.ToRoom(room, ev, nil)
	}

	delivered := 0
	if sender, ok := r.presence.Lookup(msg.FromUserID); ok && sender.Deliver(ev) {
		delivered++
	}
	if msg.ToUserID == msg.FromUserID {
		return delivered
	}
	if target, ok := r.presence.Lookup(msg.ToUserID); ok && target.Deliver(ev) {
		delivered++
	}
	return delivered
}

// ToRoom delivers ev to every subscriber of room except the given client.
func (r *Router) ToRoom(room string, ev *Event, except *Client) int {
	delivered := 0
	for _, c := range r.rooms.Members(room) {
		if c == except {
			continue
		}
		if c.Deliver(ev) {
			delivered++
		}
	}
	return delivered
}

// ToAll delivers ev to every online connection except the given client.
func (r *Router) ToAll(ev *Event, except *Client) int {
	delivered := 0
	for _, c := range r.presence.Clients() {
		if c == except {
			continue
		}
		if c.Deliver(ev) {
			delivered++
		}
	}
	return delivered
}
