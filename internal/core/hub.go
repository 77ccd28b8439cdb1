package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/store"
	"github.com/vovakirdan/wirechat-relay/internal/store/memory"
)

// Field limits enforced by the hub.
const (
	MaxTextBytes     = 4096
	MaxRoomBytes     = 64
	MaxReactionBytes = 32
)

// DefaultGlobalRoom is the room every connection joins on attach.
const DefaultGlobalRoom = memory.DefaultRoom

type opKind int

const (
	opAttach opKind = iota
	opDetach
	opCommand
)

type op struct {
	kind   opKind
	client *Client
	cmd    Command
	reply  chan opResult
}

type opResult struct {
	ack Ack
	err error
}

// Hub is the single sequencing point of the chat core. Attach, detach and every
// client command run one at a time on the goroutine started by Run, so all
// recipients observe events in the order the hub accepted the actions.
type Hub struct {
	store        store.MessageStore
	presence     *Presence
	rooms        *Rooms
	router       *Router
	activity     ActivitySink
	log          *zerolog.Logger
	globalRoom   string
	historyLimit int
	now          func() time.Time

	ops      chan op
	stopped  chan struct{}
	stopOnce sync.Once
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(logger *zerolog.Logger) HubOption {
	return func(h *Hub) {
		if logger != nil {
			h.log = logger
		}
	}
}

// WithGlobalRoom overrides the room joined on attach.
func WithGlobalRoom(room string) HubOption {
	return func(h *Hub) {
		if room != "" {
			h.globalRoom = room
		}
	}
}

// WithHistoryLimit sets the size of the recent window sent on attach.
func WithHistoryLimit(limit int) HubOption {
	return func(h *Hub) {
		if limit > 0 {
			h.historyLimit = limit
		}
	}
}

// WithActivitySink publishes accepted actions to sink.
func WithActivitySink(sink ActivitySink) HubOption {
	return func(h *Hub) {
		h.activity = sink
	}
}

// WithPresence shares an existing presence registry with the hub.
func WithPresence(p *Presence) HubOption {
	return func(h *Hub) {
		if p != nil {
			h.presence = p
		}
	}
}

// NewHub creates a hub over st. A nil store gets an in-memory one.
func NewHub(st store.MessageStore, opts ...HubOption) *Hub {
	nop := zerolog.Nop()
	h := &Hub{
		store:        st,
		presence:     NewPresence(),
		rooms:        NewRooms(),
		log:          &nop,
		globalRoom:   DefaultGlobalRoom,
		historyLimit: store.DefaultHistoryLimit,
		now:          time.Now,
		ops:          make(chan op),
		stopped:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.store == nil {
		h.store = memory.New(memory.WithDefaultRoom(h.globalRoom))
	}
	h.router = NewRouter(h.presence, h.rooms, h.globalRoom, h.log)
	return h
}

// Run processes operations until ctx is cancelled. On return every attached
// connection is asked to close.
func (h *Hub) Run(ctx context.Context) {
	defer h.stop()

	h.log.Info().Str("global_room", h.globalRoom).Msg("hub started")
	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("hub stopping")
			return
		case o := <-h.ops:
			res := h.handle(o)
			o.reply <- res
		}
	}
}

func (h *Hub) stop() {
	h.stopOnce.Do(func() {
		close(h.stopped)
		for _, c := range h.presence.Clients() {
			c.close(CloseShutdown)
		}
	})
}

// Attach runs the connect sequence for an authenticated client: join the
// global room, register presence, send the recent window and announce the user.
func (h *Hub) Attach(ctx context.Context, c *Client) error {
	res, err := h.submit(ctx, op{kind: opAttach, client: c})
	if err != nil {
		return err
	}
	return res.err
}

// Detach runs the disconnect sequence. It is safe to call more than once.
func (h *Hub) Detach(c *Client) {
	// Detach runs during connection teardown, when request contexts are gone.
	_, _ = h.submit(context.Background(), op{kind: opDetach, client: c})
}

// Dispatch executes a client command. Commands from connections that are not
// Active are discarded with ErrNotActive. For send-message the returned Ack is
// also queued to the sender.
func (h *Hub) Dispatch(ctx context.Context, c *Client, cmd Command) (Ack, error) {
	res, err := h.submit(ctx, op{kind: opCommand, client: c, cmd: cmd})
	if err != nil {
		return Ack{Ref: cmd.Ref, Status: AckError, Error: AsCoreError(err)}, err
	}
	return res.ack, res.err
}

func (h *Hub) submit(ctx context.Context, o op) (opResult, error) {
	o.reply = make(chan opResult, 1)

	select {
	case h.ops <- o:
	case <-h.stopped:
		return opResult{}, ErrHubStopped
	case <-ctx.Done():
		return opResult{}, ctx.Err()
	}

	// Once accepted, the hub always answers before looking at ops again.
	return <-o.reply, nil
}

func (h *Hub) handle(o op) opResult {
	switch o.kind {
	case opAttach:
		return opResult{err: h.attach(o.client)}
	case opDetach:
		h.detach(o.client)
		return opResult{}
	case opCommand:
		return h.command(o.client, o.cmd)
	default:
		return opResult{err: fmt.Errorf("unknown op %d", o.kind)}
	}
}

func (h *Hub) attach(c *Client) error {
	if c.State() != StateAuthenticated {
		return fmt.Errorf("attach %s in state %s: %w", c.ID, c.State(), ErrNotActive)
	}

	h.rooms.Join(h.globalRoom, c)
	if previous := h.presence.Register(c); previous != nil {
		h.rooms.LeaveAll(previous)
		previous.setState(StateDisconnecting)
		previous.close(CloseSuperseded)
		h.log.Info().
			Str("user_id", c.UserID()).
			Str("old_conn", previous.ID).
			Str("new_conn", c.ID).
			Msg("connection superseded")
	}
	c.setState(StateActive)

	h.router.ToAll(&Event{Kind: EventOnlineUsers, Online: h.presence.OnlineUserIDs()}, nil)
	c.Deliver(&Event{
		Kind:     EventLoadMessages,
		Room:     h.globalRoom,
		Messages: h.store.RecentWindow(h.globalRoom, h.historyLimit),
	})
	user := c.Identity
	h.router.ToAll(&Event{Kind: EventUserJoined, User: &user}, c)

	h.record(ActivityUserOnline, c.UserID(), h.globalRoom, "")
	h.log.Info().Str("user_id", c.UserID()).Str("conn_id", c.ID).Msg("client attached")
	return nil
}

func (h *Hub) detach(c *Client) {
	if c.State() == StateClosed {
		return
	}
	c.setState(StateDisconnecting)

	h.rooms.LeaveAll(c)
	removed := h.presence.Unregister(c)
	c.setState(StateClosed)

	if !removed {
		h.log.Debug().Str("user_id", c.UserID()).Str("conn_id", c.ID).Msg("stale connection detached")
		return
	}

	h.router.ToAll(&Event{Kind: EventOnlineUsers, Online: h.presence.OnlineUserIDs()}, nil)
	user := c.Identity
	h.router.ToAll(&Event{Kind: EventUserLeft, User: &user}, nil)

	h.record(ActivityUserOffline, c.UserID(), "", "")
	h.log.Info().Str("user_id", c.UserID()).Str("conn_id", c.ID).Msg("client detached")
}

func (h *Hub) command(c *Client, cmd Command) opResult {
	if c.State() != StateActive {
		return opResult{
			ack: Ack{Ref: cmd.Ref, Status: AckError, Error: AsCoreError(ErrNotActive)},
			err: ErrNotActive,
		}
	}

	switch cmd.Kind {
	case CommandSendMessage:
		ack, err := h.sendMessage(c, cmd)
		c.Deliver(&Event{Kind: EventAck, Ref: ack.Ref, Ack: &ack})
		return opResult{ack: ack, err: err}
	case CommandTyping:
		return opResult{err: h.typing(c, cmd)}
	case CommandMarkRead:
		return opResult{err: h.markRead(c, cmd)}
	case CommandAddReaction:
		return opResult{err: h.addReaction(c, cmd)}
	case CommandJoinRoom:
		return opResult{err: h.joinRoom(c, cmd)}
	default:
		return opResult{err: validationError("unknown command")}
	}
}

func (h *Hub) sendMessage(c *Client, cmd Command) (Ack, error) {
	fail := func(err *CoreError) (Ack, error) {
		return Ack{Ref: cmd.Ref, Status: AckError, Error: err}, err
	}

	if strings.TrimSpace(cmd.Text) == "" {
		return fail(validationError("text is required"))
	}
	if len(cmd.Text) > MaxTextBytes {
		return fail(validationError("text is too long"))
	}
	if len(cmd.Room) > MaxRoomBytes {
		return fail(validationError("room name is too long"))
	}

	room := cmd.Room
	if cmd.To == "" {
		if room == "" {
			room = h.globalRoom
		}
		if !c.InRoom(room) {
			return fail(coreError(ErrCodeNotInRoom, "join the room before sending to it", ErrNotInRoom))
		}
	}

	msg := h.store.Append(store.Message{
		Room:            room,
		FromUserID:      c.UserID(),
		FromDisplayName: c.Identity.DisplayName,
		ToUserID:        cmd.To,
		Text:            cmd.Text,
	})
	delivered := h.router.RouteMessage(c, msg)

	h.record(ActivityMessageCreated, c.UserID(), msg.Room, msg.ID)
	h.log.Debug().
		Str("message_id", msg.ID).
		Str("room", msg.Room).
		Bool("private", msg.IsPrivate()).
		Int("delivered", delivered).
		Msg("message accepted")

	return Ack{Ref: cmd.Ref, Status: AckOK, ID: msg.ID}, nil
}

func (h *Hub) typing(c *Client, cmd Command) error {
	sig := TypingSignal{From: c.Identity, To: cmd.To, IsTyping: cmd.IsTyping}
	if cmd.To == "" {
		sig.Room = cmd.Room
		if sig.Room == "" {
			sig.Room = h.globalRoom
		}
		if !c.InRoom(sig.Room) {
			return coreError(ErrCodeNotInRoom, "join the room before typing in it", ErrNotInRoom)
		}
	}
	h.router.RouteTyping(c, sig)
	return nil
}

func (h *Hub) markRead(c *Client, cmd Command) error {
	if _, err := h.visibleMessage(c, cmd.MessageID); err != nil {
		return err
	}

	msg, changed, err := h.store.MarkRead(cmd.MessageID, c.UserID())
	if err != nil {
		return h.notFound("mark-read", c, cmd.MessageID)
	}
	if changed {
		h.router.RouteUpdate(msg)
		h.record(ActivityMessageUpdated, c.UserID(), msg.Room, msg.ID)
	}
	return nil
}

func (h *Hub) addReaction(c *Client, cmd Command) error {
	symbol := strings.TrimSpace(cmd.Reaction)
	if symbol == "" {
		return validationError("reaction is required")
	}
	if len(symbol) > MaxReactionBytes {
		return validationError("reaction is too long")
	}
	if _, err := h.visibleMessage(c, cmd.MessageID); err != nil {
		return err
	}

	msg, changed, err := h.store.AddReaction(cmd.MessageID, symbol, c.UserID())
	if err != nil {
		return h.notFound("add-reaction", c, cmd.MessageID)
	}
	if changed {
		h.router.RouteUpdate(msg)
		h.record(ActivityMessageUpdated, c.UserID(), msg.Room, msg.ID)
	}
	return nil
}

// visibleMessage finds a message the client may mark or react to. Private
// messages are only visible to their two parties.
func (h *Hub) visibleMessage(c *Client, id string) (store.Message, error) {
	if id == "" {
		return store.Message{}, validationError("messageId is required")
	}
	msg, ok := h.store.FindByID(id)
	if !ok || (msg.IsPrivate() && !msg.Involves(c.UserID())) {
		return store.Message{}, h.notFound("lookup", c, id)
	}
	return msg, nil
}

func (h *Hub) notFound(action string, c *Client, id string) error {
	h.log.Warn().
		Str("action", action).
		Str("user_id", c.UserID()).
		Str("message_id", id).
		Msg("unknown message")
	return coreError(ErrCodeNotFound, "message not found", ErrNotFound)
}

func (h *Hub) joinRoom(c *Client, cmd Command) error {
	room := strings.TrimSpace(cmd.Room)
	if room == "" {
		return validationError("room is required")
	}
	if len(room) > MaxRoomBytes {
		return validationError("room name is too long")
	}

	added := h.rooms.Join(room, c)
	c.Deliver(&Event{Kind: EventJoinedRoom, Room: room})
	if !added {
		return nil
	}

	h.router.ToRoom(room, &Event{
		Kind: EventNotification,
		Room: room,
		Notification: &Notification{
			Type: NotificationInfo,
			From: c.UserID(),
			Text: fmt.Sprintf("%s joined %s", c.Identity.DisplayName, room),
		},
	}, c)
	h.record(ActivityRoomJoined, c.UserID(), room, "")
	return nil
}

func (h *Hub) record(kind ActivityKind, userID, room, messageID string) {
	if h.activity == nil {
		return
	}
	h.activity.Record(Activity{
		Kind:      kind,
		UserID:    userID,
		Room:      room,
		MessageID: messageID,
		At:        h.now(),
	})
}

// GlobalRoom returns the room every connection joins on attach.
func (h *Hub) GlobalRoom() string {
	return h.globalRoom
}

// HistoryLimit returns the size of the recent window.
func (h *Hub) HistoryLimit() int {
	return h.historyLimit
}

// Presence exposes the presence registry for read-only queries.
func (h *Hub) Presence() *Presence {
	return h.presence
}

// Rooms exposes the room index for read-only queries.
func (h *Hub) Rooms() *Rooms {
	return h.rooms
}

// Store exposes the message store for read-only queries.
func (h *Hub) Store() store.MessageStore {
	return h.store
}

// RecentWindow returns the recent public messages of room, capped at the hub's
// history limit.
func (h *Hub) RecentWindow(room string, limit int) []store.Message {
	if limit <= 0 || limit > h.historyLimit {
		limit = h.historyLimit
	}
	if room == "" {
		room = h.globalRoom
	}
	return h.store.RecentWindow(room, limit)
}
