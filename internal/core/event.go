package core

import "github.com/vovakirdan/wirechat-relay/internal/store"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventLoadMessages delivers the recent window to a client that just connected.
	EventLoadMessages EventKind = iota
	// EventNewMessage notifies room subscribers about a public message.
	EventNewMessage
	// EventPrivateMessage delivers a private message to its sender and recipient.
	EventPrivateMessage
	// EventMessageUpdated carries a message whose read receipts or reactions changed.
	EventMessageUpdated
	// EventOnlineUsers carries the full list of online user IDs.
	EventOnlineUsers
	// EventTyping relays a typing signal.
	EventTyping
	// EventNotification is a lightweight activity hint.
	EventNotification
	// EventUserJoined announces a newly connected user.
	EventUserJoined
	// EventUserLeft announces a disconnected user.
	EventUserLeft
	// EventJoinedRoom confirms a join-room command.
	EventJoinedRoom
	// EventAck answers a send-message command.
	EventAck
	// EventError notifies a client about a domain error.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventLoadMessages:
		return "load-messages"
	case EventNewMessage:
		return "new-message"
	case EventPrivateMessage:
		return "private-message"
	case EventMessageUpdated:
		return "message-updated"
	case EventOnlineUsers:
		return "online-users"
	case EventTyping:
		return "typing"
	case EventNotification:
		return "notification"
	case EventUserJoined:
		return "user-joined"
	case EventUserLeft:
		return "user-left"
	case EventJoinedRoom:
		return "joined-room"
	case EventAck:
		return "ack"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Notification types.
const (
	NotificationMessage = "message"
	NotificationInfo    = "info"
)

// Event is sent to clients to describe what happened in the system.
// Events are shared between recipients and must be treated as read-only.
type Event struct {
	Kind EventKind
	// Ref echoes the correlation ID of the command an ack or error answers.
	Ref          string
	Room         string
	User         *Identity
	Message      *store.Message
	Messages     []store.Message // For EventLoadMessages
	Online       []string        // For EventOnlineUsers
	Typing       *TypingSignal
	Notification *Notification
	Ack          *Ack
	Error        *CoreError
}

// TypingSignal is an ephemeral "is typing" indicator. Clients expire it on
// their own; the server keeps no typing state.
type TypingSignal struct {
	From     Identity
	Room     string
	To       string
	IsTyping bool
}

// Notification is an activity hint for UIs.
type Notification struct {
	Type string
	From string
	Text string
}

// ErrorEvent wraps err as an EventError answering the command with ref.
func ErrorEvent(ref string, err error) *Event {
	return &Event{Kind: EventError, Ref: ref, Error: AsCoreError(err)}
}

// FailedAck builds the ack event for a send-message that never reached the hub.
func FailedAck(ref string, err error) *Event {
	return &Event{Kind: EventAck, Ref: ref, Ack: &Ack{Ref: ref, Status: AckError, Error: AsCoreError(err)}}
}
