package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandSendMessage posts a public or private chat message.
	CommandSendMessage CommandKind = iota
	// CommandTyping relays an ephemeral typing signal.
	CommandTyping
	// CommandMarkRead records a read receipt.
	CommandMarkRead
	// CommandAddReaction records a reaction.
	CommandAddReaction
	// CommandJoinRoom subscribes the client to a room.
	CommandJoinRoom
)

func (k CommandKind) String() string {
	switch k {
	case CommandSendMessage:
		return "send-message"
	case CommandTyping:
		return "typing"
	case CommandMarkRead:
		return "mark-read"
	case CommandAddReaction:
		return "add-reaction"
	case CommandJoinRoom:
		return "join-room"
	default:
		return "unknown"
	}
}

// Command represents an action requested by a client.
type Command struct {
	Kind CommandKind
	// Ref is an optional client correlation ID echoed in the ack.
	Ref       string
	Room      string
	To        string
	Text      string
	IsTyping  bool
	MessageID string
	Reaction  string
}

// Ack statuses.
const (
	AckOK    = "ok"
	AckError = "error"
)

// Ack is the synchronous result of a send-message command.
type Ack struct {
	Ref    string
	Status string
	ID     string
	Error  *CoreError
}

// OK reports whether the command was accepted.
func (a Ack) OK() bool {
	return a.Status == AckOK
}
