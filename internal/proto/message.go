package proto

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Ref  string          `json:"ref,omitempty"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeHello       = "hello"
	InboundTypeSendMessage = "send-message"
	InboundTypeTyping      = "typing"
	InboundTypeMarkRead    = "mark-read"
	InboundTypeAddReaction = "add-reaction"
	InboundTypeJoinRoom    = "join-room"

	OutboundTypeEvent = "event"
	OutboundTypeAck   = "ack"
	OutboundTypeError = "error"
)

// HelloData carries the handshake token when it was not sent with the upgrade request.
type HelloData struct {
	Token string `json:"token" validate:"required"`
}

// SendMessageData posts a message to a room, or privately when To is set.
type SendMessageData struct {
	Room string `json:"room,omitempty" validate:"max=64"`
	To   string `json:"to,omitempty" validate:"max=64"`
	Text string `json:"text" validate:"max=4096"`
}

// TypingData starts or stops a typing indicator.
type TypingData struct {
	Room     string `json:"room,omitempty" validate:"max=64"`
	To       string `json:"to,omitempty" validate:"max=64"`
	IsTyping bool   `json:"isTyping"`
}

// MarkReadData records a read receipt.
type MarkReadData struct {
	MessageID string `json:"messageId" validate:"required"`
}

// AddReactionData adds the caller to a reaction bucket.
type AddReactionData struct {
	MessageID string `json:"messageId" validate:"required"`
	Reaction  string `json:"reaction" validate:"required,max=32"`
}

// JoinRoomData requests to join a specific room.
type JoinRoomData struct {
	Room string `json:"room" validate:"required,max=64"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Ref   string `json:"ref,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// MessageView is the wire form of a stored message.
type MessageView struct {
	ID        string              `json:"id"`
	Room      string              `json:"room,omitempty"`
	From      string              `json:"from"`
	FromName  string              `json:"fromName"`
	To        string              `json:"to,omitempty"`
	Text      string              `json:"text"`
	Timestamp int64               `json:"timestamp"`
	ReadBy    []string            `json:"readBy"`
	Reactions map[string][]string `json:"reactions"`
}

// LoadMessagesView is the recent window sent after connecting.
type LoadMessagesView struct {
	Room     string        `json:"room"`
	Messages []MessageView `json:"messages"`
}

// OnlineUsersView lists every online user ID.
type OnlineUsersView struct {
	Users []string `json:"users"`
}

// UserView describes a user in presence events.
type UserView struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// TypingView relays a typing signal.
type TypingView struct {
	From     string `json:"from"`
	FromName string `json:"fromName"`
	Room     string `json:"room,omitempty"`
	To       string `json:"to,omitempty"`
	IsTyping bool   `json:"isTyping"`
}

// NotificationView is an activity hint.
type NotificationView struct {
	Type string `json:"type"`
	From string `json:"from"`
	Room string `json:"room,omitempty"`
	Text string `json:"text"`
}

// RoomView confirms a room subscription.
type RoomView struct {
	Room string `json:"room"`
}

// AckView answers send-message.
type AckView struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// validate is shared so struct metadata is cached once.
var validate = validator.New()

// Decode unmarshals raw into dst and checks its validate tags.
func Decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}
