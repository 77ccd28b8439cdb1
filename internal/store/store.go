package store

import (
	"errors"
	"slices"
)

// DefaultHistoryLimit caps the recent window when the caller passes no limit.
const DefaultHistoryLimit = 100

// ErrMessageNotFound is returned when a message ID is unknown to the store.
var ErrMessageNotFound = errors.New("message not found")

// Message is a single chat message record.
//
// ReadBy and the per-symbol reaction lists are sets kept in insertion order.
type Message struct {
	ID              string
	Room            string
	FromUserID      string
	FromDisplayName string
	ToUserID        string // empty for public messages
	Text            string
	Timestamp       int64 // unix milliseconds, non-decreasing in append order
	Seq             int64
	ReadBy          []string
	Reactions       map[string][]string
}

// IsPrivate reports whether the message is addressed to a single user.
func (m Message) IsPrivate() bool {
	return m.ToUserID != ""
}

// Involves reports whether userID is the sender or the recipient of a private message.
func (m Message) Involves(userID string) bool {
	return m.FromUserID == userID || m.ToUserID == userID
}

// HasRead reports whether userID is in ReadBy.
func (m Message) HasRead(userID string) bool {
	return slices.Contains(m.ReadBy, userID)
}

// Clone returns a deep copy that shares no slices or maps with m.
func (m Message) Clone() Message {
	out := m
	out.ReadBy = slices.Clone(m.ReadBy)
	if m.ReadBy == nil {
		out.ReadBy = []string{}
	}
	out.Reactions = make(map[string][]string, len(m.Reactions))
	for symbol, users := range m.Reactions {
		out.Reactions[symbol] = slices.Clone(users)
	}
	return out
}

// MessageStore is the message log used by the chat core.
type MessageStore interface {
	// Append assigns ID, timestamp and sequence to msg, stores it at the tail
	// and returns the stored record.
	Append(msg Message) Message

	// RecentWindow returns up to limit public messages of room, oldest first.
	// A non-positive limit means DefaultHistoryLimit.
	RecentWindow(room string, limit int) []Message

	// FindByID retrieves a message by ID.
	FindByID(id string) (Message, bool)

	// MarkRead records that userID has read the message. changed is false when
	// the user was already recorded.
	MarkRead(id, userID string) (msg Message, changed bool, err error)

	// AddReaction records userID under symbol. changed is false when the user
	// already reacted with that symbol.
	AddReaction(id, symbol, userID string) (msg Message, changed bool, err error)

	// Len returns the number of stored messages.
	Len() int
}
