package core

import "time"

// ActivityKind names something the hub accepted.
type ActivityKind string

const (
	ActivityMessageCreated ActivityKind = "message.created"
	ActivityMessageUpdated ActivityKind = "message.updated"
	ActivityUserOnline     ActivityKind = "presence.online"
	ActivityUserOffline    ActivityKind = "presence.offline"
	ActivityRoomJoined     ActivityKind = "room.joined"
)

// Activity is a record of an accepted action, published for observers outside
// the delivery path.
type Activity struct {
	Kind      ActivityKind `json:"kind"`
	UserID    string       `json:"user_id"`
	Room      string       `json:"room,omitempty"`
	MessageID string       `json:"message_id,omitempty"`
	At        time.Time    `json:"at"`
}

// ActivitySink receives activity from the hub goroutine. Record must not block.
type ActivitySink interface {
	Record(Activity)
}
