package activity

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/core"
)

// Stats are counters kept by a Recorder.
type Stats struct {
	MessagesCreated int64     `json:"messagesCreated"`
	MessagesUpdated int64     `json:"messagesUpdated"`
	Connects        int64     `json:"connects"`
	Disconnects     int64     `json:"disconnects"`
	RoomJoins       int64     `json:"roomJoins"`
	LastActivity    time.Time `json:"lastActivity,omitzero"`
}

// Recorder logs activity and keeps counters for the stats endpoint.
type Recorder struct {
	mu    sync.RWMutex
	stats Stats
	log   *zerolog.Logger
}

// NewRecorder creates a recorder.
func NewRecorder(logger *zerolog.Logger) *Recorder {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Recorder{log: logger}
}

// Handle is a Handler for Feed.Subscribe.
func (r *Recorder) Handle(_ context.Context, a core.Activity) error {
	r.mu.Lock()
	switch a.Kind {
	case core.ActivityMessageCreated:
		r.stats.MessagesCreated++
	case core.ActivityMessageUpdated:
		r.stats.MessagesUpdated++
	case core.ActivityUserOnline:
		r.stats.Connects++
	case core.ActivityUserOffline:
		r.stats.Disconnects++
	case core.ActivityRoomJoined:
		r.stats.RoomJoins++
	}
	if a.At.After(r.stats.LastActivity) {
		r.stats.LastActivity = a.At
	}
	r.mu.Unlock()

	r.log.Debug().
		Str("kind", string(a.Kind)).
		Str("user_id", a.UserID).
		Str("room", a.Room).
		Str("message_id", a.MessageID).
		Msg("activity")
	return nil
}

// Stats returns a snapshot of the counters.
func (r *Recorder) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}
