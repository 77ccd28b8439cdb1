package memory

import (
	"slices"
	"sync"
	"time"

	"github.com/vovakirdan/wirechat-relay/internal/store"
	"github.com/vovakirdan/wirechat-relay/internal/utils"
)

// DefaultRoom is the room public messages land in when none is given.
const DefaultRoom = "global"

// Store keeps every message in process memory for the lifetime of the server.
//
// The log and ID index are guarded by mu; each record carries its own mutex so
// read receipts and reactions on one message serialize without blocking appends.
type Store struct {
	mu     sync.RWMutex
	log    []*record
	byID   map[string]*record
	seq    int64
	lastTS int64
	room   string
	now    func() time.Time
	newID  func() string
}

type record struct {
	mu  sync.Mutex
	msg store.Message
}

// Option configures a Store.
type Option func(*Store)

// WithDefaultRoom overrides the room used for public messages without one.
func WithDefaultRoom(room string) Option {
	return func(s *Store) {
		if room != "" {
			s.room = room
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides the message ID generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		byID:  make(map[string]*record),
		room:  DefaultRoom,
		now:   time.Now,
		newID: utils.NewID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append stores msg at the tail of the log.
func (s *Store) Append(msg store.Message) store.Message {
	msg = msg.Clone()
	if msg.Room == "" && !msg.IsPrivate() {
		msg.Room = s.room
	}
	msg.ReadBy = msg.ReadBy[:0]
	if !msg.IsPrivate() {
		msg.ReadBy = append(msg.ReadBy, msg.FromUserID)
	}
	msg.Reactions = make(map[string][]string)

	s.mu.Lock()
	defer s.mu.Unlock()

	msg.ID = s.newID()
	for s.byID[msg.ID] != nil {
		msg.ID = s.newID()
	}
	s.seq++
	msg.Seq = s.seq
	ts := s.now().UnixMilli()
	if ts < s.lastTS {
		ts = s.lastTS
	}
	s.lastTS = ts
	msg.Timestamp = ts

	rec := &record{msg: msg}
	s.log = append(s.log, rec)
	s.byID[msg.ID] = rec

	return msg.Clone()
}

// RecentWindow returns the last limit public messages of room, oldest first.
func (s *Store) RecentWindow(room string, limit int) []store.Message {
	if limit <= 0 {
		limit = store.DefaultHistoryLimit
	}
	if room == "" {
		room = s.room
	}

	s.mu.RLock()
	picked := make([]*record, 0, min(limit, len(s.log)))
	for i := len(s.log) - 1; i >= 0 && len(picked) < limit; i-- {
		rec := s.log[i]
		// Room and ToUserID never change after append, no record lock needed.
		if rec.msg.IsPrivate() || rec.msg.Room != room {
			continue
		}
		picked = append(picked, rec)
	}
	s.mu.RUnlock()

	slices.Reverse(picked)
	out := make([]store.Message, 0, len(picked))
	for _, rec := range picked {
		out = append(out, rec.snapshot())
	}
	return out
}

// FindByID retrieves a message by ID.
func (s *Store) FindByID(id string) (store.Message, bool) {
	rec := s.lookup(id)
	if rec == nil {
		return store.Message{}, false
	}
	return rec.snapshot(), true
}

// MarkRead adds userID to the message's ReadBy set.
func (s *Store) MarkRead(id, userID string) (store.Message, bool, error) {
	rec := s.lookup(id)
	if rec == nil {
		return store.Message{}, false, store.ErrMessageNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if slices.Contains(rec.msg.ReadBy, userID) {
		return rec.msg.Clone(), false, nil
	}
	rec.msg.ReadBy = append(rec.msg.ReadBy, userID)
	return rec.msg.Clone(), true, nil
}

// AddReaction adds userID to the set of users that reacted with symbol.
func (s *Store) AddReaction(id, symbol, userID string) (store.Message, bool, error) {
	rec := s.lookup(id)
	if rec == nil {
		return store.Message{}, false, store.ErrMessageNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	users := rec.msg.Reactions[symbol]
	if slices.Contains(users, userID) {
		return rec.msg.Clone(), false, nil
	}
	rec.msg.Reactions[symbol] = append(users, userID)
	return rec.msg.Clone(), true, nil
}

// Len returns the number of stored messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.log)
}

func (s *Store) lookup(id string) *record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[id]
}

func (r *record) snapshot() store.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.msg.Clone()
}

var _ store.MessageStore = (*Store)(nil)
