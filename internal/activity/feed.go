package activity

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/core"
)

// Topic is the watermill topic activity is published on.
const Topic = "chat.activity"

// DefaultBuffer is the number of activities queued between the hub and the publisher.
const DefaultBuffer = 256

const metaKeyKind = "kind"

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("activity feed closed")

// Handler processes one activity. A non-nil error nacks the message.
type Handler func(ctx context.Context, a core.Activity) error

// Feed publishes hub activity on an in-process watermill GoChannel. Record
// only enqueues, so the hub never waits on subscribers.
type Feed struct {
	pubsub *gochannel.GoChannel
	in     chan core.Activity
	log    *zerolog.Logger

	dropped   atomic.Int64
	published atomic.Int64

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewFeed creates a feed. Call Start to begin publishing.
func NewFeed(logger *zerolog.Logger, buffer int) *Feed {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Feed{
		pubsub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: int64(buffer)}, NewLoggerAdapter(logger)),
		in:     make(chan core.Activity, buffer),
		log:    logger,
		done:   make(chan struct{}),
	}
}

// Record implements core.ActivitySink. A full queue drops the activity.
func (f *Feed) Record(a core.Activity) {
	select {
	case <-f.done:
		return
	default:
	}
	select {
	case f.in <- a:
	default:
		f.dropped.Add(1)
	}
}

// Start launches the publisher. It runs until ctx is cancelled or the feed is
// closed, and publishes whatever is still queued before exiting. Close waits
// for it.
func (f *Feed) Start(ctx context.Context) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.run(ctx)
	}()
}

func (f *Feed) run(ctx context.Context) {
	for {
		select {
		case a := <-f.in:
			f.publish(a)
		case <-ctx.Done():
			f.flush()
			return
		case <-f.done:
			f.flush()
			return
		}
	}
}

func (f *Feed) flush() {
	for {
		select {
		case a := <-f.in:
			f.publish(a)
		default:
			return
		}
	}
}

func (f *Feed) publish(a core.Activity) {
	payload, err := json.Marshal(a)
	if err != nil {
		f.log.Error().Err(err).Str("kind", string(a.Kind)).Msg("encode activity")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(metaKeyKind, string(a.Kind))

	if err := f.pubsub.Publish(Topic, msg); err != nil {
		f.log.Warn().Err(err).Str("kind", string(a.Kind)).Msg("publish activity")
		return
	}
	f.published.Add(1)
}

// Subscribe runs handler for every activity published after the call. It
// returns immediately; delivery stops when ctx is cancelled or the feed closes.
func (f *Feed) Subscribe(ctx context.Context, handler Handler) error {
	select {
	case <-f.done:
		return ErrClosed
	default:
	}

	messages, err := f.pubsub.Subscribe(ctx, Topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			var a core.Activity
			if err := json.Unmarshal(msg.Payload, &a); err != nil {
				f.log.Error().Err(err).Str("msg_id", msg.UUID).Msg("decode activity")
				msg.Ack()
				continue
			}
			if err := handler(msg.Context(), a); err != nil {
				f.log.Warn().Err(err).Str("msg_id", msg.UUID).Str("kind", string(a.Kind)).Msg("activity handler failed")
				msg.Nack()
				continue
			}
			msg.Ack()
		}
		f.log.Debug().Str("topic", Topic).Msg("activity subscription ended")
	}()
	return nil
}

// Dropped returns how many activities were discarded because the queue was full.
func (f *Feed) Dropped() int64 {
	return f.dropped.Load()
}

// Published returns how many activities reached the pub/sub.
func (f *Feed) Published() int64 {
	return f.published.Load()
}

// Close stops Run, waits for it to flush and shuts the pub/sub down.
func (f *Feed) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.done)
		f.wg.Wait()
		err = f.pubsub.Close()
	})
	return err
}

var _ core.ActivitySink = (*Feed)(nil)
