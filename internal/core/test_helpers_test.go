package core

import (
	"context"
	"testing"
	"time"
)

func mustEvent(t *testing.T, c *Client, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-c.Events():
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received by %s", kind, c.UserID())
	return nil
}

// queued drains every event currently waiting in c's outbound queue. Hub
// operations are synchronous, so once they return their events are queued.
func queued(c *Client) []*Event {
	var out []*Event
	for {
		select {
		case ev := <-c.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func ofKind(events []*Event, kind EventKind) []*Event {
	var out []*Event
	for _, ev := range events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func startHub(t *testing.T, opts ...HubOption) *Hub {
	t.Helper()

	hub := NewHub(nil, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func attachUser(t *testing.T, hub *Hub, userID string) *Client {
	t.Helper()
	return attachClient(t, hub, userID, userID+"-conn", 0)
}

func attachClient(t *testing.T, hub *Hub, userID, connID string, buffer int) *Client {
	t.Helper()

	c := NewClient(connID, Identity{UserID: userID, DisplayName: userID}, buffer)
	c.setState(StateAuthenticated)
	if err := hub.Attach(context.Background(), c); err != nil {
		t.Fatalf("attach %s: %v", userID, err)
	}
	return c
}

func dispatch(t *testing.T, hub *Hub, c *Client, cmd Command) (Ack, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return hub.Dispatch(ctx, c, cmd)
}

type recordingSink struct {
	activities []Activity
}

func (s *recordingSink) Record(a Activity) {
	s.activities = append(s.activities, a)
}

func (s *recordingSink) kinds() []ActivityKind {
	out := make([]ActivityKind, 0, len(s.activities))
	for _, a := range s.activities {
		out = append(out, a.Kind)
	}
	return out
}
