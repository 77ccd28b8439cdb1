package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

func TestWebSocketPublicMessage(t *testing.T) {
	env := startTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	aliceToken, alice := env.login(t, "alice")
	bobToken, _ := env.login(t, "bob")

	connA := env.dial(ctx, t, aliceToken)
	readUntil(ctx, t, connA, "load-messages")

	// bob authenticates with the query parameter instead of the header.
	connB, _, err := websocket.Dial(ctx, env.wsURL()+"?token="+url.QueryEscape(bobToken), nil)
	if err != nil {
		t.Fatalf("dial B: %v", err)
	}
	defer connB.Close(websocket.StatusNormalClosure, "done")
	readUntil(ctx, t, connB, "load-messages")

	joined := readUntil(ctx, t, connA, "user-joined")
	var user proto.UserView
	if err := json.Unmarshal(joined.Data, &user); err != nil || user.Username != "bob" {
		t.Fatalf("unexpected user-joined %s (%v)", joined.Data, err)
	}

	send(ctx, t, connA, proto.InboundTypeSendMessage, "r1", proto.SendMessageData{Text: "hi there"})

	msgFrame := readUntil(ctx, t, connB, "new-message")
	var msg proto.MessageView
	if err := json.Unmarshal(msgFrame.Data, &msg); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	if msg.Text != "hi there" || msg.Room != "global" || msg.From != alice.UserID || msg.FromName != "alice" {
		t.Fatalf("unexpected message payload: %+v", msg)
	}
	if fmt.Sprint(msg.ReadBy) != fmt.Sprintf("[%s]", alice.UserID) {
		t.Fatalf("sender must have read own message, got %v", msg.ReadBy)
	}

	ackFrame := readUntil(ctx, t, connA, "ack")
	var ack proto.AckView
	if err := json.Unmarshal(ackFrame.Data, &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if ackFrame.Ref != "r1" || ack.Status != core.AckOK || ack.ID != msg.ID {
		t.Fatalf("unexpected ack %+v ref %q", ack, ackFrame.Ref)
	}

	send(ctx, t, connB, proto.InboundTypeAddReaction, "", proto.AddReactionData{MessageID: msg.ID, Reaction: "👍"})
	updated := readUntil(ctx, t, connA, "message-updated")
	var view proto.MessageView
	if err := json.Unmarshal(updated.Data, &view); err != nil {
		t.Fatalf("unmarshal update: %v", err)
	}
	if len(view.Reactions["👍"]) != 1 {
		t.Fatalf("expected one reaction, got %v", view.Reactions)
	}
}

func TestWebSocketHelloHandshake(t *testing.T) {
	env := startTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	token, _ := env.login(t, "carol")
	conn := env.dial(ctx, t, "")
	send(ctx, t, conn, proto.InboundTypeHello, "", proto.HelloData{Token: token})

	online := readUntil(ctx, t, conn, "online-users")
	var view proto.OnlineUsersView
	if err := json.Unmarshal(online.Data, &view); err != nil || len(view.Users) != 1 {
		t.Fatalf("unexpected online-users %s (%v)", online.Data, err)
	}
	readUntil(ctx, t, conn, "load-messages")
}

func TestWebSocketRejectsInvalidToken(t *testing.T) {
	env := startTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(ctx, t, "")
	send(ctx, t, conn, proto.InboundTypeHello, "", proto.HelloData{Token: "invalid"})

	f := readUntil(ctx, t, conn, proto.OutboundTypeError)
	if f.Error == nil || f.Error.Code != core.ErrCodeUnauthorized {
		t.Fatalf("expected unauthorized error, got %+v", f)
	}
	if status := readClose(ctx, t, conn); status != websocket.StatusPolicyViolation {
		t.Fatalf("expected policy violation close, got %v", status)
	}
	if env.hub.Presence().Count() != 0 {
		t.Fatalf("rejected connection must not register presence")
	}
}

func TestWebSocketHandshakeTimeout(t *testing.T) {
	env := startTestServer(t, func(cfg *config.Config) {
		cfg.HandshakeTimeout = 100 * time.Millisecond
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(ctx, t, "")
	if status := readClose(ctx, t, conn); status == websocket.StatusNormalClosure {
		t.Fatalf("silent connection must not be accepted")
	}
}

func TestWebSocketValidationErrors(t *testing.T) {
	env := startTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	token, _ := env.login(t, "dave")
	conn := env.dial(ctx, t, token)
	readUntil(ctx, t, conn, "load-messages")

	send(ctx, t, conn, proto.InboundTypeSendMessage, "s1", proto.SendMessageData{Text: "   "})
	ack := readUntil(ctx, t, conn, proto.OutboundTypeAck)
	if ack.Ref != "s1" || ack.Error == nil || ack.Error.Code != core.ErrCodeBadRequest {
		t.Fatalf("expected failed ack, got %+v", ack)
	}

	send(ctx, t, conn, proto.InboundTypeSendMessage, "s2", proto.SendMessageData{Room: "random", Text: "hi"})
	ack = readUntil(ctx, t, conn, proto.OutboundTypeAck)
	if ack.Ref != "s2" || ack.Error == nil || ack.Error.Code != core.ErrCodeNotInRoom {
		t.Fatalf("expected not_in_room ack, got %+v", ack)
	}

	send(ctx, t, conn, proto.InboundTypeJoinRoom, "j1", proto.JoinRoomData{})
	errFrame := readUntil(ctx, t, conn, proto.OutboundTypeError)
	if errFrame.Ref != "j1" || errFrame.Error.Code != core.ErrCodeBadRequest {
		t.Fatalf("expected bad_request for join, got %+v", errFrame)
	}

	send(ctx, t, conn, proto.InboundTypeMarkRead, "m1", proto.MarkReadData{MessageID: "missing"})
	errFrame = readUntil(ctx, t, conn, proto.OutboundTypeError)
	if errFrame.Ref != "m1" || errFrame.Error.Code != core.ErrCodeNotFound {
		t.Fatalf("expected not_found, got %+v", errFrame)
	}

	send(ctx, t, conn, "shout", "x1", map[string]string{})
	errFrame = readUntil(ctx, t, conn, proto.OutboundTypeError)
	if errFrame.Ref != "x1" || !strings.Contains(errFrame.Error.Msg, "unknown") {
		t.Fatalf("expected unknown type error, got %+v", errFrame)
	}

	// The connection survives every error above.
	send(ctx, t, conn, proto.InboundTypeJoinRoom, "j2", proto.JoinRoomData{Room: "random"})
	if f := readUntil(ctx, t, conn, "joined-room"); !strings.Contains(string(f.Data), "random") {
		t.Fatalf("unexpected joined-room %s", f.Data)
	}
}

func TestWebSocketSupersededConnectionIsClosed(t *testing.T) {
	env := startTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	token, _ := env.login(t, "erin")
	first := env.dial(ctx, t, token)
	readUntil(ctx, t, first, "load-messages")

	second := env.dial(ctx, t, token)
	readUntil(ctx, t, second, "load-messages")

	if status := readClose(ctx, t, first); status != websocket.StatusPolicyViolation {
		t.Fatalf("expected policy violation for superseded connection, got %v", status)
	}
	if env.hub.Presence().Count() != 1 {
		t.Fatalf("expected one online entry, got %d", env.hub.Presence().Count())
	}
}

func TestWebSocketRateLimit(t *testing.T) {
	env := startTestServer(t, func(cfg *config.Config) {
		cfg.RateLimitPerMinute = 1
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	token, _ := env.login(t, "frank")
	conn := env.dial(ctx, t, token)
	readUntil(ctx, t, conn, "load-messages")

	send(ctx, t, conn, proto.InboundTypeTyping, "t1", proto.TypingData{IsTyping: true})
	send(ctx, t, conn, proto.InboundTypeTyping, "t2", proto.TypingData{IsTyping: false})

	f := readUntil(ctx, t, conn, proto.OutboundTypeError)
	if f.Ref != "t2" || f.Error.Code != core.ErrCodeRateLimited {
		t.Fatalf("expected rate_limited for the second frame, got %+v", f)
	}
}

func TestWebSocketPrivateMessage(t *testing.T) {
	env := startTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	aliceToken, alice := env.login(t, "alice")
	bobToken, bob := env.login(t, "bob")

	connA := env.dial(ctx, t, aliceToken)
	readUntil(ctx, t, connA, "load-messages")
	connB := env.dial(ctx, t, bobToken)
	readUntil(ctx, t, connB, "load-messages")

	send(ctx, t, connA, proto.InboundTypeSendMessage, "p1", proto.SendMessageData{To: bob.UserID, Text: "psst"})

	got := readUntil(ctx, t, connB, "private-message")
	var msg proto.MessageView
	if err := json.Unmarshal(got.Data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.From != alice.UserID || msg.To != bob.UserID || len(msg.ReadBy) != 0 {
		t.Fatalf("unexpected private message %+v", msg)
	}
	note := readUntil(ctx, t, connB, "notification")
	if !strings.Contains(string(note.Data), "psst") {
		t.Fatalf("unexpected notification %s", note.Data)
	}
	readUntil(ctx, t, connA, "private-message")
}

func TestWebSocketAckFollowsOwnMessage(t *testing.T) {
	env := startTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	token, _ := env.login(t, "heidi")
	conn := env.dial(ctx, t, token)
	readUntil(ctx, t, conn, "load-messages")

	send(ctx, t, conn, proto.InboundTypeSendMessage, "m1", proto.SendMessageData{Text: "ordered"})

	var messageID string
	for messageID == "" {
		f := readUntil(ctx, t, conn, "new-message")
		var msg proto.MessageView
		if err := json.Unmarshal(f.Data, &msg); err != nil {
			t.Fatalf("unmarshal message: %v", err)
		}
		if msg.Text == "ordered" {
			messageID = msg.ID
		}
	}

	// The ack is the next frame after the notification fan-out, never earlier.
	for {
		var f frame
		if err := readFrame(ctx, conn, &f); err != nil {
			t.Fatalf("waiting for ack: %v", err)
		}
		if f.Type == proto.OutboundTypeEvent && f.Event == "notification" {
			continue
		}
		if f.Type != proto.OutboundTypeAck || f.Ref != "m1" {
			t.Fatalf("expected ack after new-message, got %+v", f)
		}
		var ack proto.AckView
		if err := json.Unmarshal(f.Data, &ack); err != nil || ack.ID != messageID {
			t.Fatalf("unexpected ack %s (%v)", f.Data, err)
		}
		return
	}
}

func TestWebSocketRejectsBadHeaderTokenBeforeAttach(t *testing.T) {
	env := startTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(ctx, t, "not-a-jwt")

	f := readUntil(ctx, t, conn, proto.OutboundTypeError)
	if f.Error == nil || f.Error.Code != core.ErrCodeUnauthorized {
		t.Fatalf("expected unauthorized error, got %+v", f)
	}
	if status := readClose(ctx, t, conn); status != websocket.StatusPolicyViolation {
		t.Fatalf("expected policy violation close, got %v", status)
	}
	if env.hub.Presence().Count() != 0 || env.recorder.Stats().Connects != 0 {
		t.Fatalf("rejected connection must not reach the hub")
	}
}

func TestWebSocketClosedWithGoingAwayOnHubStop(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	env := startTestServerWithHubContext(t, hubCtx)

	token, _ := env.login(t, "ivan")
	conn := env.dial(ctx, t, token)
	readUntil(ctx, t, conn, "load-messages")

	stopHub()
	if status := readClose(ctx, t, conn); status != websocket.StatusGoingAway {
		t.Fatalf("expected going away on shutdown, got %v", status)
	}
}
