package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	server := flag.String("server", "http://localhost:8080", "relay base URL")
	user := flag.String("user", "cli-user", "display name used to log in")
	token := flag.String("token", "", "token to use instead of logging in")
	room := flag.String("room", "", "room to join and talk in (default: global)")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	if *token == "" {
		t, err := login(ctx, *server, *user)
		if err != nil {
			return err
		}
		*token = t
	}

	wsURL, err := websocketURL(*server)
	if err != nil {
		return err
	}
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + *token}},
	})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if *room != "" {
		if err := send(ctx, conn, proto.InboundTypeJoinRoom, proto.JoinRoomData{Room: *room}); err != nil {
			return err
		}
	}

	fmt.Printf("Connected to %s as %s\n", wsURL, *user)
	fmt.Println("Type to send. Commands: /join <room>, /to <userId> <text>, /react <messageId> <emoji>, /read <messageId>. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, *room)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func login(ctx context.Context, server, user string) (string, error) {
	body, err := json.Marshal(map[string]string{"username": user})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(server, "/")+"/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login: unexpected status %s", resp.Status)
	}

	var out struct {
		Token  string `json:"token"`
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode login: %w", err)
	}
	fmt.Printf("Logged in, user id %s\n", out.UserID)
	return out.Token, nil
}

func websocketURL(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

func send(ctx context.Context, conn *websocket.Conn, typ string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	return wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload})
}

type frame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Ref   string          `json:"ref"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}
		printFrame(f)
	}
}

func printFrame(f frame) {
	switch f.Type {
	case proto.OutboundTypeError:
		fmt.Printf("! error %s: %s\n", f.Error.Code, f.Error.Msg)
		return
	case proto.OutboundTypeAck:
		if f.Error != nil {
			fmt.Printf("! not sent: %s\n", f.Error.Msg)
		}
		return
	}

	switch f.Event {
	case "new-message", "private-message":
		var m proto.MessageView
		if err := json.Unmarshal(f.Data, &m); err != nil {
			log.Printf("unmarshal message: %v", err)
			return
		}
		where := m.Room
		if m.To != "" {
			where = "private"
		}
		fmt.Printf("[%s] %s: %s  (%s)\n", where, m.FromName, m.Text, m.ID)
	case "load-messages":
		var lm proto.LoadMessagesView
		if err := json.Unmarshal(f.Data, &lm); err != nil {
			log.Printf("unmarshal history: %v", err)
			return
		}
		for _, m := range lm.Messages {
			fmt.Printf("[%s] %s: %s  (%s)\n", m.Room, m.FromName, m.Text, m.ID)
		}
	case "message-updated":
		var m proto.MessageView
		if err := json.Unmarshal(f.Data, &m); err != nil {
			return
		}
		fmt.Printf("~ %s read by %d, reactions %v\n", m.ID, len(m.ReadBy), m.Reactions)
	case "user-joined", "user-left":
		var u proto.UserView
		if err := json.Unmarshal(f.Data, &u); err != nil {
			return
		}
		fmt.Printf("* %s (%s) %s\n", u.Username, u.UserID, strings.TrimPrefix(f.Event, "user-"))
	case "online-users":
		var o proto.OnlineUsersView
		if err := json.Unmarshal(f.Data, &o); err != nil {
			return
		}
		fmt.Printf("* online: %s\n", strings.Join(o.Users, ", "))
	case "typing", "notification":
		// too chatty for a terminal
	default:
		fmt.Printf("event=%s data=%s\n", f.Event, f.Data)
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, room string) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			typ, data := parseLine(text, room)
			if typ == "" {
				fmt.Println("! unknown command")
				continue
			}
			if typ == proto.InboundTypeJoinRoom {
				room = data.(proto.JoinRoomData).Room
			}
			if err := send(ctx, conn, typ, data); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}

func parseLine(text, room string) (string, any) {
	if !strings.HasPrefix(text, "/") {
		return proto.InboundTypeSendMessage, proto.SendMessageData{Room: room, Text: text}
	}

	fields := strings.SplitN(text, " ", 3)
	switch {
	case fields[0] == "/join" && len(fields) >= 2:
		return proto.InboundTypeJoinRoom, proto.JoinRoomData{Room: fields[1]}
	case fields[0] == "/to" && len(fields) == 3:
		return proto.InboundTypeSendMessage, proto.SendMessageData{To: fields[1], Text: fields[2]}
	case fields[0] == "/react" && len(fields) == 3:
		return proto.InboundTypeAddReaction, proto.AddReactionData{MessageID: fields[1], Reaction: fields[2]}
	case fields[0] == "/read" && len(fields) >= 2:
		return proto.InboundTypeMarkRead, proto.MarkReadData{MessageID: fields[1]}
	default:
		return "", nil
	}
}
