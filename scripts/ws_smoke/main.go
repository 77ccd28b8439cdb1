package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	server := flag.String("server", "http://localhost:8080", "relay base URL")
	user := flag.String("user", "tester", "display name to log in with")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	base := strings.TrimRight(*server, "/")
	body, _ := json.Marshal(map[string]string{"username": *user})
	resp, err := http.Post(base+"/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	var creds struct {
		Token string `json:"token"`
	}
	err = json.NewDecoder(resp.Body).Decode(&creds)
	resp.Body.Close()
	if err != nil || creds.Token == "" {
		return fmt.Errorf("login: status %s: %v", resp.Status, err)
	}

	wsURL := "ws" + strings.TrimPrefix(base, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	mustSend := func(typ, ref string, data any) error {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", typ, err)
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Ref: ref, Data: payload}); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		return nil
	}

	if err := mustSend(proto.InboundTypeHello, "", proto.HelloData{Token: creds.Token}); err != nil {
		return err
	}
	if err := mustSend(proto.InboundTypeSendMessage, "smoke-1", proto.SendMessageData{Text: *text}); err != nil {
		return err
	}

	for {
		var outbound struct {
			Type  string          `json:"type"`
			Event string          `json:"event"`
			Ref   string          `json:"ref"`
			Data  json.RawMessage `json:"data"`
			Error *proto.Error    `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		fmt.Printf("Received outbound: type=%s", outbound.Type)
		if outbound.Event != "" {
			fmt.Printf(" event=%s", outbound.Event)
		}
		fmt.Println()

		if outbound.Error != nil {
			return fmt.Errorf("server error %s: %s", outbound.Error.Code, outbound.Error.Msg)
		}

		switch {
		case outbound.Event == "new-message":
			var msg proto.MessageView
			if err := json.Unmarshal(outbound.Data, &msg); err != nil {
				fmt.Printf("Raw data: %s\n", string(outbound.Data))
				return fmt.Errorf("unmarshal message: %w", err)
			}
			fmt.Printf("Message: room=%s from=%s text=%q ts=%d\n", msg.Room, msg.FromName, msg.Text, msg.Timestamp)
		case outbound.Type == proto.OutboundTypeAck && outbound.Ref == "smoke-1":
			var ack proto.AckView
			if err := json.Unmarshal(outbound.Data, &ack); err != nil {
				return fmt.Errorf("unmarshal ack: %w", err)
			}
			fmt.Printf("Ack: status=%s id=%s\n", ack.Status, ack.ID)
			return nil
		default:
			// keep looping for the ack
		}
	}
}
