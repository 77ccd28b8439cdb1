package http

import (
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/activity"
	"github.com/vovakirdan/wirechat-relay/internal/auth"
	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

type testEnv struct {
	ts       *httptest.Server
	auth     *auth.Service
	hub      *core.Hub
	recorder *activity.Recorder
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.JWTSecret = "test-secret"
	cfg.HandshakeTimeout = 2 * time.Second
	cfg.RateLimitPerMinute = 0
	return cfg
}

func startTestServer(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	return newTestEnv(t, nil, mutate)
}

// startTestServerWithHubContext runs the hub on hubCtx so a test can stop it
// while connections are open.
func startTestServerWithHubContext(t *testing.T, hubCtx context.Context) *testEnv {
	t.Helper()
	return newTestEnv(t, hubCtx, nil)
}

func newTestEnv(t *testing.T, hubCtx context.Context, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	disabledLogger := zerolog.New(nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	feed := activity.NewFeed(&disabledLogger, 0)
	recorder := activity.NewRecorder(&disabledLogger)
	if err := feed.Subscribe(ctx, recorder.Handle); err != nil {
		t.Fatalf("subscribe recorder: %v", err)
	}
	feed.Start(ctx)

	hub := core.NewHub(nil, core.WithLogger(&disabledLogger), core.WithActivitySink(feed))
	if hubCtx == nil {
		hubCtx = ctx
	}
	go hub.Run(hubCtx)

	authService := auth.NewService(&auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	})
	gateway := core.NewGateway(authService, hub, cfg.SendBuffer, &disabledLogger)

	server := NewServer(gateway, authService, recorder, &cfg, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, auth: authService, hub: hub, recorder: recorder}
}

func (e *testEnv) login(t *testing.T, username string) (string, core.Identity) {
	t.Helper()

	token, identity, err := e.auth.Login(context.Background(), username)
	if err != nil {
		t.Fatalf("login %s: %v", username, err)
	}
	return token, identity
}

func (e *testEnv) wsURL() string {
	return strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
}

// dial connects with the token in the Authorization header.
func (e *testEnv) dial(ctx context.Context, t *testing.T, token string) *websocket.Conn {
	t.Helper()

	opts := &websocket.DialOptions{}
	if token != "" {
		opts.HTTPHeader = stdhttp.Header{"Authorization": []string{"Bearer " + token}}
	}
	conn, _, err := websocket.Dial(ctx, e.wsURL(), opts)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

type frame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Ref   string          `json:"ref"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func send(ctx context.Context, t *testing.T, conn *websocket.Conn, typ, ref string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", typ, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Ref: ref, Data: payload}); err != nil {
		t.Fatalf("send %s: %v", typ, err)
	}
}

// readUntil reads frames until one matches name, either as an event name or
// as the envelope type for acks and errors.
func readUntil(ctx context.Context, t *testing.T, conn *websocket.Conn, name string) frame {
	t.Helper()

	for {
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			t.Fatalf("waiting for %s: %v", name, err)
		}
		if f.Event == name || (f.Event == "" && f.Type == name) {
			return f
		}
	}
}

func readFrame(ctx context.Context, conn *websocket.Conn, f *frame) error {
	return wsjson.Read(ctx, conn, f)
}

// readClose reads until the server closes the connection and returns the status.
func readClose(ctx context.Context, t *testing.T, conn *websocket.Conn) websocket.StatusCode {
	t.Helper()

	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return websocket.CloseStatus(err)
		}
	}
}
