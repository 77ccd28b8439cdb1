package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/auth"
	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
	"github.com/vovakirdan/wirechat-relay/internal/utils"
)

// errClosedByCore ends the loops when the core asked for the connection to go.
var errClosedByCore = errors.New("connection closed by server")

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	gateway          *core.Gateway
	log              *zerolog.Logger
	handshakeTimeout time.Duration
	readLimit        int64
	ratePerMinute    int
	originPatterns   []string
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(gateway *core.Gateway, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{
		gateway:          gateway,
		log:              logger,
		handshakeTimeout: cfg.HandshakeTimeout,
		readLimit:        cfg.MaxMessageBytes,
		ratePerMinute:    cfg.RateLimitPerMinute,
		originPatterns:   cfg.AllowedOrigins,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: len(h.originPatterns) == 0,
		OriginPatterns:     h.originPatterns,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()
	if h.readLimit > 0 {
		conn.SetReadLimit(h.readLimit)
	}

	connID := utils.NewConnID()
	client, err := h.handshake(ctx, conn, connID, tokenFromRequest(r))
	if err != nil {
		h.reject(ctx, conn, connID, err)
		return
	}
	defer h.gateway.Close(client)

	// The reader keeps its own context so a server-side close can still run
	// the close handshake through it.
	readCtx, cancelRead := context.WithCancel(ctx)
	defer cancelRead()
	writeCtx, cancelWrite := context.WithCancel(ctx)
	defer cancelWrite()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(readCtx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(writeCtx, conn, client)
	}()

	err = <-errCh
	if errors.Is(err, errClosedByCore) || closed(client) {
		status, reason := closeStatus(client.CloseReason())
		h.log.Info().
			Str("conn_id", client.ID).
			Str("user_id", client.UserID()).
			Str("reason", client.CloseReason().String()).
			Msg("ws connection closed by server")
		conn.Close(status, reason)
		cancelWrite()
		cancelRead()
		<-errCh
		return
	}
	cancelWrite()
	cancelRead()
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = "internal error"
			h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// handshake resolves the token, waiting for a hello frame when the upgrade
// request carried none, and opens the session.
func (h *WSHandler) handshake(ctx context.Context, conn *websocket.Conn, connID, token string) (*core.Client, error) {
	if token == "" {
		hctx := ctx
		if h.handshakeTimeout > 0 {
			var cancel context.CancelFunc
			hctx, cancel = context.WithTimeout(ctx, h.handshakeTimeout)
			defer cancel()
		}

		var inbound proto.Inbound
		if err := wsjson.Read(hctx, conn, &inbound); err != nil {
			return nil, &auth.AuthError{Reason: auth.ReasonMissing, Err: err}
		}
		if inbound.Type != proto.InboundTypeHello {
			return nil, &auth.AuthError{Reason: auth.ReasonMissing, Err: errors.New("expected hello")}
		}
		var hello proto.HelloData
		if err := proto.Decode(inbound.Data, &hello); err != nil {
			return nil, &auth.AuthError{Reason: auth.ReasonMissing, Err: err}
		}
		token = hello.Token
	}
	return h.gateway.Open(ctx, connID, token)
}

func (h *WSHandler) reject(ctx context.Context, conn *websocket.Conn, connID string, err error) {
	var authErr *auth.AuthError
	if !errors.As(err, &authErr) {
		h.log.Error().Err(err).Str("conn_id", connID).Msg("ws session open failed")
		conn.Close(websocket.StatusInternalError, "internal error")
		return
	}

	h.log.Info().Str("conn_id", connID).Str("reason", authErr.Reason).Msg("ws handshake rejected")
	wctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_ = wsjson.Write(wctx, conn, proto.Outbound{
		Type:  proto.OutboundTypeError,
		Error: &proto.Error{Code: core.ErrCodeUnauthorized, Msg: "token " + authErr.Reason},
	})
	conn.Close(websocket.StatusPolicyViolation, core.ErrCodeUnauthorized)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	limiter := newRateLimiter(h.ratePerMinute)

	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		if !limiter.allow() {
			h.log.Debug().Str("conn_id", client.ID).Str("type", inbound.Type).Msg("inbound frame rate limited")
			client.Deliver(core.ErrorEvent(inbound.Ref, core.NewRateLimitError()))
			continue
		}

		cmd, protoErr := inboundToCommand(inbound)
		if protoErr != nil {
			h.log.Debug().Str("conn_id", client.ID).Str("type", inbound.Type).Str("error", protoErr.Message).Msg("invalid inbound")
			if inbound.Type == proto.InboundTypeSendMessage {
				client.Deliver(core.FailedAck(inbound.Ref, protoErr))
			} else {
				client.Deliver(core.ErrorEvent(inbound.Ref, protoErr))
			}
			continue
		}

		_, err := h.gateway.Handle(ctx, client, cmd)
		switch {
		case err == nil:
		case errors.Is(err, core.ErrHubStopped), errors.Is(err, core.ErrNotActive), errors.Is(err, context.Canceled):
			return err
		case cmd.Kind == core.CommandSendMessage:
			// The hub already queued the failed ack.
		default:
			client.Deliver(core.ErrorEvent(cmd.Ref, err))
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event := <-client.Events():
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("conn_id", client.ID).Msg("write ws event")
				return err
			}
		case <-client.Done():
			return errClosedByCore
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func closed(client *core.Client) bool {
	select {
	case <-client.Done():
		return true
	default:
		return false
	}
}

func closeStatus(reason core.CloseReason) (websocket.StatusCode, string) {
	switch reason {
	case core.CloseShutdown:
		return websocket.StatusGoingAway, "server shutting down"
	case core.CloseSuperseded, core.CloseSlowConsumer:
		return websocket.StatusPolicyViolation, reason.String()
	default:
		return websocket.StatusNormalClosure, "closing"
	}
}

// tokenFromRequest reads a bearer token from the Authorization header or the
// token query parameter.
func tokenFromRequest(r *stdhttp.Request) string {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	return r.URL.Query().Get("token")
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
