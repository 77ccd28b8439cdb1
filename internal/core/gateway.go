package core

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Gateway is the per-connection controller. It verifies the handshake token
// before any connection state exists, attaches the connection to the hub and
// only lets Active connections issue commands.
type Gateway struct {
	verifier Verifier
	hub      *Hub
	buffer   int
	log      *zerolog.Logger
}

// NewGateway builds a gateway. sendBuffer sizes each connection's outbound queue.
func NewGateway(verifier Verifier, hub *Hub, sendBuffer int, logger *zerolog.Logger) *Gateway {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Gateway{
		verifier: verifier,
		hub:      hub,
		buffer:   sendBuffer,
		log:      logger,
	}
}

// Open authenticates token and attaches a new connection to the hub. On a
// verification failure the verifier's error is returned and nothing is created.
func (g *Gateway) Open(ctx context.Context, connID, token string) (*Client, error) {
	identity, err := g.verifier.Verify(token)
	if err != nil {
		g.log.Debug().Err(err).Str("conn_id", connID).Msg("handshake rejected")
		return nil, err
	}

	c := NewClient(connID, identity, g.buffer)
	if !c.transition(StateConnecting, StateAuthenticated) {
		return nil, fmt.Errorf("connection %s: unexpected state %s", connID, c.State())
	}
	if err := g.hub.Attach(ctx, c); err != nil {
		c.setState(StateClosed)
		return nil, fmt.Errorf("attach: %w", err)
	}
	return c, nil
}

// Handle forwards a command from c to the hub.
func (g *Gateway) Handle(ctx context.Context, c *Client, cmd Command) (Ack, error) {
	if c.State() != StateActive {
		g.log.Debug().Str("conn_id", c.ID).Str("state", c.State().String()).Str("command", cmd.Kind.String()).Msg("command discarded")
		return Ack{Ref: cmd.Ref, Status: AckError, Error: AsCoreError(ErrNotActive)}, ErrNotActive
	}
	return g.hub.Dispatch(ctx, c, cmd)
}

// Close detaches c from the hub.
func (g *Gateway) Close(c *Client) {
	if c == nil {
		return
	}
	g.hub.Detach(c)
}

// Hub returns the hub behind the gateway.
func (g *Gateway) Hub() *Hub {
	return g.hub
}
