package connect4

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/gosuda/boardsync/client"
)

// Client replicates a connect4 game.
type Client struct {
	*client.Component[State, struct{}]
}

// NewClient builds the connect4 replication client for a joined room.
func NewClient(room *client.Room, log zerolog.Logger) *Client {
	return &Client{
		Component: client.NewComponent[State, struct{}](room, ComponentType, Reducer, Decoder, log),
	}
}

// MakeMove drops a piece into the given column.
func (c *Client) MakeMove(ctx context.Context, column int) error {
	return c.SendAction(ctx, &Move{Column: column})
}

// Surrender concedes as the given player.
func (c *Client) Surrender(ctx context.Context, player int) error {
	return c.SendAction(ctx, &Surrender{Player: player})
}
