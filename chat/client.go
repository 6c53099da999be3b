package chat

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/gosuda/boardsync/client"
)

// Client replicates a room's chat log and sends messages as the connected
// user.
type Client struct {
	*client.Component[State, struct{}]
}

// NewClient builds the chat replication client for a joined room.
func NewClient(room *client.Room, log zerolog.Logger) *Client {
	return &Client{
		Component: client.NewComponent[State, struct{}](room, ComponentType, Reducer, Decoder, log),
	}
}

// Send posts a message under the caller's own identity.
func (c *Client) Send(ctx context.Context, text string) error {
	return c.SendAction(ctx, &SendMessage{Message: Message{
		User: c.Room().Caller().User(),
		Text: text,
	}})
}
