package timer

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/gosuda/boardsync/client"
)

// Client replicates a room's clock state. Settings must match the server's;
// see NewReducer.
type Client struct {
	*client.Component[State, struct{}]
}

// NewClient builds the timer replication client for a joined room.
func NewClient(room *client.Room, maxTime, increment time.Duration, log zerolog.Logger) *Client {
	return &Client{
		Component: client.NewComponent[State, struct{}](room, ComponentType, NewReducer(maxTime, increment), Decoder, log),
	}
}

// TimeLeft returns the replicated remaining milliseconds for a player.
func (c *Client) TimeLeft(player int) int64 {
	return TimeLeft(c.State(), player)
}
