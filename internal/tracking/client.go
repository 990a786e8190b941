package tracking

import (
	"sync"

	"github.com/example/ride-navigation/internal/models"
)

// Conn is the subset of a websocket connection the hub writes to. The
// gorilla conn satisfies it; tests use fakes.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Client is one subscriber in a ride room. The driver publishes; customers
// and owners only subscribe. The protocol does not enforce the split, the
// HTTP layer does.
type Client struct {
	Role   models.Role
	UserID string

	mu   sync.Mutex
	conn Conn
}

func NewClient(conn Conn, role models.Role, userID string) *Client {
	return &Client{conn: conn, Role: role, UserID: userID}
}

// Send writes one enveloped event. Writes are serialized per connection;
// ordering is guaranteed only within this connection.
func (c *Client) Send(event string, data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(Envelope{Event: event, Data: data})
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}
