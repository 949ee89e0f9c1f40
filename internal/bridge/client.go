package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-txbridge/internal/protocol"
	"github.com/nats-io/nats.go"
)

// Client calls bridge operations over NATS request/reply.
type Client struct {
	conn    *nats.Conn
	channel string
}

func NewClient(conn *nats.Conn, channel string) *Client {
	if channel == "" {
		channel = protocol.DefaultChannel
	}
	return &Client{conn: conn, channel: channel}
}

// Call sends one request and waits for its response or ctx expiry.
func (c *Client) Call(ctx context.Context, method string, args map[string]any) (protocol.Response, error) {
	req := protocol.Request{
		RequestID: uuid.NewString(),
		Method:    method,
		Arguments: args,
	}
	data, err := json.Marshal(req)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("encode request: %w", err)
	}
	msg, err := c.conn.RequestWithContext(ctx, c.channel, data)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("bridge request %s: %w", method, err)
	}
	var resp protocol.Response
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return protocol.Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}
