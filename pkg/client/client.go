// Package client implements the Awalnet client networking.
package client

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/awalnet/awalnet/pkg/model"
	"github.com/awalnet/awalnet/pkg/protocol"
)

// replyTimeout bounds how long a request waits for its answer while the
// read pump keeps draining async events.
const replyTimeout = 5 * time.Second

// EventHandler is a callback for incoming async server events.
type EventHandler func(msg protocol.Message)

// Client manages the TCP connection to the lobby server.
type Client struct {
	conn    net.Conn
	mu      sync.Mutex // serializes writes
	handler EventHandler
	replies chan protocol.Message
	done    chan struct{}
}

// Dial connects to the server.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: connect: %w", err)
	}
	return &Client{
		conn:    conn,
		replies: make(chan protocol.Message, 1),
		done:    make(chan struct{}),
	}, nil
}

// SetEventHandler sets the callback for async server events. Must be set
// before StartReceiving.
func (c *Client) SetEventHandler(handler EventHandler) {
	c.handler = handler
}

// Send writes one framed message to the server.
func (c *Client) Send(call protocol.CallType, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return protocol.WriteMessage(c.conn, protocol.Message{Call: call, Payload: payload})
}

// Connect performs the CONNECT handshake and returns the server-assigned
// profile. Must be called before StartReceiving.
func (c *Client) Connect(username string) (model.User, error) {
	if err := c.Send(protocol.Connect, protocol.ConnectPayload(username)); err != nil {
		return model.User{}, fmt.Errorf("client: send connect: %w", err)
	}

	msg, err := protocol.ReadMessage(c.conn)
	if err != nil {
		return model.User{}, fmt.Errorf("client: read connect reply: %w", err)
	}

	if msg.Call == protocol.Error {
		reply, err := protocol.DecodeErrorReply(msg.Payload)
		if err != nil {
			return model.User{}, fmt.Errorf("client: connect refused")
		}
		return model.User{}, fmt.Errorf("connect refused: %s", reply.Message)
	}
	if msg.Call != protocol.ConnectConfirm {
		return model.User{}, fmt.Errorf("client: unexpected reply %s", msg.Call.String())
	}

	profile, err := protocol.UnmarshalProfile(msg.Payload)
	if err != nil {
		return model.User{}, fmt.Errorf("client: parse profile: %w", err)
	}
	return profile, nil
}

// Request sends a message and waits for its direct reply. Async events
// arriving meanwhile go to the event handler.
func (c *Client) Request(call protocol.CallType, payload []byte) (protocol.Message, error) {
	if err := c.Send(call, payload); err != nil {
		return protocol.Message{}, err
	}
	select {
	case msg, ok := <-c.replies:
		if !ok {
			return protocol.Message{}, fmt.Errorf("client: connection closed")
		}
		return msg, nil
	case <-time.After(replyTimeout):
		return protocol.Message{}, fmt.Errorf("client: timed out waiting for %s reply", call.String())
	}
}

// StartReceiving starts the read pump: async events are dispatched to
// the handler, everything else answers the outstanding Request.
func (c *Client) StartReceiving() {
	go func() {
		defer close(c.done)
		defer close(c.replies)
		for {
			msg, err := protocol.ReadMessage(c.conn)
			if err != nil {
				if isClosedErr(err) {
					slog.Debug("connection closed")
					return
				}
				slog.Error("read error", "err", err)
				return
			}
			if protocol.IsAsyncEvent(msg.Call) {
				if c.handler != nil {
					c.handler(msg)
				}
				continue
			}
			select {
			case c.replies <- msg:
			default:
				slog.Debug("unsolicited reply dropped", "call", msg.Call.String())
			}
		}
	}()
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Done returns a channel that's closed when the connection is lost.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func isClosedErr(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed)
}
