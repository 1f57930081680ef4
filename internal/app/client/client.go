/*
Package client implements the participant side of the relay protocol.

A Client joins the room under a display name, keeps a local roster from the server's
notifications, validates what the local user types, and turns everything that happens in
the room into lines for a Renderer. It does not draw anything itself.
*/
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"relaychat/internal/app/protocol"
	"relaychat/internal/app/user"
	"relaychat/internal/pkg/errs"
	"relaychat/internal/pkg/frame"
	"relaychat/internal/pkg/logx"
)

var (
	// ErrNotJoined is returned by Submit and Leave before a successful Join.
	ErrNotJoined = errs.NewError(errs.ErrNotJoined)

	// ErrAlreadyJoined is returned by Join while the client is in the room.
	ErrAlreadyJoined = errs.NewError(errs.ErrAlreadyJoined)

	// ErrUnexpectedMessage is returned by Join when the server sends a message only clients may send.
	ErrUnexpectedMessage = errors.New("unexpected message from server")
)

// Renderer displays one line of chat output.
type Renderer interface {
	Render(line string)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(line string)

// Render implements Renderer.
func (f RendererFunc) Render(line string) { f(line) }

// Client is one participant connection.
// Join and Run must be called from the same goroutine; Submit and Leave may be called concurrently with Run.
type Client struct {
	conn     io.ReadWriteCloser
	reader   *frame.Reader
	renderer Renderer

	// writeMu serializes frame writes.
	writeMu sync.Mutex

	// mu guards the fields below.
	mu     sync.Mutex
	name   string
	joined bool
	roster []user.Participant

	logger zerolog.Logger
}

// New creates a Client over an established connection.
func New(conn io.ReadWriteCloser, renderer Renderer) *Client {
	return &Client{
		conn:     conn,
		reader:   frame.NewReader(conn, 0),
		renderer: renderer,
		logger:   logx.Component("client"),
	}
}

// Dial connects to the relay at addr.
func Dial(ctx context.Context, addr string, renderer Renderer) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return New(conn, renderer), nil
}

// Join asks to enter the room as name and waits for the answer.
// A rejected name yields an error matching ErrNameTaken whose message is the server's reason;
// the client may then try another name.
func (c *Client) Join(name string) error {
	c.mu.Lock()
	joined := c.joined
	c.mu.Unlock()
	if joined {
		return ErrAlreadyJoined
	}

	if err := c.send(protocol.JoinRequest{Name: name}); err != nil {
		return err
	}

	resp, err := c.awaitJoinResponse()
	if err != nil {
		return err
	}

	if !resp.Success {
		rejected := errs.NewError(errs.ErrNameTaken)
		if resp.Error != "" {
			rejected.Message = resp.Error
		}
		return rejected
	}

	c.mu.Lock()
	c.name = name
	c.joined = true
	c.roster = slices.Clone(resp.Roster)
	c.mu.Unlock()

	c.renderer.Render("You joined the chat.")
	return nil
}

// Run handles server messages until the server acknowledges a leave, which returns nil and
// leaves the connection open for another Join, or until the connection fails.
// Cancelling ctx closes the connection.
func (c *Client) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = c.conn.Close() })
	defer stop()

	for {
		msg, err := c.next()
		if err != nil {
			var perr *protocol.ParseError
			if errors.As(err, &perr) {
				c.logger.Warn().Err(err).Msg("Discarding unparsable message from server.")
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		switch m := msg.(type) {
		case protocol.UserJoined:
			c.addPeer(m.Participant)
			c.renderer.Render(fmt.Sprintf("%s joined the chat.", m.Name))

		case protocol.UserLeft:
			c.removePeer(m.Participant)
			c.renderer.Render(fmt.Sprintf("%s left the chat.", m.Name))

		case protocol.ChatMessage:
			if m.Private {
				c.renderer.Render(fmt.Sprintf("%s -> You: %s", m.Sender, m.Text))
			} else {
				c.renderer.Render(fmt.Sprintf("%s: %s", m.Sender, m.Text))
			}

		case protocol.LeaveResponse:
			c.mu.Lock()
			c.joined = false
			c.name = ""
			c.roster = nil
			c.mu.Unlock()

			c.renderer.Render("You left the chat.")
			return nil

		default:
			c.logger.Warn().Str("type", string(msg.Type())).Msg("Ignoring unexpected message from server.")
		}
	}
}

// Submit validates a typed line and sends it. Rejected lines are not sent:
// empty text, a private message to oneself, or to a name missing from the local roster.
func (c *Client) Submit(line string) error {
	in, err := ParseInput(line)
	if err != nil {
		return err
	}

	c.mu.Lock()
	name, joined := c.name, c.joined
	known := lo.ContainsBy(c.roster, func(p user.Participant) bool { return p.Name == in.To })
	c.mu.Unlock()

	if !joined {
		return ErrNotJoined
	}

	if in.Private {
		if in.To == name {
			return errs.NewError(errs.ErrInvalidRecipient)
		}
		if !known {
			return errs.NewError(errs.ErrRecipientNotFound, in.To)
		}
	}

	msg := protocol.ChatMessage{Private: in.Private, Sender: name, Receiver: in.To, Text: in.Text}
	if err := c.send(msg); err != nil {
		return err
	}

	if in.Private {
		c.renderer.Render(fmt.Sprintf("You -> %s: %s", in.To, in.Text))
	} else {
		c.renderer.Render(fmt.Sprintf("You: %s", in.Text))
	}
	return nil
}

// Leave asks to leave the room. Run returns once the server acknowledges it.
func (c *Client) Leave() error {
	c.mu.Lock()
	joined := c.joined
	c.mu.Unlock()
	if !joined {
		return ErrNotJoined
	}

	return c.send(protocol.LeaveRequest{})
}

// Name returns the display name while joined.
func (c *Client) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// Roster returns the names of the other participants, in the order they were learned.
func (c *Client) Roster() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return lo.Map(c.roster, func(p user.Participant, _ int) string { return p.Name })
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) addPeer(p user.Participant) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.roster = append(c.roster, p)
}

func (c *Client) removePeer(p user.Participant) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.roster = slices.DeleteFunc(c.roster, func(q user.Participant) bool {
		return q.Address == p.Address
	})
}

func (c *Client) send(msg protocol.Message) error {
	payload, err := protocol.Serialize(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return frame.Write(c.conn, payload)
}

// awaitJoinResponse reads until the server answers a join request. Room traffic still in
// flight from an earlier membership is logged and skipped.
func (c *Client) awaitJoinResponse() (protocol.JoinResponse, error) {
	for {
		msg, err := c.next()
		if err != nil {
			var perr *protocol.ParseError
			if errors.As(err, &perr) {
				c.logger.Warn().Err(err).Msg("Discarding unparsable message from server.")
				continue
			}
			return protocol.JoinResponse{}, err
		}

		switch m := msg.(type) {
		case protocol.JoinResponse:
			return m, nil
		case protocol.JoinRequest, protocol.LeaveRequest:
			return protocol.JoinResponse{}, fmt.Errorf("%w: %s", ErrUnexpectedMessage, msg.Type())
		default:
			c.logger.Debug().Str("type", string(msg.Type())).Msg("Skipping message received before the join response.")
		}
	}
}

func (c *Client) next() (protocol.Message, error) {
	payload, err := c.reader.Next()
	if err != nil {
		return nil, err
	}

	c.logger.Debug().Bytes("payload", payload).Msg("Message received.")
	return protocol.Parse(payload)
}
