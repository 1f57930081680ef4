package chat

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"relaychat/internal/app/protocol"
	"relaychat/internal/app/user"
	"relaychat/internal/pkg/frame"
	"relaychat/internal/pkg/logx"
)

const ioTimeout = 2 * time.Second

func TestMain(m *testing.M) {
	logx.SetOutput(io.Discard, zerolog.Disabled)
	os.Exit(m.Run())
}

// testClient speaks the wire protocol over a real TCP connection.
type testClient struct {
	t      *testing.T
	conn   net.Conn
	reader *frame.Reader
}

func dial(t *testing.T, addr net.Addr) *testClient {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr.String(), ioTimeout)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &testClient{t: t, conn: conn, reader: frame.NewReader(conn, 0)}
}

func (c *testClient) address() user.Address {
	return user.AddressFromNet(c.conn.LocalAddr())
}

func (c *testClient) send(msg protocol.Message) {
	c.t.Helper()
	require.NoError(c.t, frame.Write(c.conn, mustSerialize(c.t, msg)))
}

func (c *testClient) recv() protocol.Message {
	c.t.Helper()

	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(ioTimeout)))
	payload, err := c.reader.Next()
	require.NoError(c.t, err)

	msg, err := protocol.Parse(payload)
	require.NoError(c.t, err)
	return msg
}

func (c *testClient) join(name string) protocol.JoinResponse {
	c.t.Helper()

	c.send(protocol.JoinRequest{Name: name})
	resp, ok := c.recv().(protocol.JoinResponse)
	require.True(c.t, ok)
	return resp
}

func (c *testClient) expectClosed() {
	c.t.Helper()

	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(ioTimeout)))
	_, err := c.reader.Next()
	require.ErrorIs(c.t, err, frame.ErrEndOfStream)
}

type running struct {
	sup    *Supervisor
	ln     net.Listener
	cancel context.CancelFunc
	done   chan error
}

func startSupervisor(t *testing.T, opts Options) *running {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	sup := NewSupervisor(NewRouter(NewRegistry(), nil), opts)
	ctx, cancel := context.WithCancel(context.Background())

	r := &running{sup: sup, ln: ln, cancel: cancel, done: make(chan error, 1)}
	go func() { r.done <- sup.Serve(ctx, ln) }()

	t.Cleanup(cancel)
	return r
}

func TestSupervisor_AliceBobScenario(t *testing.T) {
	srv := startSupervisor(t, Options{})

	alice := dial(t, srv.ln.Addr())
	resp := alice.join("alice")
	require.True(t, resp.Success)
	require.Empty(t, resp.Roster)

	bob := dial(t, srv.ln.Addr())
	resp = bob.join("bob")
	require.True(t, resp.Success)
	require.Equal(t, []user.Participant{{Address: alice.address(), Name: "alice"}}, resp.Roster)

	require.Equal(t, protocol.UserJoined{Participant: user.Participant{Address: bob.address(), Name: "bob"}}, alice.recv())

	bob.send(protocol.ChatMessage{Text: "hi alice"})
	require.Equal(t, protocol.ChatMessage{Sender: "bob", Text: "hi alice"}, alice.recv())

	alice.send(protocol.ChatMessage{Private: true, Sender: "alice", Receiver: "bob", Text: "psst"})
	require.Equal(t, protocol.ChatMessage{Private: true, Sender: "alice", Text: "psst"}, bob.recv())

	bob.send(protocol.LeaveRequest{})
	require.Equal(t, protocol.LeaveResponse{}, bob.recv())
	require.Equal(t, protocol.UserLeft{Participant: user.Participant{Address: bob.address(), Name: "bob"}}, alice.recv())

	// same connection joins again
	resp = bob.join("bobby")
	require.True(t, resp.Success)
	require.Equal(t, []user.Participant{{Address: alice.address(), Name: "alice"}}, resp.Roster)
	require.Equal(t, protocol.UserJoined{Participant: user.Participant{Address: bob.address(), Name: "bobby"}}, alice.recv())

	aliceAddr := alice.address()
	require.NoError(t, alice.conn.Close())
	require.Equal(t, protocol.UserLeft{Participant: user.Participant{Address: aliceAddr, Name: "alice"}}, bob.recv())

	require.Eventually(t, func() bool {
		return srv.sup.Router().Registry().Len() == 1
	}, ioTimeout, 10*time.Millisecond)
}

func TestSupervisor_DuplicateName(t *testing.T) {
	srv := startSupervisor(t, Options{})

	first := dial(t, srv.ln.Addr())
	require.True(t, first.join("alice").Success)

	second := dial(t, srv.ln.Addr())
	resp := second.join("alice")
	require.False(t, resp.Success)
	require.Equal(t, "Display name is already in use. Please choose another name.", resp.Error)
	require.Nil(t, resp.Roster)

	// the rejected connection stays usable and the first client saw nothing in between
	require.True(t, second.join("alice2").Success)
	require.Equal(t, protocol.UserJoined{Participant: user.Participant{Address: second.address(), Name: "alice2"}}, first.recv())
}

func TestSupervisor_OversizedFrameDisconnects(t *testing.T) {
	srv := startSupervisor(t, Options{MaxFrameSize: 64})

	c := dial(t, srv.ln.Addr())
	var header [frame.HeaderLength]byte
	binary.BigEndian.PutUint32(header[:], 1<<20)
	_, err := c.conn.Write(header[:])
	require.NoError(t, err)

	c.expectClosed()
}

func TestSupervisor_ShutdownWaitsForConnections(t *testing.T) {
	srv := startSupervisor(t, Options{})

	c := dial(t, srv.ln.Addr())
	require.True(t, c.join("alice").Success)
	require.Eventually(t, func() bool { return srv.sup.ActiveConnections() == 1 }, ioTimeout, 10*time.Millisecond)

	srv.cancel()

	// no new connections once shutdown started
	require.Eventually(t, func() bool {
		conn, err := net.DialTimeout("tcp", srv.ln.Addr().String(), 100*time.Millisecond)
		if err != nil {
			return true
		}
		_ = conn.Close()
		return false
	}, ioTimeout, 20*time.Millisecond)

	select {
	case err := <-srv.done:
		t.Fatalf("Serve returned while a connection was active: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	// the existing session keeps working during shutdown
	c.send(protocol.LeaveRequest{})
	require.Equal(t, protocol.LeaveResponse{}, c.recv())

	require.NoError(t, c.conn.Close())

	select {
	case err := <-srv.done:
		require.NoError(t, err)
	case <-time.After(ioTimeout):
		t.Fatal("Serve did not return after the last connection ended")
	}
	require.Zero(t, srv.sup.ActiveConnections())
}

func TestSupervisor_HandleAfterShutdownRefuses(t *testing.T) {
	sup := NewSupervisor(NewRouter(NewRegistry(), nil), Options{})
	sup.Wait()

	server, client := net.Pipe()
	defer client.Close()

	require.False(t, sup.Handle(server))

	_, err := server.Write([]byte("x"))
	require.True(t, errors.Is(err, io.ErrClosedPipe))
}

func TestSupervisor_HandleOverPipe(t *testing.T) {
	sup := NewSupervisor(NewRouter(NewRegistry(), nil), Options{})

	server, client := net.Pipe()
	require.True(t, sup.Handle(server))

	c := &testClient{t: t, conn: client, reader: frame.NewReader(client, 0)}
	require.True(t, c.join("alice").Success)
	require.Equal(t, 1, sup.Router().Registry().Len())

	require.NoError(t, client.Close())
	sup.Wait()

	require.Zero(t, sup.Router().Registry().Len())
	require.Zero(t, sup.ActiveConnections())
}
