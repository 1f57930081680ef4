package chat

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"relaychat/internal/pkg/frame"
)

// stallConn accepts no writes until it is closed.
type stallConn struct {
	closed    chan struct{}
	closeOnce sync.Once
}

func newStallConn() *stallConn {
	return &stallConn{closed: make(chan struct{})}
}

func (c *stallConn) Read([]byte) (int, error) {
	<-c.closed
	return 0, net.ErrClosed
}

func (c *stallConn) Write([]byte) (int, error) {
	<-c.closed
	return 0, net.ErrClosed
}

func (c *stallConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *stallConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4242}
}

func (c *stallConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func TestParseOverflowPolicy(t *testing.T) {
	p, err := ParseOverflowPolicy("block")
	require.NoError(t, err)
	require.Equal(t, PolicyBlock, p)

	p, err = ParseOverflowPolicy("disconnect")
	require.NoError(t, err)
	require.Equal(t, PolicyDisconnect, p)

	_, err = ParseOverflowPolicy("drop")
	require.Error(t, err)
}

func TestOutbox_DisconnectPolicyClosesSlowReceiver(t *testing.T) {
	conn := newStallConn()
	o := newOutbox(conn, 1, PolicyDisconnect, 0, zerolog.Nop())

	o.Deliver([]byte("one"))
	require.False(t, conn.isClosed())

	o.Deliver([]byte("two"))
	require.True(t, conn.isClosed())

	// further deliveries are dropped without blocking
	o.Deliver([]byte("three"))
}

func TestOutbox_BlockPolicyWaitsUntilStopped(t *testing.T) {
	conn := newStallConn()
	o := newOutbox(conn, 1, PolicyBlock, 0, zerolog.Nop())
	o.Deliver([]byte("one"))

	delivered := make(chan struct{})
	go func() {
		o.Deliver([]byte("two"))
		close(delivered)
	}()

	select {
	case <-delivered:
		t.Fatal("Deliver returned while the queue was full")
	case <-time.After(50 * time.Millisecond):
	}

	o.stop()

	select {
	case <-delivered:
	case <-time.After(ioTimeout):
		t.Fatal("Deliver stayed blocked after stop")
	}
	require.False(t, conn.isClosed())
}

func TestOutbox_WritePumpWritesFramesInOrder(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	o := newOutbox(server, 8, PolicyBlock, time.Second, zerolog.Nop())
	go o.writePump()

	o.Deliver([]byte("first"))
	o.Deliver([]byte("second"))

	r := frame.NewReader(client, 0)
	for _, want := range []string{"first", "second"} {
		got, err := r.Next()
		require.NoError(t, err)
		require.Equal(t, want, string(got))
	}

	o.stop()
	<-o.done
}

func TestOutbox_WriteFailureClosesConnection(t *testing.T) {
	server, client := net.Pipe()
	require.NoError(t, client.Close())

	o := newOutbox(server, 1, PolicyBlock, 0, zerolog.Nop())
	go o.writePump()

	o.Deliver([]byte("lost"))

	select {
	case <-o.done:
	case <-time.After(ioTimeout):
		t.Fatal("writePump did not stop after a write failure")
	}

	_, err := server.Write([]byte("x"))
	require.Error(t, err)
}
