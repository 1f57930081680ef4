package chat

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"relaychat/internal/app/protocol"
	"relaychat/internal/app/user"
)

// recordingSink keeps every delivered payload in order.
type recordingSink struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (s *recordingSink) Deliver(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, payload)
}

// messages parses everything delivered so far.
func (s *recordingSink) messages(t *testing.T) []protocol.Message {
	t.Helper()

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]protocol.Message, 0, len(s.payloads))
	for _, p := range s.payloads {
		msg, err := protocol.Parse(p)
		require.NoError(t, err)
		out = append(out, msg)
	}
	return out
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = nil
}

func addr(port int) user.Address {
	return user.Address{Host: "127.0.0.1", Port: port}
}

func participant(port int, name string) user.Participant {
	return user.Participant{Address: addr(port), Name: name}
}
