package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"relaychat/internal/app/chat"
	"relaychat/internal/app/journal"
	"relaychat/internal/app/protocol"
	"relaychat/internal/app/user"
	"relaychat/internal/configs"
	"relaychat/internal/pkg/errs"
	"relaychat/internal/pkg/frame"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type stubJournal struct {
	events []journal.Event
	err    error
	limit  int
}

func (s *stubJournal) Recent(_ context.Context, limit int) ([]journal.Event, error) {
	s.limit = limit
	return s.events, s.err
}

func newDeps(t *testing.T) *AppDeps {
	t.Helper()
	return &AppDeps{
		Supervisor: chat.NewSupervisor(chat.NewRouter(chat.NewRegistry(), nil), chat.Options{}),
		Config:     &configs.AppConfig{Environment: configs.EnvDevelopment},
	}
}

func get(t *testing.T, h http.Handler, target string) (int, envelope) {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec.Code, env
}

func TestHealth(t *testing.T) {
	deps := newDeps(t)
	_, err := deps.Supervisor.Router().Registry().TryJoin(user.Address{Host: "10.0.0.1", Port: 1}, "alice", nil)
	require.NoError(t, err)

	status, env := get(t, Router(deps), "/health")
	require.Equal(t, http.StatusOK, status)
	require.Zero(t, env.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(env.Data, &health))
	require.Equal(t, HealthResponse{Status: "ok", Service: serviceName, Participants: 1, Connections: 0}, health)
}

func TestParticipants(t *testing.T) {
	deps := newDeps(t)
	h := Router(deps)

	_, env := get(t, h, "/api/participants")
	require.JSONEq(t, `[]`, string(env.Data))

	reg := deps.Supervisor.Router().Registry()
	_, err := reg.TryJoin(user.Address{Host: "10.0.0.1", Port: 1}, "alice", nil)
	require.NoError(t, err)
	_, err = reg.TryJoin(user.Address{Host: "10.0.0.2", Port: 2}, "bob", nil)
	require.NoError(t, err)

	_, env = get(t, h, "/api/participants")
	require.JSONEq(t, `[{"host":"10.0.0.1","port":1,"name":"alice"},{"host":"10.0.0.2","port":2,"name":"bob"}]`, string(env.Data))
}

func TestJournal(t *testing.T) {
	at := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)
	events := []journal.Event{{Kind: journal.KindJoined, Name: "alice", Host: "10.0.0.1", Port: 1, At: at}}

	tests := []struct {
		name       string
		journal    *stubJournal
		target     string
		wantStatus int
		wantCode   int
		wantLimit  int
	}{
		{name: "disabled", target: "/api/journal", wantStatus: http.StatusNotFound, wantCode: errs.ErrJournalDisabled},
		{name: "default limit", journal: &stubJournal{events: events}, target: "/api/journal", wantStatus: http.StatusOK, wantLimit: journal.DefaultLimit},
		{name: "explicit limit", journal: &stubJournal{events: events}, target: "/api/journal?limit=5", wantStatus: http.StatusOK, wantLimit: 5},
		{name: "invalid limit", journal: &stubJournal{}, target: "/api/journal?limit=abc", wantStatus: http.StatusBadRequest, wantCode: errs.ErrInvalidParams},
		{name: "store failure", journal: &stubJournal{err: errors.New("db down")}, target: "/api/journal", wantStatus: http.StatusInternalServerError, wantCode: errs.ErrUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := newDeps(t)
			if tt.journal != nil {
				deps.Journal = tt.journal
			}

			status, env := get(t, Router(deps), tt.target)
			require.Equal(t, tt.wantStatus, status)
			require.Equal(t, tt.wantCode, env.Code)

			if tt.wantLimit != 0 {
				require.Equal(t, tt.wantLimit, tt.journal.limit)

				var got []journal.Event
				require.NoError(t, json.Unmarshal(env.Data, &got))
				require.Equal(t, events, got)
			}
		})
	}
}

func TestWebSocketBridge(t *testing.T) {
	deps := newDeps(t)
	srv := httptest.NewServer(Router(deps))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	payload, err := protocol.Serialize(protocol.JoinRequest{Name: "alice"})
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, frame.Encode(payload)))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)

	r := frame.NewReader(strings.NewReader(string(data)), 0)
	reply, err := r.Next()
	require.NoError(t, err)

	msg, err := protocol.Parse(reply)
	require.NoError(t, err)
	resp, ok := msg.(protocol.JoinResponse)
	require.True(t, ok)
	require.True(t, resp.Success)

	roster := deps.Supervisor.Router().Registry().Snapshot()
	require.Len(t, roster, 1)
	require.Equal(t, "alice", roster[0].Name)
	require.NotNil(t, net.ParseIP(roster[0].Host))

	require.NoError(t, ws.Close())
	require.Eventually(t, func() bool {
		return deps.Supervisor.Router().Registry().Len() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
