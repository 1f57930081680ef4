/*
Package handler provides the HTTP handlers and routing setup for the relay's admin surface.

This file contains HandleWebSocket, which upgrades a request and hands the resulting
stream to the Supervisor, exactly like an accepted TCP connection.
*/
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"relaychat/internal/pkg/logx"
	"relaychat/internal/pkg/wsconn"
)

// HandleWebSocket creates an HTTP HandlerFunc bridging WebSocket clients into the relay.
func HandleWebSocket(deps *AppDeps, upgrader websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		conn := wsconn.New(ws, nil)
		if !deps.Supervisor.Handle(conn) {
			logx.Info("WebSocket connection refused: relay is shutting down.")
			return
		}

		logx.Debug("WebSocket connection handed to the relay.", "remote_addr", logx.AnonymizeIP(ws.RemoteAddr().String()))
	}
}
