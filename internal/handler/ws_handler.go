/*
Package handler provides the HTTP handlers and routing setup for the Pulse server.

This file contains the WebSocket upgrade handler. The connection is accepted
without authentication; credentials found on the handshake (Authorization
header, token query parameter) are captured for the gateway's per-event guard.
*/
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"pulse/internal/pkg/auth/jwt"
	"pulse/internal/pkg/logx"
)

// HandleWebSocket upgrades the HTTP connection and starts the client pumps.
func HandleWebSocket(upgrader websocket.Upgrader, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		headerToken := jwt.ExtractBearerToken(r.Header.Get("Authorization"))
		queryToken := r.URL.Query().Get("token")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		client := deps.Gateway.NewConnection(conn, headerToken, queryToken)

		go client.WritePump()
		client.ReadPump()
	}
}
