/*
Package gateway contains the real-time presence and messaging core.

This file defines the Gateway struct, which orchestrates connection lifecycle
events and message-type events. It owns the authorization decision per event
and the routing decision per message, using the Registry for shared state and
the Directory for revocation checks.
*/
package gateway

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"pulse/internal/pkg/logx"
)

// ackUnauthorized is the generic rejection every guard failure collapses to.
const ackUnauthorized = "Unauthorized"

// RoleAdmin is the elevated role as reported by the directory. Only
// connections authenticated with this role may use admin_broadcast.
const RoleAdmin = "ADMIN"

// Gateway orchestrates the presence and messaging core for one process.
type Gateway struct {
	registry  *Registry
	directory Directory
	jwtSecret string

	// lookupTimeout bounds each directory call.
	lookupTimeout time.Duration

	// messageSeq assigns envelope identifiers, monotonically increasing
	// within the process lifetime.
	messageSeq atomic.Int64

	logger zerolog.Logger
}

// New constructs a Gateway with its own isolated Registry.
func New(directory Directory, jwtSecret string) *Gateway {
	return &Gateway{
		registry:      NewRegistry(),
		directory:     directory,
		jwtSecret:     jwtSecret,
		lookupTimeout: defaultLookupTimeout,
		logger:        logx.Logger().With().Str("component", "gateway").Logger(),
	}
}

// NewConnection wraps an accepted WebSocket connection in a Client and
// records it in the session set. No identity is attached and no presence
// mapping is created yet; authentication happens per event. The caller is
// responsible for starting the read and write pumps.
func (g *Gateway) NewConnection(conn *websocket.Conn, headerToken, queryToken string) *Client {
	c := newClient(g, conn, headerToken, queryToken)
	g.registry.AddSession(c)
	c.logger.Info().Msg("Client connected")
	return c
}

// handleDisconnect removes the connection from the presence map and from
// every room as one atomic operation, then notifies the remaining peers.
// Safe to call multiple times; only the first call has any effect.
func (g *Gateway) handleDisconnect(c *Client) {
	c.disconnectOnce.Do(func() {
		identity := c.Identity()

		userID := ""
		if identity != nil {
			userID = identity.UserID
		}

		g.registry.Disconnect(c, userID)
		c.logger.Info().Msg("Client disconnected")

		if identity == nil {
			return
		}

		g.pushToAll(EventUserOffline, PresencePayload{
			UserID: identity.UserID,
			Email:  identity.Email,
		}, nil)
	})
}

// dispatch routes one inbound frame to its handler. Handlers never panic the
// transport loop; every rejection is converted to a failure acknowledgment.
func (g *Gateway) dispatch(c *Client, frame Frame) {
	switch frame.Event {
	case EventAuth:
		g.handleAuth(c, frame.Data)
	case EventJoinRoom:
		g.handleJoinRoom(c, frame.Data)
	case EventLeaveRoom:
		g.handleLeaveRoom(c, frame.Data)
	case EventSendMessage:
		g.handleSendMessage(c, frame.Data)
	case EventGetOnlineUsers:
		g.handleGetOnlineUsers(c)
	case EventPing:
		g.handlePing(c)
	case EventAdminBroadcast:
		g.handleAdminBroadcast(c, frame.Data)
	default:
		c.ack(AckResult{Event: frame.Event, Success: false, Message: "Unknown event"})
	}
}

// handleAuth stores the credential supplied via the auth event. It is the
// post-connect equivalent of the handshake auth payload and is consulted
// after the handshake header and query parameter.
func (g *Gateway) handleAuth(c *Client, data json.RawMessage) {
	var payload authPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.Token == "" {
		c.ack(AckResult{Event: EventAuth, Success: false, Message: "Token is required"})
		return
	}

	c.setAuthToken(payload.Token)
	c.ack(AckResult{Event: EventAuth, Success: true, Message: "Token registered"})
}

// handleJoinRoom adds the connection to the room and notifies the other
// current members. Rooms are implicit; joining any name is valid.
func (g *Gateway) handleJoinRoom(c *Client, data json.RawMessage) {
	identity, aerr := g.authenticate(c)
	if aerr != nil {
		c.ack(AckResult{Event: EventJoinRoom, Success: false, Message: ackUnauthorized})
		return
	}

	var payload roomPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.Room == "" {
		c.ack(AckResult{Event: EventJoinRoom, Success: false, Message: "Room name is required"})
		return
	}

	joined := g.registry.JoinRoom(c, payload.Room)

	if joined {
		c.logger.Info().Str("email", identity.Email).Str("room", payload.Room).Msg("User joined room")

		g.pushToRoom(payload.Room, EventUserJoined, RoomEventPayload{
			UserID: identity.UserID,
			Email:  identity.Email,
			Room:   payload.Room,
		}, c)
	}

	c.ack(AckResult{Event: EventJoinRoom, Success: true, Message: "Joined room: " + payload.Room})
}

// handleLeaveRoom removes the connection from the room and notifies the
// remaining members. Leaving a room the caller is not in is a no-op success.
func (g *Gateway) handleLeaveRoom(c *Client, data json.RawMessage) {
	identity, aerr := g.authenticate(c)
	if aerr != nil {
		c.ack(AckResult{Event: EventLeaveRoom, Success: false, Message: ackUnauthorized})
		return
	}

	var payload roomPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.Room == "" {
		c.ack(AckResult{Event: EventLeaveRoom, Success: false, Message: "Room name is required"})
		return
	}

	left := g.registry.LeaveRoom(c, payload.Room)

	if left {
		c.logger.Info().Str("email", identity.Email).Str("room", payload.Room).Msg("User left room")

		g.pushToRoom(payload.Room, EventUserLeft, RoomEventPayload{
			UserID: identity.UserID,
			Email:  identity.Email,
			Room:   payload.Room,
		}, c)
	}

	c.ack(AckResult{Event: EventLeaveRoom, Success: true, Message: "Left room: " + payload.Room})
}

// handleSendMessage validates the message and routes it: to a room, to a
// single recipient, or to everyone. The sender is excluded in all branches.
func (g *Gateway) handleSendMessage(c *Client, data json.RawMessage) {
	identity, aerr := g.authenticate(c)
	if aerr != nil {
		c.ack(AckResult{Event: EventSendMessage, Success: false, Message: ackUnauthorized})
		return
	}

	var payload sendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.ack(AckResult{Event: EventSendMessage, Success: false, Message: "Invalid payload"})
		return
	}

	if payload.Message == "" {
		c.ack(AckResult{Event: EventSendMessage, Success: false, Message: "Message body must not be empty"})
		return
	}

	if payload.Room != "" && payload.To != "" {
		c.ack(AckResult{Event: EventSendMessage, Success: false, Message: "Specify either room or to, not both"})
		return
	}

	envelope := Envelope{
		ID:        g.messageSeq.Add(1),
		From:      Sender{ID: identity.UserID, Email: identity.Email, Role: identity.Role},
		Message:   payload.Message,
		Timestamp: time.Now(),
	}

	switch {
	case payload.Room != "":
		g.pushToRoom(payload.Room, EventNewMessage, envelope, c)
		c.logger.Info().Str("email", identity.Email).Str("room", payload.Room).Msg("Message sent to room")

	case payload.To != "":
		target, online := g.registry.Lookup(payload.To)
		if !online {
			c.ack(AckResult{Event: EventSendMessage, Success: false, Message: "User not online"})
			return
		}
		if target != c {
			target.sendEvent(EventNewMessage, envelope)
		}
		c.logger.Info().Str("email", identity.Email).Str("to", payload.To).Msg("Private message sent")

	default:
		g.pushToAll(EventNewMessage, envelope, c)
		c.logger.Info().Str("email", identity.Email).Msg("Broadcast message sent")
	}

	c.ack(AckResult{Event: EventSendMessage, Success: true, Message: "Message sent"})
}

// handleGetOnlineUsers registers the caller in the presence map, announces
// the caller to everyone else, and returns the current presence set. This is
// the only event that populates the presence mapping.
func (g *Gateway) handleGetOnlineUsers(c *Client) {
	identity, aerr := g.authenticate(c)
	if aerr != nil {
		c.ack(AckResult{Event: EventGetOnlineUsers, Success: false, Message: ackUnauthorized})
		return
	}

	g.registry.Register(identity.UserID, c)

	g.pushToAll(EventUserOnline, PresencePayload{
		UserID: identity.UserID,
		Email:  identity.Email,
		Role:   identity.Role,
	}, c)

	online := g.registry.OnlineUserIDs()

	c.ack(OnlineUsersAck{
		Event:       EventGetOnlineUsers,
		Success:     true,
		OnlineUsers: online,
		TotalOnline: len(online),
	})
}

// handlePing answers with the caller's identity snapshot and server time.
func (g *Gateway) handlePing(c *Client) {
	identity, aerr := g.authenticate(c)
	if aerr != nil {
		c.ack(AckResult{Event: EventPing, Success: false, Message: ackUnauthorized})
		return
	}

	c.ack(PingAck{
		Event:     EventPing,
		Success:   true,
		Message:   "pong",
		User:      Sender{ID: identity.UserID, Email: identity.Email, Role: identity.Role},
		Timestamp: time.Now(),
	})
}

// handleAdminBroadcast delivers an announcement to every connection,
// including the sender. Requires the ADMIN role on top of authentication.
func (g *Gateway) handleAdminBroadcast(c *Client, data json.RawMessage) {
	identity, aerr := g.authenticate(c)
	if aerr != nil {
		c.ack(AckResult{Event: EventAdminBroadcast, Success: false, Message: ackUnauthorized})
		return
	}

	if identity.Role != RoleAdmin {
		c.ack(AckResult{Event: EventAdminBroadcast, Success: false, Message: "Unauthorized: Admin access required"})
		return
	}

	var payload adminBroadcastPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.Message == "" {
		c.ack(AckResult{Event: EventAdminBroadcast, Success: false, Message: "Message body must not be empty"})
		return
	}

	announcement := Announcement{
		Type:      EventAdminAnnouncement,
		ID:        g.messageSeq.Add(1),
		From:      Sender{ID: identity.UserID, Email: identity.Email, Role: identity.Role},
		Message:   payload.Message,
		Timestamp: time.Now(),
	}

	g.pushToAll(EventAdminAnnouncement, announcement, nil)
	c.logger.Info().Str("email", identity.Email).Msg("Admin broadcast sent")

	c.ack(AckResult{Event: EventAdminBroadcast, Success: true, Message: "Admin broadcast sent"})
}

// pushToAll delivers one frame to every live connection except exclude.
// Each recipient's delivery is attempted independently.
func (g *Gateway) pushToAll(event string, payload any, exclude *Client) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		g.logger.Error().Err(err).Str("event", event).Msg("Failed to encode broadcast frame")
		return
	}

	for _, peer := range g.registry.Sessions() {
		if peer == exclude {
			continue
		}
		peer.enqueue(frame)
	}
}

// pushToRoom delivers one frame to every member of the room except exclude.
// An empty room is a no-op.
func (g *Gateway) pushToRoom(room, event string, payload any, exclude *Client) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		g.logger.Error().Err(err).Str("event", event).Str("room", room).Msg("Failed to encode room frame")
		return
	}

	for _, member := range g.registry.RoomMembers(room) {
		if member == exclude {
			continue
		}
		member.enqueue(frame)
	}
}

// NotifyUser delivers a notification frame to the user's connection if the
// user is online, reporting whether delivery occurred. It lets services
// outside the gateway push through the live-connection fabric.
func (g *Gateway) NotifyUser(userID string, payload any) bool {
	target, online := g.registry.Lookup(userID)
	if !online {
		return false
	}

	target.sendEvent(EventNotification, payload)
	return true
}

// Broadcast delivers an arbitrary event to every live connection.
func (g *Gateway) Broadcast(event string, payload any) {
	g.pushToAll(event, payload, nil)
}

// SendToRoom delivers an arbitrary event to every member of the room.
func (g *Gateway) SendToRoom(room, event string, payload any) {
	g.pushToRoom(room, event, payload, nil)
}
