/*
Package gateway contains the real-time presence and messaging core.

It accepts persistent WebSocket connections, authenticates every inbound event
against a revocable JWT credential, tracks which users are online and on which
connection, manages room membership, and routes chat messages to rooms, to a
single recipient, or to everyone.

This file defines the wire protocol: inbound/outbound frame framing, event
names, acknowledgment payloads, and the message envelope.
*/
package gateway

import (
	"encoding/json"
	"time"
)

// Inbound event names accepted from clients.
const (
	EventAuth           = "auth"
	EventJoinRoom       = "join_room"
	EventLeaveRoom      = "leave_room"
	EventSendMessage    = "send_message"
	EventGetOnlineUsers = "get_online_users"
	EventPing           = "ping"
	EventAdminBroadcast = "admin_broadcast"
)

// Outbound event names pushed to clients.
const (
	EventAck               = "ack"
	EventUserJoined        = "user_joined"
	EventUserLeft          = "user_left"
	EventUserOnline        = "user_online"
	EventUserOffline       = "user_offline"
	EventNewMessage        = "new_message"
	EventNotification      = "notification"
	EventAdminAnnouncement = "admin_announcement"
)

// Frame is the transport framing for every message in either direction:
// an event name plus an event-specific JSON payload.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// encodeFrame marshals an outbound frame with the given event name and payload.
func encodeFrame(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: data})
}

// Sender is the immutable identity snapshot stamped onto every envelope.
type Sender struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Envelope wraps a chat message with its sender snapshot, a server-assigned
// identifier unique within the process lifetime, and a server-assigned
// timestamp. It is never mutated after construction.
type Envelope struct {
	ID        int64     `json:"id"`
	From      Sender    `json:"from"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Announcement is the envelope for admin broadcasts. The Type tag lets
// clients render it differently from ordinary chat.
type Announcement struct {
	Type      string    `json:"type"`
	ID        int64     `json:"id"`
	From      Sender    `json:"from"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// AckResult is the generic acknowledgment returned for gateway events.
// The Event field echoes the event being acknowledged.
type AckResult struct {
	Event   string `json:"event"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// OnlineUsersAck acknowledges get_online_users with the current presence set.
type OnlineUsersAck struct {
	Event       string   `json:"event"`
	Success     bool     `json:"success"`
	OnlineUsers []string `json:"onlineUsers"`
	TotalOnline int      `json:"totalOnline"`
}

// PingAck acknowledges ping with the caller's identity snapshot.
type PingAck struct {
	Event     string    `json:"event"`
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	User      Sender    `json:"user"`
	Timestamp time.Time `json:"timestamp"`
}

// RoomEventPayload notifies room members about a join or leave.
type RoomEventPayload struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Room   string `json:"room"`
}

// PresencePayload notifies peers that a user came online.
type PresencePayload struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role,omitempty"`
}

// Payload shapes for the inbound events.

type authPayload struct {
	Token string `json:"token"`
}

type roomPayload struct {
	Room string `json:"room"`
}

type sendMessagePayload struct {
	Message string `json:"message"`
	Room    string `json:"room,omitempty"`
	To      string `json:"to,omitempty"`
}

type adminBroadcastPayload struct {
	Message string `json:"message"`
}
