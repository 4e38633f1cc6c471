/*
Package gateway contains the real-time presence and messaging core.

This file defines the Client struct, one per live WebSocket session. It owns
the read/write pumps, the buffered outbound queue, the credential sources
captured at the handshake, and the lazily attached authenticated identity.
*/
package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"pulse/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a message sent by the client.
	maxMessageSize = 8192

	// capacity of each client's outbound queue.
	sendChannelBuffer = 256
)

// Identity is the authenticated identity attached to a connection after a
// successful per-event authentication. It reflects the directory's current
// view of the user, not the token's issue-time snapshot.
type Identity struct {
	UserID       string
	Email        string
	Role         string
	TokenVersion int
}

// Client represents one live transport session. It starts unauthenticated;
// identity is attached on the first successfully authenticated event and
// refreshed on every subsequent one.
type Client struct {
	// opaque connection identifier.
	id string

	// the gateway this connection belongs to.
	gw *Gateway

	// underlying WebSocket connection. Nil in tests that drive the gateway
	// handlers directly and read from the send queue instead.
	conn *websocket.Conn

	// buffered channel of outbound frames waiting to be written.
	send chan []byte

	// credential sources captured at the transport handshake.
	headerToken string
	queryToken  string

	// mu guards authToken and identity.
	mu sync.Mutex

	// token supplied post-connect via the auth event, tried after the
	// handshake sources.
	authToken string

	// nullable authenticated identity; nil until the first authenticated event.
	identity *Identity

	// disconnectOnce ensures the disconnect cleanup runs exactly once.
	disconnectOnce sync.Once

	// structured logger with connection context.
	logger zerolog.Logger
}

// newClient constructs a Client for an accepted WebSocket connection.
func newClient(gw *Gateway, conn *websocket.Conn, headerToken, queryToken string) *Client {
	id := uuid.New().String()

	clientLogger := logx.Logger().With().
		Str("component", "gateway").
		Str("conn_id", id).
		Logger()

	return &Client{
		id:          id,
		gw:          gw,
		conn:        conn,
		send:        make(chan []byte, sendChannelBuffer),
		headerToken: headerToken,
		queryToken:  queryToken,
		logger:      clientLogger,
	}
}

// ID returns the opaque connection identifier.
func (c *Client) ID() string {
	return c.id
}

// Identity returns the attached identity, or nil when unauthenticated.
func (c *Client) Identity() *Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

func (c *Client) setIdentity(id Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = &id
}

// token returns the credential to authenticate the next event with, trying
// the handshake Authorization header, then the handshake query parameter,
// then the token supplied via the auth event. First non-empty wins.
func (c *Client) token() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.headerToken != "" {
		return c.headerToken
	}
	if c.queryToken != "" {
		return c.queryToken
	}
	return c.authToken
}

func (c *Client) setAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = token
}

// enqueue appends an encoded frame to the outbound queue without blocking.
// A full queue drops the frame for this recipient only; deliveries to other
// recipients are unaffected.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Client send queue full, dropping frame")
		return false
	}
}

// sendEvent encodes and queues an outbound frame for this connection.
func (c *Client) sendEvent(event string, payload any) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		c.logger.Error().Err(err).Str("event", event).Msg("Failed to encode outbound frame")
		return
	}
	c.enqueue(frame)
}

// ack queues an acknowledgment frame for this connection.
func (c *Client) ack(payload any) {
	c.sendEvent(EventAck, payload)
}

// ReadPump reads frames from the WebSocket connection and dispatches them to
// the gateway. Each connection's events are processed in transport order by
// this single goroutine. Cleanup runs when the loop exits.
func (c *Client) ReadPump() {
	defer func() {
		c.gw.handleDisconnect(c)
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error")
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (client close/going away)")
			}
			break
		}

		var frame Frame
		if err := json.Unmarshal(messageBytes, &frame); err != nil {
			c.logger.Warn().Err(err).Msg("Client sent invalid JSON frame")
			continue
		}

		c.gw.dispatch(c, frame)
	}
}

// WritePump writes queued frames to the WebSocket connection and keeps the
// heartbeat alive with periodic pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error().Err(err).Msg("Failed to set write deadline")
				return
			}

			if !ok {
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					c.logger.Debug().Err(err).Msg("Error writing close message")
				}
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Warn().Err(err).Msg("Error writing frame")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
				return
			}

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
