package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"pulse/internal/pkg/auth/jwt"
)

const testSecret = "unit-test-secret"

// fakeDirectory is an in-memory Directory for tests. Entries can be mutated
// mid-test to simulate revocation and deleted accounts.
type fakeDirectory struct {
	mu      sync.Mutex
	entries map[string]DirectoryEntry
	err     error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{entries: make(map[string]DirectoryEntry)}
}

func (d *fakeDirectory) Lookup(_ context.Context, userID string) (DirectoryEntry, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.err != nil {
		return DirectoryEntry{}, false, d.err
	}

	entry, ok := d.entries[userID]
	return entry, ok, nil
}

func (d *fakeDirectory) put(userID string, entry DirectoryEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[userID] = entry
}

func (d *fakeDirectory) remove(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.entries, userID)
}

func (d *fakeDirectory) bumpTokenVersion(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entry := d.entries[userID]
	entry.TokenVersion++
	d.entries[userID] = entry
}

// mintToken issues a signed token matching the given directory state.
func mintToken(t *testing.T, userID, email, role string, tokenVersion int) string {
	t.Helper()

	token, err := jwt.GenerateToken(&jwt.Payload{
		UserID:       userID,
		Email:        email,
		Role:         role,
		TokenVersion: tokenVersion,
	}, testSecret, jwt.AccessTokenExpiration)
	require.NoError(t, err)

	return token
}

// mintTokenWithSecret issues a token signed with an arbitrary key.
func mintTokenWithSecret(t *testing.T, userID, secret string) string {
	t.Helper()

	token, err := jwt.GenerateToken(&jwt.Payload{
		UserID: userID,
		Role:   "USER",
	}, secret, jwt.AccessTokenExpiration)
	require.NoError(t, err)

	return token
}

// connectUser creates a directory entry, a matching token, and a connected
// (but not yet authenticated) client carrying the token as query credential.
func connectUser(t *testing.T, gw *Gateway, dir *fakeDirectory, userID, email, role string) *Client {
	t.Helper()

	dir.put(userID, DirectoryEntry{Email: email, Role: role, TokenVersion: 0})
	token := mintToken(t, userID, email, role, 0)

	c := newClient(gw, nil, "", token)
	gw.registry.AddSession(c)

	return c
}

// connectAnonymous creates a connected client with no credential at all.
func connectAnonymous(t *testing.T, gw *Gateway) *Client {
	t.Helper()

	c := newClient(gw, nil, "", "")
	gw.registry.AddSession(c)

	return c
}

// raw marshals a payload for use as inbound frame data.
func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()

	data, err := json.Marshal(v)
	require.NoError(t, err)

	return data
}

// collectFrames drains and decodes every queued outbound frame for a client.
func collectFrames(t *testing.T, c *Client) []Frame {
	t.Helper()

	var frames []Frame
	for {
		select {
		case rawFrame := <-c.send:
			var f Frame
			require.NoError(t, json.Unmarshal(rawFrame, &f))
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

// framesByEvent filters frames down to one event name.
func framesByEvent(frames []Frame, event string) []Frame {
	var out []Frame
	for _, f := range frames {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

// lastAck drains the client's queue and decodes the most recent ack payload.
func lastAck(t *testing.T, c *Client) AckResult {
	t.Helper()

	acks := framesByEvent(collectFrames(t, c), EventAck)
	require.NotEmpty(t, acks, "expected at least one acknowledgment frame")

	var ack AckResult
	require.NoError(t, json.Unmarshal(acks[len(acks)-1].Data, &ack))

	return ack
}

// drain discards everything queued for the client.
func drain(c *Client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}
