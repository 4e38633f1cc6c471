package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeEnvelope(t *testing.T, f Frame) Envelope {
	t.Helper()

	var env Envelope
	require.NoError(t, json.Unmarshal(f.Data, &env))
	return env
}

func TestJoinRoomNotifiesExistingMembersOnly(t *testing.T) {
	dir := newFakeDirectory()
	gw := New(dir, testSecret)

	alice := connectUser(t, gw, dir, "u1", "alice@example.com", "USER")
	bob := connectUser(t, gw, dir, "u2", "bob@example.com", "USER")

	gw.dispatch(alice, Frame{Event: EventJoinRoom, Data: raw(t, roomPayload{Room: "lobby"})})
	drain(alice)

	gw.dispatch(bob, Frame{Event: EventJoinRoom, Data: raw(t, roomPayload{Room: "lobby"})})

	ack := lastAck(t, bob)
	assert.True(t, ack.Success)
	assert.Equal(t, EventJoinRoom, ack.Event)

	aliceFrames := collectFrames(t, alice)
	joined := framesByEvent(aliceFrames, EventUserJoined)
	require.Len(t, joined, 1, "existing member gets exactly one user_joined")

	var payload RoomEventPayload
	require.NoError(t, json.Unmarshal(joined[0].Data, &payload))
	assert.Equal(t, "u2", payload.UserID)
	assert.Equal(t, "bob@example.com", payload.Email)
	assert.Equal(t, "lobby", payload.Room)
}

func TestJoinRoomTwiceIsIdempotent(t *testing.T) {
	dir := newFakeDirectory()
	gw := New(dir, testSecret)

	alice := connectUser(t, gw, dir, "u1", "alice@example.com", "USER")
	bob := connectUser(t, gw, dir, "u2", "bob@example.com", "USER")

	gw.dispatch(bob, Frame{Event: EventJoinRoom, Data: raw(t, roomPayload{Room: "lobby"})})
	drain(bob)

	gw.dispatch(alice, Frame{Event: EventJoinRoom, Data: raw(t, roomPayload{Room: "lobby"})})
	gw.dispatch(alice, Frame{Event: EventJoinRoom, Data: raw(t, roomPayload{Room: "lobby"})})

	assert.Len(t, gw.registry.RoomMembers("lobby"), 2)
	assert.Len(t, gw.registry.RoomsOf(alice), 1)

	// Both joins ack success, but the peer is notified only once.
	acks := framesByEvent(collectFrames(t, alice), EventAck)
	require.Len(t, acks, 2)

	bobJoins := framesByEvent(collectFrames(t, bob), EventUserJoined)
	assert.Len(t, bobJoins, 1, "duplicate join must not re-notify the room")
}

func TestLeaveRoomWhenNotMemberIsNoOpSuccess(t *testing.T) {
	dir := newFakeDirectory()
	gw := New(dir, testSecret)

	alice := connectUser(t, gw, dir, "u1", "alice@example.com", "USER")

	gw.dispatch(alice, Frame{Event: EventLeaveRoom, Data: raw(t, roomPayload{Room: "nowhere"})})

	ack := lastAck(t, alice)
	assert.True(t, ack.Success, "leaving a room you are not in is a success, not an error")
}

func TestRoomMessageDeliveredToOtherMembersOnly(t *testing.T) {
	dir := newFakeDirectory()
	gw := New(dir, testSecret)

	alice := connectUser(t, gw, dir, "u1", "alice@example.com", "USER")
	bob := connectUser(t, gw, dir, "u2", "bob@example.com", "USER")
	carol := connectUser(t, gw, dir, "u3", "carol@example.com", "USER")

	gw.dispatch(alice, Frame{Event: EventJoinRoom, Data: raw(t, roomPayload{Room: "lobby"})})
	gw.dispatch(bob, Frame{Event: EventJoinRoom, Data: raw(t, roomPayload{Room: "lobby"})})
	drain(alice)
	drain(bob)
	drain(carol)

	gw.dispatch(alice, Frame{Event: EventSendMessage, Data: raw(t, sendMessagePayload{Message: "hi", Room: "lobby"})})

	bobMessages := framesByEvent(collectFrames(t, bob), EventNewMessage)
	require.Len(t, bobMessages, 1)

	env := decodeEnvelope(t, bobMessages[0])
	assert.Equal(t, "alice@example.com", env.From.Email)
	assert.Equal(t, "hi", env.Message)
	assert.NotZero(t, env.ID)
	assert.False(t, env.Timestamp.IsZero())

	aliceFrames := collectFrames(t, alice)
	assert.Empty(t, framesByEvent(aliceFrames, EventNewMessage), "sender never receives its own envelope")
	ack := framesByEvent(aliceFrames, EventAck)
	require.Len(t, ack, 1)

	assert.Empty(t, framesByEvent(collectFrames(t, carol), EventNewMessage), "non-members receive nothing")
}

func TestRoomMessageToEmptyRoomIsSuccessNoOp(t *testing.T) {
	dir := newFakeDirectory()
	gw := New(dir, testSecret)

	alice := connectUser(t, gw, dir, "u1", "alice@example.com", "USER")

	gw.dispatch(alice, Frame{Event: EventSendMessage, Data: raw(t, sendMessagePayload{Message: "anyone?", Room: "ghost-town"})})

	ack := lastAck(t, alice)
	assert.True(t, ack.Success)
}

func TestPrivateMessageDelivery(t *testing.T) {
	dir := newFakeDirectory()
	gw := New(dir, testSecret)

	alice := connectUser(t, gw, dir, "u1", "alice@example.com", "USER")
	bob := connectUser(t, gw, dir, "u2", "bob@example.com", "USER")

	// Bob becomes discoverable by calling get_online_users.
	gw.dispatch(bob, Frame{Event: EventGetOnlineUsers})
	drain(bob)
	drain(alice)

	gw.dispatch(alice, Frame{Event: EventSendMessage, Data: raw(t, sendMessagePayload{Message: "psst", To: "u2"})})

	bobMessages := framesByEvent(collectFrames(t, bob), EventNewMessage)
	require.Len(t, bobMessages, 1)
	assert.Equal(t, "psst", decodeEnvelope(t, bobMessages[0]).Message)

	ack := lastAck(t, alice)
	assert.True(t, ack.Success)
}

func TestPrivateMessageToOfflineUser(t *testing.T) {
	dir := newFakeDirectory()
	gw := New(dir, testSecret)

	alice := connectUser(t, gw, dir, "u1", "alice@example.com", "USER")
	bob := connectUser(t, gw, dir, "u2", "bob@example.com", "USER")

	// Bob is connected but never registered presence; u9 does not exist at all.
	gw.dispatch(alice, Frame{Event: EventSendMessage, Data: raw(t, sendMessagePayload{Message: "psst", To: "u9"})})

	ack := lastAck(t, alice)
	assert.False(t, ack.Success)
	assert.Equal(t, "User not online", ack.Message)

	assert.Empty(t, collectFrames(t, bob), "a miss produces no delivery anywhere")
}

func TestBroadcastExcludesSender(t *testing.T) {
	dir := newFakeDirectory()
	gw := New(dir, testSecret)

	alice := connectUser(t, gw, dir, "u1", "alice@example.com", "USER")
	bob := connectUser(t, gw, dir, "u2", "bob@example.com", "USER")
	carol := connectUser(t, gw, dir, "u3", "carol@example.com", "USER")

	gw.dispatch(alice, Frame{Event: EventSendMessage, Data: raw(t, sendMessagePayload{Message: "hello all"})})

	assert.Len(t, framesByEvent(collectFrames(t, bob), EventNewMessage), 1)
	assert.Len(t, framesByEvent(collectFrames(t, carol), EventNewMessage), 1)
	assert.Empty(t, framesByEvent(collectFrames(t, alice), EventNewMessage))
}

func TestSendMessageValidation(t *testing.T) {
	dir := newFakeDirectory()
	gw := New(dir, testSecret)

	alice := connectUser(t, gw, dir, "u1", "alice@example.com", "USER")
	bob := connectUser(t, gw, dir, "u2", "bob@example.com", "USER")

	gw.dispatch(alice, Frame{Event: EventSendMessage, Data: raw(t, sendMessagePayload{Message: ""})})
	ack := lastAck(t, alice)
	assert.False(t, ack.Success)

	gw.dispatch(alice, Frame{Event: EventSendMessage, Data: raw(t, sendMessagePayload{Message: "x", Room: "lobby", To: "u2"})})
	ack = lastAck(t, alice)
	assert.False(t, ack.Success, "room and recipient are mutually exclusive")

	assert.Empty(t, collectFrames(t, bob), "validation failures produce no fan-out")
}

func TestGetOnlineUsersRegistersPresence(t *testing.T) {
	dir := newFakeDirectory()
	gw := New(dir, testSecret)

	alice := connectUser(t, gw, dir, "u1", "alice@example.com", "USER")
	bob := connectUser(t, gw, dir, "u2", "bob@example.com", "USER")

	gw.dispatch(alice, Frame{Event: EventGetOnlineUsers})

	acks := framesByEvent(collectFrames(t, alice), EventAck)
	require.Len(t, acks, 1)

	var ack OnlineUsersAck
	require.NoError(t, json.Unmarshal(acks[0].Data, &ack))
	assert.True(t, ack.Success)
	assert.Equal(t, []string{"u1"}, ack.OnlineUsers)
	assert.Equal(t, 1, ack.TotalOnline)

	online := framesByEvent(collectFrames(t, bob), EventUserOnline)
	require.Len(t, online, 1, "peers are told exactly once")

	var presence PresencePayload
	require.NoError(t, json.Unmarshal(online[0].Data, &presence))
	assert.Equal(t, "u1", presence.UserID)
	assert.Equal(t, "alice@example.com", presence.Email)
}

func TestPresenceDoesNotRevealRoomMembership(t *testing.T) {
	dir := newFakeDirectory()
	gw := New(dir, testSecret)

	alice := connectUser(t, gw, dir, "u1", "alice@example.com", "USER")
	bob := connectUser(t, gw, dir, "u2", "bob@example.com", "USER")

	gw.dispatch(alice, Frame{Event: EventJoinRoom, Data: raw(t, roomPayload{Room: "secret-club"})})
	drain(alice)

	// Rooms and presence are independent indices: joining a room does not
	// register presence, and the presence listing carries no room data.
	gw.dispatch(bob, Frame{Event: EventGetOnlineUsers})

	acks := framesByEvent(collectFrames(t, bob), EventAck)
	require.Len(t, acks, 1)

	var ack OnlineUsersAck
	require.NoError(t, json.Unmarshal(acks[0].Data, &ack))
	assert.Equal(t, []string{"u2"}, ack.OnlineUsers, "alice joined a room but never registered presence")
}

func TestPingReturnsIdentitySnapshot(t *testing.T) {
	dir := newFakeDirectory()
	gw := New(dir, testSecret)

	alice := connectUser(t, gw, dir, "u1", "alice@example.com", "USER")

	gw.dispatch(alice, Frame{Event: EventPing})

	acks := framesByEvent(collectFrames(t, alice), EventAck)
	require.Len(t, acks, 1)

	var ack PingAck
	require.NoError(t, json.Unmarshal(acks[0].Data, &ack))
	assert.True(t, ack.Success)
	assert.Equal(t, "pong", ack.Message)
	assert.Equal(t, "u1", ack.User.ID)
	assert.False(t, ack.Timestamp.IsZero())
}

func TestAdminBroadcastReachesEveryoneIncludingSender(t *testing.T) {
	dir := newFakeDirectory()
	gw := New(dir, testSecret)

	admin := connectUser(t, gw, dir, "a1", "root@example.com", "ADMIN")
	alice := connectUser(t, gw, dir, "u1", "alice@example.com", "USER")
	bob := connectUser(t, gw, dir, "u2", "bob@example.com", "USER")

	gw.dispatch(admin, Frame{Event: EventAdminBroadcast, Data: raw(t, adminBroadcastPayload{Message: "maintenance"})})

	for _, c := range []*Client{admin, alice, bob} {
		frames := framesByEvent(collectFrames(t, c), EventAdminAnnouncement)
		require.Len(t, frames, 1, "every connection gets exactly one announcement")

		var ann Announcement
		require.NoError(t, json.Unmarshal(frames[0].Data, &ann))
		assert.Equal(t, EventAdminAnnouncement, ann.Type)
		assert.Equal(t, "maintenance", ann.Message)
		assert.Equal(t, "ADMIN", ann.From.Role)
	}
}

func TestAdminBroadcastRejectedForNonAdmin(t *testing.T) {
	dir := newFakeDirectory()
	gw := New(dir, testSecret)

	alice := connectUser(t, gw, dir, "u1", "alice@example.com", "USER")
	bob := connectUser(t, gw, dir, "u2", "bob@example.com", "USER")

	gw.dispatch(alice, Frame{Event: EventAdminBroadcast, Data: raw(t, adminBroadcastPayload{Message: "let me in"})})

	ack := lastAck(t, alice)
	assert.False(t, ack.Success)
	assert.Contains(t, ack.Message, "Admin access required")

	assert.Empty(t, collectFrames(t, bob), "nobody else receives anything")
}

func TestRevocationTakesEffectWithoutDisconnect(t *testing.T) {
	dir := newFakeDirectory()
	gw := New(dir, testSecret)

	alice := connectUser(t, gw, dir, "u1", "alice@example.com", "USER")

	gw.dispatch(alice, Frame{Event: EventPing})
	ack := lastAck(t, alice)
	require.True(t, ack.Success)

	dir.bumpTokenVersion("u1")

	gw.dispatch(alice, Frame{Event: EventPing})
	ack = lastAck(t, alice)
	assert.False(t, ack.Success)
	assert.Equal(t, ackUnauthorized, ack.Message)

	assert.Contains(t, gw.registry.Sessions(), alice, "the transport connection stays open")
}

func TestAuthFrameSuppliesCredential(t *testing.T) {
	dir := newFakeDirectory()
	gw := New(dir, testSecret)

	dir.put("u1", DirectoryEntry{Email: "alice@example.com", Role: "USER", TokenVersion: 0})
	token := mintToken(t, "u1", "alice@example.com", "USER", 0)

	c := connectAnonymous(t, gw)

	gw.dispatch(c, Frame{Event: EventPing})
	ack := lastAck(t, c)
	require.False(t, ack.Success, "no credential yet")

	gw.dispatch(c, Frame{Event: EventAuth, Data: raw(t, authPayload{Token: token})})
	ack = lastAck(t, c)
	require.True(t, ack.Success)

	gw.dispatch(c, Frame{Event: EventPing})
	acks := framesByEvent(collectFrames(t, c), EventAck)
	require.NotEmpty(t, acks)

	var ping PingAck
	require.NoError(t, json.Unmarshal(acks[len(acks)-1].Data, &ping))
	assert.True(t, ping.Success)
}

func TestDisconnectCleanup(t *testing.T) {
	dir := newFakeDirectory()
	gw := New(dir, testSecret)

	alice := connectUser(t, gw, dir, "u1", "alice@example.com", "USER")
	bob := connectUser(t, gw, dir, "u2", "bob@example.com", "USER")
	carol := connectUser(t, gw, dir, "u3", "carol@example.com", "USER")

	gw.dispatch(alice, Frame{Event: EventGetOnlineUsers})
	gw.dispatch(alice, Frame{Event: EventJoinRoom, Data: raw(t, roomPayload{Room: "lobby"})})
	drain(alice)
	drain(bob)
	drain(carol)

	gw.handleDisconnect(alice)
	gw.handleDisconnect(alice) // idempotent

	_, online := gw.registry.Lookup("u1")
	assert.False(t, online)
	assert.Empty(t, gw.registry.RoomMembers("lobby"))

	for _, peer := range []*Client{bob, carol} {
		offline := framesByEvent(collectFrames(t, peer), EventUserOffline)
		require.Len(t, offline, 1, "peers observe user_offline exactly once")

		var payload PresencePayload
		require.NoError(t, json.Unmarshal(offline[0].Data, &payload))
		assert.Equal(t, "u1", payload.UserID)
		assert.Equal(t, "alice@example.com", payload.Email)
	}
}

func TestDisconnectUnauthenticatedEmitsNothing(t *testing.T) {
	dir := newFakeDirectory()
	gw := New(dir, testSecret)

	ghost := connectAnonymous(t, gw)
	bob := connectUser(t, gw, dir, "u2", "bob@example.com", "USER")

	gw.handleDisconnect(ghost)

	assert.Empty(t, collectFrames(t, bob), "no user_offline for a connection that never authenticated")
}

func TestUnknownEventIsAcknowledgedNotFatal(t *testing.T) {
	dir := newFakeDirectory()
	gw := New(dir, testSecret)

	alice := connectUser(t, gw, dir, "u1", "alice@example.com", "USER")

	gw.dispatch(alice, Frame{Event: "no_such_event"})

	ack := lastAck(t, alice)
	assert.False(t, ack.Success)
	assert.Equal(t, "no_such_event", ack.Event)
}

func TestEnvelopeIDsIncreaseMonotonically(t *testing.T) {
	dir := newFakeDirectory()
	gw := New(dir, testSecret)

	alice := connectUser(t, gw, dir, "u1", "alice@example.com", "USER")
	bob := connectUser(t, gw, dir, "u2", "bob@example.com", "USER")

	gw.dispatch(alice, Frame{Event: EventSendMessage, Data: raw(t, sendMessagePayload{Message: "one"})})
	gw.dispatch(alice, Frame{Event: EventSendMessage, Data: raw(t, sendMessagePayload{Message: "two"})})

	messages := framesByEvent(collectFrames(t, bob), EventNewMessage)
	require.Len(t, messages, 2)

	first := decodeEnvelope(t, messages[0])
	second := decodeEnvelope(t, messages[1])
	assert.Greater(t, second.ID, first.ID)
}

func TestNotifyUserAPI(t *testing.T) {
	dir := newFakeDirectory()
	gw := New(dir, testSecret)

	alice := connectUser(t, gw, dir, "u1", "alice@example.com", "USER")

	assert.False(t, gw.NotifyUser("u1", map[string]string{"message": "hi"}), "not registered yet")

	gw.dispatch(alice, Frame{Event: EventGetOnlineUsers})
	drain(alice)

	assert.True(t, gw.NotifyUser("u1", map[string]string{"message": "hi"}))

	notifications := framesByEvent(collectFrames(t, alice), EventNotification)
	require.Len(t, notifications, 1)
}

func TestSendToRoomAPI(t *testing.T) {
	dir := newFakeDirectory()
	gw := New(dir, testSecret)

	alice := connectUser(t, gw, dir, "u1", "alice@example.com", "USER")
	bob := connectUser(t, gw, dir, "u2", "bob@example.com", "USER")

	gw.dispatch(alice, Frame{Event: EventJoinRoom, Data: raw(t, roomPayload{Room: "lobby"})})
	drain(alice)

	gw.SendToRoom("lobby", EventNotification, map[string]string{"message": "room ping"})

	assert.Len(t, framesByEvent(collectFrames(t, alice), EventNotification), 1)
	assert.Empty(t, framesByEvent(collectFrames(t, bob), EventNotification))
}
