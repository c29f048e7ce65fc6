package ws

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carelink-backend/internal/call"
	"carelink-backend/internal/domain"
	"carelink-backend/internal/game"
	"carelink-backend/internal/registry"
)

type capturingStore struct {
	mu    sync.Mutex
	saved []*domain.Message
}

func (s *capturingStore) SaveMessage(_ context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, msg)
	return nil
}

func (s *capturingStore) messages() []*domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.Message(nil), s.saved...)
}

// newTestHub builds a hub with an in-process registry and no redis
func newTestHub(t *testing.T, store MessageStore) *Hub {
	t.Helper()
	return NewHub(Config{
		Registry: registry.New(),
		Store:    store,
	})
}

// connect attaches a buffered client for identity, bypassing the
// websocket upgrade.
func connect(h *Hub, identity, displayName string) *Client {
	c := &Client{
		hub:         h,
		send:        make(chan []byte, sendBufferSize),
		identity:    identity,
		displayName: displayName,
	}
	h.registry.Join(identity, c)
	h.sessionFor(identity, displayName)
	return c
}

func disconnect(h *Hub, c *Client) {
	h.registry.Leave(c)
	if !h.registry.Online(c.identity) {
		h.identityOffline(c.identity)
	}
}

// received drains everything queued on the client
func received(t *testing.T, c *Client) []Envelope {
	t.Helper()
	var out []Envelope
	for {
		select {
		case raw := <-c.send:
			var env Envelope
			require.NoError(t, json.Unmarshal(raw, &env))
			out = append(out, env)
		default:
			return out
		}
	}
}

func envelopesOf(envs []Envelope, event string) []Envelope {
	var got []Envelope
	for _, env := range envs {
		if env.Event == event {
			got = append(got, env)
		}
	}
	return got
}

func sendEnvelope(t *testing.T, h *Hub, c *Client, event, to string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	h.route(c, Envelope{Event: event, To: to, Data: raw})
}

func TestHubRelaysMessageToTarget(t *testing.T) {
	store := &capturingStore{}
	h := newTestHub(t, store)
	alice := connect(h, "alice", "Alice")
	bob := connect(h, "bob", "Bob")

	sendEnvelope(t, h, alice, EventMessage, "bob", domain.MessageCreate{Content: "hello"})

	envs := received(t, bob)
	require.Len(t, envs, 1)
	assert.Equal(t, EventMessage, envs[0].Event)
	assert.Equal(t, "alice", envs[0].From)
	assert.Equal(t, "bob", envs[0].To)
	assert.False(t, envs[0].TS.IsZero())

	var body domain.MessageCreate
	require.NoError(t, json.Unmarshal(envs[0].Data, &body))
	assert.Equal(t, "hello", body.Content)

	assert.Empty(t, received(t, alice), "sender gets no echo")

	// Persistence happens off the relay path.
	require.Eventually(t, func() bool { return len(store.messages()) == 1 }, time.Second, 5*time.Millisecond)
	msg := store.messages()[0]
	assert.Equal(t, "alice", msg.SenderID)
	assert.Equal(t, "bob", msg.ReceiverID)
	assert.Equal(t, "hello", msg.Content)
	assert.NotZero(t, msg.Bucket)
}

func TestHubOfflineTargetIsSilentNoOp(t *testing.T) {
	h := newTestHub(t, nil)
	alice := connect(h, "alice", "Alice")

	sendEnvelope(t, h, alice, EventMessage, "nobody", domain.MessageCreate{Content: "hello"})
	sendEnvelope(t, h, alice, EventTyping, "nobody", struct{}{})

	assert.Empty(t, received(t, alice))
}

func TestHubFansOutToAllConnectionsOfIdentity(t *testing.T) {
	h := newTestHub(t, nil)
	alice := connect(h, "alice", "Alice")
	bobPhone := connect(h, "bob", "Bob")
	bobTablet := connect(h, "bob", "Bob")

	sendEnvelope(t, h, alice, EventTyping, "bob", struct{}{})

	assert.Len(t, received(t, bobPhone), 1)
	assert.Len(t, received(t, bobTablet), 1)
}

func TestHubRejectsOversizedMessage(t *testing.T) {
	store := &capturingStore{}
	h := newTestHub(t, store)
	alice := connect(h, "alice", "Alice")
	bob := connect(h, "bob", "Bob")

	sendEnvelope(t, h, alice, EventMessage, "bob", domain.MessageCreate{
		Content: strings.Repeat("x", 10001),
	})

	assert.Empty(t, received(t, bob))
	assert.Empty(t, store.messages())
}

func TestHubCallLifecycle(t *testing.T) {
	h := newTestHub(t, nil)
	alice := connect(h, "alice", "Alice")
	bob := connect(h, "bob", "Bob")

	sendEnvelope(t, h, alice, call.EventInvite, "bob", callInviteRequest{CallType: "video"})

	invites := envelopesOf(received(t, bob), call.EventInvite)
	require.Len(t, invites, 1)
	var invite call.InvitePayload
	require.NoError(t, json.Unmarshal(invites[0].Data, &invite))
	assert.Equal(t, "alice", invite.FromID)
	assert.Equal(t, "Alice", invite.FromName)
	assert.Equal(t, domain.CallTypeVideo, invite.CallType)

	// Both server-side sessions track the same ringing call.
	aliceSession, _ := h.lookupSession("alice")
	bobSession, _ := h.lookupSession("bob")
	assert.Equal(t, call.StateOutgoing, aliceSession.State())
	assert.Equal(t, call.StateIncoming, bobSession.State())
	assert.Equal(t, invite.CallID, bobSession.CallID())

	sendEnvelope(t, h, bob, call.EventAnswer, "", struct{}{})

	answers := envelopesOf(received(t, alice), call.EventAnswer)
	require.Len(t, answers, 1)
	assert.Equal(t, call.StateConnected, aliceSession.State())
	assert.Equal(t, call.StateConnected, bobSession.State())

	sendEnvelope(t, h, bob, call.EventEnd, "", struct{}{})

	ends := envelopesOf(received(t, alice), call.EventEnd)
	require.Len(t, ends, 1)
	assert.Equal(t, call.StateEnded, aliceSession.State())
	assert.Equal(t, call.StateIdle, bobSession.State(), "hangup frees the caller session")
}

func TestHubBusyCalleeKeepsExistingCall(t *testing.T) {
	h := newTestHub(t, nil)
	alice := connect(h, "alice", "Alice")
	bob := connect(h, "bob", "Bob")
	carol := connect(h, "carol", "Carol")

	sendEnvelope(t, h, alice, call.EventInvite, "bob", callInviteRequest{CallType: "voice"})
	sendEnvelope(t, h, carol, call.EventInvite, "bob", callInviteRequest{CallType: "voice"})

	bobSession, _ := h.lookupSession("bob")
	assert.Equal(t, call.StateIncoming, bobSession.State())
	assert.Equal(t, "alice", bobSession.Peer(), "second invite is ignored while ringing")
	received(t, bob)
	received(t, alice)
	received(t, carol)
}

func TestHubDisconnectEndsLiveCall(t *testing.T) {
	h := newTestHub(t, nil)
	alice := connect(h, "alice", "Alice")
	bob := connect(h, "bob", "Bob")

	sendEnvelope(t, h, alice, call.EventInvite, "bob", callInviteRequest{CallType: "voice"})
	sendEnvelope(t, h, bob, call.EventAnswer, "", struct{}{})
	received(t, alice)
	received(t, bob)

	disconnect(h, bob)

	ends := envelopesOf(received(t, alice), call.EventEnd)
	require.Len(t, ends, 1)
	var end call.EndPayload
	require.NoError(t, json.Unmarshal(ends[0].Data, &end))
	assert.Equal(t, "bob", end.FromID)

	aliceSession, _ := h.lookupSession("alice")
	assert.Equal(t, call.StateEnded, aliceSession.State())
	_, bobKept := h.lookupSession("bob")
	assert.False(t, bobKept, "offline identity sheds its session")
}

func TestHubGameInviteAcceptAndPlay(t *testing.T) {
	h := newTestHub(t, nil)
	alice := connect(h, "alice", "Alice")
	bob := connect(h, "bob", "Bob")

	sendEnvelope(t, h, alice, game.EventInvite, "bob", gameInviteRequest{GameType: "tictactoe"})

	invites := envelopesOf(received(t, bob), game.EventInvite)
	require.Len(t, invites, 1)
	var invite game.InviteData
	require.NoError(t, json.Unmarshal(invites[0].Data, &invite))
	assert.Equal(t, "alice", invite.FromID)
	assert.Equal(t, domain.GameTypeTicTacToe, invite.GameType)

	sendEnvelope(t, h, bob, game.EventAccept, "", gameRef{GameID: invite.GameID.String()})

	aliceEnvs := received(t, alice)
	require.Len(t, envelopesOf(aliceEnvs, game.EventAccept), 1)
	require.Len(t, envelopesOf(aliceEnvs, game.EventGame), 1, "round start reaches the host")
	require.Len(t, envelopesOf(received(t, bob), game.EventGame), 1, "round start reaches the guest")

	// The host moves, the server confirms to both participants.
	move, err := json.Marshal(game.TTTMove{Cell: 4})
	require.NoError(t, err)
	sendEnvelope(t, h, alice, game.EventGame, "", game.WireEvent{
		GameID:    invite.GameID,
		GameEvent: domain.GameEvent{Type: game.TypeMove, Payload: move},
	})

	for _, c := range []*Client{alice, bob} {
		moves := envelopesOf(received(t, c), game.EventGame)
		require.Len(t, moves, 1)
		var ev game.WireEvent
		require.NoError(t, json.Unmarshal(moves[0].Data, &ev))
		assert.Equal(t, game.TypeMove, ev.Type)
	}
}

func TestHubGameDeclineReachesInviter(t *testing.T) {
	h := newTestHub(t, nil)
	alice := connect(h, "alice", "Alice")
	bob := connect(h, "bob", "Bob")

	sendEnvelope(t, h, alice, game.EventInvite, "bob", gameInviteRequest{GameType: "rps"})
	invites := envelopesOf(received(t, bob), game.EventInvite)
	require.Len(t, invites, 1)
	var invite game.InviteData
	require.NoError(t, json.Unmarshal(invites[0].Data, &invite))

	sendEnvelope(t, h, bob, game.EventDecline, "", gameRef{GameID: invite.GameID.String()})

	declines := envelopesOf(received(t, alice), game.EventDecline)
	require.Len(t, declines, 1)
	var decline game.DeclineData
	require.NoError(t, json.Unmarshal(declines[0].Data, &decline))
	assert.Equal(t, "bob", decline.FromID)
}

func TestHubDisconnectAbandonsGames(t *testing.T) {
	h := newTestHub(t, nil)
	alice := connect(h, "alice", "Alice")
	bob := connect(h, "bob", "Bob")

	sendEnvelope(t, h, alice, game.EventInvite, "bob", gameInviteRequest{GameType: "numberguess"})
	invites := envelopesOf(received(t, bob), game.EventInvite)
	require.Len(t, invites, 1)
	var invite game.InviteData
	require.NoError(t, json.Unmarshal(invites[0].Data, &invite))
	sendEnvelope(t, h, bob, game.EventAccept, "", gameRef{GameID: invite.GameID.String()})
	received(t, alice)
	received(t, bob)

	disconnect(h, bob)

	leaves := envelopesOf(received(t, alice), game.EventGame)
	require.Len(t, leaves, 1)
	var ev game.WireEvent
	require.NoError(t, json.Unmarshal(leaves[0].Data, &ev))
	assert.Equal(t, game.TypeLeave, ev.Type)
}

func TestHubIgnoresUnknownEvents(t *testing.T) {
	h := newTestHub(t, nil)
	alice := connect(h, "alice", "Alice")
	bob := connect(h, "bob", "Bob")

	h.route(alice, Envelope{Event: "subscribe", To: "bob"})
	h.route(alice, Envelope{Event: EventMessage, To: "bob", Data: json.RawMessage(`{bad`)})

	assert.Empty(t, received(t, bob))
}

// Call state transitions reach the observer from the route path and
// from ring-timer goroutines at once.
func TestCallStateObserverSafeAcrossGoroutines(t *testing.T) {
	h := newTestHub(t, nil)
	observe := h.callStateObserver("alice")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				observe(call.StateConnected)
				observe(call.StateEnded)
			}
		}()
	}
	wg.Wait()
}

func TestClientDeliverAfterShutdownIsDrop(t *testing.T) {
	c := &Client{send: make(chan []byte, 1)}

	require.True(t, c.Deliver([]byte(`{}`)))
	c.shutdown()
	assert.False(t, c.Deliver([]byte(`{}`)))

	// shutdown is idempotent
	require.NotPanics(t, c.shutdown)
}

// A publish snapshots the target's connections before the hub tears
// one down; delivery into the dying connection must count as a drop
// rather than hit a closed channel.
func TestHubDeliveryRacingDisconnectDoesNotPanic(t *testing.T) {
	h := newTestHub(t, nil)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				h.Send("bob", EventTyping, struct{}{})
			}
		}
	}()

	for i := 0; i < 500; i++ {
		bob := connect(h, "bob", "Bob")
		h.registry.Leave(bob)
		bob.shutdown()
		if !h.registry.Online(bob.identity) {
			h.identityOffline(bob.identity)
		}
	}

	close(done)
	wg.Wait()
}
