package game

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carelink-backend/internal/domain"
)

type sentEvent struct {
	To    string
	Event string
	Data  interface{}
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentEvent
}

func (s *recordingSender) Send(to, event string, data interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentEvent{To: to, Event: event, Data: data})
}

func (s *recordingSender) events(to, event string) []sentEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var got []sentEvent
	for _, ev := range s.sent {
		if ev.To == to && ev.Event == event {
			got = append(got, ev)
		}
	}
	return got
}

func (s *recordingSender) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = nil
}

type fakeTimer struct {
	fire    func()
	stopped bool
}

func (ft *fakeTimer) Stop() bool {
	was := ft.stopped
	ft.stopped = true
	return !was
}

// newTestManager wires a manager with a manually fired invite timer
func newTestManager(sender Sender, opts ...ManagerOption) (*Manager, *[]*fakeTimer) {
	m := NewManager(sender, opts...)
	timers := &[]*fakeTimer{}
	m.after = func(d time.Duration, f func()) stopper {
		ft := &fakeTimer{fire: f}
		*timers = append(*timers, ft)
		return ft
	}
	return m, timers
}

func wireGameEvent(t *testing.T, gameID uuid.UUID, eventType string, data interface{}) WireEvent {
	t.Helper()
	return WireEvent{
		GameID:    gameID,
		GameEvent: domain.GameEvent{Type: eventType, Payload: mustJSON(t, data)},
	}
}

func TestManagerInviteReachesInvitee(t *testing.T) {
	sender := &recordingSender{}
	m, _ := newTestManager(sender)

	invite, err := m.Invite("alice", "Alice", "bob", domain.GameTypeTicTacToe)
	require.NoError(t, err)

	got := sender.events("bob", EventInvite)
	require.Len(t, got, 1)
	data := got[0].Data.(InviteData)
	assert.Equal(t, invite.GameID, data.GameID)
	assert.Equal(t, "alice", data.FromID)
	assert.Equal(t, "Alice", data.FromName)
	assert.Equal(t, domain.GameTypeTicTacToe, data.GameType)
}

func TestManagerRejectsInvalidInvites(t *testing.T) {
	m, _ := newTestManager(&recordingSender{})

	_, err := m.Invite("alice", "Alice", "alice", domain.GameTypeTicTacToe)
	assert.ErrorIs(t, err, ErrInvalidInvite)

	_, err = m.Invite("alice", "Alice", "bob", domain.GameType("chess"))
	assert.ErrorIs(t, err, ErrInvalidInvite)

	_, err = m.Invite("", "Alice", "bob", domain.GameTypeTicTacToe)
	assert.ErrorIs(t, err, ErrInvalidInvite)
}

func TestManagerAcceptStartsSession(t *testing.T) {
	sender := &recordingSender{}
	var started []string
	m, _ := newTestManager(sender, WithHooks(Hooks{
		GameStarted: func(gameType string) { started = append(started, gameType) },
	}))

	invite, err := m.Invite("alice", "Alice", "bob", domain.GameTypeTicTacToe)
	require.NoError(t, err)
	require.NoError(t, m.Accept(invite.GameID, "bob"))

	accepts := sender.events("alice", EventAccept)
	require.Len(t, accepts, 1)
	assert.Equal(t, AcceptData{GameID: invite.GameID, FromID: "bob"}, accepts[0].Data)

	// Both participants get the opening round announcement.
	for _, to := range []string{"alice", "bob"} {
		opening := sender.events(to, EventGame)
		require.Len(t, opening, 1)
		ev := opening[0].Data.(WireEvent)
		assert.Equal(t, invite.GameID, ev.GameID)
		assert.Equal(t, TypeRoundStart, ev.Type)
	}

	assert.Equal(t, []string{"tictactoe"}, started)
	assert.Equal(t, 1, m.ActiveSessions())
}

func TestManagerAcceptOnlyByInvitee(t *testing.T) {
	m, _ := newTestManager(&recordingSender{})

	invite, _ := m.Invite("alice", "Alice", "bob", domain.GameTypeRockPaperScissors)
	assert.ErrorIs(t, m.Accept(invite.GameID, "carol"), ErrNotInvitee)
	assert.ErrorIs(t, m.Accept(uuid.New(), "bob"), ErrUnknownInvite)

	// The failed attempts did not consume the invite.
	assert.NoError(t, m.Accept(invite.GameID, "bob"))
}

func TestManagerDeclineSignalsInviter(t *testing.T) {
	sender := &recordingSender{}
	var resolutions []string
	m, _ := newTestManager(sender, WithHooks(Hooks{
		InviteResolved: func(r string) { resolutions = append(resolutions, r) },
	}))

	invite, _ := m.Invite("alice", "Alice", "bob", domain.GameTypeNumberGuess)
	require.NoError(t, m.Decline(invite.GameID, "bob"))

	declines := sender.events("alice", EventDecline)
	require.Len(t, declines, 1)
	assert.Equal(t, DeclineData{GameID: invite.GameID, FromID: "bob"}, declines[0].Data)
	assert.Equal(t, []string{ResolutionDeclined}, resolutions)

	assert.ErrorIs(t, m.Accept(invite.GameID, "bob"), ErrUnknownInvite)
	assert.Equal(t, 0, m.ActiveSessions())
}

func TestManagerInviteTimeoutCancelsAndAllowsReissue(t *testing.T) {
	sender := &recordingSender{}
	m, timers := newTestManager(sender)

	invite, _ := m.Invite("alice", "Alice", "bob", domain.GameTypeTicTacToe)
	require.Len(t, *timers, 1)
	(*timers)[0].fire()

	declines := sender.events("alice", EventDecline)
	require.Len(t, declines, 1)
	assert.Equal(t, DeclineData{GameID: invite.GameID, Reason: ResolutionTimeout}, declines[0].Data)

	// The expired invite is gone; a fresh one works normally.
	assert.ErrorIs(t, m.Accept(invite.GameID, "bob"), ErrUnknownInvite)

	reissued, err := m.Invite("alice", "Alice", "bob", domain.GameTypeTicTacToe)
	require.NoError(t, err)
	assert.NotEqual(t, invite.GameID, reissued.GameID)
	assert.NoError(t, m.Accept(reissued.GameID, "bob"))
}

func TestManagerAcceptStopsInviteTimer(t *testing.T) {
	sender := &recordingSender{}
	m, timers := newTestManager(sender)

	invite, _ := m.Invite("alice", "Alice", "bob", domain.GameTypeTicTacToe)
	require.NoError(t, m.Accept(invite.GameID, "bob"))

	require.Len(t, *timers, 1)
	assert.True(t, (*timers)[0].stopped)
}

func TestManagerLazyExpiryOnAccept(t *testing.T) {
	now := time.Now()
	m, _ := newTestManager(&recordingSender{}, WithManagerClock(func() time.Time { return now }))

	invite, _ := m.Invite("alice", "Alice", "bob", domain.GameTypeTicTacToe)

	// The clock jumps past expiry before the timer callback runs.
	now = invite.ExpiresAt.Add(time.Second)
	assert.ErrorIs(t, m.Accept(invite.GameID, "bob"), ErrUnknownInvite)
	assert.Equal(t, 0, m.ActiveSessions())
}

func TestManagerRoutesEventsThroughEngine(t *testing.T) {
	sender := &recordingSender{}
	m, _ := newTestManager(sender)

	invite, _ := m.Invite("alice", "Alice", "bob", domain.GameTypeTicTacToe)
	require.NoError(t, m.Accept(invite.GameID, "bob"))
	sender.reset()

	m.HandleEvent("alice", wireGameEvent(t, invite.GameID, TypeMove, TTTMove{Cell: 4}))

	for _, to := range []string{"alice", "bob"} {
		got := sender.events(to, EventGame)
		require.Len(t, got, 1)
		ev := got[0].Data.(WireEvent)
		assert.Equal(t, TypeMove, ev.Type)

		var applied TTTMoveApplied
		require.NoError(t, json.Unmarshal(ev.Payload, &applied))
		assert.Equal(t, 4, applied.Cell)
		assert.Equal(t, "alice", applied.By)
		assert.Equal(t, MarkX, applied.Symbol)
	}
}

func TestManagerIgnoresForeignEvents(t *testing.T) {
	sender := &recordingSender{}
	m, _ := newTestManager(sender)

	invite, _ := m.Invite("alice", "Alice", "bob", domain.GameTypeTicTacToe)
	require.NoError(t, m.Accept(invite.GameID, "bob"))
	sender.reset()

	m.HandleEvent("carol", wireGameEvent(t, invite.GameID, TypeMove, TTTMove{Cell: 0}))
	m.HandleEvent("alice", wireGameEvent(t, uuid.New(), TypeMove, TTTMove{Cell: 0}))

	assert.Empty(t, sender.sent)
}

func TestManagerLeaveNotifiesPeer(t *testing.T) {
	sender := &recordingSender{}
	var finished []string
	m, _ := newTestManager(sender, WithHooks(Hooks{
		GameFinished: func(gameType, outcome string) { finished = append(finished, gameType+":"+outcome) },
	}))

	invite, _ := m.Invite("alice", "Alice", "bob", domain.GameTypeRockPaperScissors)
	require.NoError(t, m.Accept(invite.GameID, "bob"))
	sender.reset()

	m.HandleEvent("alice", wireGameEvent(t, invite.GameID, TypeLeave, struct{}{}))

	got := sender.events("bob", EventGame)
	require.Len(t, got, 1)
	ev := got[0].Data.(WireEvent)
	assert.Equal(t, TypeLeave, ev.Type)

	var leave LeaveData
	require.NoError(t, json.Unmarshal(ev.Payload, &leave))
	assert.Equal(t, "alice", leave.By)

	assert.Equal(t, []string{"rps:abandoned"}, finished)
	assert.Equal(t, 0, m.ActiveSessions())

	// The dead session no longer routes anything.
	sender.reset()
	m.HandleEvent("bob", wireGameEvent(t, invite.GameID, TypeMove, RPSMove{Choice: ChoiceRock}))
	assert.Empty(t, sender.sent)
}

func TestManagerDisconnectEndsAllSessions(t *testing.T) {
	sender := &recordingSender{}
	m, _ := newTestManager(sender)

	first, _ := m.Invite("alice", "Alice", "bob", domain.GameTypeTicTacToe)
	require.NoError(t, m.Accept(first.GameID, "bob"))
	second, _ := m.Invite("carol", "Carol", "alice", domain.GameTypeNumberGuess)
	require.NoError(t, m.Accept(second.GameID, "alice"))
	require.Equal(t, 2, m.ActiveSessions())
	sender.reset()

	m.HandleDisconnect("alice")

	assert.Equal(t, 0, m.ActiveSessions())
	for _, peer := range []string{"bob", "carol"} {
		got := sender.events(peer, EventGame)
		require.Len(t, got, 1, "peer %s told about the leave", peer)
		assert.Equal(t, TypeLeave, got[0].Data.(WireEvent).Type)
	}
}
