// Package ws is the realtime edge of the service: it upgrades
// authenticated clients, registers their connections, and routes every
// relay envelope to the right subsystem. Message and typing events are
// forwarded opaquely; call and game events also drive the server-side
// coordinators so state survives client misbehavior.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"carelink-backend/internal/call"
	"carelink-backend/internal/domain"
	"carelink-backend/internal/game"
	"carelink-backend/internal/registry"
	"carelink-backend/pkg/constants"
	"carelink-backend/pkg/logger"
	"carelink-backend/pkg/metrics"
)

const relayChannelPrefix = "relay:"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // restricted by the gateway in production
	},
}

// MessageStore persists relayed chat messages for history queries
type MessageStore interface {
	SaveMessage(ctx context.Context, msg *domain.Message) error
}

// Config holds the hub dependencies. Redis, Metrics and Store are
// optional; a nil Redis keeps the relay node-local.
type Config struct {
	Registry    *registry.Registry
	Redis       *redis.Client
	Metrics     *metrics.Metrics
	Store       MessageStore
	RingTimeout time.Duration
	InviteTTL   time.Duration
}

// Hub owns the connection registry, the per-identity call sessions and
// the game manager for this node.
type Hub struct {
	registry *registry.Registry
	games    *game.Manager
	redis    *redis.Client
	metrics  *metrics.Metrics
	store    MessageStore

	ringTimeout time.Duration

	mu       sync.RWMutex
	sessions map[string]*call.Session

	register   chan *Client
	unregister chan *Client
}

// NewHub wires a hub and starts its connection loop
func NewHub(cfg Config) *Hub {
	h := &Hub{
		registry:    cfg.Registry,
		redis:       cfg.Redis,
		metrics:     cfg.Metrics,
		store:       cfg.Store,
		ringTimeout: cfg.RingTimeout,
		sessions:    make(map[string]*call.Session),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
	}

	gameOpts := []game.ManagerOption{game.WithHooks(game.Hooks{
		InviteResolved: h.recordInviteResolved,
		GameStarted:    h.recordGameStarted,
		GameFinished:   h.recordGameFinished,
	})}
	if cfg.InviteTTL > 0 {
		gameOpts = append(gameOpts, game.WithInviteTTL(cfg.InviteTTL))
	}
	h.games = game.NewManager(game.SenderFunc(h.Send), gameOpts...)

	go h.run()
	return h
}

// Run consumes cross-node relay traffic until ctx is cancelled. It is
// a no-op without a redis client.
func (h *Hub) Run(ctx context.Context) {
	if h.redis == nil {
		return
	}
	pubsub := h.redis.PSubscribe(ctx, relayChannelPrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			identity := strings.TrimPrefix(msg.Channel, relayChannelPrefix)
			h.deliverLocal(identity, []byte(msg.Payload))
		}
	}
}

// run handles connection lifecycle
func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.registry.Join(client.identity, client)
			h.sessionFor(client.identity, client.displayName)
			if h.metrics != nil {
				h.metrics.WebSocketConnected()
				h.metrics.SetIdentitiesOnline(h.registry.OnlineCount())
			}

		case client := <-h.unregister:
			h.registry.Leave(client)
			client.shutdown()
			if !h.registry.Online(client.identity) {
				h.identityOffline(client.identity)
			}
			if h.metrics != nil {
				h.metrics.WebSocketDisconnected()
				h.metrics.SetIdentitiesOnline(h.registry.OnlineCount())
			}
		}
	}
}

// ServeWS upgrades an authenticated request into a relay connection.
// The identity and display name come from the token claims installed
// by the auth middleware.
func (h *Hub) ServeWS(c *gin.Context) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	displayName := c.GetString("display_name")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:         h,
		conn:        conn,
		send:        make(chan []byte, sendBufferSize),
		identity:    userID.String(),
		displayName: displayName,
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// Send relays a server-originated event to one identity. It implements
// the sender the game manager publishes through.
func (h *Hub) Send(to, event string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	h.deliver(Envelope{Event: event, To: to, TS: time.Now(), Data: payload})
}

// route dispatches one inbound envelope from a connected client
func (h *Hub) route(c *Client, env Envelope) {
	if h.metrics != nil {
		h.metrics.RecordWebSocketMessage(env.Event, "in")
	}

	switch env.Event {
	case EventMessage:
		h.routeMessage(c, env)
	case EventTyping:
		if env.To == "" {
			h.recordError("missing_target")
			return
		}
		env.From = c.identity
		env.TS = time.Now()
		h.deliver(env)

	case call.EventInvite:
		h.routeCallInvite(c, env)
	case call.EventAnswer:
		if err := h.sessionFor(c.identity, c.displayName).Answer(); err != nil {
			h.recordError("call_answer_rejected")
		}
	case call.EventEnd:
		h.hangup(h.sessionFor(c.identity, c.displayName))

	case game.EventInvite:
		h.routeGameInvite(c, env)
	case game.EventAccept:
		h.routeGameResolve(c, env, h.games.Accept)
	case game.EventDecline:
		h.routeGameResolve(c, env, h.games.Decline)
	case game.EventGame:
		var ev game.WireEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			h.recordError("malformed_game_event")
			return
		}
		if gameType, routed := h.games.HandleEvent(c.identity, ev); routed && h.metrics != nil {
			h.metrics.RecordGameMove(gameType, ev.Type)
		}

	default:
		h.recordError("unknown_event")
	}
}

// routeMessage relays a chat message and persists it for history.
// Delivery to an offline identity is a silent no-op.
func (h *Hub) routeMessage(c *Client, env Envelope) {
	if env.To == "" {
		h.recordError("missing_target")
		return
	}
	var body domain.MessageCreate
	if err := json.Unmarshal(env.Data, &body); err != nil || body.Content == "" {
		h.recordError("malformed_message")
		return
	}
	if len(body.Content) > constants.MaxMessageLength {
		h.recordError("message_too_long")
		return
	}

	now := time.Now().UTC()
	msg := &domain.Message{
		MessageID:   uuid.New(),
		SenderID:    c.identity,
		ReceiverID:  env.To,
		Content:     body.Content,
		MessageType: body.MessageType,
		Bucket:      domain.CalculateBucket(now),
		SentAt:      now,
	}
	if msg.MessageType == "" {
		msg.MessageType = constants.MessageTypeText
	}

	if h.store != nil {
		go h.persist(msg)
	}

	env.From = c.identity
	env.TS = now
	h.deliver(env)
}

func (h *Hub) persist(msg *domain.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultTimeout)
	defer cancel()
	if err := h.store.SaveMessage(ctx, msg); err != nil {
		logger.Error("failed to persist relayed message",
			zap.String("message_id", msg.MessageID.String()),
			zap.Error(err))
		h.recordError("persist_failed")
	}
}

func (h *Hub) routeCallInvite(c *Client, env Envelope) {
	if env.To == "" || env.To == c.identity {
		h.recordError("missing_target")
		return
	}
	var req callInviteRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		h.recordError("malformed_call_invite")
		return
	}
	callType := domain.CallType(req.CallType)

	s := h.sessionFor(c.identity, c.displayName)
	if s.State() == call.StateEnded {
		s.Reset()
	}
	if err := s.Start(env.To, callType); err != nil {
		h.recordError("call_invite_rejected")
		return
	}
	if h.metrics != nil {
		h.metrics.CallStarted(string(callType))
	}
}

// hangup maps one client-side end request onto whichever terminal
// action the current state allows, then frees the session for reuse.
func (h *Hub) hangup(s *call.Session) {
	var err error
	switch s.State() {
	case call.StateOutgoing:
		err = s.Cancel()
	case call.StateIncoming:
		err = s.Reject()
	case call.StateConnected:
		err = s.End()
	default:
		return
	}
	if err == nil {
		s.Reset()
	}
}

func (h *Hub) routeGameInvite(c *Client, env Envelope) {
	if env.To == "" {
		h.recordError("missing_target")
		return
	}
	var req gameInviteRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		h.recordError("malformed_game_invite")
		return
	}
	if _, err := h.games.Invite(c.identity, c.displayName, env.To, domain.GameType(req.GameType)); err != nil {
		h.recordError("game_invite_rejected")
	}
}

func (h *Hub) routeGameResolve(c *Client, env Envelope, resolve func(uuid.UUID, string) error) {
	var ref gameRef
	if err := json.Unmarshal(env.Data, &ref); err != nil {
		h.recordError("malformed_game_ref")
		return
	}
	gameID, err := uuid.Parse(ref.GameID)
	if err != nil {
		h.recordError("malformed_game_ref")
		return
	}
	if err := resolve(gameID, c.identity); err != nil {
		h.recordError("game_resolve_rejected")
	}
}

// sessionFor lazily creates the call session of a local identity
func (h *Hub) sessionFor(identity, displayName string) *call.Session {
	h.mu.RLock()
	s, ok := h.sessions[identity]
	h.mu.RUnlock()
	if ok {
		return s
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.sessions[identity]; ok {
		return s
	}
	s = call.NewSession(call.Config{
		Self:        identity,
		SelfName:    displayName,
		Emitter:     call.EmitterFunc(h.emitCall(identity)),
		RingTimeout: h.ringTimeout,
		OnState:     h.callStateObserver(identity),
	})
	h.sessions[identity] = s
	return s
}

func (h *Hub) lookupSession(identity string) (*call.Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[identity]
	return s, ok
}

// emitCall relays a signaling event from one local session: the wire
// envelope goes to the peer's connections, and the peer's local
// session, if any, consumes the event directly.
func (h *Hub) emitCall(from string) func(to, event string, data interface{}) {
	return func(to, event string, data interface{}) {
		if s, ok := h.lookupSession(to); ok {
			switch p := data.(type) {
			case call.InvitePayload:
				s.HandleInvite(p)
			case call.AnswerPayload:
				s.HandleAnswer(p)
			case call.EndPayload:
				s.HandleEnd(p)
			}
		}

		payload, err := json.Marshal(data)
		if err != nil {
			return
		}
		h.deliver(Envelope{Event: event, To: to, From: from, TS: time.Now(), Data: payload})
	}
}

// identityOffline tears down the realtime state of an identity whose
// last connection dropped: a live call ends as if the peer hung up,
// and every game session it was part of is abandoned.
func (h *Hub) identityOffline(identity string) {
	h.mu.Lock()
	s, ok := h.sessions[identity]
	if ok {
		delete(h.sessions, identity)
	}
	h.mu.Unlock()

	if ok {
		if cs := s.Snapshot(); cs != nil && cs.Status != domain.CallStatusEnded {
			peer := cs.Peer(identity)
			if ps, live := h.lookupSession(peer); live {
				ps.HandlePeerDisconnect(identity)
			}
			payload, _ := json.Marshal(call.EndPayload{CallID: cs.CallID, FromID: identity})
			h.deliver(Envelope{Event: call.EventEnd, To: peer, From: identity, TS: time.Now(), Data: payload})
			s.HandlePeerDisconnect(peer)
			logger.Info("disconnect ended live call",
				zap.String("call_id", cs.CallID.String()),
				zap.String("call_type", string(cs.CallType)),
				zap.String("peer", peer))
		}
	}

	h.games.HandleDisconnect(identity)
}

// deliver fans an envelope out to the target's local connections, and
// mirrors it over redis when nobody is connected on this node.
func (h *Hub) deliver(env Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		return
	}

	delivered, dropped := h.registry.Publish(env.To, payload)
	if h.metrics != nil {
		if delivered > 0 {
			h.metrics.RecordRelayDelivered(env.Event, delivered)
			h.metrics.RecordWebSocketMessage(env.Event, "out")
		} else {
			h.metrics.RecordRelayNoTarget(env.Event)
		}
		for i := 0; i < dropped; i++ {
			h.metrics.RecordRelayDropped()
		}
	}

	if delivered == 0 && h.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), constants.WebSocketWriteTimeout)
		defer cancel()
		if err := h.redis.Publish(ctx, relayChannelPrefix+env.To, payload).Err(); err != nil {
			logger.Debug("cross-node relay publish failed",
				zap.String("identity", env.To),
				zap.Error(err))
		}
	}
}

// deliverLocal pushes a cross-node payload to local connections only
func (h *Hub) deliverLocal(identity string, payload []byte) {
	delivered, dropped := h.registry.Publish(identity, payload)
	if h.metrics != nil {
		if delivered > 0 {
			h.metrics.RecordRelayDelivered("cross_node", delivered)
		}
		for i := 0; i < dropped; i++ {
			h.metrics.RecordRelayDropped()
		}
	}
}

// callStateObserver records call lifecycle metrics per local endpoint.
// Transitions arrive from both the route path and ring-timer
// goroutines, so the connected timestamp needs its own lock.
func (h *Hub) callStateObserver(identity string) func(call.State) {
	var mu sync.Mutex
	var connectedAt time.Time
	return func(st call.State) {
		switch st {
		case call.StateConnected:
			mu.Lock()
			connectedAt = time.Now()
			mu.Unlock()
		case call.StateEnded:
			mu.Lock()
			started := connectedAt
			connectedAt = time.Time{}
			mu.Unlock()
			if started.IsZero() || h.metrics == nil {
				return
			}
			if s, ok := h.lookupSession(identity); ok {
				h.metrics.CallEnded(string(s.CallType()), time.Since(started))
			}
		}
	}
}

func (h *Hub) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordWebSocketError(kind)
	}
}

func (h *Hub) recordInviteResolved(resolution string) {
	if h.metrics != nil {
		h.metrics.RecordInviteResolved(resolution)
	}
}

func (h *Hub) recordGameStarted(gameType string) {
	if h.metrics != nil {
		h.metrics.GameStarted(gameType)
	}
}

func (h *Hub) recordGameFinished(gameType, outcome string) {
	if h.metrics != nil {
		h.metrics.GameFinished(gameType, outcome)
	}
}
