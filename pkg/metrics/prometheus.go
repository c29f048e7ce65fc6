package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the realtime service
type Metrics struct {
	// HTTP Request Metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// WebSocket Metrics
	websocketConnections   prometheus.Gauge
	websocketMessagesTotal *prometheus.CounterVec
	websocketErrorsTotal   *prometheus.CounterVec

	// Relay Metrics
	relayDeliveredTotal *prometheus.CounterVec
	relayNoTargetTotal  *prometheus.CounterVec
	relayDroppedTotal   prometheus.Counter

	// Call Metrics
	callsTotal    *prometheus.CounterVec
	callsActive   prometheus.Gauge
	callsDuration *prometheus.HistogramVec

	// Game Metrics
	gamesTotal      *prometheus.CounterVec
	gamesActive     prometheus.Gauge
	gameMovesTotal  *prometheus.CounterVec
	invitesResolved *prometheus.CounterVec

	// Presence Metrics
	identitiesOnline prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(serviceName string) *Metrics {
	labels := prometheus.Labels{"service": serviceName}

	return &Metrics{
		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name:        "http_requests_in_flight",
				Help:        "Number of HTTP requests currently being processed",
				ConstLabels: labels,
			},
		),
		websocketConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name:        "websocket_connections",
				Help:        "Number of active WebSocket connections",
				ConstLabels: labels,
			},
		),
		websocketMessagesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_messages_total",
				Help:        "Total number of WebSocket messages",
				ConstLabels: labels,
			},
			[]string{"event", "direction"},
		),
		websocketErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_errors_total",
				Help:        "Total number of WebSocket errors",
				ConstLabels: labels,
			},
			[]string{"error"},
		),
		relayDeliveredTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "relay_delivered_total",
				Help:        "Total number of envelopes delivered to live connections",
				ConstLabels: labels,
			},
			[]string{"event"},
		),
		relayNoTargetTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "relay_no_target_total",
				Help:        "Total number of envelopes addressed to an identity with no live connections",
				ConstLabels: labels,
			},
			[]string{"event"},
		),
		relayDroppedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name:        "relay_dropped_total",
				Help:        "Total number of envelopes dropped because a client send buffer was full",
				ConstLabels: labels,
			},
		),
		callsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "calls_total",
				Help:        "Total number of calls",
				ConstLabels: labels,
			},
			[]string{"type", "status"},
		),
		callsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name:        "calls_active",
				Help:        "Number of active calls",
				ConstLabels: labels,
			},
		),
		callsDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "calls_duration_seconds",
				Help:        "Call duration in seconds",
				ConstLabels: labels,
				Buckets:     []float64{10, 30, 60, 120, 300, 600, 1800, 3600},
			},
			[]string{"type"},
		),
		gamesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "games_total",
				Help:        "Total number of game sessions",
				ConstLabels: labels,
			},
			[]string{"game_type", "outcome"},
		),
		gamesActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name:        "games_active",
				Help:        "Number of active game sessions",
				ConstLabels: labels,
			},
		),
		gameMovesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "game_moves_total",
				Help:        "Total number of validated game moves",
				ConstLabels: labels,
			},
			[]string{"game_type", "action"},
		),
		invitesResolved: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "game_invites_resolved_total",
				Help:        "Total number of game invites by resolution",
				ConstLabels: labels,
			},
			[]string{"resolution"},
		),
		identitiesOnline: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name:        "identities_online",
				Help:        "Number of identities with at least one live connection",
				ConstLabels: labels,
			},
		),
	}
}

// RecordHTTPRequest records an HTTP request with its status and latency
func (m *Metrics) RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// IncHTTPInFlight increments the in-flight request gauge
func (m *Metrics) IncHTTPInFlight() { m.httpRequestsInFlight.Inc() }

// DecHTTPInFlight decrements the in-flight request gauge
func (m *Metrics) DecHTTPInFlight() { m.httpRequestsInFlight.Dec() }

// WebSocketConnected records a new WebSocket connection
func (m *Metrics) WebSocketConnected() { m.websocketConnections.Inc() }

// WebSocketDisconnected records a closed WebSocket connection
func (m *Metrics) WebSocketDisconnected() { m.websocketConnections.Dec() }

// RecordWebSocketMessage records an inbound or outbound WebSocket message
func (m *Metrics) RecordWebSocketMessage(event, direction string) {
	m.websocketMessagesTotal.WithLabelValues(event, direction).Inc()
}

// RecordWebSocketError records a WebSocket error by kind
func (m *Metrics) RecordWebSocketError(kind string) {
	m.websocketErrorsTotal.WithLabelValues(kind).Inc()
}

// RecordRelayDelivered records envelopes delivered to live connections
func (m *Metrics) RecordRelayDelivered(event string, count int) {
	m.relayDeliveredTotal.WithLabelValues(event).Add(float64(count))
}

// RecordRelayNoTarget records an envelope addressed to an offline identity
func (m *Metrics) RecordRelayNoTarget(event string) {
	m.relayNoTargetTotal.WithLabelValues(event).Inc()
}

// RecordRelayDropped records an envelope dropped on a full client buffer
func (m *Metrics) RecordRelayDropped() { m.relayDroppedTotal.Inc() }

// CallStarted records a call entering the calling state
func (m *Metrics) CallStarted(callType string) {
	m.callsTotal.WithLabelValues(callType, "calling").Inc()
	m.callsActive.Inc()
}

// CallEnded records a call ending with its total duration
func (m *Metrics) CallEnded(callType string, duration time.Duration) {
	m.callsTotal.WithLabelValues(callType, "ended").Inc()
	m.callsDuration.WithLabelValues(callType).Observe(duration.Seconds())
	m.callsActive.Dec()
}

// GameStarted records a new game session
func (m *Metrics) GameStarted(gameType string) {
	m.gamesActive.Inc()
}

// GameFinished records a finished game session with its outcome
func (m *Metrics) GameFinished(gameType, outcome string) {
	m.gamesTotal.WithLabelValues(gameType, outcome).Inc()
	m.gamesActive.Dec()
}

// RecordGameMove records a validated (or rejected) game move
func (m *Metrics) RecordGameMove(gameType, action string) {
	m.gameMovesTotal.WithLabelValues(gameType, action).Inc()
}

// RecordInviteResolved records an invite resolution (accepted, declined, timeout)
func (m *Metrics) RecordInviteResolved(resolution string) {
	m.invitesResolved.WithLabelValues(resolution).Inc()
}

// SetIdentitiesOnline sets the online identity gauge
func (m *Metrics) SetIdentitiesOnline(n int) {
	m.identitiesOnline.Set(float64(n))
}
