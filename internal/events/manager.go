// Package events owns the persistent push channel to one media server.
// A manager holds a single socket, reconnects with a constant delay when
// it drops, and dispatches parsed events to registered handlers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"jellysync/internal/httputil"
	"jellysync/internal/models"
)

// ReconnectDelay is deliberately constant rather than exponential: a
// bounded recovery latency matters more here than dialing pressure, and
// one socket per server cannot produce a reconnect storm.
const ReconnectDelay = 5 * time.Second

const pingInterval = 10 * time.Second
const writeWait = 5 * time.Second

// subscribeMessage asks the server to push session updates. The Data
// field is the initial delay and interval in milliseconds.
const subscribeMessage = `{"MessageType":"SessionsStart","Data":"0,1500"}`

// State of the connection loop.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateShuttingDown:
		return "shutting down"
	default:
		return "unknown"
	}
}

// StreamError is the event-channel failure hierarchy, kept separate from
// the HTTP client taxonomy because the two surfaces fail independently.
type StreamError struct {
	Op  string
	Err error
}

func (e *StreamError) Error() string { return fmt.Sprintf("event stream %s: %v", e.Op, e.Err) }
func (e *StreamError) Unwrap() error { return e.Err }

// StreamConnectionError wraps transport failures on the socket.
type StreamConnectionError struct{ StreamError }

// StreamAuthError wraps a rejected handshake.
type StreamAuthError struct{ StreamError }

// Handler receives dispatched events. Dispatch is synchronous; handlers
// must not block.
type Handler func(models.StreamEvent)

type Manager struct {
	url      string
	token    string
	deviceID string
	log      *zap.Logger

	delay  time.Duration
	dialer *websocket.Dialer

	state atomic.Int32

	mu       sync.Mutex
	handlers map[models.EventKind][]Handler

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

type Option func(*Manager)

// WithReconnectDelay overrides the constant reconnect delay, mainly for
// tests that cannot wait five seconds.
func WithReconnectDelay(d time.Duration) Option {
	return func(m *Manager) { m.delay = d }
}

// New builds a manager for one server. serverURL is the HTTP base URL;
// the socket scheme is derived from it.
func New(serverURL, token, deviceID string, log *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		url:      serverURL,
		token:    token,
		deviceID: deviceID,
		log:      log,
		delay:    ReconnectDelay,
		dialer:   &websocket.Dialer{HandshakeTimeout: httputil.StreamSetupTimeout},
		handlers: make(map[models.EventKind][]Handler),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// On registers a handler for one event kind. Registration after Start is
// allowed; dispatch picks up the handler on the next event.
func (m *Manager) On(kind models.EventKind, h Handler) {
	m.mu.Lock()
	m.handlers[kind] = append(m.handlers[kind], h)
	m.mu.Unlock()
}

// State reports the connection loop's current phase.
func (m *Manager) State() State { return State(m.state.Load()) }

// Connected reports whether the socket is up and events are flowing.
func (m *Manager) Connected() bool { return m.State() == StateConnected }

func (m *Manager) setState(s State) { m.state.Store(int32(s)) }

// Start launches the connection loop. It never fails: a server that is
// unreachable now is retried forever until Stop.
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		ctx, m.cancel = context.WithCancel(ctx)
		go m.run(ctx)
	})
}

// Stop tears the loop down permanently.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)
	defer m.setState(StateShuttingDown)

	first := true
	for {
		m.setState(StateConnecting)
		err := m.connect(ctx)
		if ctx.Err() != nil {
			return
		}
		m.setState(StateDisconnected)
		if err != nil {
			// Only the very first attempt warns: at that point the owner
			// is running without a working push channel. Later drops are
			// routine reconnects.
			if first {
				m.log.Warn("event channel unavailable, continuing in polling-only mode",
					zap.Error(err))
			} else {
				m.log.Info("event channel dropped, reconnecting", zap.Error(err))
			}
		}
		first = false
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.delay):
		}
	}
}

func socketURL(base string) string {
	u := strings.Replace(base, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	return strings.TrimRight(u, "/") + "/socket"
}

func (m *Manager) connect(ctx context.Context) error {
	header := http.Header{"X-Emby-Token": {m.token}}
	wsURL := socketURL(m.url) + "?deviceId=" + m.deviceID

	conn, resp, err := m.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return &StreamAuthError{StreamError{Op: "dial", Err: err}}
		}
		return &StreamConnectionError{StreamError{Op: "dial", Err: err}}
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(subscribeMessage)); err != nil {
		return &StreamConnectionError{StreamError{Op: "subscribe", Err: err}}
	}

	m.setState(StateConnected)
	m.log.Info("event channel connected")

	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go keepAlive(pingCtx, conn)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return &StreamConnectionError{StreamError{Op: "read", Err: err}}
		}
		for _, ev := range parseMessage(msg) {
			m.Dispatch(ev)
		}
	}
}

// keepAlive pings until the context ends, then closes the connection.
// The close is what unblocks a read parked on a silent peer, so teardown
// cannot hang on ReadMessage.
func keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// Dispatch delivers one event to the registered handlers synchronously.
// The read loop uses it for inbound frames; tests use it to inject
// events without a socket.
func (m *Manager) Dispatch(ev models.StreamEvent) {
	m.mu.Lock()
	handlers := make([]Handler, len(m.handlers[ev.Kind]))
	copy(handlers, m.handlers[ev.Kind])
	m.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

type inboundMessage struct {
	MessageType string          `json:"MessageType"`
	Data        json.RawMessage `json:"Data"`
}

type eventDataJSON struct {
	UserID   string `json:"UserId"`
	DeviceID string `json:"DeviceId"`
}

// parseMessage maps an inbound frame to zero or more typed events.
// Unknown message types become generic events so handlers can observe
// traffic the integration does not model yet; keep-alives are dropped.
func parseMessage(raw []byte) []models.StreamEvent {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil
	}

	switch msg.MessageType {
	case "":
		return nil
	case "KeepAlive", "ForceKeepAlive":
		return nil
	case "Sessions":
		return []models.StreamEvent{{Kind: models.EventSessions}}
	case "LibraryChanged":
		return []models.StreamEvent{{Kind: models.EventLibraryChanged}}
	case "UserDataChanged":
		var data eventDataJSON
		_ = json.Unmarshal(msg.Data, &data)
		return []models.StreamEvent{{Kind: models.EventUserDataChanged, UserID: data.UserID}}
	case "PlaybackStart":
		var data eventDataJSON
		_ = json.Unmarshal(msg.Data, &data)
		return []models.StreamEvent{{Kind: models.EventPlaybackStart, UserID: data.UserID, DeviceID: data.DeviceID}}
	case "PlaybackStopped":
		var data eventDataJSON
		_ = json.Unmarshal(msg.Data, &data)
		return []models.StreamEvent{{Kind: models.EventPlaybackStopped, UserID: data.UserID, DeviceID: data.DeviceID}}
	default:
		return []models.StreamEvent{{Kind: models.EventGeneric}}
	}
}
