// ABOUTME: WebSocket connection manager for the session event stream: connect, subscribe, reconnect with backoff.
// ABOUTME: Resolves alert ids to session ids before subscribing and surfaces failures via observers, never panics.
package live

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rsoaresd/tarsy-bot-sub002/timeline"
)

// Status is the connection lifecycle state reported to observers.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusDisconnected Status = "disconnected"
)

// Sentinel errors returned by Connect.
var (
	// ErrConnectInProgress is returned when Connect is called while another
	// connection attempt has not yet resolved.
	ErrConnectInProgress = errors.New("connection attempt already in progress")

	// ErrResolveFailed wraps the final resolution error after the resolve
	// retry budget is exhausted.
	ErrResolveFailed = errors.New("session id resolution failed")
)

// Resolver translates a human-facing alert id into the backend's internal
// session id. Implemented by api.Client.
type Resolver interface {
	ResolveSessionID(ctx context.Context, alertID string) (string, error)
}

// Options configures a Manager.
type Options struct {
	// BaseURL is the backend's http(s) base address; the ws(s) scheme is
	// derived from it.
	BaseURL string

	// UserID selects the dashboard-multiplexed channel /ws/dashboard/{userID}.
	UserID string

	// LegacyDirect switches to the legacy per-alert address /ws/{alertID},
	// which needs no subscribe message.
	LegacyDirect bool

	// Resolver, when set, is consulted to turn Connect targets (alert ids)
	// into session ids before subscribing. When nil the target is assumed to
	// already be a session id.
	Resolver Resolver

	// ConnectTimeout bounds a single connection attempt. Defaults to 5s.
	ConnectTimeout time.Duration

	// Reconnect paces automatic reconnection after abnormal closes.
	Reconnect BackoffPolicy

	// Resolve paces session-id resolution retries.
	Resolve BackoffPolicy

	// PingInterval spaces keepalive pings. Defaults to 30s; negative disables.
	PingInterval time.Duration

	// Logger receives connection diagnostics. Defaults to a silent logger.
	Logger *log.Logger
}

// Manager owns one WebSocket connection to the backend event stream. A view
// owns exactly one Manager; the socket is never shared between instances.
// All failures surface through registered observers, never as panics out of
// the read loop.
type Manager struct {
	opts Options

	mu         sync.Mutex
	conn       *websocket.Conn
	target     string // alert or session id passed to Connect
	sessionID  string
	connecting bool
	manual     bool // closed deliberately via Close
	gen        int  // connection generation; read loops from older gens are stale

	cbMu     sync.RWMutex
	onEvent  []func(timeline.Event)
	onStatus []func(Status)
	onError  []func(error)
}

// ClientMessage is the client -> server control message sent on the
// dashboard-multiplexed channel: subscribe requests and keepalive pings.
// The stub backend decodes the same shape.
type ClientMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
}

// SessionChannel returns the event channel name for a session id.
func SessionChannel(sessionID string) string {
	return "session_" + sessionID
}

// NewManager creates a Manager. Call Connect to establish the stream and
// Close when the owning view goes away.
func NewManager(opts Options) *Manager {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.Reconnect.MaxAttempts == 0 {
		opts.Reconnect = DefaultReconnectPolicy()
	}
	if opts.Resolve.MaxAttempts == 0 {
		opts.Resolve = DefaultResolvePolicy()
	}
	if opts.PingInterval == 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	return &Manager{opts: opts}
}

// OnEvent registers an observer for decoded inbound events. Multiple
// observers are supported; registration order is irrelevant.
func (m *Manager) OnEvent(fn func(timeline.Event)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.onEvent = append(m.onEvent, fn)
}

// OnStatus registers an observer for connection status transitions.
func (m *Manager) OnStatus(fn func(Status)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.onStatus = append(m.onStatus, fn)
}

// OnError registers an observer for transport and decode errors. Errors are
// informational; recovery is handled internally by the reconnect loop.
func (m *Manager) OnError(fn func(error)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.onError = append(m.onError, fn)
}

// Connect establishes the event stream for the given target (an alert id
// when a Resolver is configured, otherwise a session id).
//
// Calling Connect while a previous call is still in flight returns
// ErrConnectInProgress. Connecting to the current target while already
// connected is a no-op. Connecting to a different target closes the old
// connection first. The attempt is bounded by ConnectTimeout; on timeout no
// half-open connection is left behind.
func (m *Manager) Connect(ctx context.Context, target string) error {
	m.mu.Lock()
	if m.connecting {
		m.mu.Unlock()
		return ErrConnectInProgress
	}
	if m.conn != nil {
		if m.target == target {
			m.mu.Unlock()
			return nil
		}
		m.closeConnLocked(websocket.CloseNormalClosure)
	}
	m.connecting = true
	m.manual = false
	m.target = target
	m.mu.Unlock()

	m.notifyStatus(StatusConnecting)

	sessionID, err := m.resolveTarget(ctx, target)
	if err != nil {
		m.finishAttempt()
		m.notifyStatus(StatusDisconnected)
		return err
	}

	conn, err := m.dialAndSubscribe(ctx, sessionID)
	if err != nil {
		m.finishAttempt()
		m.notifyStatus(StatusDisconnected)
		return err
	}

	m.mu.Lock()
	m.conn = conn
	m.sessionID = sessionID
	m.connecting = false
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	go m.readLoop(conn, gen)
	if m.opts.PingInterval > 0 {
		go m.pingLoop(conn, gen)
	}

	m.notifyStatus(StatusConnected)
	return nil
}

// SessionID returns the resolved session id of the current (or last)
// connection, or empty when never connected.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// Connected reports whether a live socket is currently open.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// Close shuts the connection down with a normal-closure code and clears
// target identity and retry state. Safe to call when already disconnected,
// and required when the owning view goes away so timers and the read loop
// are released.
func (m *Manager) Close() {
	m.mu.Lock()
	m.manual = true
	m.target = ""
	m.sessionID = ""
	m.connecting = false
	hadConn := m.conn != nil
	m.closeConnLocked(websocket.CloseNormalClosure)
	m.mu.Unlock()

	if hadConn {
		m.notifyStatus(StatusDisconnected)
	}
}

// closeConnLocked closes the socket, sending a close frame first. Callers
// hold m.mu.
func (m *Manager) closeConnLocked(code int) {
	if m.conn == nil {
		return
	}
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(code, "")
	_ = m.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	_ = m.conn.Close()
	m.conn = nil
	m.gen++ // invalidate the read loop for this conn
}

func (m *Manager) finishAttempt() {
	m.mu.Lock()
	m.connecting = false
	m.mu.Unlock()
}

// resolveTarget turns the Connect target into a session id, retrying with
// the resolve backoff policy because the backend may not have created the
// session row yet.
func (m *Manager) resolveTarget(ctx context.Context, target string) (string, error) {
	if m.opts.Resolver == nil || m.opts.LegacyDirect {
		return target, nil
	}

	var lastErr error
	for attempt := 0; !m.opts.Resolve.Exhausted(attempt); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(m.opts.Resolve.Delay(attempt - 1)):
			}
		}
		sessionID, err := m.opts.Resolver.ResolveSessionID(ctx, target)
		if err == nil && sessionID != "" {
			return sessionID, nil
		}
		lastErr = err
		m.opts.Logger.Printf("live: resolving session id for %q (attempt %d): %v", target, attempt+1, err)
	}
	if lastErr == nil {
		lastErr = errors.New("resolver returned empty session id")
	}
	return "", fmt.Errorf("%w: %v", ErrResolveFailed, lastErr)
}

// dialAndSubscribe opens the socket and, on the dashboard channel, sends the
// session subscribe message.
func (m *Manager) dialAndSubscribe(ctx context.Context, sessionID string) (*websocket.Conn, error) {
	wsURL, err := m.socketURL(sessionID)
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, m.opts.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: m.opts.ConnectTimeout}
	conn, _, err := dialer.DialContext(dialCtx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", wsURL, err)
	}

	if !m.opts.LegacyDirect {
		sub := ClientMessage{Type: "subscribe", Channel: SessionChannel(sessionID)}
		if err := conn.WriteJSON(sub); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("subscribing to %s: %w", sub.Channel, err)
		}
	}
	return conn, nil
}

// socketURL derives the ws(s) endpoint from the http(s) base URL. The
// dashboard-multiplexed address is authoritative; the legacy per-alert
// address remains available behind Options.LegacyDirect.
func (m *Manager) socketURL(sessionID string) (string, error) {
	u, err := url.Parse(m.opts.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	if m.opts.LegacyDirect {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/" + sessionID
	} else {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/dashboard/" + m.opts.UserID
	}
	return u.String(), nil
}

// readLoop pumps inbound messages until the connection dies. Events from a
// single socket are dispatched in receive order; ordering across a reconnect
// boundary is not guaranteed and callers refresh full state on reconnect.
func (m *Manager) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleReadError(err, gen)
			return
		}

		ev, decodeErr := timeline.DecodeEnvelope(data)
		if decodeErr != nil {
			// Malformed or unknown payloads are logged and dropped; the
			// connection stays open for subsequent valid messages.
			m.opts.Logger.Printf("live: dropping message: %v", decodeErr)
			if !errors.Is(decodeErr, timeline.ErrUnknownEventType) {
				m.notifyError(decodeErr)
			}
			continue
		}
		m.notifyEvent(ev)
	}
}

// pingLoop sends keepalive pings while the connection from this generation
// is still current.
func (m *Manager) pingLoop(conn *websocket.Conn, gen int) {
	ticker := time.NewTicker(m.opts.PingInterval)
	defer ticker.Stop()

	for range ticker.C {
		m.mu.Lock()
		stale := m.gen != gen || m.conn != conn
		m.mu.Unlock()
		if stale {
			return
		}
		if err := conn.WriteJSON(ClientMessage{Type: "ping"}); err != nil {
			return
		}
	}
}

// handleReadError decides between deliberate shutdown, normal closure, and
// abnormal closure that triggers the reconnect loop.
func (m *Manager) handleReadError(err error, gen int) {
	m.mu.Lock()
	if m.gen != gen || m.manual {
		// Stale loop from a superseded connection, or a deliberate Close.
		m.mu.Unlock()
		return
	}
	m.conn = nil
	sessionID := m.sessionID
	m.mu.Unlock()

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		m.notifyStatus(StatusDisconnected)
		return
	}

	m.notifyError(err)
	m.notifyStatus(StatusReconnecting)
	go m.reconnectLoop(sessionID, gen)
}

// reconnectLoop retries the connection with exponential backoff after an
// abnormal close. After the attempt cap it gives up silently, leaving state
// such that a future manual Connect works.
func (m *Manager) reconnectLoop(sessionID string, gen int) {
	for attempt := 0; !m.opts.Reconnect.Exhausted(attempt); attempt++ {
		time.Sleep(m.opts.Reconnect.Delay(attempt))

		m.mu.Lock()
		if m.manual || m.gen != gen {
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), m.opts.ConnectTimeout)
		conn, err := m.dialAndSubscribe(ctx, sessionID)
		cancel()
		if err != nil {
			m.opts.Logger.Printf("live: reconnect attempt %d failed: %v", attempt+1, err)
			continue
		}

		m.mu.Lock()
		if m.manual || m.gen != gen {
			m.mu.Unlock()
			_ = conn.Close()
			return
		}
		m.conn = conn
		m.gen++
		newGen := m.gen
		m.mu.Unlock()

		go m.readLoop(conn, newGen)
		if m.opts.PingInterval > 0 {
			go m.pingLoop(conn, newGen)
		}
		m.notifyStatus(StatusConnected)
		return
	}

	m.opts.Logger.Printf("live: giving up after %d reconnect attempts", m.opts.Reconnect.MaxAttempts)
	m.notifyStatus(StatusDisconnected)
}

func (m *Manager) notifyEvent(ev timeline.Event) {
	m.cbMu.RLock()
	observers := m.onEvent
	m.cbMu.RUnlock()
	for _, fn := range observers {
		m.safeCall(func() { fn(ev) })
	}
}

func (m *Manager) notifyStatus(s Status) {
	m.cbMu.RLock()
	observers := m.onStatus
	m.cbMu.RUnlock()
	for _, fn := range observers {
		m.safeCall(func() { fn(s) })
	}
}

func (m *Manager) notifyError(err error) {
	m.cbMu.RLock()
	observers := m.onError
	m.cbMu.RUnlock()
	for _, fn := range observers {
		m.safeCall(func() { fn(err) })
	}
}

// safeCall shields the read loop from observer panics; a failing observer
// must never tear down the connection.
func (m *Manager) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.opts.Logger.Printf("live: observer panic recovered: %v", r)
		}
	}()
	fn()
}
