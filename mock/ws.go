// ABOUTME: WebSocket side of the stub backend: upgrades, subscribe bookkeeping, broadcast.
// ABOUTME: Supports the dashboard-multiplexed channel and the legacy per-alert socket.
package mock

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/rsoaresd/tarsy-bot-sub002/live"
	"github.com/rsoaresd/tarsy-bot-sub002/timeline"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The stub is a local dev tool; accept any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsClient is one connected socket. Writes are serialized through writeMu
// because scenario goroutines broadcast concurrently.
type wsClient struct {
	conn     *websocket.Conn
	writeMu  sync.Mutex
	mu       sync.Mutex
	channels map[string]bool
}

func (c *wsClient) subscribed(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channels[channel]
}

func (c *wsClient) subscribe(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[channel] = true
}

func (c *wsClient) send(env timeline.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(env)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("ws upgrade failed user=%s err=%v", userID, err)
		return
	}

	client := &wsClient{conn: conn, channels: make(map[string]bool)}
	_ = client.send(timeline.Envelope{
		Type: timeline.TypeConnectionEstablished,
		Data: mustMarshal(map[string]string{"user_id": userID}),
	})

	s.addClient(client)
	s.readLoop(client)
}

// handleLegacyWS serves the per-alert socket: the client is auto-subscribed
// to the session backing the alert and never sends a subscribe message.
func (s *Server) handleLegacyWS(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "alertId")

	s.mu.Lock()
	sessionID, ok := s.byAlert[alertID]
	// A legacy client may also dial with the session id directly.
	if !ok {
		_, ok = s.sessions[alertID]
		sessionID = alertID
	}
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("ws upgrade failed alert=%s err=%v", alertID, err)
		return
	}

	client := &wsClient{conn: conn, channels: make(map[string]bool)}
	client.subscribe(live.SessionChannel(sessionID))
	_ = client.send(timeline.Envelope{Type: timeline.TypeConnectionEstablished})

	s.addClient(client)
	s.readLoop(client)
}

func (s *Server) addClient(c *wsClient) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) removeClient(c *wsClient) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	_ = c.conn.Close()
}

// readLoop consumes client control messages until the socket drops.
func (s *Server) readLoop(c *wsClient) {
	defer s.removeClient(c)
	for {
		var msg live.ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case "subscribe":
			c.subscribe(msg.Channel)
			_ = c.send(timeline.Envelope{
				Type: timeline.TypeSubscriptionResponse,
				Data: mustMarshal(map[string]any{"channel": msg.Channel, "success": true}),
			})
		case "ping":
			// Keepalive; nothing to do.
		default:
			s.logger.Printf("ws ignoring client message type=%q", msg.Type)
		}
	}
}

// broadcast delivers an envelope to every client subscribed to the channel.
// With duplicate delivery enabled each envelope goes out twice, which well
// behaved clients must tolerate.
func (s *Server) broadcast(channel string, env timeline.Envelope) {
	s.mu.Lock()
	targets := make([]*wsClient, 0, len(s.clients))
	for c := range s.clients {
		targets = append(targets, c)
	}
	dup := s.duplicates
	s.mu.Unlock()

	for _, c := range targets {
		if !c.subscribed(channel) {
			continue
		}
		if err := c.send(env); err != nil {
			s.removeClient(c)
			continue
		}
		// Stream chunks carry no dedup key, so redelivering one would
		// garble the accumulated text. Only persisted events, which
		// consumers deduplicate by event_id, are redelivered.
		if dup && env.Type != timeline.TypeStreamChunk {
			_ = c.send(env)
		}
	}
}
