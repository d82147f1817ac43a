package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/graychat-core/internal/auth"
	"github.com/nerrad567/graychat-core/internal/infrastructure/config"
	"github.com/nerrad567/graychat-core/internal/infrastructure/logging"
	"github.com/nerrad567/graychat-core/internal/room"
)

// WebSocket constants.
const (
	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 16

	// wsWriteWait bounds a single frame write during rejection.
	wsWriteWait = time.Second
)

// Rejection messages sent before a connection is closed.
const (
	wsMsgUnauthorized = "Unauthorized"
	wsMsgInvalidRoom  = "Invalid room id"
	wsMsgRoomNotFound = "Room not found"
	wsMsgInternal     = "Internal server error"
)

// wsRejection is the payload sent to a connection that fails the gate.
type wsRejection struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Hub tracks authorized WebSocket connections by room.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	metrics *metrics
	clients map[*WSClient]struct{}
	closed  bool
	mu      sync.RWMutex
	pumps   sync.WaitGroup
}

// WSClient is one connection that passed the handshake gate.
type WSClient struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string
	roomID string

	// closeCode is the close frame sent by writePump once send is closed.
	// Written before send is closed.
	closeCode int
}

// NewHub creates a new WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger, m *metrics) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then closes every connection and
// waits for their pumps to exit.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
	h.pumps.Wait()
}

// Register adds a client to the hub and starts its pumps. It returns false
// once the hub has shut down.
func (h *Hub) Register(client *WSClient) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[client] = struct{}{}
	h.pumps.Add(2)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.connections.Inc()
	}
	h.logger.Debug("websocket client connected", "room_id", client.roomID, "user_id", client.userID, "clients", h.ClientCount())

	go func() {
		defer h.pumps.Done()
		client.writePump(h.cfg)
	}()
	go func() {
		defer h.pumps.Done()
		client.readPump(h.cfg)
	}()
	return true
}

// Unregister removes a client from the hub.
// Only the goroutine that successfully removes the client from the map
// closes the send channel, preventing double-close panics during shutdown.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	if existed {
		close(client.send)
	}
	h.mu.Unlock()

	if existed {
		if h.metrics != nil {
			h.metrics.connections.Dec()
		}
		h.logger.Debug("websocket client disconnected", "room_id", client.roomID, "clients", h.ClientCount())
	}
}

// Revalidate re-applies a decision to every client in roomID. check gets
// the client's user ID and returns a rejection message, or "" to keep the
// connection. Rejected clients are sent the message and closed. It returns
// the number rejected.
func (h *Hub) Revalidate(roomID string, check func(userID string) string) int {
	h.mu.RLock()
	var inRoom []*WSClient
	for client := range h.clients {
		if client.roomID == roomID {
			inRoom = append(inRoom, client)
		}
	}
	h.mu.RUnlock()

	rejected := 0
	for _, client := range inRoom {
		if msg := check(client.userID); msg != "" {
			h.reject(client, msg)
			rejected++
		}
	}
	return rejected
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// reject queues the rejection payload and closes the client's send channel;
// writePump flushes the payload, sends a policy-violation close frame and
// closes the connection.
func (h *Hub) reject(client *WSClient, message string) {
	data, err := json.Marshal(wsRejection{Message: message})
	if err != nil {
		return
	}

	h.mu.Lock()
	_, existed := h.clients[client]
	if existed {
		client.trySend(data)
		client.closeCode = websocket.ClosePolicyViolation
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()

	if existed {
		if h.metrics != nil {
			h.metrics.connections.Dec()
		}
		h.logger.Info("websocket client revoked", "room_id", client.roomID, "user_id", client.userID, "reason", message)
	}
}

// closeAll closes every client's send channel; each writePump then sends a
// going-away close frame and closes its connection.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for client := range h.clients {
		client.closeCode = websocket.CloseGoingAway
		close(client.send)
		delete(h.clients, client)
		if h.metrics != nil {
			h.metrics.connections.Dec()
		}
	}
}

// ─── Handshake Gate ────────────────────────────────────────────────

// handleWebSocket upgrades the connection and then authorizes it: session
// cookie, room ID, room existence and, for private rooms, the read rule.
// Any failure sends a rejection payload and closes. Bearer headers are not
// accepted here.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	timeout := time.Duration(s.cfg.WebSocket.HandshakeTimeout) * time.Second
	upgrader := websocket.Upgrader{
		HandshakeTimeout: timeout,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      s.cors.checkSocketOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	roomID := r.URL.Query().Get("roomId")
	user, result, msg := s.gateConnection(ctx, auth.TokenFromCookie(r), roomID)
	if result != handshakeAccepted {
		s.metrics.observeHandshake(result)
		s.logger.Debug("websocket connection rejected", "room_id", roomID, "result", result)
		rejectConn(conn, msg)
		return
	}

	client := &WSClient{
		hub:    s.hub,
		conn:   conn,
		send:   make(chan []byte, wsSendBufferSize),
		userID: user.ID,
		roomID: roomID,
	}
	if !s.hub.Register(client) {
		s.metrics.observeHandshake(handshakeError)
		rejectConn(conn, wsMsgInternal)
		return
	}

	// A room change committed between the gate's lookup and Register was
	// revalidated without this client. Reading the room again after
	// registering closes that window: any later change goes through
	// Revalidate, which now sees the client.
	result, msg = s.recheckConnection(ctx, roomID, user.ID)
	s.metrics.observeHandshake(result)
	if result != handshakeAccepted {
		s.logger.Debug("websocket connection rejected after registration", "room_id", roomID, "result", result)
		s.hub.reject(client, msg)
	}
}

// recheckConnection re-reads the room and re-applies the read rule for an
// already registered client.
func (s *Server) recheckConnection(ctx context.Context, roomID, userID string) (string, string) {
	rm, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			return handshakeNotFound, wsMsgRoomNotFound
		}
		s.logger.Error("websocket room recheck failed", "room_id", roomID, "error", err)
		return handshakeError, wsMsgInternal
	}
	if msg := s.readCheck(rm)(userID); msg != "" {
		return handshakeUnauthorized, msg
	}
	return handshakeAccepted, ""
}

// gateConnection runs the handshake checks in order and stops at the
// first failure, returning the metric result and rejection message.
func (s *Server) gateConnection(ctx context.Context, token, roomID string) (*auth.User, string, string) {
	user, err := s.resolver.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, auth.ErrNotAuthenticated) {
			return nil, handshakeUnauthorized, wsMsgUnauthorized
		}
		s.logger.Error("websocket identity lookup failed", "error", err)
		return nil, handshakeError, wsMsgInternal
	}

	if err := s.validate.Var(roomID, "required,uuid"); err != nil {
		return nil, handshakeInvalidRoom, wsMsgInvalidRoom
	}

	rm, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			return nil, handshakeNotFound, wsMsgRoomNotFound
		}
		s.logger.Error("websocket room lookup failed", "room_id", roomID, "error", err)
		return nil, handshakeError, wsMsgInternal
	}

	if rm.Visibility != room.Public {
		err := room.Decide(rm, user.ID, room.ActionRead)
		s.metrics.observeDecision(room.ActionRead, err)
		if err != nil {
			return nil, handshakeUnauthorized, wsMsgUnauthorized
		}
	}
	return user, handshakeAccepted, ""
}

// revalidateRoom re-checks live connections after a room changed. A nil
// updated means the room was deleted.
func (s *Server) revalidateRoom(roomID string, updated *room.Room) {
	n := s.hub.Revalidate(roomID, s.readCheck(updated))
	if n > 0 {
		s.logger.Info("websocket connections revoked after room change", "room_id", roomID, "count", n)
	}
}

// readCheck returns the live-connection check for rm: nil means the room
// is gone, public rooms keep everyone, private rooms apply the read rule.
func (s *Server) readCheck(rm *room.Room) func(userID string) string {
	return func(userID string) string {
		if rm == nil {
			return wsMsgRoomNotFound
		}
		if rm.Visibility == room.Public {
			return ""
		}
		err := room.Decide(rm, userID, room.ActionRead)
		s.metrics.observeDecision(room.ActionRead, err)
		if err != nil {
			return wsMsgUnauthorized
		}
		return ""
	}
}

// rejectConn writes the rejection payload and a close frame, then closes.
func rejectConn(conn *websocket.Conn, message string) {
	deadline := time.Now().Add(wsWriteWait)
	//nolint:errcheck // Best-effort deadline; write error ignored below
	conn.SetWriteDeadline(deadline)
	//nolint:errcheck // Best-effort rejection; the connection is closed regardless
	conn.WriteJSON(wsRejection{Message: message})
	//nolint:errcheck // Best-effort close frame
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, ""), deadline)
	conn.Close()
}

// ─── Pumps ─────────────────────────────────────────────────────────

// readPump reads and discards inbound frames, keeping the read deadline
// alive through pongs.
func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket read error", "room_id", c.roomID, "error", err)
			}
			return
		}
		// Any client message resets the read deadline.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	}
}

// writePump writes queued frames and keepalive pings. When send is closed
// it sends a close frame with closeCode and closes the connection.
func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if !ok {
				code := c.closeCode
				if code == 0 {
					code = websocket.CloseNormalClosure
				}
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// trySend attempts to send data to the client's send channel without
// blocking. Callers hold the hub lock, so the channel is still open.
func (c *WSClient) trySend(data []byte) {
	select {
	case c.send <- data:
	default:
		// Client buffer full, skip
	}
}
