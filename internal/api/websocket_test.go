package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/goleak"

	"github.com/nerrad567/graychat-core/internal/infrastructure/config"
	"github.com/nerrad567/graychat-core/internal/infrastructure/database/dbtest"
	"github.com/nerrad567/graychat-core/internal/infrastructure/logging"
	"github.com/nerrad567/graychat-core/internal/room"
)

// wsServer serves srv over a real listener for WebSocket tests.
func wsServer(t *testing.T, srv *Server) *httptest.Server {
	t.Helper()

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

// dial opens a WebSocket to roomID with an optional session cookie.
func dial(t *testing.T, ts *httptest.Server, roomID string, header http.Header) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?roomId=" + roomID
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

// dialRefused asserts the upgrade is refused with status.
func dialRefused(t *testing.T, ts *httptest.Server, roomID string, header http.Header, status int) {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?roomId=" + roomID
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		conn.Close()
		t.Fatal("dial succeeded, want refused upgrade")
	}
	if resp == nil {
		t.Fatalf("dial: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != status {
		t.Errorf("upgrade status = %d, want %d", resp.StatusCode, status)
	}
}

// hookedRooms wraps a room repository. Once armed, the next GetByID runs
// its hook after reading the room and returns what it read.
type hookedRooms struct {
	room.Repository
	armed atomic.Bool
	hook  func()
}

func (r *hookedRooms) GetByID(ctx context.Context, id string) (*room.Room, error) {
	rm, err := r.Repository.GetByID(ctx, id)
	if r.armed.CompareAndSwap(true, false) {
		r.hook()
	}
	return rm, err
}

// serverWithRooms builds a running server whose room repository is wrapped
// by wrap.
func serverWithRooms(t *testing.T, cfg *config.Config, wrap func(room.Repository) room.Repository) *Server {
	t.Helper()

	db := dbtest.New(t)
	srv, err := New(Deps{
		Config:  cfg,
		Logger:  logging.Discard(),
		DB:      db,
		Rooms:   wrap(room.NewSQLiteRepository(db.DB)),
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	runBackground(t, srv)
	return srv
}

func cookieHeader(c *http.Cookie) http.Header {
	if c == nil {
		return nil
	}
	return http.Header{"Cookie": {c.String()}}
}

// expectRejection reads the rejection payload and the close frame that
// must follow it, returning the message.
func expectRejection(t *testing.T, conn *websocket.Conn) string {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second)) //nolint:errcheck // test deadline
	var msg wsRejection
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("reading rejection: %v", err)
	}
	if msg.Success {
		t.Error("rejection success = true")
	}

	_, _, err := conn.ReadMessage()
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		t.Fatalf("expected close frame after rejection, got %v", err)
	}
	if ce.Code != websocket.ClosePolicyViolation {
		t.Errorf("close code = %d, want %d", ce.Code, websocket.ClosePolicyViolation)
	}
	return msg.Message
}

// expectOpen asserts nothing arrives on conn for a short while.
func expectOpen(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond)) //nolint:errcheck // test deadline
	_, data, err := conn.ReadMessage()
	var ne net.Error
	if !errors.As(err, &ne) || !ne.Timeout() {
		t.Fatalf("connection should stay open and silent, got data=%q err=%v", data, err)
	}
}

// ─── Handshake Gate ────────────────────────────────────────────────

func TestWebSocket_Rejections(t *testing.T) {
	srv := testServer(t)
	ts := wsServer(t, srv)
	cookie, _ := register(t, srv, "ursula", "u@example.com", "correct-horse")
	roomID := createRoom(t, srv, cookie, "plaza", room.Public)

	tests := []struct {
		name   string
		roomID string
		header http.Header
		want   string
	}{
		{"no cookie", roomID, nil, "Unauthorized"},
		{"garbage cookie", roomID, http.Header{"Cookie": {"jwt=garbage"}}, "Unauthorized"},
		// Bearer headers are an HTTP-only credential source.
		{"bearer only", roomID, http.Header{"Authorization": {"Bearer " + cookie.Value}}, "Unauthorized"},
		{"invalid room id", "lobby", cookieHeader(cookie), "Invalid room id"},
		{"missing room id", "", cookieHeader(cookie), "Invalid room id"},
		{"unknown room", uuid.NewString(), cookieHeader(cookie), "Room not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := dial(t, ts, tt.roomID, tt.header)
			if got := expectRejection(t, conn); got != tt.want {
				t.Errorf("message = %q, want %q", got, tt.want)
			}
		})
	}

	if got := counterValue(t, srv.metrics.handshakes.WithLabelValues(handshakeUnauthorized)); got != 3 {
		t.Errorf("unauthorized handshakes = %v, want 3", got)
	}
	if n := srv.hub.ClientCount(); n != 0 {
		t.Errorf("ClientCount = %d, want 0", n)
	}
}

func TestWebSocket_PublicRoomAccepted(t *testing.T) {
	srv := testServer(t)
	ts := wsServer(t, srv)
	uCookie, _ := register(t, srv, "ursula", "u@example.com", "correct-horse")
	vCookie, _ := register(t, srv, "victor", "v@example.com", "correct-horse")
	roomID := createRoom(t, srv, uCookie, "plaza", room.Public)

	conn := dial(t, ts, roomID, cookieHeader(vCookie))
	waitFor(t, "registration", func() bool { return srv.hub.ClientCount() == 1 })
	expectOpen(t, conn)

	if got := counterValue(t, srv.metrics.connections); got != 1 {
		t.Errorf("ws_connections = %v, want 1", got)
	}
}

// A private room the caller cannot read is rejected; after the owner adds
// them to the allow-list the same connection attempt stays open.
func TestWebSocket_PrivateRoomAllowList(t *testing.T) {
	srv := testServer(t)
	ts := wsServer(t, srv)
	uCookie, _ := register(t, srv, "ursula", "u@example.com", "correct-horse")
	vCookie, vID := register(t, srv, "victor", "v@example.com", "correct-horse")
	roomID := createRoom(t, srv, uCookie, "lobby", room.Private)

	conn := dial(t, ts, roomID, cookieHeader(vCookie))
	if got := expectRejection(t, conn); got != "Unauthorized" {
		t.Fatalf("message = %q, want Unauthorized", got)
	}

	w := request(t, srv, http.MethodPatch, "/api/room/update", map[string]any{
		"id":        roomID,
		"allowList": []string{vID},
	}, uCookie)
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d", w.Code)
	}

	conn = dial(t, ts, roomID, cookieHeader(vCookie))
	waitFor(t, "registration", func() bool { return srv.hub.ClientCount() == 1 })
	expectOpen(t, conn)
}

func TestWebSocket_OwnerAcceptedWithoutAllowList(t *testing.T) {
	srv := testServer(t)
	ts := wsServer(t, srv)
	cookie, _ := register(t, srv, "ursula", "u@example.com", "correct-horse")
	roomID := createRoom(t, srv, cookie, "lobby", room.Private)

	conn := dial(t, ts, roomID, cookieHeader(cookie))
	waitFor(t, "registration", func() bool { return srv.hub.ClientCount() == 1 })
	expectOpen(t, conn)
}

// The default policy only upgrades same-host pages; the cookie rides along
// on every browser upgrade, so a foreign page must not get a socket.
func TestWebSocket_OriginCheck(t *testing.T) {
	srv := testServer(t)
	ts := wsServer(t, srv)
	cookie, _ := register(t, srv, "ursula", "u@example.com", "correct-horse")
	roomID := createRoom(t, srv, cookie, "plaza", room.Public)

	header := cookieHeader(cookie)
	header.Set("Origin", "https://evil.example.com")
	dialRefused(t, ts, roomID, header, http.StatusForbidden)
	if n := srv.hub.ClientCount(); n != 0 {
		t.Fatalf("ClientCount = %d after refused upgrade", n)
	}

	header = cookieHeader(cookie)
	header.Set("Origin", ts.URL)
	conn := dial(t, ts, roomID, header)
	waitFor(t, "registration", func() bool { return srv.hub.ClientCount() == 1 })
	expectOpen(t, conn)
}

func TestWebSocket_OriginCheckAllowList(t *testing.T) {
	srv := testServer(t, func(c *config.Config) {
		c.API.CORS.AllowedOrigins = []string{"*", "https://app.example.com"}
	})
	ts := wsServer(t, srv)
	cookie, _ := register(t, srv, "ursula", "u@example.com", "correct-horse")
	roomID := createRoom(t, srv, cookie, "plaza", room.Public)

	header := cookieHeader(cookie)
	header.Set("Origin", "https://evil.example.com")
	dialRefused(t, ts, roomID, header, http.StatusForbidden)

	header = cookieHeader(cookie)
	header.Set("Origin", "https://app.example.com")
	conn := dial(t, ts, roomID, header)
	waitFor(t, "registration", func() bool { return srv.hub.ClientCount() == 1 })
	expectOpen(t, conn)
}

// The owner empties the allow-list after the gate has read the room but
// before the connection is registered. The connection must still be
// closed.
func TestWebSocket_AllowListChangedDuringHandshake(t *testing.T) {
	rooms := &hookedRooms{}
	srv := serverWithRooms(t, testConfig(), func(inner room.Repository) room.Repository {
		rooms.Repository = inner
		return rooms
	})
	ts := wsServer(t, srv)
	uCookie, _ := register(t, srv, "ursula", "u@example.com", "correct-horse")
	vCookie, vID := register(t, srv, "victor", "v@example.com", "correct-horse")
	roomID := createRoom(t, srv, uCookie, "lobby", room.Private, vID)

	var updateStatus atomic.Int32
	rooms.hook = func() {
		req := httptest.NewRequest(http.MethodPatch, "/api/room/update",
			strings.NewReader(`{"id":"`+roomID+`","allowList":[]}`))
		req.Header.Set("Content-Type", "application/json")
		req.AddCookie(uCookie)
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		updateStatus.Store(int32(w.Code))
	}
	rooms.armed.Store(true)

	conn := dial(t, ts, roomID, cookieHeader(vCookie))
	if got := expectRejection(t, conn); got != "Unauthorized" {
		t.Errorf("message = %q, want Unauthorized", got)
	}
	if got := updateStatus.Load(); got != http.StatusOK {
		t.Fatalf("update during handshake status = %d", got)
	}
	waitFor(t, "client removal", func() bool { return srv.hub.ClientCount() == 0 })

	if got := counterValue(t, srv.metrics.handshakes.WithLabelValues(handshakeUnauthorized)); got != 1 {
		t.Errorf("unauthorized handshakes = %v, want 1", got)
	}
	if got := counterValue(t, srv.metrics.handshakes.WithLabelValues(handshakeAccepted)); got != 0 {
		t.Errorf("accepted handshakes = %v, want 0", got)
	}
}

// stalledRooms blocks GetByID until the caller gives up once armed.
type stalledRooms struct {
	room.Repository
	armed atomic.Bool
}

func (r *stalledRooms) GetByID(ctx context.Context, id string) (*room.Room, error) {
	if r.armed.Load() {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return r.Repository.GetByID(ctx, id)
}

func TestWebSocket_HandshakeTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.WebSocket.HandshakeTimeout = 1
	rooms := &stalledRooms{}
	srv := serverWithRooms(t, cfg, func(inner room.Repository) room.Repository {
		rooms.Repository = inner
		return rooms
	})
	ts := wsServer(t, srv)
	cookie, _ := register(t, srv, "ursula", "u@example.com", "correct-horse")
	roomID := createRoom(t, srv, cookie, "plaza", room.Public)
	rooms.armed.Store(true)

	start := time.Now()
	conn := dial(t, ts, roomID, cookieHeader(cookie))
	if got := expectRejection(t, conn); got != "Internal server error" {
		t.Errorf("message = %q, want Internal server error", got)
	}
	if elapsed := time.Since(start); elapsed > 2500*time.Millisecond {
		t.Errorf("rejection took %v with a 1s handshake timeout", elapsed)
	}

	if got := counterValue(t, srv.metrics.handshakes.WithLabelValues(handshakeError)); got != 1 {
		t.Errorf("error handshakes = %v, want 1", got)
	}
	if n := srv.hub.ClientCount(); n != 0 {
		t.Errorf("ClientCount = %d, want 0", n)
	}
}

// ─── Revalidation ──────────────────────────────────────────────────

func TestWebSocket_RevokedWhenRemovedFromAllowList(t *testing.T) {
	srv := testServer(t)
	ts := wsServer(t, srv)
	uCookie, _ := register(t, srv, "ursula", "u@example.com", "correct-horse")
	vCookie, vID := register(t, srv, "victor", "v@example.com", "correct-horse")
	roomID := createRoom(t, srv, uCookie, "lobby", room.Private, vID)

	owner := dial(t, ts, roomID, cookieHeader(uCookie))
	member := dial(t, ts, roomID, cookieHeader(vCookie))
	waitFor(t, "registration", func() bool { return srv.hub.ClientCount() == 2 })

	w := request(t, srv, http.MethodPatch, "/api/room/update", map[string]any{
		"id":        roomID,
		"allowList": []string{},
	}, uCookie)
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d", w.Code)
	}

	if got := expectRejection(t, member); got != "Unauthorized" {
		t.Errorf("message = %q, want Unauthorized", got)
	}
	waitFor(t, "member removal", func() bool { return srv.hub.ClientCount() == 1 })
	expectOpen(t, owner)
}

func TestWebSocket_RevokedWhenRoomDeleted(t *testing.T) {
	srv := testServer(t)
	ts := wsServer(t, srv)
	cookie, _ := register(t, srv, "ursula", "u@example.com", "correct-horse")
	roomID := createRoom(t, srv, cookie, "plaza", room.Public)
	otherID := createRoom(t, srv, cookie, "lobby", room.Public)

	conn := dial(t, ts, roomID, cookieHeader(cookie))
	other := dial(t, ts, otherID, cookieHeader(cookie))
	waitFor(t, "registration", func() bool { return srv.hub.ClientCount() == 2 })

	w := request(t, srv, http.MethodDelete, "/api/room/delete/"+roomID, nil, cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}

	if got := expectRejection(t, conn); got != "Room not found" {
		t.Errorf("message = %q, want Room not found", got)
	}
	expectOpen(t, other)
}

func TestWebSocket_PublicToggleKeepsConnections(t *testing.T) {
	srv := testServer(t)
	ts := wsServer(t, srv)
	uCookie, _ := register(t, srv, "ursula", "u@example.com", "correct-horse")
	vCookie, _ := register(t, srv, "victor", "v@example.com", "correct-horse")
	roomID := createRoom(t, srv, uCookie, "plaza", room.Public)

	conn := dial(t, ts, roomID, cookieHeader(vCookie))
	waitFor(t, "registration", func() bool { return srv.hub.ClientCount() == 1 })

	// Renaming a public room changes nothing for readers.
	request(t, srv, http.MethodPatch, "/api/room/update", map[string]any{"id": roomID, "name": "square"}, uCookie)
	expectOpen(t, conn)
}

// ─── Hub ───────────────────────────────────────────────────────────

func TestHub_RunClosesClients(t *testing.T) {
	cfg := testConfig()
	srv := newServer(t, cfg)
	ts := wsServer(t, srv)
	cookie, _ := register(t, srv, "ursula", "u@example.com", "correct-horse")
	roomID := createRoom(t, srv, cookie, "plaza", room.Public)

	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.hub.Run(ctx)
		close(done)
	}()

	conn := dial(t, ts, roomID, cookieHeader(cookie))
	waitFor(t, "registration", func() bool { return srv.hub.ClientCount() == 1 })

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("hub.Run did not return")
	}
	if n := srv.hub.ClientCount(); n != 0 {
		t.Errorf("ClientCount after shutdown = %d", n)
	}

	conn.SetReadDeadline(time.Now().Add(time.Second)) //nolint:errcheck // test deadline
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("expected going-away close, got %v", err)
	}
	conn.Close()

	if srv.hub.Register(&WSClient{hub: srv.hub, send: make(chan []byte, 1)}) {
		t.Error("Register after shutdown should fail")
	}
}

func TestHub_RevalidateEmpty(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, logging.Discard(), nil)

	var checked []string
	n := hub.Revalidate("room-a", func(userID string) string {
		checked = append(checked, userID)
		return "Unauthorized"
	})
	if n != 0 || len(checked) != 0 {
		t.Errorf("empty hub: rejected=%d checked=%v", n, checked)
	}
}
