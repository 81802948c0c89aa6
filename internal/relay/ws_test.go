package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/skillswap/internal/model"
)

// peerSet stands in for the request store: each listed pair shares a request.
type peerSet map[[2]string]bool

func (p peerSet) SharesRequest(_ context.Context, a, b string) (bool, error) {
	return p[[2]string{a, b}] || p[[2]string{b, a}], nil
}

// newTestWSServer serves the relay with the member named by ?as=, standing in
// for the auth middleware. alice and bob share a request.
func newTestWSServer(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(testLogger())
	srv := NewServer(hub, peerSet{{"alice", "bob"}: true}, nil, testLogger())

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("as")
		srv.Serve(w, r, &model.User{ID: id, Name: strings.ToUpper(id)})
	}))
	t.Cleanup(ts.Close)
	return hub, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url, as string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url+"?as="+as, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type wireEvent struct {
	Type EventType      `json:"type"`
	Data map[string]any `json:"data"`
}

// readUntil reads frames until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want EventType) wireEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var ev wireEvent
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.Type == want {
			return ev
		}
	}
}

func waitOnline(t *testing.T, hub *Hub, identity string) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.IsOnline(identity) }, 2*time.Second, 10*time.Millisecond)
}

func TestWS_RegisterAndPresence(t *testing.T) {
	hub, url := newTestWSServer(t)
	alice := dial(t, url, "alice")

	require.NoError(t, alice.WriteJSON(map[string]string{"type": "register"}))
	ev := readUntil(t, alice, EventPresence)
	assert.Equal(t, []any{"alice"}, ev.Data["users"])
	waitOnline(t, hub, "alice")
}

func TestWS_MessageUsesAuthenticatedSender(t *testing.T) {
	hub, url := newTestWSServer(t)
	alice := dial(t, url, "alice")
	bob := dial(t, url, "bob")

	require.NoError(t, bob.WriteJSON(map[string]string{"type": "register"}))
	waitOnline(t, hub, "bob")

	// senderId in the frame is ignored; the connection's identity is used.
	require.NoError(t, alice.WriteJSON(map[string]string{
		"type": "sendMessage", "receiverId": "bob", "text": "hi bob", "senderId": "mallory",
	}))

	ev := readUntil(t, bob, EventMessage)
	assert.Equal(t, "alice", ev.Data["senderId"])
	assert.Equal(t, "hi bob", ev.Data["text"])
}

func TestWS_Notification(t *testing.T) {
	hub, url := newTestWSServer(t)
	alice := dial(t, url, "alice")
	bob := dial(t, url, "bob")

	require.NoError(t, bob.WriteJSON(map[string]string{"type": "register"}))
	waitOnline(t, hub, "bob")

	require.NoError(t, alice.WriteJSON(map[string]string{"type": "sendNotification", "receiverId": "bob"}))

	ev := readUntil(t, bob, EventNotification)
	assert.Equal(t, "ALICE", ev.Data["senderName"])
	assert.Equal(t, "ALICE has sent you a swap request!", ev.Data["message"])
}

func TestWS_NotificationNeedsSharedRequest(t *testing.T) {
	hub, url := newTestWSServer(t)
	alice := dial(t, url, "alice")
	carol := dial(t, url, "carol")

	require.NoError(t, carol.WriteJSON(map[string]string{"type": "register"}))
	waitOnline(t, hub, "carol")
	readUntil(t, carol, EventPresence)

	require.NoError(t, alice.WriteJSON(map[string]string{"type": "sendNotification", "receiverId": "carol"}))
	ev := readUntil(t, alice, EventError)
	assert.Equal(t, "you have no request with this member", ev.Data["message"])

	// Nothing reached carol.
	require.NoError(t, carol.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var got wireEvent
	assert.Error(t, carol.ReadJSON(&got))
}

// readUntilClosed reads until the server closes the connection and returns
// the read error.
func readUntilClosed(t *testing.T, conn *websocket.Conn) error {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return err
		}
	}
}

func TestWS_DisconnectClosesRegisteredConnection(t *testing.T) {
	hub, url := newTestWSServer(t)
	alice := dial(t, url, "alice")
	bob := dial(t, url, "bob")

	require.NoError(t, alice.WriteJSON(map[string]string{"type": "register"}))
	require.NoError(t, bob.WriteJSON(map[string]string{"type": "register"}))
	waitOnline(t, hub, "alice")
	waitOnline(t, hub, "bob")

	assert.Equal(t, 1, hub.Disconnect(context.Background(), "alice"))

	err := readUntilClosed(t, alice)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	assert.False(t, hub.IsOnline("alice"))
	assert.True(t, hub.IsOnline("bob"))
}

func TestWS_DisconnectClosesUnregisteredConnection(t *testing.T) {
	hub, url := newTestWSServer(t)
	alice := dial(t, url, "alice")

	// The connection is tracked as soon as Serve starts, before any frame.
	require.Eventually(t, func() bool {
		return hub.Disconnect(context.Background(), "alice") == 1
	}, 2*time.Second, 10*time.Millisecond)

	err := readUntilClosed(t, alice)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestWS_RejectsBadFrames(t *testing.T) {
	_, url := newTestWSServer(t)
	alice := dial(t, url, "alice")

	tests := []struct {
		name  string
		frame string
	}{
		{"not json", `{nope`},
		{"unknown type", `{"type":"teleport"}`},
		{"message without receiver", `{"type":"sendMessage","text":"x"}`},
		{"message without text", `{"type":"sendMessage","receiverId":"bob"}`},
		{"notification without receiver", `{"type":"sendNotification"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(tt.frame)))
			ev := readUntil(t, alice, EventError)
			assert.NotEmpty(t, ev.Data["message"])
		})
	}
}

func TestWS_DisconnectUnregisters(t *testing.T) {
	hub, url := newTestWSServer(t)
	alice := dial(t, url, "alice")

	require.NoError(t, alice.WriteJSON(map[string]string{"type": "register"}))
	waitOnline(t, hub, "alice")

	alice.Close()
	require.Eventually(t, func() bool { return !hub.IsOnline("alice") }, 2*time.Second, 10*time.Millisecond)
}

func TestWS_AllowedOrigins(t *testing.T) {
	hub := NewHub(testLogger())
	srv := NewServer(hub, nil, []string{"http://good.test"}, testLogger())
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		srv.Serve(w, r, &model.User{ID: "x"})
	}))
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.test"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://good.test"}})
	require.NoError(t, err)
	conn.Close()
}
