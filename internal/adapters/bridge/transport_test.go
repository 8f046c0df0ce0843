package bridge

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
	"github.com/voicereply/voice-service/internal/session"
)

type memCredStore struct {
	saved map[string][]byte
}

func (s *memCredStore) Load(tenantID string) ([]byte, error) { return s.saved[tenantID], nil }
func (s *memCredStore) Save(tenantID string, c []byte) error {
	s.saved[tenantID] = c
	return nil
}
func (s *memCredStore) Delete(tenantID string) error {
	delete(s.saved, tenantID)
	return nil
}

// fakeGateway upgrades connections and scripts frames per tenant.
func fakeGateway(t *testing.T, script func(tenantID string, conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := strings.TrimPrefix(r.URL.Path, "/ws/")
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		script(tenantID, conn)
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestConnectFreshPairingFlow(t *testing.T) {
	gotFrames := make(chan frame, 8)
	server := fakeGateway(t, func(tenantID string, conn *websocket.Conn) {
		var init frame
		require.NoError(t, conn.ReadJSON(&init))
		gotFrames <- init

		conn.WriteJSON(frame{Type: frameCreds, Creds: []byte(`{"k":"v"}`)})
		conn.WriteJSON(frame{Type: framePairing, Token: "qr-abc"})
		conn.WriteJSON(frame{Type: frameOpened, AccountID: "555@s.whatsapp.net", PhoneNumber: "+555"})
	})
	defer server.Close()

	store := &memCredStore{saved: make(map[string][]byte)}
	transport := NewTransport(wsURL(server), store)

	handle, err := transport.Connect(context.Background(), "tenant-1", nil)
	require.NoError(t, err)
	defer handle.Close(context.Background())

	init := <-gotFrames
	assert.Equal(t, frameConnect, init.Type)
	assert.Empty(t, init.Creds, "fresh pairing sends no credentials")

	ev := <-handle.Events()
	pairing, ok := ev.(session.PairingPayload)
	require.True(t, ok, "expected pairing payload, got %T", ev)
	assert.Equal(t, "qr-abc", pairing.Token)
	assert.False(t, pairing.IssuedAt.IsZero())

	ev = <-handle.Events()
	opened, ok := ev.(session.ConnectionOpened)
	require.True(t, ok, "expected connection opened, got %T", ev)
	assert.Equal(t, "555@s.whatsapp.net", opened.AccountID)

	// The creds frame was persisted, not surfaced as an event.
	assert.JSONEq(t, `{"k":"v"}`, string(store.saved["tenant-1"]))
}

func TestConnectRestoreSendsStoredCreds(t *testing.T) {
	gotFrames := make(chan frame, 1)
	server := fakeGateway(t, func(tenantID string, conn *websocket.Conn) {
		var init frame
		require.NoError(t, conn.ReadJSON(&init))
		gotFrames <- init
		conn.WriteJSON(frame{Type: frameOpened, AccountID: "acct"})
	})
	defer server.Close()

	transport := NewTransport(wsURL(server), &memCredStore{saved: make(map[string][]byte)})
	handle, err := transport.Connect(context.Background(), "tenant-1", []byte(`{"noiseKey":"abc"}`))
	require.NoError(t, err)
	defer handle.Close(context.Background())

	init := <-gotFrames
	assert.JSONEq(t, `{"noiseKey":"abc"}`, string(init.Creds))
}

func TestMessagesAndSendRoundTrip(t *testing.T) {
	sent := make(chan frame, 2)
	server := fakeGateway(t, func(tenantID string, conn *websocket.Conn) {
		var init frame
		require.NoError(t, conn.ReadJSON(&init))
		conn.WriteJSON(frame{Type: frameMessage, ChatID: "chat-9", FromSelf: true, Text: "voice: pirate", QuotedText: "hello"})
		for i := 0; i < 2; i++ {
			var out frame
			if err := conn.ReadJSON(&out); err != nil {
				return
			}
			sent <- out
		}
	})
	defer server.Close()

	transport := NewTransport(wsURL(server), &memCredStore{saved: make(map[string][]byte)})
	handle, err := transport.Connect(context.Background(), "tenant-1", nil)
	require.NoError(t, err)
	defer handle.Close(context.Background())

	ev := <-handle.Events()
	msg, ok := ev.(session.ChatMessage)
	require.True(t, ok, "expected chat message, got %T", ev)
	assert.True(t, msg.FromSelf)
	assert.Equal(t, "voice: pirate", msg.Text)
	assert.Equal(t, "hello", msg.QuotedText)

	require.NoError(t, handle.Send(context.Background(), "chat-9", session.OutboundMessage{Audio: []byte{1, 2, 3}}))
	require.NoError(t, handle.Logout(context.Background()))

	out := <-sent
	assert.Equal(t, frameSend, out.Type)
	assert.Equal(t, "chat-9", out.ChatID)
	assert.Equal(t, []byte{1, 2, 3}, out.Audio)

	out = <-sent
	assert.Equal(t, frameLogout, out.Type)
}

func TestGatewayDropEmitsConnectionClosed(t *testing.T) {
	server := fakeGateway(t, func(tenantID string, conn *websocket.Conn) {
		var init frame
		require.NoError(t, conn.ReadJSON(&init))
		conn.Close()
	})
	defer server.Close()

	transport := NewTransport(wsURL(server), &memCredStore{saved: make(map[string][]byte)})
	handle, err := transport.Connect(context.Background(), "tenant-1", nil)
	require.NoError(t, err)

	select {
	case ev := <-handle.Events():
		closed, ok := ev.(session.ConnectionClosed)
		require.True(t, ok, "expected connection closed, got %T", ev)
		assert.False(t, closed.Invalidated)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for close event")
	}

	// Channel closes after the drop event.
	_, open := <-handle.Events()
	assert.False(t, open)
}

func TestLocalCloseDoesNotEmitCloseEvent(t *testing.T) {
	server := fakeGateway(t, func(tenantID string, conn *websocket.Conn) {
		var init frame
		require.NoError(t, conn.ReadJSON(&init))
		// Hold the connection open until the client closes it.
		conn.ReadJSON(&frame{})
	})
	defer server.Close()

	transport := NewTransport(wsURL(server), &memCredStore{saved: make(map[string][]byte)})
	handle, err := transport.Connect(context.Background(), "tenant-1", nil)
	require.NoError(t, err)

	require.NoError(t, handle.Close(context.Background()))

	select {
	case _, open := <-handle.Events():
		assert.False(t, open, "local close should close the channel without a close event")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event channel to close")
	}
}
