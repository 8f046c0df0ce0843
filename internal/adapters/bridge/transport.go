package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/voicereply/voice-service/internal/session"
	"github.com/voicereply/voice-service/pkg/logger"
	"go.uber.org/zap"
)

// Frame types exchanged with the bridge gateway. The gateway owns the
// actual messaging protocol; this side drives pairing and relays events.
const (
	frameConnect = "connect"
	framePairing = "pairing"
	frameOpened  = "opened"
	frameClosed  = "closed"
	frameMessage = "message"
	frameCreds   = "creds"
	frameSend    = "send"
	frameLogout  = "logout"
)

type frame struct {
	Type        string          `json:"type"`
	Token       string          `json:"token,omitempty"`
	AccountID   string          `json:"accountId,omitempty"`
	PhoneNumber string          `json:"phoneNumber,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	Invalidated bool            `json:"invalidated,omitempty"`
	ChatID      string          `json:"chatId,omitempty"`
	FromSelf    bool            `json:"fromSelf,omitempty"`
	Text        string          `json:"text,omitempty"`
	QuotedText  string          `json:"quotedText,omitempty"`
	Audio       []byte          `json:"audio,omitempty"`
	Creds       json.RawMessage `json:"creds,omitempty"`
}

// Transport dials a bridge gateway over WebSocket, one connection per
// tenant. Credential updates pushed by the gateway are persisted through
// the store so restores survive restarts.
type Transport struct {
	baseURL string
	creds   session.CredentialStore
	dialer  *websocket.Dialer
}

func NewTransport(baseURL string, creds session.CredentialStore) *Transport {
	return &Transport{
		baseURL: baseURL,
		creds:   creds,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 15 * time.Second,
		},
	}
}

// Connect dials the gateway for one tenant. A nil creds slice asks the
// gateway for a fresh pairing; non-nil resumes the stored link.
func (t *Transport) Connect(ctx context.Context, tenantID string, creds []byte) (session.Handle, error) {
	url := fmt.Sprintf("%s/ws/%s", t.baseURL, tenantID)
	conn, _, err := t.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial bridge at %s: %w", url, err)
	}

	init := frame{Type: frameConnect}
	if len(creds) > 0 {
		init.Creds = json.RawMessage(creds)
	}
	if err := conn.WriteJSON(init); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send connect frame: %w", err)
	}

	h := &handle{
		tenantID: tenantID,
		conn:     conn,
		creds:    t.creds,
		events:   make(chan session.Event, 32),
	}
	go h.readLoop()
	return h, nil
}

type handle struct {
	tenantID string
	conn     *websocket.Conn
	creds    session.CredentialStore
	events   chan session.Event

	writeMu sync.Mutex

	closeMu sync.Mutex
	closed  bool
}

func (h *handle) Events() <-chan session.Event { return h.events }

func (h *handle) Send(_ context.Context, chatID string, msg session.OutboundMessage) error {
	out := frame{Type: frameSend, ChatID: chatID, Text: msg.Text, Audio: msg.Audio}
	return h.writeFrame(out)
}

func (h *handle) Logout(context.Context) error {
	return h.writeFrame(frame{Type: frameLogout})
}

// Close shuts the connection; the read loop then closes the event channel.
func (h *handle) Close(context.Context) error {
	h.closeMu.Lock()
	if h.closed {
		h.closeMu.Unlock()
		return nil
	}
	h.closed = true
	h.closeMu.Unlock()

	h.writeMu.Lock()
	h.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	h.writeMu.Unlock()
	return h.conn.Close()
}

func (h *handle) writeFrame(f frame) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if err := h.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("bridge write failed: %w", err)
	}
	return nil
}

func (h *handle) readLoop() {
	defer close(h.events)

	for {
		var f frame
		if err := h.conn.ReadJSON(&f); err != nil {
			h.closeMu.Lock()
			wasClosed := h.closed
			h.closed = true
			h.closeMu.Unlock()
			h.conn.Close()

			if !wasClosed {
				h.events <- session.ConnectionClosed{Reason: err.Error()}
			}
			return
		}

		switch f.Type {
		case framePairing:
			h.events <- session.PairingPayload{Token: f.Token, IssuedAt: time.Now()}
		case frameOpened:
			h.events <- session.ConnectionOpened{AccountID: f.AccountID, PhoneNumber: f.PhoneNumber}
		case frameClosed:
			h.events <- session.ConnectionClosed{Reason: f.Reason, Invalidated: f.Invalidated}
		case frameMessage:
			h.events <- session.ChatMessage{
				ChatID:     f.ChatID,
				FromSelf:   f.FromSelf,
				Text:       f.Text,
				QuotedText: f.QuotedText,
			}
		case frameCreds:
			if err := h.creds.Save(h.tenantID, f.Creds); err != nil {
				logger.Base().Error("Failed to persist credential update",
					zap.String("tenant_id", h.tenantID), zap.Error(err))
			}
		default:
			logger.Base().Warn("Unknown bridge frame",
				zap.String("tenant_id", h.tenantID), zap.String("frame_type", f.Type))
		}
	}
}
