package session

import (
	"context"
	"fmt"
	"time"

	"github.com/voicereply/voice-service/internal/domain"
)

// Event is a transport-level occurrence delivered on a handle's event
// channel. The concrete types below are the only implementations.
type Event interface {
	isEvent()
}

// PairingPayload carries the QR token the user scans to link an account.
type PairingPayload struct {
	Token    string    `json:"token"`
	IssuedAt time.Time `json:"issued_at"`
}

// ConnectionOpened signals the messaging account is linked and live.
type ConnectionOpened struct {
	AccountID   string
	PhoneNumber string
}

// ConnectionClosed signals the connection dropped. Invalidated means the
// remote side revoked the session and the stored credentials are dead.
type ConnectionClosed struct {
	Reason      string
	Invalidated bool
}

// ChatMessage is an inbound message event. FromSelf marks the tenant's own
// outbound replies, which is how style instructions arrive.
type ChatMessage struct {
	ChatID     string
	FromSelf   bool
	Text       string
	QuotedText string
}

func (PairingPayload) isEvent()   {}
func (ConnectionOpened) isEvent() {}
func (ConnectionClosed) isEvent() {}
func (ChatMessage) isEvent()      {}

// OutboundMessage is a reply sent back through a handle. Exactly one of
// Text or Audio is set.
type OutboundMessage struct {
	Text  string
	Audio []byte
}

// Handle is one live connection to the messaging network. Events closes
// after the handle is closed or the connection drops.
type Handle interface {
	Send(ctx context.Context, chatID string, msg OutboundMessage) error
	Logout(ctx context.Context) error
	Close(ctx context.Context) error
	Events() <-chan Event
}

// Transport dials the messaging network. A nil creds slice starts a fresh
// pairing; non-nil restores an existing link.
type Transport interface {
	Connect(ctx context.Context, tenantID string, creds []byte) (Handle, error)
}

// CredentialStore persists pairing credentials per tenant. Load returns
// (nil, nil) when no credentials exist.
type CredentialStore interface {
	Load(tenantID string) ([]byte, error)
	Save(tenantID string, creds []byte) error
	Delete(tenantID string) error
}

// Directory is the tenant-facing view of persistent tenant state.
type Directory interface {
	ListActiveTenants(ctx context.Context) ([]string, error)
	SetStatus(ctx context.Context, tenantID string, status domain.TenantStatus) error
	RecordLinkedAccount(ctx context.Context, tenantID, phoneNumber, accountID string) error
	IncrementReconnectAttempts(ctx context.Context, tenantID string) (int, error)
}

// TransportError reports a pairing or connect failure for one tenant.
type TransportError struct {
	TenantID string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure for tenant %s: %v", e.TenantID, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
