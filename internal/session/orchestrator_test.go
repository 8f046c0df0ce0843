package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voicereply/voice-service/internal/domain"
)

type fakeHandle struct {
	events chan Event

	mu        sync.Mutex
	sent      []OutboundMessage
	closed    bool
	loggedOut bool
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{events: make(chan Event, 16)}
}

func (h *fakeHandle) Send(_ context.Context, _ string, msg OutboundMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, msg)
	return nil
}

func (h *fakeHandle) Logout(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loggedOut = true
	return nil
}

func (h *fakeHandle) Close(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.closed = true
		close(h.events)
	}
	return nil
}

func (h *fakeHandle) Events() <-chan Event { return h.events }

func (h *fakeHandle) emit(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.events <- ev
	}
}

func (h *fakeHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

type fakeTransport struct {
	mu         sync.Mutex
	handles    []*fakeHandle
	connectErr error

	// onConnect, when set, is invoked with each new handle so the test
	// can script the connection's events.
	onConnect func(h *fakeHandle, creds []byte)
}

func (t *fakeTransport) Connect(_ context.Context, _ string, creds []byte) (Handle, error) {
	t.mu.Lock()
	if t.connectErr != nil {
		err := t.connectErr
		t.mu.Unlock()
		return nil, err
	}
	h := newFakeHandle()
	t.handles = append(t.handles, h)
	hook := t.onConnect
	t.mu.Unlock()

	if hook != nil {
		hook(h, creds)
	}
	return h, nil
}

func (t *fakeTransport) connectCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.handles)
}

func (t *fakeTransport) lastHandle() *fakeHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.handles) == 0 {
		return nil
	}
	return t.handles[len(t.handles)-1]
}

type fakeDirectory struct {
	mu       sync.Mutex
	statuses map[string]domain.TenantStatus
	attempts map[string]int
	accounts map[string]string
	active   []string
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		statuses: make(map[string]domain.TenantStatus),
		attempts: make(map[string]int),
		accounts: make(map[string]string),
	}
}

func (d *fakeDirectory) ListActiveTenants(context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.active...), nil
}

func (d *fakeDirectory) SetStatus(_ context.Context, tenantID string, status domain.TenantStatus) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statuses[tenantID] = status
	if status == domain.TenantStatusConnected {
		d.attempts[tenantID] = 0
	}
	return nil
}

func (d *fakeDirectory) RecordLinkedAccount(_ context.Context, tenantID, _, accountID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.accounts[tenantID] = accountID
	return nil
}

func (d *fakeDirectory) IncrementReconnectAttempts(_ context.Context, tenantID string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts[tenantID]++
	return d.attempts[tenantID], nil
}

func (d *fakeDirectory) status(tenantID string) domain.TenantStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.statuses[tenantID]
}

type fakeCredStore struct {
	mu    sync.Mutex
	creds map[string][]byte
}

func newFakeCredStore() *fakeCredStore {
	return &fakeCredStore{creds: make(map[string][]byte)}
}

func (s *fakeCredStore) Load(tenantID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds[tenantID], nil
}

func (s *fakeCredStore) Save(tenantID string, creds []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[tenantID] = creds
	return nil
}

func (s *fakeCredStore) Delete(tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, tenantID)
	return nil
}

func (s *fakeCredStore) has(tenantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds[tenantID] != nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PairingWait = 2 * time.Second
	cfg.ReconnectDelay = 20 * time.Millisecond
	cfg.TeardownTimeout = time.Second
	cfg.ShutdownWait = 2 * time.Second
	return cfg
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

func TestCreateSessionReturnsPairingToken(t *testing.T) {
	transport := &fakeTransport{
		onConnect: func(h *fakeHandle, creds []byte) {
			if creds == nil {
				h.emit(PairingPayload{Token: "qr-token-1"})
			}
		},
	}
	dir := newFakeDirectory()
	orch := NewOrchestrator(transport, newFakeCredStore(), dir, nil, nil, testConfig())
	defer orch.Shutdown(context.Background())

	payload, err := orch.CreateSession(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.NotNil(t, payload)
	assert.Equal(t, "qr-token-1", payload.Token)

	eventually(t, func() bool { return orch.Status("tenant-1") == StatusPairingReady }, "status should be pairing_ready")
	eventually(t, func() bool { return dir.status("tenant-1") == domain.TenantStatusPairingReady }, "directory status should follow")

	token := orch.PairingToken("tenant-1")
	require.NotNil(t, token)
	assert.Equal(t, "qr-token-1", token.Token)
}

func TestConnectionOpenedTransitions(t *testing.T) {
	transport := &fakeTransport{}
	dir := newFakeDirectory()
	creds := newFakeCredStore()
	creds.Save("tenant-1", []byte("stored"))

	orch := NewOrchestrator(transport, creds, dir, nil, nil, testConfig())
	defer orch.Shutdown(context.Background())

	var events []LifecycleEvent
	var eventsMu sync.Mutex
	sub := orch.Subscribe(func(ev LifecycleEvent) {
		eventsMu.Lock()
		events = append(events, ev)
		eventsMu.Unlock()
	})
	defer sub.Unsubscribe()

	payload, err := orch.CreateSession(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Nil(t, payload, "restore mode should not produce a pairing token")

	transport.lastHandle().emit(ConnectionOpened{AccountID: "123@s.whatsapp.net", PhoneNumber: "+5511999"})

	eventually(t, func() bool { return orch.IsConnected("tenant-1") }, "session should connect")
	assert.Equal(t, domain.TenantStatusConnected, dir.status("tenant-1"))
	assert.Equal(t, "123@s.whatsapp.net", dir.accounts["tenant-1"])
	assert.Nil(t, orch.PairingToken("tenant-1"))

	eventually(t, func() bool {
		eventsMu.Lock()
		defer eventsMu.Unlock()
		for _, ev := range events {
			if ev.Type == EventConnected && ev.TenantID == "tenant-1" {
				return true
			}
		}
		return false
	}, "connected event should be published")
}

func TestCreateSessionReplacesLiveHandle(t *testing.T) {
	transport := &fakeTransport{
		onConnect: func(h *fakeHandle, creds []byte) {
			h.emit(PairingPayload{Token: "qr"})
		},
	}
	orch := NewOrchestrator(transport, newFakeCredStore(), newFakeDirectory(), nil, nil, testConfig())
	defer orch.Shutdown(context.Background())

	_, err := orch.CreateSession(context.Background(), "tenant-1")
	require.NoError(t, err)
	first := transport.lastHandle()

	_, err = orch.CreateSession(context.Background(), "tenant-1")
	require.NoError(t, err)

	// At most one live handle per tenant: the old one is torn down.
	assert.True(t, first.isClosed())
	assert.Equal(t, 2, transport.connectCount())
	assert.False(t, transport.lastHandle().isClosed())
}

func TestConnectFailureSurfacesTransportError(t *testing.T) {
	transport := &fakeTransport{connectErr: errors.New("dial refused")}
	dir := newFakeDirectory()
	orch := NewOrchestrator(transport, newFakeCredStore(), dir, nil, nil, testConfig())
	defer orch.Shutdown(context.Background())

	_, err := orch.CreateSession(context.Background(), "tenant-1")
	require.Error(t, err)

	var tErr *TransportError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, "tenant-1", tErr.TenantID)
	assert.Equal(t, StatusDisconnected, orch.Status("tenant-1"))
	assert.Equal(t, domain.TenantStatusDisconnected, dir.status("tenant-1"))
}

func TestPairingExpiryDisconnects(t *testing.T) {
	transport := &fakeTransport{
		onConnect: func(h *fakeHandle, creds []byte) {
			h.emit(PairingPayload{Token: "qr"})
		},
	}
	cfg := testConfig()
	cfg.PairingTTL = 30 * time.Millisecond

	dir := newFakeDirectory()
	orch := NewOrchestrator(transport, newFakeCredStore(), dir, nil, nil, cfg)
	defer orch.Shutdown(context.Background())

	payload, err := orch.CreateSession(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.NotNil(t, payload)

	eventually(t, func() bool { return orch.Status("tenant-1") == StatusDisconnected }, "expired pairing should disconnect")
	assert.Nil(t, orch.PairingToken("tenant-1"))
	assert.True(t, transport.lastHandle().isClosed())
}

func TestInvalidatedClosePurgesCredentials(t *testing.T) {
	transport := &fakeTransport{}
	dir := newFakeDirectory()
	creds := newFakeCredStore()
	creds.Save("tenant-1", []byte("stored"))

	orch := NewOrchestrator(transport, creds, dir, nil, nil, testConfig())
	defer orch.Shutdown(context.Background())

	_, err := orch.CreateSession(context.Background(), "tenant-1")
	require.NoError(t, err)

	handle := transport.lastHandle()
	handle.emit(ConnectionOpened{AccountID: "acct"})
	eventually(t, func() bool { return orch.IsConnected("tenant-1") }, "session should connect")

	handle.emit(ConnectionClosed{Reason: "logged out from phone", Invalidated: true})

	eventually(t, func() bool { return orch.Status("tenant-1") == StatusLoggedOut }, "invalidated close is terminal")
	assert.False(t, creds.has("tenant-1"), "credentials must be purged")
	assert.Equal(t, domain.TenantStatusPending, dir.status("tenant-1"))

	// No reconnect is scheduled for an invalidated close.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, transport.connectCount())
}

func TestReconnectCeiling(t *testing.T) {
	// Every connection drops immediately without ever opening, so the
	// attempt counter is never reset.
	transport := &fakeTransport{
		onConnect: func(h *fakeHandle, creds []byte) {
			h.emit(ConnectionClosed{Reason: "stream error"})
		},
	}
	dir := newFakeDirectory()
	creds := newFakeCredStore()
	creds.Save("tenant-1", []byte("stored"))

	cfg := testConfig()
	orch := NewOrchestrator(transport, creds, dir, nil, nil, cfg)
	defer orch.Shutdown(context.Background())

	_, err := orch.CreateSession(context.Background(), "tenant-1")
	require.NoError(t, err)

	// Initial connect plus exactly ReconnectCeiling retries.
	eventually(t, func() bool { return transport.connectCount() == 1+cfg.ReconnectCeiling }, "retries should reach the ceiling")
	time.Sleep(5 * cfg.ReconnectDelay)
	assert.Equal(t, 1+cfg.ReconnectCeiling, transport.connectCount(), "no retries past the ceiling")
	assert.Equal(t, StatusDisconnected, orch.Status("tenant-1"))
}

func TestLogoutRemovesRecordAndSkipsRestore(t *testing.T) {
	transport := &fakeTransport{}
	dir := newFakeDirectory()
	creds := newFakeCredStore()
	creds.Save("tenant-1", []byte("stored"))
	dir.active = []string{"tenant-1"}

	orch := NewOrchestrator(transport, creds, dir, nil, nil, testConfig())
	defer orch.Shutdown(context.Background())

	_, err := orch.CreateSession(context.Background(), "tenant-1")
	require.NoError(t, err)
	handle := transport.lastHandle()
	handle.emit(ConnectionOpened{AccountID: "acct"})
	eventually(t, func() bool { return orch.IsConnected("tenant-1") }, "session should connect")

	require.NoError(t, orch.LogoutSession(context.Background(), "tenant-1"))

	assert.Equal(t, StatusNone, orch.Status("tenant-1"))
	assert.False(t, creds.has("tenant-1"))
	assert.True(t, handle.loggedOut)
	assert.Equal(t, domain.TenantStatusPending, dir.status("tenant-1"))

	// Idempotent.
	require.NoError(t, orch.LogoutSession(context.Background(), "tenant-1"))

	report, err := orch.RestoreAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RestoreReport{Total: 1, Restored: 0, Failed: 0}, report)
	assert.Equal(t, 1, transport.connectCount(), "logged-out tenant must not be restored")
}

func TestDisconnectRetainsCredentials(t *testing.T) {
	transport := &fakeTransport{}
	dir := newFakeDirectory()
	creds := newFakeCredStore()
	creds.Save("tenant-1", []byte("stored"))

	orch := NewOrchestrator(transport, creds, dir, nil, nil, testConfig())
	defer orch.Shutdown(context.Background())

	_, err := orch.CreateSession(context.Background(), "tenant-1")
	require.NoError(t, err)
	transport.lastHandle().emit(ConnectionOpened{AccountID: "acct"})
	eventually(t, func() bool { return orch.IsConnected("tenant-1") }, "session should connect")

	require.NoError(t, orch.DisconnectSession(context.Background(), "tenant-1"))

	assert.Equal(t, StatusDisconnected, orch.Status("tenant-1"))
	assert.True(t, creds.has("tenant-1"), "manual disconnect keeps credentials")
	assert.True(t, transport.lastHandle().isClosed())

	// Idempotent.
	require.NoError(t, orch.DisconnectSession(context.Background(), "tenant-1"))
}

func TestRestoreAllTalliesOutcomes(t *testing.T) {
	transport := &fakeTransport{}
	dir := newFakeDirectory()
	dir.active = []string{"tenant-ok", "tenant-no-creds", "tenant-broken"}

	creds := newFakeCredStore()
	creds.Save("tenant-ok", []byte("stored"))
	creds.Save("tenant-broken", []byte("stored"))

	orch := NewOrchestrator(transport, creds, dir, nil, nil, testConfig())
	defer orch.Shutdown(context.Background())

	// Break only the third tenant's connect.
	var calls int
	orch.transport = transportFunc(func(ctx context.Context, tenantID string, c []byte) (Handle, error) {
		calls++
		if tenantID == "tenant-broken" {
			return nil, errors.New("dial refused")
		}
		return transport.Connect(ctx, tenantID, c)
	})

	report, err := orch.RestoreAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RestoreReport{Total: 3, Restored: 1, Failed: 1}, report)
	assert.Equal(t, 2, calls, "tenant without credentials is never dialed")
}

type transportFunc func(ctx context.Context, tenantID string, creds []byte) (Handle, error)

func (f transportFunc) Connect(ctx context.Context, tenantID string, creds []byte) (Handle, error) {
	return f(ctx, tenantID, creds)
}

func TestShutdownClosesAllHandles(t *testing.T) {
	transport := &fakeTransport{}
	creds := newFakeCredStore()
	creds.Save("tenant-1", []byte("a"))
	creds.Save("tenant-2", []byte("b"))

	orch := NewOrchestrator(transport, creds, newFakeDirectory(), nil, nil, testConfig())

	_, err := orch.CreateSession(context.Background(), "tenant-1")
	require.NoError(t, err)
	_, err = orch.CreateSession(context.Background(), "tenant-2")
	require.NoError(t, err)

	orch.Shutdown(context.Background())

	for _, h := range transport.handles {
		assert.True(t, h.isClosed())
	}
	assert.Equal(t, StatusNone, orch.Status("tenant-1"))
	assert.Equal(t, StatusNone, orch.Status("tenant-2"))
	assert.True(t, creds.has("tenant-1"), "shutdown must not touch credentials")

	_, err = orch.CreateSession(context.Background(), "tenant-1")
	assert.Error(t, err)
}
