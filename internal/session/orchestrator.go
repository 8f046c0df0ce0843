package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/voicereply/voice-service/internal/domain"
	"github.com/voicereply/voice-service/pkg/logger"
	"go.uber.org/zap"
)

// Status is the in-memory lifecycle state of a tenant's session.
type Status string

const (
	StatusNone         Status = "none"
	StatusInitializing Status = "initializing"
	StatusPairingReady Status = "pairing_ready"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusLoggedOut    Status = "logged_out"
)

// Config tunes the orchestrator's timers.
type Config struct {
	PairingTTL       time.Duration
	PairingWait      time.Duration
	ReconnectDelay   time.Duration
	ReconnectCeiling int
	TeardownTimeout  time.Duration
	ShutdownWait     time.Duration
}

func DefaultConfig() Config {
	return Config{
		PairingTTL:       60 * time.Second,
		PairingWait:      30 * time.Second,
		ReconnectDelay:   5 * time.Second,
		ReconnectCeiling: 5,
		TeardownTimeout:  5 * time.Second,
		ShutdownWait:     15 * time.Second,
	}
}

type tenantSession struct {
	tenantID     string
	handle       Handle
	status       Status
	pairing      *PairingPayload
	pairingTimer *time.Timer
	accountID    string

	// manualClose suppresses reconnect handling when the close was
	// initiated locally (disconnect, logout, replacement, shutdown).
	manualClose bool
}

// Orchestrator owns one state machine per tenant over an abstract transport.
type Orchestrator struct {
	transport Transport
	creds     CredentialStore
	directory Directory
	pipeline  *Pipeline
	monitor   *Monitor
	bus       *Bus
	cfg       Config

	mu              sync.Mutex
	sessions        map[string]*tenantSession
	reconnectTimers map[string]*time.Timer
	ops             map[string]*sync.Mutex
	closed          bool
}

// NewOrchestrator wires the orchestrator. pipeline and monitor may be nil.
func NewOrchestrator(transport Transport, creds CredentialStore, directory Directory, pipeline *Pipeline, monitor *Monitor, cfg Config) *Orchestrator {
	return &Orchestrator{
		transport:       transport,
		creds:           creds,
		directory:       directory,
		pipeline:        pipeline,
		monitor:         monitor,
		bus:             NewBus(),
		cfg:             cfg,
		sessions:        make(map[string]*tenantSession),
		reconnectTimers: make(map[string]*time.Timer),
		ops:             make(map[string]*sync.Mutex),
	}
}

// Subscribe registers a lifecycle event listener.
func (o *Orchestrator) Subscribe(handler func(LifecycleEvent)) *Subscription {
	return o.bus.Subscribe(handler)
}

// opLock serializes structural operations (create/disconnect/logout) per
// tenant while leaving other tenants untouched.
func (o *Orchestrator) opLock(tenantID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	m, ok := o.ops[tenantID]
	if !ok {
		m = &sync.Mutex{}
		o.ops[tenantID] = m
	}
	return m
}

// CreateSession starts (or restarts) the tenant's session. When no stored
// credentials exist it returns the pairing payload the user must scan;
// when credentials exist it restores the link and returns nil.
func (o *Orchestrator) CreateSession(ctx context.Context, tenantID string) (*PairingPayload, error) {
	lock := o.opLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	creds, err := o.creds.Load(tenantID)
	if err != nil {
		return nil, &TransportError{TenantID: tenantID, Err: err}
	}
	return o.startSession(ctx, tenantID, creds)
}

// startSession replaces any prior live session for the tenant. Caller holds
// the tenant op lock.
func (o *Orchestrator) startSession(ctx context.Context, tenantID string, creds []byte) (*PairingPayload, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, &TransportError{TenantID: tenantID, Err: errors.New("orchestrator is shut down")}
	}
	prior := o.sessions[tenantID]
	o.cancelReconnectLocked(tenantID)
	ts := &tenantSession{tenantID: tenantID, status: StatusInitializing}
	o.sessions[tenantID] = ts
	o.mu.Unlock()

	if prior != nil {
		o.teardown(prior)
	}

	handle, err := o.transport.Connect(ctx, tenantID, creds)
	if err != nil {
		o.mu.Lock()
		if o.sessions[tenantID] == ts {
			ts.status = StatusDisconnected
		}
		o.mu.Unlock()
		o.setDirectoryStatus(tenantID, domain.TenantStatusDisconnected)
		return nil, &TransportError{TenantID: tenantID, Err: err}
	}

	o.mu.Lock()
	ts.handle = handle
	replaced := o.sessions[tenantID] != ts
	o.mu.Unlock()
	if replaced {
		o.closeHandle(handle)
		return nil, &TransportError{TenantID: tenantID, Err: errors.New("session replaced during connect")}
	}

	ready := make(chan *PairingPayload, 1)
	go o.runEventLoop(ts, ready)

	if len(creds) > 0 {
		// Restore mode: the link resumes from stored credentials, no
		// pairing step happens.
		return nil, nil
	}

	select {
	case payload := <-ready:
		return payload, nil
	case <-ctx.Done():
		return nil, &TransportError{TenantID: tenantID, Err: ctx.Err()}
	case <-time.After(o.cfg.PairingWait):
		return nil, &TransportError{TenantID: tenantID, Err: errors.New("timed out waiting for pairing payload")}
	}
}

func (o *Orchestrator) runEventLoop(ts *tenantSession, ready chan<- *PairingPayload) {
	for ev := range ts.handle.Events() {
		switch e := ev.(type) {
		case PairingPayload:
			o.onPairing(ts, e, ready)
		case ConnectionOpened:
			o.onOpened(ts, e, ready)
		case ConnectionClosed:
			o.onClosed(ts, e)
		case ChatMessage:
			if e.FromSelf {
				go o.handleMessage(ts, e)
			}
		}
	}
}

func (o *Orchestrator) onPairing(ts *tenantSession, payload PairingPayload, ready chan<- *PairingPayload) {
	if payload.IssuedAt.IsZero() {
		payload.IssuedAt = time.Now()
	}

	o.mu.Lock()
	if o.sessions[ts.tenantID] != ts {
		o.mu.Unlock()
		return
	}
	ts.status = StatusPairingReady
	ts.pairing = &payload
	if ts.pairingTimer != nil {
		ts.pairingTimer.Stop()
	}
	ts.pairingTimer = time.AfterFunc(o.cfg.PairingTTL, func() { o.expirePairing(ts) })
	o.mu.Unlock()

	o.setDirectoryStatus(ts.tenantID, domain.TenantStatusPairingReady)
	o.bus.Publish(LifecycleEvent{Type: EventPaired, TenantID: ts.tenantID})

	select {
	case ready <- &payload:
	default:
	}
}

func (o *Orchestrator) onOpened(ts *tenantSession, opened ConnectionOpened, ready chan<- *PairingPayload) {
	o.mu.Lock()
	if o.sessions[ts.tenantID] != ts {
		o.mu.Unlock()
		return
	}
	ts.status = StatusConnected
	ts.accountID = opened.AccountID
	ts.pairing = nil
	if ts.pairingTimer != nil {
		ts.pairingTimer.Stop()
		ts.pairingTimer = nil
	}
	o.cancelReconnectLocked(ts.tenantID)
	o.mu.Unlock()

	// Directory resets the reconnect counter as part of the connected
	// transition.
	o.setDirectoryStatus(ts.tenantID, domain.TenantStatusConnected)
	if err := o.directory.RecordLinkedAccount(context.Background(), ts.tenantID, opened.PhoneNumber, opened.AccountID); err != nil {
		logger.Base().Error("Failed to record linked account",
			zap.String("tenant_id", ts.tenantID), zap.Error(err))
	}
	if o.monitor != nil {
		o.monitor.Register(context.Background(), ts.tenantID, opened.AccountID)
	}

	logger.Base().Info("Session connected",
		zap.String("tenant_id", ts.tenantID),
		zap.String("account_id", opened.AccountID))
	o.bus.Publish(LifecycleEvent{Type: EventConnected, TenantID: ts.tenantID, AccountID: opened.AccountID})

	select {
	case ready <- nil:
	default:
	}
}

func (o *Orchestrator) onClosed(ts *tenantSession, closed ConnectionClosed) {
	o.mu.Lock()
	if o.sessions[ts.tenantID] != ts || ts.manualClose {
		o.mu.Unlock()
		return
	}
	if ts.pairingTimer != nil {
		ts.pairingTimer.Stop()
		ts.pairingTimer = nil
	}
	ts.pairing = nil

	if closed.Invalidated {
		ts.status = StatusLoggedOut
		o.mu.Unlock()

		logger.Base().Warn("Session invalidated by remote, purging credentials",
			zap.String("tenant_id", ts.tenantID), zap.String("reason", closed.Reason))
		if err := o.creds.Delete(ts.tenantID); err != nil {
			logger.Base().Error("Failed to delete credentials",
				zap.String("tenant_id", ts.tenantID), zap.Error(err))
		}
		o.setDirectoryStatus(ts.tenantID, domain.TenantStatusPending)
		if o.monitor != nil {
			o.monitor.Unregister(context.Background(), ts.tenantID)
			o.monitor.NotifyLogout(context.Background(), ts.tenantID)
		}
		o.bus.Publish(LifecycleEvent{Type: EventLoggedOut, TenantID: ts.tenantID, Reason: closed.Reason})
		return
	}

	ts.status = StatusDisconnected
	o.mu.Unlock()

	logger.Base().Info("Session disconnected",
		zap.String("tenant_id", ts.tenantID), zap.String("reason", closed.Reason))
	o.setDirectoryStatus(ts.tenantID, domain.TenantStatusDisconnected)
	if o.monitor != nil {
		o.monitor.Unregister(context.Background(), ts.tenantID)
	}
	o.bus.Publish(LifecycleEvent{Type: EventDisconnected, TenantID: ts.tenantID, Reason: closed.Reason})

	o.scheduleReconnect(ts.tenantID)
}

func (o *Orchestrator) scheduleReconnect(tenantID string) {
	count, err := o.directory.IncrementReconnectAttempts(context.Background(), tenantID)
	if err != nil {
		logger.Base().Error("Failed to increment reconnect attempts",
			zap.String("tenant_id", tenantID), zap.Error(err))
		return
	}
	if count > o.cfg.ReconnectCeiling {
		logger.Base().Warn("Reconnect attempts exhausted",
			zap.String("tenant_id", tenantID), zap.Int("attempts", count-1))
		o.bus.Publish(LifecycleEvent{Type: EventDisconnected, TenantID: tenantID, Reason: "reconnect attempts exhausted"})
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.cancelReconnectLocked(tenantID)
	o.reconnectTimers[tenantID] = time.AfterFunc(o.cfg.ReconnectDelay, func() {
		o.mu.Lock()
		delete(o.reconnectTimers, tenantID)
		o.mu.Unlock()
		o.reconnect(tenantID)
	})
	logger.Base().Info("Scheduled reconnect",
		zap.String("tenant_id", tenantID), zap.Int("attempt", count))
}

func (o *Orchestrator) reconnect(tenantID string) {
	lock := o.opLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	creds, err := o.creds.Load(tenantID)
	if err != nil || len(creds) == 0 {
		// Logged out while the timer was pending.
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.PairingWait)
	defer cancel()
	if _, err := o.startSession(ctx, tenantID, creds); err != nil {
		logger.Base().Error("Reconnect attempt failed",
			zap.String("tenant_id", tenantID), zap.Error(err))
	}
}

func (o *Orchestrator) expirePairing(ts *tenantSession) {
	o.mu.Lock()
	if o.sessions[ts.tenantID] != ts || ts.status != StatusPairingReady {
		o.mu.Unlock()
		return
	}
	ts.status = StatusDisconnected
	ts.pairing = nil
	ts.manualClose = true
	handle := ts.handle
	o.mu.Unlock()

	logger.Base().Info("Pairing payload expired without connection",
		zap.String("tenant_id", ts.tenantID))
	if handle != nil {
		o.closeHandle(handle)
	}
	o.setDirectoryStatus(ts.tenantID, domain.TenantStatusDisconnected)
	o.bus.Publish(LifecycleEvent{Type: EventDisconnected, TenantID: ts.tenantID, Reason: "pairing expired"})
}

func (o *Orchestrator) handleMessage(ts *tenantSession, msg ChatMessage) {
	defer func() {
		if r := recover(); r != nil {
			logger.Base().Error("Recovered panic in message handler",
				zap.String("tenant_id", ts.tenantID), zap.Any("panic", r))
		}
	}()

	if o.pipeline == nil {
		return
	}

	o.mu.Lock()
	handle := ts.handle
	o.mu.Unlock()
	if handle == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := o.pipeline.Handle(ctx, ts.tenantID, handle, msg); err != nil {
		logger.Base().Error("Message pipeline failed",
			zap.String("tenant_id", ts.tenantID), zap.Error(err))
	}
}

// Status returns the tenant's lifecycle status, or StatusNone if untracked.
func (o *Orchestrator) Status(tenantID string) Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	ts, ok := o.sessions[tenantID]
	if !ok {
		return StatusNone
	}
	return ts.status
}

// PairingToken returns the current unexpired pairing payload, or nil.
func (o *Orchestrator) PairingToken(tenantID string) *PairingPayload {
	o.mu.Lock()
	defer o.mu.Unlock()
	ts, ok := o.sessions[tenantID]
	if !ok || ts.pairing == nil {
		return nil
	}
	if time.Since(ts.pairing.IssuedAt) > o.cfg.PairingTTL {
		return nil
	}
	payload := *ts.pairing
	return &payload
}

func (o *Orchestrator) IsConnected(tenantID string) bool {
	return o.Status(tenantID) == StatusConnected
}

// ConnectedCount returns how many tenants currently hold a live link.
func (o *Orchestrator) ConnectedCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	count := 0
	for _, ts := range o.sessions {
		if ts.status == StatusConnected {
			count++
		}
	}
	return count
}

// PairingTTL exposes how long issued pairing tokens stay valid.
func (o *Orchestrator) PairingTTL() time.Duration {
	return o.cfg.PairingTTL
}

// DisconnectSession tears down the transport handle but keeps credentials
// so a later CreateSession can restore the link. Idempotent.
func (o *Orchestrator) DisconnectSession(ctx context.Context, tenantID string) error {
	lock := o.opLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	o.mu.Lock()
	o.cancelReconnectLocked(tenantID)
	ts, ok := o.sessions[tenantID]
	if !ok {
		o.mu.Unlock()
		return nil
	}
	ts.manualClose = true
	if ts.pairingTimer != nil {
		ts.pairingTimer.Stop()
		ts.pairingTimer = nil
	}
	ts.pairing = nil
	handle := ts.handle
	ts.handle = nil
	ts.status = StatusDisconnected
	o.mu.Unlock()

	if handle != nil {
		o.closeHandle(handle)
	}
	o.setDirectoryStatus(tenantID, domain.TenantStatusDisconnected)
	if o.monitor != nil {
		o.monitor.Unregister(ctx, tenantID)
	}
	o.bus.Publish(LifecycleEvent{Type: EventDisconnected, TenantID: tenantID, Reason: "manual disconnect"})
	return nil
}

// LogoutSession tears down the session, deletes persisted credentials, and
// removes the in-memory record. A fresh pairing is required afterward.
// Idempotent.
func (o *Orchestrator) LogoutSession(ctx context.Context, tenantID string) error {
	lock := o.opLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	o.mu.Lock()
	o.cancelReconnectLocked(tenantID)
	ts, ok := o.sessions[tenantID]
	var handle Handle
	if ok {
		ts.manualClose = true
		if ts.pairingTimer != nil {
			ts.pairingTimer.Stop()
			ts.pairingTimer = nil
		}
		handle = ts.handle
		delete(o.sessions, tenantID)
	}
	o.mu.Unlock()

	if handle != nil {
		cctx, cancel := context.WithTimeout(context.Background(), o.cfg.TeardownTimeout)
		if err := handle.Logout(cctx); err != nil {
			logger.Base().Warn("Transport logout failed",
				zap.String("tenant_id", tenantID), zap.Error(err))
		}
		handle.Close(cctx)
		cancel()
	}

	if err := o.creds.Delete(tenantID); err != nil {
		return err
	}
	o.setDirectoryStatus(tenantID, domain.TenantStatusPending)
	if o.monitor != nil {
		o.monitor.Unregister(ctx, tenantID)
		o.monitor.NotifyLogout(ctx, tenantID)
	}
	o.bus.Publish(LifecycleEvent{Type: EventLoggedOut, TenantID: tenantID, Reason: "manual logout"})

	logger.Base().Info("Session logged out", zap.String("tenant_id", tenantID))
	return nil
}

// Shutdown tears down every live handle and clears in-memory state.
// Persisted credentials are left untouched. Bounded: a hung transport is
// abandoned after ShutdownWait.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	for id, timer := range o.reconnectTimers {
		timer.Stop()
		delete(o.reconnectTimers, id)
	}
	handles := make([]Handle, 0, len(o.sessions))
	for id, ts := range o.sessions {
		ts.manualClose = true
		if ts.pairingTimer != nil {
			ts.pairingTimer.Stop()
		}
		if ts.handle != nil {
			handles = append(handles, ts.handle)
		}
		delete(o.sessions, id)
	}
	o.mu.Unlock()

	var wg sync.WaitGroup
	for _, handle := range handles {
		wg.Add(1)
		go func(h Handle) {
			defer wg.Done()
			o.closeHandle(h)
		}(handle)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		logger.Base().Warn("Shutdown abandoned pending transport teardowns", zap.Error(ctx.Err()))
	case <-time.After(o.cfg.ShutdownWait):
		logger.Base().Warn("Shutdown abandoned pending transport teardowns after wait limit")
	}

	o.bus.Close()
	logger.Base().Info("Orchestrator shut down", zap.Int("sessions_closed", len(handles)))
}

// teardown closes a replaced session's handle without touching directory
// state; the successor session owns all further transitions.
func (o *Orchestrator) teardown(ts *tenantSession) {
	o.mu.Lock()
	ts.manualClose = true
	if ts.pairingTimer != nil {
		ts.pairingTimer.Stop()
		ts.pairingTimer = nil
	}
	handle := ts.handle
	ts.handle = nil
	o.mu.Unlock()

	if handle != nil {
		o.closeHandle(handle)
	}
}

func (o *Orchestrator) closeHandle(handle Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.TeardownTimeout)
	defer cancel()
	if err := handle.Close(ctx); err != nil {
		logger.Base().Warn("Transport close failed", zap.Error(err))
	}
}

// cancelReconnectLocked requires o.mu held.
func (o *Orchestrator) cancelReconnectLocked(tenantID string) {
	if timer, ok := o.reconnectTimers[tenantID]; ok {
		timer.Stop()
		delete(o.reconnectTimers, tenantID)
	}
}

func (o *Orchestrator) setDirectoryStatus(tenantID string, status domain.TenantStatus) {
	if err := o.directory.SetStatus(context.Background(), tenantID, status); err != nil {
		logger.Base().Error("Failed to update tenant status",
			zap.String("tenant_id", tenantID),
			zap.String("status", string(status)), zap.Error(err))
	}
}
