package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/voicereply/voice-service/pkg/logger"
	"github.com/voicereply/voice-service/pkg/redis"
	"go.uber.org/zap"
)

const (
	// LogoutChannel carries logout broadcasts so every instance drops the
	// tenant, not just the one that handled the request.
	LogoutChannel = "voicereply:session:logout"

	monitorTTL = 1 * time.Hour
)

// SessionInfo is the registry record for one connected tenant.
type SessionInfo struct {
	TenantID    string    `json:"tenantId"`
	AccountID   string    `json:"accountId"`
	InstanceID  string    `json:"instanceId"`
	ConnectedAt time.Time `json:"connectedAt"`
}

type logoutMessage struct {
	TenantID   string `json:"tenantId"`
	InstanceID string `json:"instanceId"`
}

// Monitor keeps a Redis registry of connected sessions and relays logout
// broadcasts across instances.
type Monitor struct {
	redisSvc   redis.RedisServiceInterface
	instanceID string
}

func NewMonitor(redisSvc redis.RedisServiceInterface, instanceID string) *Monitor {
	return &Monitor{redisSvc: redisSvc, instanceID: instanceID}
}

// Register records a connected session. The TTL bounds staleness if an
// instance dies without unregistering.
func (m *Monitor) Register(ctx context.Context, tenantID, accountID string) {
	info := SessionInfo{
		TenantID:    tenantID,
		AccountID:   accountID,
		InstanceID:  m.instanceID,
		ConnectedAt: time.Now(),
	}

	data, _ := json.Marshal(info)
	key := m.redisSvc.GenerateKey(redis.SESSION_INFO, tenantID)
	if err := m.redisSvc.SetValue(ctx, key, string(data), monitorTTL); err != nil {
		logger.Base().Warn("Failed to register session in Redis",
			zap.String("tenant_id", tenantID), zap.Error(err))
		return
	}
	logger.Base().Info("Session registered in Redis",
		zap.String("tenant_id", tenantID), zap.String("instance_id", m.instanceID))
}

func (m *Monitor) Unregister(ctx context.Context, tenantID string) {
	key := m.redisSvc.GenerateKey(redis.SESSION_INFO, tenantID)
	if err := m.redisSvc.DelValue(ctx, key); err != nil {
		logger.Base().Warn("Failed to unregister session from Redis",
			zap.String("tenant_id", tenantID), zap.Error(err))
	}
}

// NotifyLogout broadcasts a logout so other instances tear down their copy
// of the tenant's session.
func (m *Monitor) NotifyLogout(ctx context.Context, tenantID string) {
	msg := logoutMessage{TenantID: tenantID, InstanceID: m.instanceID}
	if err := m.redisSvc.Publish(ctx, LogoutChannel, msg); err != nil {
		logger.Base().Warn("Failed to broadcast logout",
			zap.String("tenant_id", tenantID), zap.Error(err))
	}
}

// SubscribeToLogouts invokes handler for logout broadcasts from other
// instances. Broadcasts from this instance are ignored.
func (m *Monitor) SubscribeToLogouts(ctx context.Context, handler func(tenantID string)) error {
	return m.redisSvc.Subscribe(ctx, LogoutChannel, func(payload string) {
		var msg logoutMessage
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			logger.Base().Error("Failed to unmarshal logout broadcast", zap.Error(err))
			return
		}
		if msg.InstanceID == m.instanceID {
			return
		}
		handler(msg.TenantID)
	})
}
