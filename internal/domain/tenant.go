package domain

import (
	"time"
)

// TenantStatus is the externally visible linking status stored in the directory.
type TenantStatus string

const (
	TenantStatusPending      TenantStatus = "pending"
	TenantStatusPairingReady TenantStatus = "pairing_ready"
	TenantStatusConnected    TenantStatus = "connected"
	TenantStatusDisconnected TenantStatus = "disconnected"
)

// Tenant represents an end user owning one linked messaging account.
type Tenant struct {
	ID                string       `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Email             string       `json:"email" gorm:"type:varchar(255);uniqueIndex:uni_tenants_email;not null"`
	PhoneNumber       *string      `json:"phone_number" gorm:"type:varchar(64)"`
	LinkedAccountID   *string      `json:"linked_account_id" gorm:"type:varchar(255)"`
	Status            TenantStatus `json:"status" gorm:"type:varchar(32);default:'pending';not null"`
	LastPairingAt     *time.Time   `json:"last_pairing_at"`
	LastConnectedAt   *time.Time   `json:"last_connected_at"`
	ReconnectAttempts int          `json:"reconnect_attempts" gorm:"default:0;not null"`
	DailyCharsUsed    int          `json:"daily_chars_used" gorm:"default:0;not null"`
	DailyCharsLimit   int          `json:"daily_chars_limit" gorm:"default:10000;not null"`
	DailyResetDate    time.Time    `json:"daily_reset_date" gorm:"type:date;not null"`
	Disabled          bool         `json:"disabled" gorm:"default:false"`
	CreatedAt         time.Time    `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt         time.Time    `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName sets the table name for Tenant
func (Tenant) TableName() string {
	return "tenants"
}
