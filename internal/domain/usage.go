package domain

import (
	"time"
)

// UsageRecord is the daily character-budget ledger entry for a tenant.
// It is a projection of the tenant row, kept separate so the quota ledger
// does not depend on the full tenant model.
type UsageRecord struct {
	TenantID  string
	Used      int
	Limit     int
	ResetDate time.Time
}

// UsageLog is one audit entry recorded for every accepted charge.
type UsageLog struct {
	ID          string    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID    string    `json:"tenant_id" gorm:"type:uuid;index;not null"`
	MessageText string    `json:"message_text" gorm:"type:text"`
	Characters  int       `json:"characters_used" gorm:"not null"`
	StyleKey    string    `json:"style_key" gorm:"type:varchar(64);not null"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName sets the table name for UsageLog
func (UsageLog) TableName() string {
	return "usage_logs"
}
