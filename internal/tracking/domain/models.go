package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Click is one inbound visit attributed to an affiliate. The raw caller IP
// is never persisted; only a truncated one-way digest is stored.
type Click struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	AffiliateID snowflake.ID `gorm:"not null;index:idx_clicks_affiliate_session" json:"affiliate_id"`
	SessionID   string       `gorm:"size:50;not null;index:idx_clicks_affiliate_session" json:"session_id"`
	IPHash      string       `gorm:"size:16" json:"-"`
	UserAgent   string       `gorm:"size:512" json:"user_agent"`
	Referrer    string       `gorm:"size:512" json:"referrer"`
	LandingPage string       `gorm:"size:512" json:"landing_page"`

	Metadata datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`

	// Set exactly once, when the session produces an order.
	ConvertedAt *time.Time `json:"converted_at,omitempty"`
	OrderID     string     `gorm:"size:64" json:"order_id,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (Click) TableName() string {
	return "affiliate_clicks"
}
