package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GoogleMetadata carries Google Business Profile specifics
type GoogleMetadata struct {
	LocationID   string `json:"location_id,omitempty"`
	LocationName string `json:"location_name,omitempty"`
	PlaceID      string `json:"place_id,omitempty"`
}

// MetaMetadata carries Facebook/Instagram page specifics
type MetaMetadata struct {
	PageID       string `json:"page_id,omitempty"`
	PageName     string `json:"page_name,omitempty"`
	IGBusinessID string `json:"ig_business_id,omitempty"`
}

// TrustpilotMetadata carries Trustpilot business-unit specifics
type TrustpilotMetadata struct {
	BusinessUnitID string `json:"business_unit_id,omitempty"`
	Domain         string `json:"domain,omitempty"`
}

// YelpMetadata carries Yelp business specifics
type YelpMetadata struct {
	BusinessID    string `json:"business_id,omitempty"`
	BusinessAlias string `json:"business_alias,omitempty"`
}

// PlatformMetadata is a tagged union of vendor-specific connection extras.
// Exactly one variant is populated, matching the connection's platform.
type PlatformMetadata struct {
	Google     *GoogleMetadata     `json:"google,omitempty"`
	Meta       *MetaMetadata       `json:"meta,omitempty"`
	Trustpilot *TrustpilotMetadata `json:"trustpilot,omitempty"`
	Yelp       *YelpMetadata       `json:"yelp,omitempty"`
}

// ConnectedPlatform is an active, authenticated link to one vendor account.
// Interactions are only surfaced while their platform's connection is active.
type ConnectedPlatform struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID string `gorm:"not null;index;uniqueIndex:idx_connected_platforms_user_platform" json:"user_id"`
	User   User   `gorm:"foreignKey:UserID" json:"-"`

	Platform          Platform `gorm:"not null;uniqueIndex:idx_connected_platforms_user_platform" json:"platform"`
	PlatformAccountID string   `gorm:"not null" json:"platform_account_id"`

	// Vendor credentials - never serialized to API clients
	AccessToken  string     `gorm:"type:text" json:"-"`
	RefreshToken *string    `gorm:"type:text" json:"-"`
	TokenExpiry  *time.Time `json:"-"`

	IsActive     bool       `gorm:"default:true;index" json:"is_active"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`

	Metadata *PlatformMetadata `gorm:"type:jsonb;serializer:json" json:"metadata,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (p *ConnectedPlatform) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}
