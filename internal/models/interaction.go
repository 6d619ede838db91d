package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Platform identifies the external vendor an interaction came from
type Platform string

const (
	PlatformFacebook   Platform = "facebook"
	PlatformInstagram  Platform = "instagram"
	PlatformGoogle     Platform = "google"
	PlatformYelp       Platform = "yelp"
	PlatformTrustpilot Platform = "trustpilot"
)

// AllPlatforms lists every platform the system knows how to sync
var AllPlatforms = []Platform{
	PlatformFacebook,
	PlatformInstagram,
	PlatformGoogle,
	PlatformYelp,
	PlatformTrustpilot,
}

// Valid reports whether p is a known platform
func (p Platform) Valid() bool {
	switch p {
	case PlatformFacebook, PlatformInstagram, PlatformGoogle, PlatformYelp, PlatformTrustpilot:
		return true
	}
	return false
}

// InteractionType classifies the kind of external event
type InteractionType string

const (
	InteractionComment InteractionType = "comment"
	InteractionDM      InteractionType = "dm"
	InteractionMention InteractionType = "mention"
	InteractionReview  InteractionType = "review"
	InteractionPost    InteractionType = "post"
)

// Sentiment is the scored tone of an interaction
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// InteractionStatus tracks where an interaction sits in the response workflow.
// Transitions are deliberately open-write: any authorized actor may set any
// status (there is no enforced state machine).
type InteractionStatus string

const (
	StatusPending   InteractionStatus = "pending"
	StatusResponded InteractionStatus = "responded"
	StatusEscalated InteractionStatus = "escalated"
	StatusArchived  InteractionStatus = "archived"
)

// DefaultUrgency is the mid-scale urgency assigned at ingestion
const DefaultUrgency = 5

// UrgentThreshold marks the urgency score at which an interaction counts as urgent
const UrgentThreshold = 7

// Interaction is a single external social/review event normalized into the system.
// (user_id, external_id) is unique so re-syncing the same vendor event is a no-op.
type Interaction struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID string `gorm:"not null;index;uniqueIndex:idx_interactions_user_external" json:"user_id"`
	User   User   `gorm:"foreignKey:UserID" json:"-"`

	// Vendor identity
	Platform   Platform `gorm:"not null;index" json:"platform"`
	ExternalID string   `gorm:"not null;uniqueIndex:idx_interactions_user_external" json:"external_id"`

	// Content
	Type    InteractionType `gorm:"not null;default:comment" json:"interaction_type"`
	Content string          `gorm:"type:text;not null" json:"content"`

	// Author (as reported by the vendor; all optional)
	AuthorName   string `json:"author_name,omitempty"`
	AuthorHandle string `json:"author_handle,omitempty"`
	AuthorAvatar string `json:"author_avatar,omitempty"`

	// Scoring - sentiment is null until scored
	Sentiment      *Sentiment `gorm:"type:varchar(10)" json:"sentiment,omitempty"`
	SentimentScore *float64   `json:"sentiment_score,omitempty"` // 0..1
	UrgencyScore   int        `gorm:"default:5" json:"urgency_score"`

	// Workflow
	Status      InteractionStatus `gorm:"not null;default:pending;index" json:"status"`
	AssignedTo  *string           `gorm:"type:uuid" json:"assigned_to,omitempty"`
	Response    *string           `gorm:"type:text" json:"response,omitempty"`
	RespondedAt *time.Time        `json:"responded_at,omitempty"`

	// CreatedAt is the vendor-reported timestamp, not the ingestion time
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (i *Interaction) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	if i.UrgencyScore == 0 {
		i.UrgencyScore = DefaultUrgency
	}
	return nil
}

// IsUrgent reports whether the interaction crosses the urgent threshold
func (i *Interaction) IsUrgent() bool {
	return i.UrgencyScore >= UrgentThreshold
}
