package websocket

import (
	"encoding/json"
	"time"

	"github.com/replyhub/backend/internal/changefeed"
	"github.com/replyhub/backend/internal/inbox"
	"github.com/replyhub/backend/internal/models"
)

// FlexibleTime accepts both Unix milliseconds and RFC3339 strings on the
// wire and always marshals back out as RFC3339
type FlexibleTime struct {
	time.Time
}

// UnmarshalJSON implements custom unmarshaling
func (ft *FlexibleTime) UnmarshalJSON(data []byte) error {
	// Try Unix milliseconds first
	var ms int64
	if err := json.Unmarshal(data, &ms); err == nil {
		ft.Time = time.UnixMilli(ms).UTC()
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}
	ft.Time = t
	return nil
}

// MarshalJSON implements custom marshaling (always output as RFC3339)
func (ft FlexibleTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(ft.Time)
}

// Message types for WebSocket communication
const (
	// System messages
	MessageTypeSystem = "system"
	MessageTypePing   = "ping"
	MessageTypePong   = "pong"
	MessageTypeError  = "error"
	MessageTypeAuth   = "auth"

	// Server pushes
	MessageTypeSnapshot         = "snapshot"
	MessageTypeInteractionBatch = "interaction_batch"
	MessageTypeCountsUpdate     = "counts_update"
	MessageTypePlatformStatus   = "platform_status"
	MessageTypeSyncResult       = "sync_result"

	// Client requests
	MessageTypeLoad       = "load"
	MessageTypeLoadMore   = "load_more"
	MessageTypeUpdate     = "update_interaction"
	MessageTypeBulkUpdate = "bulk_update_interactions"
	MessageTypeDelete     = "delete_interaction"
	MessageTypeBulkDelete = "bulk_delete_interactions"
	MessageTypeFlush      = "flush"
)

// Message represents a WebSocket message
type Message struct {
	// Type identifies the message type for routing
	Type string `json:"type"`

	// Payload contains the message-specific data
	Payload interface{} `json:"payload,omitempty"`

	// ID is a unique message identifier for acknowledgment
	ID string `json:"id,omitempty"`

	// ReplyTo references the original message ID for responses
	ReplyTo string `json:"reply_to,omitempty"`

	Timestamp FlexibleTime `json:"timestamp"`
}

// ParsePayload decodes the payload into target. Payloads arrive as
// map[string]interface{} from JSON, so re-marshal to type them properly.
func (m *Message) ParsePayload(target interface{}) error {
	if m.Payload == nil {
		return nil
	}
	data, err := json.Marshal(m.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType string, payload interface{}) *Message {
	return &Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
}

// NewReply creates a reply message to an original message
func NewReply(original *Message, msgType string, payload interface{}) *Message {
	return &Message{
		Type:      msgType,
		ReplyTo:   original.ID,
		Payload:   payload,
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
}

// NewErrorMessage creates an error message
func NewErrorMessage(code string, message string) *Message {
	return &Message{
		Type: MessageTypeError,
		Payload: ErrorPayload{
			Code:    code,
			Message: message,
		},
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
}

// ErrorPayload represents an error message payload
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SystemPayload carries server lifecycle events
type SystemPayload struct {
	Event   string                 `json:"event"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// PingPayload represents a ping message payload
type PingPayload struct {
	ClientTime int64 `json:"client_time"`
}

// PongPayload represents a pong message payload
type PongPayload struct {
	ClientTime int64 `json:"client_time"`
	ServerTime int64 `json:"server_time"`
	Latency    int64 `json:"latency_ms"`
}

// AuthPayload represents authentication message payload
type AuthPayload struct {
	Token  string `json:"token,omitempty"`
	UserID string `json:"user_id,omitempty"`
	Status string `json:"status,omitempty"` // "success", "failed", "expired"
	Error  string `json:"error,omitempty"`
}

// LoadPayload asks the session to reload its inbox under a new filter
type LoadPayload struct {
	Filter inbox.Filter `json:"filter"`
}

// UpdatePayload patches one interaction
type UpdatePayload struct {
	ID    string            `json:"id"`
	Patch inbox.UpdatePatch `json:"patch"`
}

// BulkUpdatePayload patches a set of interactions in one pass
type BulkUpdatePayload struct {
	IDs   []string          `json:"ids"`
	Patch inbox.UpdatePatch `json:"patch"`
}

// DeletePayload removes one interaction
type DeletePayload struct {
	ID string `json:"id"`
}

// BulkDeletePayload removes a set of interactions
type BulkDeletePayload struct {
	IDs []string `json:"ids"`
}

// BatchPayload is a coalesced group of row changes already applied to the
// session's working set, with the refreshed counters
type BatchPayload struct {
	Changes []changefeed.Change `json:"changes"`
	Counts  inbox.Counts        `json:"counts"`
}

// PlatformStatusPayload reports the connected-platform set after a change
type PlatformStatusPayload struct {
	Platforms []models.Platform `json:"platforms"`
}

// SyncResultPayload reports the outcome of a vendor sync pass
type SyncResultPayload struct {
	Platform string `json:"platform"`
	New      int    `json:"new"`
	Skipped  int    `json:"skipped"`
	Errors   int    `json:"errors"`
}
