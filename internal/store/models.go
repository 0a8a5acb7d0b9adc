package store

import "time"

// Role values for Message.Role.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Progress event types. Events with any other type are rejected on insert.
const (
	EventMealLog     = "meal_log"
	EventBodyScan    = "body_scan"
	EventWorkoutPlan = "workout_plan"
	EventInsight     = "insight"
)

type User struct {
	ID         int64     `json:"id"`
	ExternalID string    `json:"external_id"`
	Email      *string   `json:"email,omitempty"` // Nullable, unique when present
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

type Conversation struct {
	ID           string     `json:"id"` // UUID, or a caller-pinned id
	UserID       int64      `json:"user_id"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	CoachingMode string     `json:"coaching_mode,omitempty"`
	Workflow     string     `json:"workflow,omitempty"`
	Source       string     `json:"source,omitempty"`
}

type Message struct {
	ID             string    `json:"id"` // UUID
	ConversationID string    `json:"conversation_id"`
	UserID         *int64    `json:"user_id,omitempty"` // Null for assistant turns
	Role           string    `json:"role"`              // "user" or "assistant"
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	Pinned         bool      `json:"pinned,omitempty"` // Decorated on user-scoped reads only
}

type Upload struct {
	ID             string    `json:"id"` // UUID
	UserID         int64     `json:"user_id"`
	ConversationID *string   `json:"conversation_id,omitempty"`
	ContentRef     string    `json:"content_ref"` // URL or inline reference, bytes live elsewhere
	MimeType       string    `json:"mime_type,omitempty"`
	Workflow       string    `json:"workflow,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ProgressEvent is one structured fact derived from an assistant turn.
// Payload is the raw JSON interior of the marker block; its field-level
// shape is decoded by the aggregator once the type discriminator is known.
type ProgressEvent struct {
	ID             string    `json:"id"` // UUID
	UserID         int64     `json:"user_id"`
	ConversationID *string   `json:"conversation_id,omitempty"`
	MessageID      *string   `json:"message_id,omitempty"`
	Type           string    `json:"type"`
	Payload        string    `json:"payload"` // JSON text
	CreatedAt      time.Time `json:"created_at"`
}
