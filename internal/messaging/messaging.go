package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	ChatEventQueue  = "chat_events"
	RetryDelay      = 5 * time.Second
	MaxConnectRetry = 5
)

const (
	EventAssistantReply    = "assistant_reply"
	EventSessionSummarized = "session_summarized"
)

// ChatEventPayload is the post-commit notification emitted for downstream
// consumers. Publishing is best-effort: a failed publish is logged by the
// caller and never affects pipeline state.
type ChatEventPayload struct {
	EventId   uuid.UUID `json:"event_id"`
	Kind      string    `json:"kind"`
	UserId    string    `json:"user_id"`
	SessionId string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

type Publisher interface {
	PublishChatEvent(ctx context.Context, payload ChatEventPayload) error

	Close()
}
