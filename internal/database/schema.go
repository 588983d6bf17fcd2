package database

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
)

const (
	RoleUser      string = "user"
	RoleAssistant string = "assistant"
)

// LineEvent is the raw inbound webhook event ledger. EventId is the
// idempotency key: redeliveries of the same event are dropped by the
// primary key conflict.
type LineEvent struct {
	EventId    string `gorm:"primaryKey;size:255"`
	EventType  string `gorm:"size:64;not null"`
	UserId     sql.NullString
	ReplyToken sql.NullString
	Payload    datatypes.JSON
	CreatedAt  time.Time
}

// ChatMessage rows are ordered by the auto-increment Id; the summarizer
// boundary in SessionSummary refers to this column. LineMessageId is set
// only on user-authored rows and carries a unique index so a redelivered
// user message inserts at most once.
type ChatMessage struct {
	Id            uint           `gorm:"primaryKey"`
	SessionId     string         `gorm:"index;size:255;not null"`
	UserId        string         `gorm:"size:255;not null"`
	Role          string         `gorm:"size:16;not null"`
	Content       string         `gorm:"not null"`
	LineMessageId sql.NullString `gorm:"uniqueIndex;size:255"`
	CreatedAt     time.Time
}

// Conversation holds the Dify continuation token for a user. A null
// DifyConversationId forces a fresh Dify context on the next call.
type Conversation struct {
	UserId             string `gorm:"primaryKey;size:255"`
	DifyConversationId sql.NullString
	UpdatedAt          time.Time
}

// SessionSummary is the rolling summary for a session. ToMessageId is the
// highest ChatMessage.Id already folded into Summary; it only ever advances,
// and only in the same transaction that writes the new summary text.
type SessionSummary struct {
	SessionId   string `gorm:"primaryKey;size:255"`
	Summary     string
	ToMessageId uint `gorm:"not null;default:0"`
	UpdatedAt   time.Time
}
