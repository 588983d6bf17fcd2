package migration_0

import (
	"database/sql"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type LineEvent struct {
	EventId    string `gorm:"primaryKey;size:255"`
	EventType  string `gorm:"size:64;not null"`
	UserId     sql.NullString
	ReplyToken sql.NullString
	Payload    datatypes.JSON
	CreatedAt  time.Time
}

type ChatMessage struct {
	Id            uint           `gorm:"primaryKey"`
	SessionId     string         `gorm:"index;size:255;not null"`
	UserId        string         `gorm:"size:255;not null"`
	Role          string         `gorm:"size:16;not null"`
	Content       string         `gorm:"not null"`
	LineMessageId sql.NullString `gorm:"uniqueIndex;size:255"`
	CreatedAt     time.Time
}

type Conversation struct {
	UserId             string `gorm:"primaryKey;size:255"`
	DifyConversationId sql.NullString
	UpdatedAt          time.Time
}

type SessionSummary struct {
	SessionId   string `gorm:"primaryKey;size:255"`
	Summary     string
	ToMessageId uint `gorm:"not null;default:0"`
	UpdatedAt   time.Time
}

func Migration(db *gorm.DB) error {
	err := db.AutoMigrate(
		&LineEvent{}, &ChatMessage{}, &Conversation{}, &SessionSummary{},
	)
	if err != nil {
		return fmt.Errorf("initial migration failed: %w", err)
	}
	return nil
}
