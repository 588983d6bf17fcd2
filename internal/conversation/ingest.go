package conversation

import (
	"context"
	"encoding/json"
	"fmt"

	"linebot-backend/internal/database"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ingestEvent durably records one event inside a single transaction: the
// raw event (insert-or-ignore on its idempotency key) and, for text
// messages, the user's ChatMessage (insert-or-ignore on the LINE message
// id). It reports whether response processing should run, which is true
// only when the user message row was actually inserted — a conflict-ignored
// redelivery produces no reply.
func (p *Pipeline) ingestEvent(ctx context.Context, conn *gorm.DB, ev Event) (bool, error) {
	respond := false

	err := conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payload, err := json.Marshal(ev.Raw)
		if err != nil {
			return fmt.Errorf("error marshaling event payload: %w", err)
		}

		record := database.LineEvent{
			EventId:    ev.EventId,
			EventType:  eventType(ev),
			UserId:     nullString(ev.UserId),
			ReplyToken: nullString(ev.ReplyToken),
			Payload:    datatypes.JSON(payload),
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error; err != nil {
			return fmt.Errorf("error recording raw event: %w", err)
		}

		if ev.Kind == KindMessage && ev.UserId != "" && ev.Text != "" {
			msg := database.ChatMessage{
				SessionId:     ev.UserId, // one session per user
				UserId:        ev.UserId,
				Role:          database.RoleUser,
				Content:       ev.Text,
				LineMessageId: nullString(ev.MessageId),
			}
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "line_message_id"}},
				DoNothing: true,
			}).Create(&msg)
			if res.Error != nil {
				return fmt.Errorf("error recording user message: %w", res.Error)
			}
			respond = res.RowsAffected > 0
		}

		return nil
	})
	if err != nil {
		return false, err
	}

	return respond, nil
}

func eventType(ev Event) string {
	if ev.Type == "" {
		return "unknown"
	}
	return ev.Type
}
