package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"linebot-backend/internal/database"
	"linebot-backend/internal/line"
	"linebot-backend/internal/messaging"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const errorReplyPrefix = "エラーが発生しました: "

var quickActions = &line.QuickReply{
	Items: []line.QuickReplyItem{
		line.NewPostbackItem("これまでの会話を保存して終了する", ActionEndSession, "保存して終了する"),
		line.NewPostbackItem("質問を続ける", ActionResumeSession, "質問を続ける"),
	},
}

// respond runs only for events whose user message insert actually happened
// during ingestion. Any failure is logged and answered with a best-effort
// error reply; it never propagates past this component.
func (p *Pipeline) respond(ctx context.Context, conn *gorm.DB, logger *slog.Logger, ev Event) {
	if err := p.generateReply(ctx, conn, ev); err != nil {
		logger.Error("error generating response", "event_id", ev.EventId, "user_id", ev.UserId, "error", err)
		p.sendErrorReply(ctx, logger, ev, err)
	}
}

func (p *Pipeline) generateReply(ctx context.Context, conn *gorm.DB, ev Event) error {
	// Snapshot read of the continuation token; no transaction required.
	var conv database.Conversation
	err := conn.WithContext(ctx).Where("user_id = ?", ev.UserId).First(&conv).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("error loading conversation: %w", err)
	}
	prevConversationId := conv.DifyConversationId.String

	// The user's input is already committed; a slow or failing completion
	// call can no longer roll it back. No transaction is open here.
	resp, err := p.completer.SendChatMessage(ctx, ev.UserId, ev.Text, prevConversationId)
	if err != nil {
		return err
	}

	answer := resp.Answer
	if answer == "" {
		answer = "(no answer)"
	}

	err = conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Skip the upsert when the token is unchanged to avoid needless
		// write and lock churn on the singleton row.
		if resp.ConversationId != "" && resp.ConversationId != prevConversationId {
			if err := upsertConversation(tx, ev.UserId, resp.ConversationId); err != nil {
				return err
			}
		}

		msg := database.ChatMessage{
			SessionId: ev.UserId,
			UserId:    ev.UserId,
			Role:      database.RoleAssistant,
			Content:   answer,
		}
		if err := tx.Create(&msg).Error; err != nil {
			return fmt.Errorf("error recording assistant message: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	p.publishChatEvent(ctx, messaging.EventAssistantReply, ev.UserId)

	if ev.ReplyToken != "" {
		msg := line.NewTextMessage(answer)
		msg.QuickReply = quickActions
		if err := p.replier.Reply(ctx, ev.ReplyToken, []line.TextMessage{msg}); err != nil {
			return fmt.Errorf("error delivering reply: %w", err)
		}
	}

	return nil
}

func (p *Pipeline) sendErrorReply(ctx context.Context, logger *slog.Logger, ev Event, cause error) {
	if ev.ReplyToken == "" {
		return
	}

	msg := line.NewTextMessage(errorReplyPrefix + cause.Error())
	if err := p.replier.Reply(ctx, ev.ReplyToken, []line.TextMessage{msg}); err != nil {
		logger.Error("failed to send error reply", "event_id", ev.EventId, "error", err)
	}
}

func upsertConversation(tx *gorm.DB, userId, conversationId string) error {
	conv := database.Conversation{
		UserId:             userId,
		DifyConversationId: nullString(conversationId),
		UpdatedAt:          time.Now().UTC(),
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"dify_conversation_id", "updated_at"}),
	}).Create(&conv).Error
	if err != nil {
		return fmt.Errorf("error upserting conversation: %w", err)
	}
	return nil
}

// clearConversation nulls the continuation token so the next completion
// call starts a fresh Dify context. A missing row is already clear.
func clearConversation(tx *gorm.DB, userId string) error {
	err := tx.Model(&database.Conversation{}).
		Where("user_id = ?", userId).
		Updates(map[string]any{"dify_conversation_id": nil, "updated_at": time.Now().UTC()}).Error
	if err != nil {
		return fmt.Errorf("error clearing conversation: %w", err)
	}
	return nil
}
