package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"linebot-backend/internal/database"
	"linebot-backend/internal/line"
	"linebot-backend/internal/messaging"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	summarySavedReplyText = "会話を保存して終了しました。"
	noUpdateReplyText     = "新しい会話はありません。会話をリセットしました。"
	resumeReplyText       = "はい。続けてどうぞ。"
)

const summaryInstruction = `You maintain a rolling summary of a conversation between a user and an assistant.
Update the previous summary using only the new messages below. Preserve agreements, decisions, constraints, and open items. Do not fabricate facts that are not present in the conversation. Keep the result under 2000 characters, structured into the sections: Summary / Decisions / Open items / Next steps.

Previous summary:
%s

New messages:
%s`

func (p *Pipeline) handlePostback(ctx context.Context, conn *gorm.DB, logger *slog.Logger, ev Event) {
	switch ev.PostbackData {
	case ActionEndSession:
		if err := p.endSession(ctx, conn, ev); err != nil {
			logger.Error("error summarizing session", "user_id", ev.UserId, "error", err)
			p.sendErrorReply(ctx, logger, ev, err)
		}
	case ActionResumeSession:
		if ev.ReplyToken != "" {
			if err := p.replier.Reply(ctx, ev.ReplyToken, []line.TextMessage{line.NewTextMessage(resumeReplyText)}); err != nil {
				logger.Error("failed to send resume confirmation", "user_id", ev.UserId, "error", err)
			}
		}
	}
}

// endSession folds the messages since the last summarization boundary into
// the rolling session summary. The boundary advances only in the same
// transaction that writes the new summary text, so a failure at any phase
// leaves the previous boundary intact and the operation safe to retry.
func (p *Pipeline) endSession(ctx context.Context, conn *gorm.DB, ev Event) error {
	if ev.UserId == "" {
		return fmt.Errorf("end-session postback has no user id")
	}
	sessionId := ev.UserId

	// Phase 1: read the current boundary and the unsummarized delta. The
	// batch cap bounds both the external call payload and the transaction.
	var existing database.SessionSummary
	var delta []database.ChatMessage
	err := conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionId).First(&existing).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("error loading session summary: %w", err)
			}
			existing = database.SessionSummary{SessionId: sessionId}
		}

		if err := tx.Where("session_id = ? AND id > ?", sessionId, existing.ToMessageId).
			Order("id ASC").
			Limit(p.summaryBatchSize).
			Find(&delta).Error; err != nil {
			return fmt.Errorf("error loading unsummarized messages: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// No delta: nothing to fold in, just reset the Dify context so the next
	// conversation starts fresh. Idempotent under repeated triggering.
	if len(delta) == 0 {
		err := conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return clearConversation(tx, ev.UserId)
		})
		if err != nil {
			return err
		}
		return p.sendConfirmation(ctx, ev, noUpdateReplyText)
	}

	// Phase 2: external call with no open transaction. The summarizer runs
	// under its own Dify user key and never continues a conversation.
	var transcript strings.Builder
	for _, msg := range delta {
		fmt.Fprintf(&transcript, "%s: %s\n", msg.Role, msg.Content)
	}

	query := fmt.Sprintf(summaryInstruction, existing.Summary, transcript.String())
	resp, err := p.completer.SendChatMessage(ctx, "summarizer:"+ev.UserId, query, "")
	if err != nil {
		return err
	}

	// Phase 3: advance the boundary atomically with the summary write.
	lastId := delta[len(delta)-1].Id
	err = conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		summary := database.SessionSummary{
			SessionId:   sessionId,
			Summary:     resp.Answer,
			ToMessageId: lastId,
			UpdatedAt:   time.Now().UTC(),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"summary", "to_message_id", "updated_at"}),
		}).Create(&summary).Error; err != nil {
			return fmt.Errorf("error writing session summary: %w", err)
		}

		return clearConversation(tx, ev.UserId)
	})
	if err != nil {
		return err
	}

	p.publishChatEvent(ctx, messaging.EventSessionSummarized, ev.UserId)

	// Confirmation only, the summary body is never sent back to the user.
	return p.sendConfirmation(ctx, ev, summarySavedReplyText)
}

func (p *Pipeline) sendConfirmation(ctx context.Context, ev Event, text string) error {
	if ev.ReplyToken == "" {
		return nil
	}
	if err := p.replier.Reply(ctx, ev.ReplyToken, []line.TextMessage{line.NewTextMessage(text)}); err != nil {
		return fmt.Errorf("error delivering confirmation: %w", err)
	}
	return nil
}
