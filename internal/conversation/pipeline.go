package conversation

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"linebot-backend/internal/dify"
	"linebot-backend/internal/line"
	"linebot-backend/internal/messaging"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const DefaultSummaryBatchSize = 80

// Completer is the external conversational completion service. Calls have
// unbounded latency and must never run inside an open transaction.
type Completer interface {
	SendChatMessage(ctx context.Context, user, query, conversationId string) (dify.ChatResponse, error)
}

// Replier delivers outbound messages back to the originating user.
type Replier interface {
	Reply(ctx context.Context, replyToken string, messages []line.TextMessage) error
}

// Pipeline processes the events of one webhook delivery: idempotent
// ingestion, response orchestration for user text, and session
// summarization for end-session postbacks.
type Pipeline struct {
	db               *gorm.DB
	completer        Completer
	replier          Replier
	publisher        messaging.Publisher
	summaryBatchSize int
}

func NewPipeline(db *gorm.DB, completer Completer, replier Replier, publisher messaging.Publisher, summaryBatchSize int) *Pipeline {
	if summaryBatchSize <= 0 {
		summaryBatchSize = DefaultSummaryBatchSize
	}
	return &Pipeline{
		db:               db,
		completer:        completer,
		replier:          replier,
		publisher:        publisher,
		summaryBatchSize: summaryBatchSize,
	}
}

// ProcessDelivery handles one webhook delivery. Events are processed
// strictly sequentially in payload order on a single database connection,
// which is released when the delivery completes. A failure in one event is
// logged and never aborts its siblings.
func (p *Pipeline) ProcessDelivery(ctx context.Context, events []line.Event) error {
	logger := slog.With("delivery_id", uuid.New().String())

	return p.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		for _, raw := range events {
			p.processEvent(ctx, conn, logger, ParseEvent(raw))
		}
		return nil
	})
}

func (p *Pipeline) processEvent(ctx context.Context, conn *gorm.DB, logger *slog.Logger, ev Event) {
	respond, err := p.ingestEvent(ctx, conn, ev)
	if err != nil {
		// The input was not durably recorded. No reply is attempted: the
		// event may not carry a usable reply token or user context.
		logger.Error("error recording inbound event", "event_id", ev.EventId, "error", err)
		return
	}

	switch {
	case respond:
		p.respond(ctx, conn, logger, ev)
	case ev.Kind == KindPostback:
		p.handlePostback(ctx, conn, logger, ev)
	}
}

func (p *Pipeline) publishChatEvent(ctx context.Context, kind, userId string) {
	payload := messaging.ChatEventPayload{
		EventId:   uuid.New(),
		Kind:      kind,
		UserId:    userId,
		SessionId: userId,
		Timestamp: time.Now().UTC(),
	}
	if err := p.publisher.PublishChatEvent(ctx, payload); err != nil {
		slog.Error("failed to publish chat event", "kind", kind, "user_id", userId, "error", err)
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
