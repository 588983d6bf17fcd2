package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"linebot-backend/internal/conversation"
	"linebot-backend/internal/database"
	"linebot-backend/internal/dify"
	"linebot-backend/internal/line"
	"linebot-backend/internal/messaging"
	pkgapi "linebot-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testChannelSecret = "test-channel-secret"

type stubCompleter struct {
	answer string
	convId string
}

func (s *stubCompleter) SendChatMessage(ctx context.Context, user, query, conversationId string) (dify.ChatResponse, error) {
	return dify.ChatResponse{Answer: s.answer, ConversationId: s.convId}, nil
}

type stubReplier struct {
	replies [][]line.TextMessage
}

func (s *stubReplier) Reply(ctx context.Context, replyToken string, messages []line.TextMessage) error {
	s.replies = append(s.replies, messages)
	return nil
}

func newTestRouter(t *testing.T, channelSecret string) (chi.Router, *gorm.DB, *stubReplier) {
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:api_%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.GetMigrator(db).Migrate())

	replier := &stubReplier{}
	pipeline := conversation.NewPipeline(db, &stubCompleter{answer: "hi", convId: "c1"}, replier, messaging.NewInMemoryPublisher(), 0)

	router := chi.NewRouter()
	NewWebhookService(channelSecret, pipeline).AddRoutes(router)
	NewAdminService(db).AddRoutes(router)
	return router, db, replier
}

func webhookRequest(t *testing.T, payload line.WebhookPayload, channelSecret string) *http.Request {
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/line/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if channelSecret != "" {
		req.Header.Set("X-Line-Signature", line.Sign(body, channelSecret))
	}
	return req
}

func textEvent(msgId, userId, text, replyToken string) line.Event {
	return line.Event{
		Type:       "message",
		Message:    &line.Message{Id: msgId, Type: "text", Text: text},
		Source:     &line.Source{UserId: userId},
		ReplyToken: replyToken,
		Timestamp:  time.Now().UnixMilli(),
	}
}

func TestWebhookRejectsNonPost(t *testing.T) {
	router, _, _ := newTestRouter(t, testChannelSecret)

	req := httptest.NewRequest(http.MethodGet, "/line/webhook", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWebhookMissingSecret(t *testing.T) {
	router, _, _ := newTestRouter(t, "")

	payload := line.WebhookPayload{Events: []line.Event{textEvent("m1", "u1", "hello", "r1")}}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, webhookRequest(t, payload, "irrelevant"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWebhookInvalidSignature(t *testing.T) {
	router, db, _ := newTestRouter(t, testChannelSecret)

	payload := line.WebhookPayload{Events: []line.Event{textEvent("m1", "u1", "hello", "r1")}}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, webhookRequest(t, payload, "wrong-secret"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := webhookRequest(t, payload, testChannelSecret)
	req.Header.Del("X-Line-Signature")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Nothing was persisted before the signature gate.
	var count int64
	require.NoError(t, db.Model(&database.LineEvent{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestWebhookDelivery(t *testing.T) {
	router, db, replier := newTestRouter(t, testChannelSecret)

	payload := line.WebhookPayload{Events: []line.Event{textEvent("m1", "u1", "hello", "r1")}}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, webhookRequest(t, payload, testChannelSecret))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]bool
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp["ok"])

	var messages []database.ChatMessage
	require.NoError(t, db.Order("id ASC").Find(&messages).Error)
	require.Len(t, messages, 2)
	assert.Equal(t, "hello", messages[0].Content)
	assert.Equal(t, "hi", messages[1].Content)

	require.Len(t, replier.replies, 1)
	assert.Equal(t, "hi", replier.replies[0][0].Text)
}

func TestWebhookRedelivery(t *testing.T) {
	router, db, replier := newTestRouter(t, testChannelSecret)

	payload := line.WebhookPayload{Events: []line.Event{textEvent("m1", "u1", "hello", "r1")}}
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, webhookRequest(t, payload, testChannelSecret))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	var userRows int64
	require.NoError(t, db.Model(&database.ChatMessage{}).Where("role = ?", database.RoleUser).Count(&userRows).Error)
	assert.Equal(t, int64(1), userRows)
	assert.Len(t, replier.replies, 1)
}

func TestAdminHistory(t *testing.T) {
	router, _, _ := newTestRouter(t, testChannelSecret)

	payload := line.WebhookPayload{Events: []line.Event{textEvent("m1", "u1", "hello", "r1")}}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, webhookRequest(t, payload, testChannelSecret))
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/admin/sessions/u1/history", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var history pkgapi.ChatHistoryResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&history))
	require.Len(t, history.Messages, 2)
	assert.Equal(t, "user", history.Messages[0].Role)
	assert.Equal(t, "hello", history.Messages[0].Content)

	req = httptest.NewRequest(http.MethodGet, "/admin/sessions/u1/history?limit=1", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	history = pkgapi.ChatHistoryResponse{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&history))
	assert.Len(t, history.Messages, 1)
}

func TestAdminSummary(t *testing.T) {
	router, db, _ := newTestRouter(t, testChannelSecret)

	req := httptest.NewRequest(http.MethodGet, "/admin/sessions/u1/summary", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, db.Create(&database.SessionSummary{
		SessionId:   "u1",
		Summary:     "Summary / Decisions / Open items / Next steps",
		ToMessageId: 4,
		UpdatedAt:   time.Now().UTC(),
	}).Error)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp pkgapi.SessionSummaryResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "u1", resp.SessionId)
	assert.Equal(t, uint(4), resp.ToMessageId)
}
