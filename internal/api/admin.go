package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"linebot-backend/internal/database"
	"linebot-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

const defaultHistoryLimit = 100

// AdminService is a read-only inspection surface over the persisted
// conversation state.
type AdminService struct {
	db *gorm.DB
}

func NewAdminService(db *gorm.DB) *AdminService {
	return &AdminService{db: db}
}

func (s *AdminService) AddRoutes(r chi.Router) {
	r.Route("/admin/sessions/{user_id}", func(r chi.Router) {
		r.Get("/history", RestHandler(s.GetHistory))
		r.Get("/summary", RestHandler(s.GetSummary))
	})
}

type historyParams struct {
	Limit int `schema:"limit"`
}

func (s *AdminService) GetHistory(r *http.Request) (any, error) {
	userId := chi.URLParam(r, "user_id")
	if userId == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "missing {user_id} url parameter")
	}

	params, err := ParseRequestQueryParams[historyParams](r)
	if err != nil {
		return nil, err
	}
	limit := params.Limit
	if limit <= 0 || limit > 500 {
		limit = defaultHistoryLimit
	}

	var messages []database.ChatMessage
	err = s.db.WithContext(r.Context()).
		Where("session_id = ?", userId).
		Order("id ASC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		slog.Error("error loading chat history", "user_id", userId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving chat history")
	}

	items := make([]api.ChatHistoryItem, 0, len(messages))
	for _, msg := range messages {
		items = append(items, api.ChatHistoryItem{
			Id:        msg.Id,
			Role:      msg.Role,
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	return api.ChatHistoryResponse{Messages: items}, nil
}

func (s *AdminService) GetSummary(r *http.Request) (any, error) {
	userId := chi.URLParam(r, "user_id")
	if userId == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "missing {user_id} url parameter")
	}

	var summary database.SessionSummary
	err := s.db.WithContext(r.Context()).Where("session_id = ?", userId).First(&summary).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "no summary for session")
		}
		slog.Error("error loading session summary", "user_id", userId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving session summary")
	}

	return api.SessionSummaryResponse{
		SessionId:   summary.SessionId,
		Summary:     summary.Summary,
		ToMessageId: summary.ToMessageId,
		UpdatedAt:   summary.UpdatedAt.UTC().Format(time.RFC3339),
	}, nil
}
