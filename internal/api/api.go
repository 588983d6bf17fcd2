package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"linebot-backend/internal/conversation"
	"linebot-backend/internal/line"

	"github.com/go-chi/chi/v5"
)

// WebhookService exposes the LINE webhook endpoint. The handler is written
// against the raw body because signature verification needs the exact bytes
// LINE signed.
type WebhookService struct {
	channelSecret string
	pipeline      *conversation.Pipeline
}

func NewWebhookService(channelSecret string, pipeline *conversation.Pipeline) *WebhookService {
	return &WebhookService{channelSecret: channelSecret, pipeline: pipeline}
}

func (s *WebhookService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))
	r.Post("/line/webhook", s.HandleWebhook)
}

// HandleWebhook accepts one webhook delivery. It answers 200 once the batch
// has been processed, even when individual events failed — LINE retries
// non-success responses, and an unconditional batch failure would turn one
// bad event into a redelivery storm.
func (s *WebhookService) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.channelSecret == "" {
		slog.Error("LINE channel secret is not configured")
		http.Error(w, "channel secret not configured", http.StatusInternalServerError)
		return
	}

	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Error("error reading webhook body", "error", err)
		http.Error(w, "unable to read request body", http.StatusInternalServerError)
		return
	}

	signature := r.Header.Get("X-Line-Signature")
	if signature == "" || !line.ValidateSignature(rawBody, signature, s.channelSecret) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var payload line.WebhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		slog.Error("error parsing webhook payload", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if err := s.pipeline.ProcessDelivery(r.Context(), payload.Events); err != nil {
		slog.Error("unexpected error processing webhook delivery", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	WriteJsonResponse(w, map[string]bool{"ok": true})
}
