package dify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// Client wraps the Dify chat-messages API in blocking mode. Calls have
// unbounded latency on the Dify side, so callers must never hold a database
// transaction open across SendChatMessage.
type Client struct {
	client *resty.Client
}

func NewClient(apiBase, apiKey string) *Client {
	return &Client{
		client: resty.New().
			SetBaseURL(apiBase).
			SetAuthToken(apiKey),
	}
}

type ChatRequest struct {
	Inputs         map[string]any `json:"inputs"`
	Query          string         `json:"query"`
	ResponseMode   string         `json:"response_mode"`
	User           string         `json:"user"`
	ConversationId string         `json:"conversation_id,omitempty"`
}

type ChatResponse struct {
	Answer         string `json:"answer"`
	ConversationId string `json:"conversation_id"`
}

// SendChatMessage sends one user query and blocks until Dify returns the
// full answer. An empty conversation id starts a fresh Dify conversation.
func (c *Client) SendChatMessage(ctx context.Context, user, query, conversationId string) (ChatResponse, error) {
	req := ChatRequest{
		Inputs:         map[string]any{},
		Query:          query,
		ResponseMode:   "blocking",
		User:           user,
		ConversationId: conversationId,
	}

	res, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post("/chat-messages")

	if err != nil {
		return ChatResponse{}, fmt.Errorf("dify request failed: %w", err)
	}

	if !res.IsSuccess() {
		return ChatResponse{}, fmt.Errorf("dify error: %d %s", res.StatusCode(), res.String())
	}

	var parsed ChatResponse
	if err := json.Unmarshal(res.Body(), &parsed); err != nil {
		return ChatResponse{}, fmt.Errorf("error parsing dify response: %w", err)
	}

	return parsed, nil
}
