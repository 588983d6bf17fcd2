package dify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendChatMessage(t *testing.T) {
	var got map[string]any
	var auth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat-messages", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ChatResponse{Answer: "hi", ConversationId: "c1"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "api-key")

	resp, err := client.SendChatMessage(context.Background(), "u1", "hello", "")
	require.NoError(t, err)

	assert.Equal(t, "hi", resp.Answer)
	assert.Equal(t, "c1", resp.ConversationId)

	assert.Equal(t, "Bearer api-key", auth)
	assert.Equal(t, "hello", got["query"])
	assert.Equal(t, "blocking", got["response_mode"])
	assert.Equal(t, "u1", got["user"])
	// No continuation token on a first contact.
	_, present := got["conversation_id"]
	assert.False(t, present)
}

func TestSendChatMessageContinuation(t *testing.T) {
	var got map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ChatResponse{Answer: "again", ConversationId: "c1"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "api-key")

	_, err := client.SendChatMessage(context.Background(), "u1", "more", "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", got["conversation_id"])
}

func TestSendChatMessageError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"quota exceeded"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(server.URL, "api-key")

	_, err := client.SendChatMessage(context.Background(), "u1", "hello", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
