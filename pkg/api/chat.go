package api

type ChatHistoryItem struct {
	Id        uint   `json:"id"`
	Role      string `json:"role"` // "user" or "assistant"
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

type ChatHistoryResponse struct {
	Messages []ChatHistoryItem `json:"messages"`
}

type SessionSummaryResponse struct {
	SessionId   string `json:"session_id"`
	Summary     string `json:"summary"`
	ToMessageId uint   `json:"to_message_id"`
	UpdatedAt   string `json:"updated_at"`
}
