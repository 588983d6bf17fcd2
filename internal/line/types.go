package line

// Inbound webhook payload. Optional parts of an event are pointers so the
// parser can distinguish absent from empty.

type WebhookPayload struct {
	Destination string  `json:"destination,omitempty"`
	Events      []Event `json:"events"`
}

type Event struct {
	Type           string    `json:"type"`
	Message        *Message  `json:"message,omitempty"`
	Source         *Source   `json:"source,omitempty"`
	ReplyToken     string    `json:"replyToken,omitempty"`
	Postback       *Postback `json:"postback,omitempty"`
	Timestamp      int64     `json:"timestamp,omitempty"`
	WebhookEventId string    `json:"webhookEventId,omitempty"`
}

type Message struct {
	Id   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type Source struct {
	Type   string `json:"type,omitempty"`
	UserId string `json:"userId,omitempty"`
}

type Postback struct {
	Data string `json:"data"`
}

// Outbound reply messages.

type TextMessage struct {
	Type       string      `json:"type"`
	Text       string      `json:"text"`
	QuickReply *QuickReply `json:"quickReply,omitempty"`
}

type QuickReply struct {
	Items []QuickReplyItem `json:"items"`
}

type QuickReplyItem struct {
	Type   string         `json:"type"`
	Action PostbackAction `json:"action"`
}

type PostbackAction struct {
	Type        string `json:"type"`
	Label       string `json:"label"`
	Data        string `json:"data"`
	DisplayText string `json:"displayText,omitempty"`
}

func NewTextMessage(text string) TextMessage {
	return TextMessage{Type: "text", Text: text}
}

func NewPostbackItem(label, data, displayText string) QuickReplyItem {
	return QuickReplyItem{
		Type: "action",
		Action: PostbackAction{
			Type:        "postback",
			Label:       label,
			Data:        data,
			DisplayText: displayText,
		},
	}
}
