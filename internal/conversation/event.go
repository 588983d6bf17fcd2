package conversation

import (
	"fmt"
	"time"

	"linebot-backend/internal/line"
)

type EventKind int

const (
	KindMessage EventKind = iota
	KindPostback
	KindOther
)

const (
	ActionEndSession    = "action=end_session"
	ActionResumeSession = "action=resume_session"
)

// Event is the parsed form of one webhook event. Kind tags the variant:
// KindMessage for text messages, KindPostback for postback actions, and
// KindOther for everything else, which is still recorded as a raw event but
// otherwise ignored.
type Event struct {
	Kind EventKind

	// EventId is the idempotency key for raw event persistence.
	EventId string

	Type         string
	UserId       string
	ReplyToken   string
	MessageId    string
	Text         string
	PostbackData string

	Raw line.Event
}

// ParseEvent classifies one webhook event into the tagged variant used by
// the pipeline. The idempotency key falls back from message id to the
// platform delivery id to a composite of timestamp, user and type for
// events lacking any natural key.
func ParseEvent(ev line.Event) Event {
	parsed := Event{
		Kind:       KindOther,
		Type:       ev.Type,
		ReplyToken: ev.ReplyToken,
		Raw:        ev,
	}

	if ev.Source != nil {
		parsed.UserId = ev.Source.UserId
	}

	if ev.Type == "message" && ev.Message != nil && ev.Message.Type == "text" {
		parsed.Kind = KindMessage
		parsed.MessageId = ev.Message.Id
		parsed.Text = ev.Message.Text
	} else if ev.Type == "postback" && ev.Postback != nil {
		parsed.Kind = KindPostback
		parsed.PostbackData = ev.Postback.Data
	}

	parsed.EventId = eventId(ev, parsed)

	return parsed
}

func eventId(ev line.Event, parsed Event) string {
	if parsed.MessageId != "" {
		return parsed.MessageId
	}
	if ev.WebhookEventId != "" {
		return ev.WebhookEventId
	}

	// Composite fallback for events lacking a natural key. A missing
	// timestamp yields a wall-clock key, so such events are never deduped.
	ts := ev.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	userId, eventType := parsed.UserId, ev.Type
	if userId == "" {
		userId = "unknown"
	}
	if eventType == "" {
		eventType = "unknown"
	}
	return fmt.Sprintf("%d-%s-%s", ts, userId, eventType)
}
