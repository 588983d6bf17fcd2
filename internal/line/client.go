package line

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultAPIBase = "https://api.line.me"

// Client wraps the LINE Messaging API reply endpoint. One outbound call per
// Reply invocation; a non-2xx response is a hard error and there is no
// retry, callers decide whether to log or escalate.
type Client struct {
	client *resty.Client
}

func NewClient(apiBase, channelAccessToken string) *Client {
	return &Client{
		client: resty.New().
			SetBaseURL(apiBase).
			SetAuthToken(channelAccessToken).
			SetTimeout(30 * time.Second),
	}
}

type replyRequest struct {
	ReplyToken string        `json:"replyToken"`
	Messages   []TextMessage `json:"messages"`
}

func (c *Client) Reply(ctx context.Context, replyToken string, messages []TextMessage) error {
	res, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(replyRequest{ReplyToken: replyToken, Messages: messages}).
		Post("/v2/bot/message/reply")

	if err != nil {
		return fmt.Errorf("line reply request failed: %w", err)
	}

	if !res.IsSuccess() {
		return fmt.Errorf("line reply failed: %d %s", res.StatusCode(), res.String())
	}

	return nil
}
