package notify

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
)

const telegramAPI = "https://api.telegram.org"

// TelegramSender posts to a chat through the Bot API.
type TelegramSender struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
}

// NewTelegramSender creates a TelegramSender for the given bot token and chat.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		token:   token,
		chatID:  chatID,
		baseURL: telegramAPI,
		client:  &http.Client{Timeout: defaultSendTimeout},
	}
}

// Send posts msg as HTML with link previews disabled.
func (t *TelegramSender) Send(ctx context.Context, msg Message) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(t.baseURL, "/"), t.token)
	return postJSON(ctx, t.client, "telegram", url, map[string]any{
		"chat_id":                  t.chatID,
		"text":                     fmt.Sprintf("<b>%s</b>\n<pre>%s</pre>", html.EscapeString(msg.Title), html.EscapeString(msg.Body)),
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	})
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string { return "telegram" }
