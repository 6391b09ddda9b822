package notify

import (
	"context"
	"net/http"
	"time"
)

// Embed colors per event.
const (
	colorSuccess = 0x2ecc71
	colorFailure = 0xe74c3c
	colorInfo    = 0x3498db
)

// DiscordSender posts embeds to a channel webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
	now        func() time.Time
}

// NewDiscordSender creates a DiscordSender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: defaultSendTimeout},
		now:        time.Now,
	}
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp"`
}

// Send posts msg as one embed colored by event. Discord answers 204.
func (d *DiscordSender) Send(ctx context.Context, msg Message) error {
	return postJSON(ctx, d.client, "discord", d.webhookURL, map[string]any{
		"embeds": []discordEmbed{{
			Title:       msg.Title,
			Description: "```\n" + msg.Body + "\n```",
			Color:       embedColor(msg.Event),
			Timestamp:   d.now().UTC().Format(time.RFC3339),
		}},
	})
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string { return "discord" }

func embedColor(event string) int {
	switch event {
	case EventLiquidationSuccess:
		return colorSuccess
	case EventLiquidationFailed, EventScanErrors:
		return colorFailure
	default:
		return colorInfo
	}
}
