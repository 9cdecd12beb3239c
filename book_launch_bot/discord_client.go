package booklaunchbot

import (
	"context"
	"fmt"
	"net/http"
)

// DiscordClient posts TextMessages to a Discord webhook.
type DiscordClient struct {
	httpClient *http.Client
	webhookURL string
	username   string
}

type discordWebhookPayload struct {
	Content  string `json:"content"`
	Username string `json:"username,omitempty"`
}

func NewDiscordClient(config DiscordConfig) *DiscordClient {
	return &DiscordClient{
		httpClient: newSinkHTTPClient(config.TimeoutSec),
		webhookURL: config.WebhookURL,
		username:   config.Username,
	}
}

func (c *DiscordClient) Send(ctx context.Context, msg TextMessage) error {
	_, err := postJSON(ctx, c.httpClient, c.webhookURL, nil, discordWebhookPayload{
		Content:  msg.Body.Content,
		Username: c.username,
	})
	if err != nil {
		return fmt.Errorf("failed to post to Discord: %w", err)
	}
	pkgLogger.Info("Successfully posted to Discord")
	return nil
}
