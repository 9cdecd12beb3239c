package booklaunchbot

import (
	"context"
	"fmt"

	"github.com/mattn/go-mastodon"
)

// MastodonClient posts TextMessages as Mastodon statuses.
type MastodonClient struct {
	client     *mastodon.Client
	visibility string
}

// NewMastodonClient initializes and returns a new MastodonClient.
func NewMastodonClient(config MastodonConfig) *MastodonClient {
	client := mastodon.NewClient(&mastodon.Config{
		Server:       config.InstanceURL,
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		AccessToken:  config.AccessToken,
	})
	return &MastodonClient{
		client:     client,
		visibility: config.Visibility,
	}
}

// Send posts the message content as one status.
// The instance's character limit is not checked here; an oversized post fails and is logged.
func (c *MastodonClient) Send(ctx context.Context, msg TextMessage) error {
	s, err := c.client.PostStatus(ctx, &mastodon.Toot{
		Status:     msg.Body.Content,
		Visibility: c.visibility,
	})
	if err != nil {
		return fmt.Errorf("failed to post to Mastodon: %w", err)
	}
	pkgLogger.Info("Successfully posted to Mastodon", "url", s.URL)
	return nil
}
