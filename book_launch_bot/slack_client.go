package booklaunchbot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const defaultSlackAPIURL = "https://slack.com/api/"

// SlackClient posts BlockMessages through the Slack Web API.
type SlackClient struct {
	httpClient *http.Client
	apiURL     string
	token      string
}

type slackResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// NewSlackClient creates a SlackClient from the Slack configuration.
func NewSlackClient(config SlackConfig) *SlackClient {
	apiURL := config.APIURL
	if apiURL == "" {
		apiURL = defaultSlackAPIURL
	}
	if !strings.HasSuffix(apiURL, "/") {
		apiURL += "/"
	}
	return &SlackClient{
		httpClient: newSinkHTTPClient(config.TimeoutSec),
		apiURL:     apiURL,
		token:      config.Token,
	}
}

// Send calls the API method named by msg.Type with msg.Body.
func (c *SlackClient) Send(ctx context.Context, msg BlockMessage) error {
	respBody, err := postJSON(ctx, c.httpClient, c.apiURL+msg.Type, map[string]string{
		"Authorization": "Bearer " + c.token,
	}, msg.Body)
	if err != nil {
		return fmt.Errorf("failed to post to Slack: %w", err)
	}

	// Slack reports most failures with 200 and ok=false
	var result slackResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("failed to decode Slack response: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("slack %s failed: %s", msg.Type, result.Error)
	}
	pkgLogger.Info("Successfully posted to Slack", "channel", msg.Body.Channel)
	return nil
}
