package booklaunchbot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// SelfClient calls this service's own item endpoints over HTTP.
type SelfClient struct {
	httpClient *http.Client
	baseURL    string
}

func NewSelfClient(baseURL string, timeout time.Duration) *SelfClient {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &SelfClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// PostItems triggers ingestion.
func (c *SelfClient) PostItems(ctx context.Context) ([]FeedItem, error) {
	var items []FeedItem
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/items", &items); err != nil {
		return nil, err
	}
	return items, nil
}

// GetItems runs the window query for the given day offset.
func (c *SelfClient) GetItems(ctx context.Context, offsetDays int) (*WindowQueryResult, error) {
	query := url.Values{"offset": {strconv.Itoa(offsetDays)}}
	var result WindowQueryResult
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/items?"+query.Encode(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *SelfClient) do(ctx context.Context, method, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s returned status %d: %s", method, target, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response of %s %s: %w", method, target, err)
	}
	return nil
}
