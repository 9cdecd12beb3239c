package booklaunchbot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrSinkNotConfigured is returned by NewNotifier when a channel has no usable sink.
var ErrSinkNotConfigured = errors.New("sink not configured")

// MessageSink delivers messages of type M to an external channel.
type MessageSink[M any] interface {
	Send(ctx context.Context, msg M) error
}

// SinkFunc adapts a function to MessageSink.
type SinkFunc[M any] func(ctx context.Context, msg M) error

func (f SinkFunc[M]) Send(ctx context.Context, msg M) error {
	return f(ctx, msg)
}

const defaultSinkTimeout = 10 * time.Second

func newSinkHTTPClient(timeoutSec int) *http.Client {
	timeout := time.Duration(timeoutSec) * time.Second
	if timeout <= 0 {
		timeout = defaultSinkTimeout
	}
	return &http.Client{Timeout: timeout}
}

// postJSON sends body as JSON and returns the response body of a 2xx reply.
// There is a single attempt.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create POST request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status code from %s: %d %s", url, resp.StatusCode, bytes.TrimSpace(respBody))
	}
	return respBody, nil
}
