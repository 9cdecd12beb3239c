package booklaunchbot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"regexp"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// ErrFetchFailed is returned when the feed could not be retrieved.
var ErrFetchFailed = errors.New("feed fetch failed")

var xmlDeclEncoding = regexp.MustCompile(`^(\s*<\?xml[^>]*?encoding=["'])[^"']*(["'])`)

// RSSClient retrieves and parses the syndication feed.
type RSSClient struct {
	httpClient *http.Client
	feedParser *gofeed.Parser
	userAgent  string
	encoding   string
}

// NewRSSClient creates an RSSClient from the feed configuration.
func NewRSSClient(config FeedConfig) *RSSClient {
	timeout := time.Duration(config.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RSSClient{
		httpClient: &http.Client{Timeout: timeout},
		feedParser: gofeed.NewParser(),
		userAgent:  config.UserAgent,
		encoding:   config.Encoding,
	}
}

// FetchFeed retrieves url and returns its entries in document order.
// A non-2xx response is reported as ErrFetchFailed and its body is not parsed.
func (c *RSSClient) FetchFeed(ctx context.Context, url string) ([]RawItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", url, err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetchFailed, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s: status code %d", ErrFetchFailed, url, resp.StatusCode)
	}

	body, err := c.decodeBody(resp)
	if err != nil {
		return nil, err
	}

	feed, err := c.feedParser.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RSS feed from %s: %w", url, err)
	}

	items := make([]RawItem, 0, len(feed.Items))
	for _, item := range feed.Items {
		date := item.Published
		if date == "" {
			date = item.Updated
		}
		items = append(items, RawItem{
			Title: item.Title,
			Date:  date,
			Link:  item.Link,
		})
	}
	pkgLogger.Debug("Fetched feed", "url", url, "count", len(items))
	return items, nil
}

// decodeBody converts the response body to UTF-8 when the encoding is known up front,
// either from configuration or from the Content-Type charset parameter. Otherwise the
// body is passed through and gofeed follows the XML declaration.
func (c *RSSClient) decodeBody(resp *http.Response) (io.Reader, error) {
	var enc encoding.Encoding
	if c.encoding != "" {
		e, err := htmlindex.Get(c.encoding)
		if err != nil {
			return nil, fmt.Errorf("unknown feed encoding %q: %w", c.encoding, err)
		}
		enc = e
	} else if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil && params["charset"] != "" {
		e, name := charset.Lookup(params["charset"])
		if e == nil {
			return nil, fmt.Errorf("unknown feed charset %q", params["charset"])
		}
		if name == "utf-8" {
			return resp.Body, nil
		}
		enc = e
	}
	if enc == nil {
		return resp.Body, nil
	}

	decoded, err := io.ReadAll(enc.NewDecoder().Reader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to decode feed body: %w", err)
	}
	// the body is UTF-8 now; keep gofeed from decoding it a second time
	decoded = xmlDeclEncoding.ReplaceAll(decoded, []byte("${1}UTF-8${2}"))
	return bytes.NewReader(decoded), nil
}
