package booklaunchbot

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// RawItem is one entry as it appears in the feed document.
type RawItem struct {
	Title string
	Date  string
	Link  string
}

// FeedItem is the record stored in the key-value store and sent to the sinks.
type FeedItem struct {
	Title      string `json:"title"`
	Date       string `json:"date"`       // source-native publication date, unchanged
	Link       string `json:"link"`       // scheme://host/path, no query or fragment
	Expiration int64  `json:"expiration"` // unix seconds
}

// itemLifetime is how long an item stays relevant after its publication date.
const itemLifetime = 24 * time.Hour

// dateLayouts are tried in order when parsing a publication date.
var dateLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParsePublicationDate parses a feed date string. Layouts without zone information
// are interpreted in loc.
func ParsePublicationDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty publication date")
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported publication date format: %q", s)
}

// CanonicalizeLink drops the query string, fragment and userinfo from link.
func CanonicalizeLink(link string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return "", fmt.Errorf("failed to parse link %q: %w", link, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("link is not absolute: %q", link)
	}
	canonical := url.URL{
		Scheme:  u.Scheme,
		Host:    u.Host,
		Path:    u.Path,
		RawPath: u.RawPath,
	}
	return canonical.String(), nil
}

// StoreKey derives the key-value store key from a link. Canonical and
// non-canonical forms of the same link yield the same key.
func StoreKey(link string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return "", fmt.Errorf("failed to parse link %q: %w", link, err)
	}
	if u.Path == "" {
		return "/", nil
	}
	return u.EscapedPath(), nil
}

// NewFeedItem canonicalizes a raw feed entry.
func NewFeedItem(raw RawItem, loc *time.Location) (FeedItem, error) {
	published, err := ParsePublicationDate(raw.Date, loc)
	if err != nil {
		return FeedItem{}, err
	}
	link, err := CanonicalizeLink(raw.Link)
	if err != nil {
		return FeedItem{}, err
	}
	return FeedItem{
		Title:      raw.Title,
		Date:       raw.Date,
		Link:       link,
		Expiration: published.Add(itemLifetime).Unix(),
	}, nil
}

// Key returns the store key of the item.
func (i FeedItem) Key() (string, error) {
	return StoreKey(i.Link)
}

// ExpiresAt returns the expiration as a time.
func (i FeedItem) ExpiresAt() time.Time {
	return time.Unix(i.Expiration, 0)
}

// IsExpired reports whether the item expired before now.
func (i FeedItem) IsExpired(now time.Time) bool {
	return i.Expiration < now.Unix()
}
