package booklaunchbot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
)

// ErrInvalidOffset is returned when the day offset is not an integer.
var ErrInvalidOffset = errors.New("invalid offset")

// WindowQueryResult holds the items published inside one calendar day.
type WindowQueryResult struct {
	Start time.Time  `json:"start"`
	End   time.Time  `json:"end"`
	Items []FeedItem `json:"items"`
}

// WindowQuery finds stored items by publication day.
type WindowQuery struct {
	store    KVStore
	location *time.Location
}

// NewWindowQuery creates a WindowQuery whose days start at midnight in location.
func NewWindowQuery(store KVStore, location *time.Location) *WindowQuery {
	if location == nil {
		location = time.UTC
	}
	return &WindowQuery{store: store, location: location}
}

// ParseOffset parses a day offset. The empty string means today.
func ParseOffset(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	offset, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrInvalidOffset, s)
	}
	return offset, nil
}

// Window returns [midnight(now)+offsetDays, midnight(now)+offsetDays+1).
func (q *WindowQuery) Window(offsetDays int, now time.Time) (time.Time, time.Time) {
	local := now.In(q.location)
	start := time.Date(local.Year(), local.Month(), local.Day()+offsetDays, 0, 0, 0, 0, q.location)
	return start, start.AddDate(0, 0, 1)
}

// QuerySoon returns the stored items published on the day offsetDays days after now.
// The store is scanned in full on every call.
func (q *WindowQuery) QuerySoon(ctx context.Context, offsetDays string, now time.Time) (*WindowQueryResult, error) {
	offset, err := ParseOffset(offsetDays)
	if err != nil {
		return nil, err
	}
	start, end := q.Window(offset, now)
	startUnix, endUnix := start.Unix(), end.Unix()

	keys, err := q.store.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list stored keys: %w", err)
	}

	type match struct {
		key       string
		item      FeedItem
		published int64
	}
	var matches []match
	for _, key := range keys {
		value, found, err := q.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to read stored item: %w", err)
		}
		if !found {
			pkgLogger.Debug("Stored item disappeared during scan", "key", key)
			continue
		}
		var item FeedItem
		if err := json.Unmarshal(value, &item); err != nil {
			pkgLogger.Debug("Skipping undecodable stored item", "key", key, "error", err)
			continue
		}
		published, err := ParsePublicationDate(item.Date, q.location)
		if err != nil {
			pkgLogger.Debug("Skipping stored item with bad date", "key", key, "error", err)
			continue
		}
		unix := published.Unix()
		if startUnix <= unix && unix < endUnix {
			matches = append(matches, match{key: key, item: item, published: unix})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].published != matches[j].published {
			return matches[i].published < matches[j].published
		}
		return matches[i].key < matches[j].key
	})

	return &WindowQueryResult{
		Start: start,
		End:   end,
		Items: lo.Map(matches, func(m match, _ int) FeedItem { return m.item }),
	}, nil
}
