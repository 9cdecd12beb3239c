package booklaunchbot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/samber/lo"
)

// FeedFetcher retrieves raw entries from a feed URL.
type FeedFetcher interface {
	FetchFeed(ctx context.Context, url string) ([]RawItem, error)
}

// Ingester stores feed entries that have not been seen before.
//
// Existence is checked against a snapshot of the store's keys taken once at the
// start of each run. Two runs writing the same store at the same time can both
// store an item; this is a known limitation.
type Ingester struct {
	store    KVStore
	fetcher  FeedFetcher
	feedURL  string
	location *time.Location
	now      func() time.Time
}

// NewIngester creates an Ingester. location is used for feed dates without a zone.
func NewIngester(store KVStore, fetcher FeedFetcher, feedURL string, location *time.Location) *Ingester {
	return &Ingester{
		store:    store,
		fetcher:  fetcher,
		feedURL:  feedURL,
		location: location,
		now:      time.Now,
	}
}

// IngestFeed fetches the configured feed and ingests its entries.
func (in *Ingester) IngestFeed(ctx context.Context) ([]FeedItem, error) {
	rawItems, err := in.fetcher.FetchFeed(ctx, in.feedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch RSS feed: %w", err)
	}
	return in.Ingest(ctx, rawItems)
}

// Ingest stores every raw item that is neither already stored nor expired and
// returns the items it stored, in input order. When a write fails, the items
// stored before it are returned together with the error.
func (in *Ingester) Ingest(ctx context.Context, rawItems []RawItem) ([]FeedItem, error) {
	now := in.now()

	keys, err := in.store.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list stored keys: %w", err)
	}
	known := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		known[key] = struct{}{}
	}

	stored := []FeedItem{}
	for _, raw := range rawItems {
		item, err := NewFeedItem(raw, in.location)
		if err != nil {
			pkgLogger.Warn("Skipping malformed feed item", "title", raw.Title, "link", raw.Link, "error", err)
			continue
		}
		key, err := item.Key()
		if err != nil {
			pkgLogger.Warn("Skipping feed item without key", "link", item.Link, "error", err)
			continue
		}

		if _, ok := known[key]; ok {
			continue
		}
		if item.IsExpired(now) {
			pkgLogger.Debug("Skipping expired item", "key", key, "expiration", item.Expiration)
			continue
		}

		value, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("failed to encode item %s: %w", key, err)
		}
		if err := in.store.Put(ctx, key, value, item.ExpiresAt()); err != nil {
			if len(stored) > 0 {
				pkgLogger.Warn("Ingestion stopped after storing some items",
					"keys", lo.Map(stored, func(i FeedItem, _ int) string { k, _ := i.Key(); return k }),
					"error", err)
			}
			return stored, fmt.Errorf("failed to store item: %w", err)
		}
		// the same link can appear twice in one document
		known[key] = struct{}{}
		stored = append(stored, item)
	}

	pkgLogger.Info("Ingested feed items", "received", len(rawItems), "stored", len(stored))
	return stored, nil
}
