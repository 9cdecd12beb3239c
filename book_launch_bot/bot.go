package booklaunchbot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
)

// BookLaunchBot wires the store, the feed, the HTTP surface and the sinks together.
type BookLaunchBot struct {
	config      *Config
	location    *time.Location
	store       KVStore
	redisClient *redis.Client
	ingester    *Ingester
	windowQuery *WindowQuery
	handlers    *Handlers
	driver      *Driver

	slackQueue *RedisQueue[BlockMessage]
	textQueue  *RedisQueue[TextMessage]
}

func NewBookLaunchBot(config *Config) (*BookLaunchBot, error) {
	location, err := config.Location()
	if err != nil {
		return nil, err
	}

	b := &BookLaunchBot{config: config, location: location}
	if config.UsesRedis() {
		b.redisClient = newRedisClient(config.Redis)
	}

	b.store, err = NewKVStore(config, b.redisClient)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	b.ingester = NewIngester(b.store, NewRSSClient(config.Feed), config.Feed.URL, location)
	b.windowQuery = NewWindowQuery(b.store, location)
	b.handlers = NewHandlers(b.ingester, b.windowQuery)

	if config.Slack.Delivery == DeliveryQueue {
		b.slackQueue = NewRedisQueue[BlockMessage](b.redisClient, config.Slack.QueueKey)
	}
	if config.TextChannel.Delivery == DeliveryQueue {
		b.textQueue = NewRedisQueue[TextMessage](b.redisClient, config.TextChannel.QueueKey)
	}

	notifier, err := NewNotifier(config.Slack.Channel, location, b.blockSink(), b.textSink())
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to create notifier: %w", err)
	}
	selfClient := NewSelfClient(config.Server.BaseURL, time.Duration(config.Schedule.TimeoutSec)*time.Second)
	b.driver = NewDriver(selfClient, notifier, config.Notification)

	return b, nil
}

// blockSink returns the sink used by the scheduler for the Slack channel.
func (b *BookLaunchBot) blockSink() MessageSink[BlockMessage] {
	if b.slackQueue != nil {
		return b.slackQueue
	}
	return NewSlackClient(b.config.Slack)
}

// textSink returns the sink used by the scheduler for the text channel.
func (b *BookLaunchBot) textSink() MessageSink[TextMessage] {
	if b.textQueue != nil {
		return b.textQueue
	}
	return b.directTextSink()
}

// directTextSink picks Discord or Mastodon. For queue delivery, Discord wins when both
// are configured.
func (b *BookLaunchBot) directTextSink() MessageSink[TextMessage] {
	mastodonReady := b.config.Mastodon.InstanceURL != "" && b.config.Mastodon.AccessToken != ""
	switch {
	case b.config.TextChannel.Delivery == DeliveryMastodon:
		return NewMastodonClient(b.config.Mastodon)
	case b.config.TextChannel.Delivery == DeliveryDiscord, b.config.Discord.WebhookURL != "":
		return NewDiscordClient(b.config.Discord)
	case mastodonReady:
		return NewMastodonClient(b.config.Mastodon)
	default:
		return nil
	}
}

// Handler returns the HTTP handler serving the item endpoints.
func (b *BookLaunchBot) Handler() http.Handler {
	return b.handlers.Routes()
}

// RunCycle runs one scheduled cycle against the server at server.base_url.
func (b *BookLaunchBot) RunCycle(ctx context.Context) {
	b.driver.RunCycle(ctx)
}

// NewScheduler creates the cron scheduler for this bot.
func (b *BookLaunchBot) NewScheduler() (*Scheduler, error) {
	return NewScheduler(b.config.Schedule.Cron, b.location, b.driver, time.Duration(b.config.Schedule.TimeoutSec)*time.Second)
}

// DrainQueues delivers messages waiting in the Redis queues to the direct sinks.
func (b *BookLaunchBot) DrainQueues(ctx context.Context) error {
	if b.slackQueue == nil && b.textQueue == nil {
		return fmt.Errorf("%w: no queue delivery configured", ErrSinkNotConfigured)
	}

	var errs []error
	if b.slackQueue != nil {
		if b.config.Slack.Token == "" {
			errs = append(errs, fmt.Errorf("%w: slack.token is required to drain %s", ErrSinkNotConfigured, b.config.Slack.QueueKey))
		} else {
			n, err := b.slackQueue.Drain(ctx, NewSlackClient(b.config.Slack))
			pkgLogger.Info("Drained queue", "queue", b.config.Slack.QueueKey, "delivered", n)
			errs = append(errs, err)
		}
	}
	if b.textQueue != nil {
		sink := b.directTextSink()
		if sink == nil {
			errs = append(errs, fmt.Errorf("%w: discord or mastodon settings are required to drain %s", ErrSinkNotConfigured, b.config.TextChannel.QueueKey))
		} else {
			n, err := b.textQueue.Drain(ctx, sink)
			pkgLogger.Info("Drained queue", "queue", b.config.TextChannel.QueueKey, "delivered", n)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases the store and the Redis connection.
func (b *BookLaunchBot) Close() error {
	var errs []error
	if b.store != nil {
		errs = append(errs, b.store.Close())
	}
	if b.redisClient != nil && b.config.Store.Driver != StoreDriverRedis {
		errs = append(errs, b.redisClient.Close())
	}
	return errors.Join(errs...)
}
