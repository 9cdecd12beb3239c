package booklaunchbot

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // Asia/Tokyo on hosts without zoneinfo

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StoreDriverSQLite = "sqlite"
	StoreDriverRedis  = "redis"

	DeliveryAPI      = "api"
	DeliveryQueue    = "queue"
	DeliveryDiscord  = "discord"
	DeliveryMastodon = "mastodon"
)

// Config holds the bot settings.
type Config struct {
	Feed         FeedConfig         `yaml:"feed"`
	Server       ServerConfig       `yaml:"server"`
	Store        StoreConfig        `yaml:"store"`
	Redis        RedisConfig        `yaml:"redis"`
	Schedule     ScheduleConfig     `yaml:"schedule"`
	Notification NotificationConfig `yaml:"notification"`
	Slack        SlackConfig        `yaml:"slack"`
	TextChannel  TextChannelConfig  `yaml:"text_channel"`
	Discord      DiscordConfig      `yaml:"discord"`
	Mastodon     MastodonConfig     `yaml:"mastodon"`
	Log          LogConfig          `yaml:"log"`
}

type FeedConfig struct {
	URL        string `yaml:"url"`
	Encoding   string `yaml:"encoding"` // e.g. "shift_jis"; empty means detect
	UserAgent  string `yaml:"user_agent"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

type ServerConfig struct {
	Addr    string `yaml:"addr"`
	BaseURL string `yaml:"base_url"` // where the scheduler reaches this server
}

type StoreConfig struct {
	Driver string       `yaml:"driver"`
	SQLite SQLiteConfig `yaml:"sqlite"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type ScheduleConfig struct {
	Cron       string `yaml:"cron"`
	Timezone   string `yaml:"timezone"`
	RunOnStart bool   `yaml:"run_on_start"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

type NotificationConfig struct {
	NewItemsTitle  string `yaml:"new_items_title"`
	SoonItemsTitle string `yaml:"soon_items_title"`
	SoonOffsetDays int    `yaml:"soon_offset_days"`
}

type SlackConfig struct {
	Delivery   string `yaml:"delivery"` // "api" or "queue"
	Channel    string `yaml:"channel"`
	Token      string `yaml:"token"`
	APIURL     string `yaml:"api_url"`
	QueueKey   string `yaml:"queue_key"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

type TextChannelConfig struct {
	Delivery string `yaml:"delivery"` // "discord", "mastodon" or "queue"
	QueueKey string `yaml:"queue_key"`
}

type DiscordConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	Username   string `yaml:"username"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

type MastodonConfig struct {
	InstanceURL  string `yaml:"instance_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	AccessToken  string `yaml:"access_token"`
	Visibility   string `yaml:"visibility"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the settings used for anything the config file leaves out.
func DefaultConfig() *Config {
	return &Config{
		Feed: FeedConfig{
			UserAgent:  "book-launch-bot/1.0",
			TimeoutSec: 30,
		},
		Server: ServerConfig{
			Addr:    ":8787",
			BaseURL: "http://127.0.0.1:8787",
		},
		Store: StoreConfig{
			Driver: StoreDriverSQLite,
			SQLite: SQLiteConfig{Path: "book_launch.db"},
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "book_launch:",
		},
		Schedule: ScheduleConfig{
			Cron:       "0 9 * * *",
			Timezone:   "Asia/Tokyo",
			TimeoutSec: 300,
		},
		Notification: NotificationConfig{
			NewItemsTitle:  "新刊情報",
			SoonItemsTitle: "本日発売",
		},
		Slack: SlackConfig{
			Delivery:   DeliveryAPI,
			APIURL:     defaultSlackAPIURL,
			QueueKey:   "book_launch_queue:slack",
			TimeoutSec: 10,
		},
		TextChannel: TextChannelConfig{
			Delivery: DeliveryDiscord,
			QueueKey: "book_launch_queue:text",
		},
		Discord: DiscordConfig{
			TimeoutSec: 10,
		},
		Mastodon: MastodonConfig{
			Visibility: "public",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig reads the YAML file at configPath on top of DefaultConfig and applies
// environment overrides. A .env file in the working directory is loaded if present.
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load()

	config := DefaultConfig()
	if configPath != "" {
		configYAML, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(configYAML, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv() {
	overrides := map[string]*string{
		"FEED_URL":              &c.Feed.URL,
		"SLACK_TOKEN":           &c.Slack.Token,
		"SLACK_CHANNEL":         &c.Slack.Channel,
		"DISCORD_WEBHOOK_URL":   &c.Discord.WebhookURL,
		"MASTODON_ACCESS_TOKEN": &c.Mastodon.AccessToken,
		"REDIS_ADDR":            &c.Redis.Addr,
		"REDIS_PASSWORD":        &c.Redis.Password,
	}
	for key, target := range overrides {
		if value, ok := os.LookupEnv(key); ok {
			*target = value
		}
	}
	if value, ok := os.LookupEnv("REDIS_DB"); ok {
		if db, err := strconv.Atoi(value); err == nil {
			c.Redis.DB = db
		}
	}
}

// Location returns the calendar location used for day windows and the schedule.
func (c *Config) Location() (*time.Location, error) {
	if c.Schedule.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", c.Schedule.Timezone, err)
	}
	return loc, nil
}

// Validate reports every missing or inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Feed.URL == "" {
		errs = append(errs, errors.New("feed.url is required"))
	}
	if c.Server.BaseURL == "" {
		errs = append(errs, errors.New("server.base_url is required"))
	}

	switch c.Store.Driver {
	case StoreDriverSQLite:
		if c.Store.SQLite.Path == "" {
			errs = append(errs, errors.New("store.sqlite.path is required"))
		}
	case StoreDriverRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}

	if c.Slack.Channel == "" {
		errs = append(errs, errors.New("slack.channel is required"))
	}
	switch c.Slack.Delivery {
	case DeliveryAPI:
		if c.Slack.Token == "" {
			errs = append(errs, errors.New("slack.token is required for api delivery"))
		}
	case DeliveryQueue:
		if c.Slack.QueueKey == "" {
			errs = append(errs, errors.New("slack.queue_key is required for queue delivery"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown slack.delivery %q", c.Slack.Delivery))
	}

	switch c.TextChannel.Delivery {
	case DeliveryDiscord:
		if c.Discord.WebhookURL == "" {
			errs = append(errs, errors.New("discord.webhook_url is required for discord delivery"))
		}
	case DeliveryMastodon:
		if c.Mastodon.InstanceURL == "" || c.Mastodon.AccessToken == "" {
			errs = append(errs, errors.New("mastodon.instance_url and mastodon.access_token are required for mastodon delivery"))
		}
	case DeliveryQueue:
		if c.TextChannel.QueueKey == "" {
			errs = append(errs, errors.New("text_channel.queue_key is required for queue delivery"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown text_channel.delivery %q", c.TextChannel.Delivery))
	}
	errs = append(errs, c.validateQueueKeys()...)

	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// validateQueueKeys rejects queue keys that the redis store would list as items.
func (c *Config) validateQueueKeys() []error {
	if c.Store.Driver != StoreDriverRedis {
		return nil
	}
	queues := []struct {
		name     string
		delivery string
		key      string
	}{
		{"slack.queue_key", c.Slack.Delivery, c.Slack.QueueKey},
		{"text_channel.queue_key", c.TextChannel.Delivery, c.TextChannel.QueueKey},
	}
	var errs []error
	for _, q := range queues {
		if q.delivery != DeliveryQueue || q.key == "" {
			continue
		}
		if strings.HasPrefix(q.key, c.Redis.KeyPrefix) {
			errs = append(errs, fmt.Errorf("%s %q must not start with redis.key_prefix %q", q.name, q.key, c.Redis.KeyPrefix))
		}
	}
	return errs
}

// UsesRedis reports whether any configured component needs a Redis connection.
func (c *Config) UsesRedis() bool {
	return c.Store.Driver == StoreDriverRedis ||
		c.Slack.Delivery == DeliveryQueue ||
		c.TextChannel.Delivery == DeliveryQueue
}
