package booklaunchbot

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
)

const (
	// BlockMessageAction is the Slack Web API method used to deliver a BlockMessage.
	BlockMessageAction = "chat.postMessage"
	// TextMessageAction identifies a plain text post for the text channel.
	TextMessageAction = "messages.create"
)

// displayLocation is the zone dates are rendered in, regardless of the host's TZ.
var displayLocation = time.FixedZone("JST", 9*60*60)

const displayDateLayout = "2006/1/2"

// BlockMessage is a Slack message built from blocks.
type BlockMessage struct {
	Type string           `json:"type"`
	Body BlockMessageBody `json:"body"`
}

type BlockMessageBody struct {
	Channel string  `json:"channel"`
	Blocks  []Block `json:"blocks"`
}

type Block struct {
	Type string     `json:"type"`
	Text *BlockText `json:"text,omitempty"`
}

type BlockText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// TextMessage is a single markdown text post.
type TextMessage struct {
	Type string          `json:"type"`
	Body TextMessageBody `json:"body"`
}

type TextMessageBody struct {
	Content string `json:"content"`
}

// MessageFormatter builds channel payloads. Publication dates without a zone are
// read in the source location, the same one ingestion and the day window use, and
// always rendered in JST.
type MessageFormatter struct {
	source *time.Location
}

func NewMessageFormatter(source *time.Location) *MessageFormatter {
	if source == nil {
		source = displayLocation
	}
	return &MessageFormatter{source: source}
}

// FormatDate renders a publication date as y/m/d in JST.
// Dates that cannot be parsed are returned unchanged.
func (f *MessageFormatter) FormatDate(date string) string {
	t, err := ParsePublicationDate(date, f.source)
	if err != nil {
		return date
	}
	return t.In(displayLocation).Format(displayDateLayout)
}

// BlockMessage builds the Slack message: a header, a divider and one section per item.
func (f *MessageFormatter) BlockMessage(channel, title string, items []FeedItem) BlockMessage {
	blocks := []Block{
		{Type: "header", Text: &BlockText{Type: "plain_text", Text: title}},
		{Type: "divider"},
	}
	blocks = append(blocks, lo.Map(items, func(item FeedItem, _ int) Block {
		return Block{
			Type: "section",
			Text: &BlockText{
				Type: "mrkdwn",
				Text: fmt.Sprintf("*%s*\n%s\n%s", item.Title, f.FormatDate(item.Date), item.Link),
			},
		}
	})...)

	return BlockMessage{
		Type: BlockMessageAction,
		Body: BlockMessageBody{
			Channel: channel,
			Blocks:  blocks,
		},
	}
}

// TextMessage builds a markdown post with a heading per item.
func (f *MessageFormatter) TextMessage(title string, items []FeedItem) TextMessage {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", title)
	for _, item := range items {
		fmt.Fprintf(&b, "## %s\n%s\n%s\n", item.Title, f.FormatDate(item.Date), item.Link)
	}
	return TextMessage{
		Type: TextMessageAction,
		Body: TextMessageBody{Content: strings.TrimSuffix(b.String(), "\n")},
	}
}

// FormatDisplayDate is FormatDate with zone-less dates read in JST.
func FormatDisplayDate(date string) string {
	return NewMessageFormatter(displayLocation).FormatDate(date)
}

// NewBlockMessage is BlockMessage with zone-less dates read in JST.
func NewBlockMessage(channel, title string, items []FeedItem) BlockMessage {
	return NewMessageFormatter(displayLocation).BlockMessage(channel, title, items)
}

// NewTextMessage is TextMessage with zone-less dates read in JST.
func NewTextMessage(title string, items []FeedItem) TextMessage {
	return NewMessageFormatter(displayLocation).TextMessage(title, items)
}
