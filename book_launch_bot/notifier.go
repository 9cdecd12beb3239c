package booklaunchbot

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Notifier formats a list of items for both channels and sends them.
type Notifier struct {
	slackChannel string
	formatter    *MessageFormatter
	blockSink    MessageSink[BlockMessage]
	textSink     MessageSink[TextMessage]
}

// NewNotifier creates a Notifier. slackChannel is the channel ID placed in BlockMessages.
// location is where publication dates without a zone are read.
func NewNotifier(slackChannel string, location *time.Location, blockSink MessageSink[BlockMessage], textSink MessageSink[TextMessage]) (*Notifier, error) {
	if blockSink == nil {
		return nil, fmt.Errorf("%w: block message sink", ErrSinkNotConfigured)
	}
	if textSink == nil {
		return nil, fmt.Errorf("%w: text message sink", ErrSinkNotConfigured)
	}
	return &Notifier{
		slackChannel: slackChannel,
		formatter:    NewMessageFormatter(location),
		blockSink:    blockSink,
		textSink:     textSink,
	}, nil
}

// Notify sends the items to both sinks. A failing sink does not prevent delivery to
// the other one; each failure is logged and all of them are returned joined.
func (n *Notifier) Notify(ctx context.Context, title string, items []FeedItem) error {
	if len(items) == 0 {
		return nil
	}

	blockErr := n.blockSink.Send(ctx, n.formatter.BlockMessage(n.slackChannel, title, items))
	if blockErr != nil {
		pkgLogger.Error("Failed to send block message", "title", title, "error", blockErr)
		blockErr = fmt.Errorf("block message: %w", blockErr)
	}

	textErr := n.textSink.Send(ctx, n.formatter.TextMessage(title, items))
	if textErr != nil {
		pkgLogger.Error("Failed to send text message", "title", title, "error", textErr)
		textErr = fmt.Errorf("text message: %w", textErr)
	}

	return errors.Join(blockErr, textErr)
}
