package notify

import (
	"context"
	"fmt"
	"log"

	"github.com/slack-go/slack"
)

// SlackPoster is the subset of *slack.Client used by the mirror
type SlackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// SlackMirror wraps a Dispatcher and echoes every delivered alert to a Slack
// channel. Slack failures are logged and never change the outcome.
type SlackMirror struct {
	next    Dispatcher
	poster  SlackPoster
	channel string
}

// NewSlackMirror wraps next; it returns next unchanged when Slack is not configured
func NewSlackMirror(next Dispatcher, poster SlackPoster, channel string) Dispatcher {
	if poster == nil || channel == "" {
		return next
	}
	return &SlackMirror{next: next, poster: poster, channel: channel}
}

// NewSlackClient builds a Slack web client from a bot token, nil when token is empty
func NewSlackClient(botToken string) *slack.Client {
	if botToken == "" {
		return nil
	}
	return slack.New(botToken)
}

// Send delegates to the wrapped dispatcher and mirrors delivered messages
func (m *SlackMirror) Send(ctx context.Context, to, template string, data map[string]interface{}) (Outcome, error) {
	out, err := m.next.Send(ctx, to, template, data)
	if err != nil || !out.Delivered {
		return out, err
	}

	text := fmt.Sprintf(":rotating_light: *%s* for %v (%v) sent to %s", template, data["IncidentID"], data["Sector"], out.Recipient)
	if _, _, postErr := m.poster.PostMessageContext(ctx, m.channel, slack.MsgOptionText(text, false)); postErr != nil {
		log.Printf("SlackMirror: failed to post to %s: %v", m.channel, postErr)
	}
	return out, nil
}
