package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/slack-go/slack"
)

// ConversationLister is the subset of *slack.Client used to look channels up
type ConversationLister interface {
	GetConversationsContext(ctx context.Context, params *slack.GetConversationsParameters) ([]slack.Channel, string, error)
}

// ChannelResolver turns a configured mirror channel ("#qualidade", "qualidade"
// or an ID) into a channel ID, caching the lookups.
type ChannelResolver struct {
	lister ConversationLister
	mu     sync.RWMutex
	cache  map[string]string
}

// NewChannelResolver creates a resolver over lister
func NewChannelResolver(lister ConversationLister) *ChannelResolver {
	return &ChannelResolver{lister: lister, cache: make(map[string]string)}
}

// Resolve returns the channel ID for nameOrID
func (r *ChannelResolver) Resolve(ctx context.Context, nameOrID string) (string, error) {
	nameOrID = strings.TrimSpace(nameOrID)
	if nameOrID == "" {
		return "", fmt.Errorf("slack channel is empty")
	}
	if isChannelID(nameOrID) {
		return nameOrID, nil
	}
	name := strings.TrimPrefix(nameOrID, "#")

	r.mu.RLock()
	id, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return id, nil
	}

	for _, kind := range []string{"public_channel", "private_channel"} {
		id, err := r.find(ctx, name, kind)
		if err != nil {
			return "", err
		}
		if id != "" {
			r.mu.Lock()
			r.cache[name] = id
			r.mu.Unlock()
			log.Printf("SlackMirror: resolved channel '%s' to '%s'", name, id)
			return id, nil
		}
	}
	return "", fmt.Errorf("slack channel '%s' not found", name)
}

// find pages through the conversations of one kind
func (r *ChannelResolver) find(ctx context.Context, name, kind string) (string, error) {
	cursor := ""
	for {
		channels, next, err := r.lister.GetConversationsContext(ctx, &slack.GetConversationsParameters{
			Cursor:          cursor,
			ExcludeArchived: true,
			Limit:           1000,
			Types:           []string{kind},
		})
		if err != nil {
			return "", fmt.Errorf("failed to list %s conversations: %w", kind, err)
		}
		for _, ch := range channels {
			if ch.Name == name {
				return ch.ID, nil
			}
		}
		if next == "" {
			return "", nil
		}
		cursor = next
	}
}

// isChannelID reports whether s looks like a Slack channel ID (C or G
// followed by upper-case alphanumerics)
func isChannelID(s string) bool {
	if len(s) < 9 || len(s) > 15 {
		return false
	}
	if s[0] != 'C' && s[0] != 'G' {
		return false
	}
	for _, c := range s[1:] {
		if !((c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			return false
		}
	}
	return true
}
