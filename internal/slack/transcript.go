package slack

import (
	"context"
	"strings"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/capitalize-ai/assistant/internal/model"
)

// transcript returns the thread's earlier messages, oldest first. Bot
// messages become assistant turns. The message at skipTS is left out.
func (b *Bot) transcript(ctx context.Context, channelID, threadTS, skipTS string) []model.Message {
	if threadTS == "" {
		return nil
	}

	msgs, _, _, err := b.api.GetConversationRepliesContext(ctx, &slack.GetConversationRepliesParameters{
		ChannelID: channelID,
		Timestamp: threadTS,
		Limit:     b.cfg.HistoryLimit,
	})
	if err != nil {
		b.logger.Warn("failed to fetch thread history",
			zap.String("channel_id", channelID),
			zap.String("thread_ts", threadTS),
			zap.Error(err),
		)
		return nil
	}

	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Timestamp == skipTS || strings.TrimSpace(m.Text) == "" {
			continue
		}
		role := model.RoleUser
		if m.BotID != "" {
			role = model.RoleAssistant
		}
		out = append(out, model.Message{Role: role, Content: stripMentions(m.Text)})
	}
	return out
}
