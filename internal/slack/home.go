package slack

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/capitalize-ai/assistant/internal/model"
	"github.com/capitalize-ai/assistant/internal/service"
)

// homeView renders the app home tab with a model picker.
func homeView(models []model.ModelInfo, current *model.UserProfile) slack.HomeTabViewRequest {
	var (
		options []*slack.OptionBlockObject
		initial *slack.OptionBlockObject
	)
	for _, m := range models {
		label := m.Label
		if label == "" {
			label = m.Model
		}
		opt := slack.NewOptionBlockObject(
			m.Model+" "+m.Provider,
			slack.NewTextBlockObject(slack.PlainTextType, fmt.Sprintf("%s (%s)", label, m.Provider), true, false),
			nil,
		)
		options = append(options, opt)
		if current != nil && current.Model == m.Model && current.Provider == m.Provider {
			initial = opt
		}
	}

	picker := slack.NewOptionsSelectBlockElement(
		slack.OptTypeStatic,
		slack.NewTextBlockObject(slack.PlainTextType, "Select a model", true, false),
		ModelAction,
		options...,
	)
	picker.InitialOption = initial

	return slack.HomeTabViewRequest{
		Type: slack.VTHomeTab,
		Blocks: slack.Blocks{BlockSet: []slack.Block{
			slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, "Welcome to "+service.BotName+"'s Home Page!", true, false)),
			slack.NewDividerBlock(),
			slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, "*Pick a model*", false, false), nil, nil),
			slack.NewActionBlock("model_picker", picker),
		}},
	}
}

func (b *Bot) publishHome(ctx context.Context, userID string) {
	profile, err := b.profiles.Get(ctx, userID)
	if err != nil {
		b.logger.Warn("failed to load profile for home tab", zap.String("user_id", userID), zap.Error(err))
	}

	_, err = b.api.PublishViewContext(ctx, slack.PublishViewContextRequest{
		UserID: userID,
		View:   homeView(b.profiles.Models(), profile),
	})
	if err != nil {
		b.logger.Error("failed to publish home tab", zap.String("user_id", userID), zap.Error(err))
	}
}

// selectModel applies a picker value of the form "<model> <provider>".
func (b *Bot) selectModel(ctx context.Context, userID, value string) {
	name, provider, _ := strings.Cut(value, " ")
	if _, err := b.profiles.Update(ctx, userID, &model.UpdateProfileRequest{Provider: provider, Model: name}); err != nil {
		b.logger.Warn("failed to update model", zap.String("user_id", userID), zap.String("value", value), zap.Error(err))
		return
	}
	b.publishHome(ctx, userID)
}
