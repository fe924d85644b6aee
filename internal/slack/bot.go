// Package slack connects the assistant to Slack through the Events API,
// interactive components, slash commands, and the app home tab.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"go.uber.org/zap"

	"github.com/capitalize-ai/assistant/internal/model"
	"github.com/capitalize-ai/assistant/internal/service"
	"github.com/capitalize-ai/assistant/pkg/logger"
)

const (
	thinkingText      = "Thinking..."
	resumingText      = "Resuming... :hourglass_flowing_sand:"
	emptyMentionText  = "Hi! Mention me with a question and I'll do my best to help."
	emptyPromptText   = "Looks like you didn't provide a prompt. Try again."
	commandFailedText = "Looks like something went wrong. Please try again."

	maxBodyBytes = 1 << 20
)

var errBadSignature = errors.New("invalid slack signature")

// Conversations runs and resumes conversation turns.
type Conversations interface {
	HandleEvent(ctx context.Context, ev model.InboundEvent) (service.Reply, error)
	Resume(ctx context.Context, req model.ResumeRequest) (service.Reply, error)
}

// Profiles reads and updates user model preferences.
type Profiles interface {
	Get(ctx context.Context, userID string) (*model.UserProfile, error)
	Update(ctx context.Context, userID string, req *model.UpdateProfileRequest) (*model.UserProfile, error)
	Models() []model.ModelInfo
}

// Config configures the bot.
type Config struct {
	SigningSecret string
	HistoryLimit  int
	// Timeout bounds the background work started for one Slack request.
	Timeout time.Duration
}

// Bot serves Slack's HTTP callbacks.
type Bot struct {
	cfg           Config
	api           API
	conversations Conversations
	profiles      Profiles
	logger        *logger.Logger

	// async runs work after Slack has been acknowledged.
	async func(func())
}

// NewBot creates a bot.
func NewBot(cfg Config, api API, conversations Conversations, profiles Profiles, log *logger.Logger) *Bot {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 15
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &Bot{
		cfg:           cfg,
		api:           api,
		conversations: conversations,
		profiles:      profiles,
		logger:        log.Named("slack"),
		async:         func(f func()) { go f() },
	}
}

// Events handles Events API deliveries.
func (b *Bot) Events(w http.ResponseWriter, r *http.Request) {
	body, err := b.verify(r)
	if err != nil {
		b.reject(w, err)
		return
	}

	ev, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		b.logger.Warn("failed to parse slack event", zap.Error(err))
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	switch ev.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(challenge.Challenge))

	case slackevents.CallbackEvent:
		var eventID string
		if cb, ok := ev.Data.(*slackevents.EventsAPICallbackEvent); ok {
			eventID = cb.EventID
		}
		w.WriteHeader(http.StatusOK)
		b.dispatch(eventID, ev.InnerEvent)

	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (b *Bot) dispatch(eventID string, inner slackevents.EventsAPIInnerEvent) {
	switch e := inner.Data.(type) {
	case *slackevents.AppMentionEvent:
		if e.BotID != "" {
			return
		}
		thread := e.ThreadTimeStamp
		if thread == "" {
			thread = e.TimeStamp
		}
		text := stripMentions(e.Text)
		b.async(func() {
			ctx, cancel := b.context()
			defer cancel()
			if text == "" {
				b.post(ctx, e.Channel, thread, emptyMentionText)
				return
			}
			b.converse(ctx, eventID, e.User, e.Channel, thread, e.TimeStamp, text)
		})

	case *slackevents.MessageEvent:
		if e.BotID != "" || e.SubType != "" || e.ChannelType != "im" {
			return
		}
		text := strings.TrimSpace(e.Text)
		if text == "" {
			return
		}
		b.async(func() {
			ctx, cancel := b.context()
			defer cancel()
			b.converse(ctx, eventID, e.User, e.Channel, e.ThreadTimeStamp, e.TimeStamp, text)
		})

	case *slackevents.AppHomeOpenedEvent:
		if e.Tab != "home" {
			return
		}
		b.async(func() {
			ctx, cancel := b.context()
			defer cancel()
			b.publishHome(ctx, e.User)
		})
	}
}

// converse runs one turn and replaces a placeholder with the result.
func (b *Bot) converse(ctx context.Context, eventID, userID, channelID, threadTS, messageTS, text string) {
	log := b.logger.WithTurn(userID, eventID).With(zap.String("channel_id", channelID))

	// History is read before the placeholder exists so it never becomes a turn.
	history := b.transcript(ctx, channelID, threadTS, messageTS)
	placeholder := b.post(ctx, channelID, threadTS, thinkingText)

	reply, err := b.conversations.HandleEvent(ctx, model.InboundEvent{
		EventID:    eventID,
		UserID:     userID,
		Text:       text,
		Locator:    model.Locator{ChannelID: channelID, ThreadTS: threadTS},
		Transcript: history,
	})
	if err != nil {
		log.Error("conversation turn failed", zap.Error(err))
	}
	if reply.Status == service.StatusDuplicate {
		b.remove(ctx, channelID, placeholder)
		return
	}

	b.deliver(ctx, channelID, threadTS, placeholder, resumeValue{
		UserID:    userID,
		ChannelID: channelID,
		ThreadTS:  threadTS,
		Message:   text,
	}, reply)
}

// deliver shows reply, editing the message at ts when one exists.
func (b *Bot) deliver(ctx context.Context, channelID, threadTS, ts string, v resumeValue, reply service.Reply) {
	var opts []slack.MsgOption
	if reply.Status == service.StatusAuthRequired {
		v.StateID = reply.SnapshotID
		blocks, text, err := authBlocks(reply.Content, v)
		if err != nil {
			b.logger.Error("failed to render authorization blocks", zap.Error(err))
			opts = []slack.MsgOption{slack.MsgOptionText(MarkdownToSlack(reply.Content), false)}
		} else {
			opts = []slack.MsgOption{slack.MsgOptionText(text, false), slack.MsgOptionBlocks(blocks...)}
		}
	} else {
		opts = []slack.MsgOption{slack.MsgOptionText(MarkdownToSlack(reply.Content), false)}
	}

	if ts != "" {
		_, _, _, err := b.api.UpdateMessageContext(ctx, channelID, ts, opts...)
		if err == nil {
			return
		}
		b.logger.Warn("failed to update placeholder", zap.String("channel_id", channelID), zap.Error(err))
	}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	if _, _, err := b.api.PostMessageContext(ctx, channelID, opts...); err != nil {
		b.logger.Error("failed to post reply", zap.String("channel_id", channelID), zap.Error(err))
	}
}

// Interactions handles block actions: the resume button and the model picker.
func (b *Bot) Interactions(w http.ResponseWriter, r *http.Request) {
	body, err := b.verify(r)
	if err != nil {
		b.reject(w, err)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	cb, err := slack.InteractionCallbackParse(r)
	if err != nil {
		b.logger.Warn("failed to parse interaction", zap.Error(err))
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)

	if cb.Type != slack.InteractionTypeBlockActions {
		return
	}
	for _, action := range cb.ActionCallback.BlockActions {
		switch action.ActionID {
		case AuthCompleteAction:
			var v resumeValue
			if err := json.Unmarshal([]byte(action.Value), &v); err != nil {
				b.logger.Warn("malformed resume button value", zap.Error(err))
				continue
			}
			if v.UserID != cb.User.ID {
				b.logger.Warn("resume button clicked by another user",
					zap.String("owner", v.UserID), zap.String("clicked_by", cb.User.ID))
				continue
			}
			eventID := "action:" + action.ActionTs
			b.async(func() {
				ctx, cancel := b.context()
				defer cancel()
				b.resume(ctx, eventID, v)
			})

		case ModelAction:
			userID, value := cb.User.ID, action.SelectedOption.Value
			b.async(func() {
				ctx, cancel := b.context()
				defer cancel()
				b.selectModel(ctx, userID, value)
			})
		}
	}
}

func (b *Bot) resume(ctx context.Context, eventID string, v resumeValue) {
	history := b.transcript(ctx, v.ChannelID, v.ThreadTS, "")
	placeholder := b.post(ctx, v.ChannelID, v.ThreadTS, resumingText)

	reply, err := b.conversations.Resume(ctx, model.ResumeRequest{
		EventID:    eventID,
		UserID:     v.UserID,
		SnapshotID: v.StateID,
		Message:    v.Message,
		Locator:    model.Locator{ChannelID: v.ChannelID, ThreadTS: v.ThreadTS},
		Transcript: history,
	})
	if err != nil {
		b.logger.Error("resume failed", zap.String("user_id", v.UserID), zap.String("snapshot_id", v.StateID), zap.Error(err))
	}

	b.remove(ctx, v.ChannelID, placeholder)
	if reply.Status == service.StatusDuplicate {
		return
	}
	b.deliver(ctx, v.ChannelID, v.ThreadTS, "", v, reply)
}

// Commands handles the slash command.
func (b *Bot) Commands(w http.ResponseWriter, r *http.Request) {
	body, err := b.verify(r)
	if err != nil {
		b.reject(w, err)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	cmd, err := slack.SlashCommandParse(r)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	text := strings.TrimSpace(cmd.Text)
	if text == "" {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"response_type": "ephemeral", "text": emptyPromptText})
		return
	}
	w.WriteHeader(http.StatusOK)

	eventID := "command:" + cmd.TriggerID
	b.async(func() {
		ctx, cancel := b.context()
		defer cancel()

		reply, err := b.conversations.HandleEvent(ctx, model.InboundEvent{
			EventID: eventID,
			UserID:  cmd.UserID,
			Text:    text,
			Locator: model.Locator{ChannelID: cmd.ChannelID},
		})
		if reply.Status == service.StatusDuplicate {
			return
		}

		var opts []slack.MsgOption
		switch {
		case err != nil && reply.Content == "":
			b.logger.Error("slash command failed", zap.String("user_id", cmd.UserID), zap.Error(err))
			opts = []slack.MsgOption{slack.MsgOptionText(commandFailedText, false)}
		case reply.Status == service.StatusAuthRequired:
			blocks, rendered, berr := authBlocks(reply.Content, resumeValue{
				UserID:    cmd.UserID,
				ChannelID: cmd.ChannelID,
				Message:   text,
				StateID:   reply.SnapshotID,
			})
			if berr != nil {
				opts = []slack.MsgOption{slack.MsgOptionText(commandFailedText, false)}
				break
			}
			opts = []slack.MsgOption{slack.MsgOptionText(rendered, false), slack.MsgOptionBlocks(blocks...)}
		default:
			opts = []slack.MsgOption{slack.MsgOptionText(MarkdownToSlack(reply.Content), false)}
		}

		if _, err := b.api.PostEphemeralContext(ctx, cmd.ChannelID, cmd.UserID, opts...); err != nil {
			b.logger.Error("failed to post command reply", zap.String("channel_id", cmd.ChannelID), zap.Error(err))
		}
	})
}

// verify reads the body and checks Slack's request signature.
func (b *Bot) verify(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}

	sv, err := slack.NewSecretsVerifier(r.Header, b.cfg.SigningSecret)
	if err != nil {
		return nil, errors.Join(errBadSignature, err)
	}
	if _, err := sv.Write(body); err != nil {
		return nil, err
	}
	if err := sv.Ensure(); err != nil {
		return nil, errors.Join(errBadSignature, err)
	}
	return body, nil
}

func (b *Bot) reject(w http.ResponseWriter, err error) {
	if errors.Is(err, errBadSignature) {
		b.logger.Warn("rejected slack request", zap.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	http.Error(w, "bad request", http.StatusBadRequest)
}

func (b *Bot) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), b.cfg.Timeout)
}

// post sends text and returns its timestamp, or "" on failure.
func (b *Bot) post(ctx context.Context, channelID, threadTS, text string) string {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	_, ts, err := b.api.PostMessageContext(ctx, channelID, opts...)
	if err != nil {
		b.logger.Warn("failed to post message", zap.String("channel_id", channelID), zap.Error(err))
		return ""
	}
	return ts
}

func (b *Bot) remove(ctx context.Context, channelID, ts string) {
	if ts == "" {
		return
	}
	if _, _, err := b.api.DeleteMessageContext(ctx, channelID, ts); err != nil {
		b.logger.Warn("failed to delete message", zap.String("channel_id", channelID), zap.Error(err))
	}
}
