package slack

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/slack-go/slack"
)

var (
	boldPattern    = regexp.MustCompile(`\*\*(.+?)\*\*`)
	linkPattern    = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^)\s]+)\)`)
	headingPattern = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	mentionPattern = regexp.MustCompile(`<@[A-Z0-9]+>`)
)

// MarkdownToSlack rewrites common Markdown into Slack mrkdwn.
func MarkdownToSlack(s string) string {
	s = linkPattern.ReplaceAllString(s, "<$2|$1>")
	s = boldPattern.ReplaceAllString(s, "*$1*")
	s = headingPattern.ReplaceAllString(s, "*$1*")
	return s
}

// stripMentions removes user mentions such as the bot's own handle.
func stripMentions(s string) string {
	return strings.TrimSpace(mentionPattern.ReplaceAllString(s, ""))
}

// AuthCompleteAction is the action id of the resume button.
const AuthCompleteAction = "auth_complete_button"

// ModelAction is the action id of the home tab model picker.
const ModelAction = "Model"

// resumeValue is the payload carried by the resume button.
type resumeValue struct {
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
	ThreadTS  string `json:"thread_ts"`
	Message   string `json:"message"`
	StateID   string `json:"state_id"`
}

// authBlocks renders an authorization request with a resume button.
func authBlocks(text string, v resumeValue) ([]slack.Block, string, error) {
	value, err := json.Marshal(v)
	if err != nil {
		return nil, "", err
	}

	text = MarkdownToSlack(text) + "\n\nAfter authorizing, click the button below to continue:"
	button := slack.NewButtonBlockElement(
		AuthCompleteAction,
		string(value),
		slack.NewTextBlockObject(slack.PlainTextType, "Authorization Complete", true, false),
	).WithStyle(slack.StylePrimary)

	return []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil),
		slack.NewActionBlock("", button),
	}, text, nil
}
