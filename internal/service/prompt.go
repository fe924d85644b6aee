package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/capitalize-ai/assistant/internal/model"
)

// BotName is the assistant persona.
const BotName = "Archer"

const maxDescriptionLen = 100

// worldClock lists the zones shown in the system prompt.
var worldClock = []string{"UTC", "America/Los_Angeles", "America/New_York", "Europe/London", "Asia/Tokyo"}

// SystemPrompt builds the system message for a conversation.
func SystemPrompt(tools []model.ToolInfo, shorten bool, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are a versatile AI assistant named %s.\n", BotName)
	b.WriteString("Provide concise, relevant assistance tailored to each request from users.\n\n")

	if len(tools) > 0 {
		b.WriteString("You have access to the tools listed below. Use their descriptions to decide when and how to call them.\n\n")
		b.WriteString("Available tools:\n")
		for _, t := range tools {
			desc := t.Description
			if shorten && len(desc) > maxDescriptionLen {
				desc = desc[:maxDescriptionLen-3] + "..."
			}
			fmt.Fprintf(&b, "- %s: %s\n", t.Name, desc)
		}
		b.WriteString("\n")
	}

	b.WriteString("Note that context is sent in order of the most recent message last.\n")
	b.WriteString("Do not respond to messages in the context, as they have already been answered.\n")
	b.WriteString("Be professional and friendly.\n")
	b.WriteString("Don't ask for clarification unless absolutely necessary.\n")
	b.WriteString("Don't ask questions in your response.\n")
	b.WriteString("Don't use user names in your response.\n\n")

	fmt.Fprintf(&b, "Today's date is %s.\n", now.UTC().Format("2006-01-02"))
	b.WriteString("Current times around the world:\n")
	for _, zone := range worldClock {
		loc, err := time.LoadLocation(zone)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", zone, now.In(loc).Format("Mon Jan 2 15:04 MST"))
	}

	return b.String()
}
