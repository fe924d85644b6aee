package local

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/capitalize-ai/assistant/internal/model"
)

// UtilityTools returns tools that need no authorization.
func UtilityTools(now func() time.Time) []Tool {
	if now == nil {
		now = time.Now
	}
	return []Tool{{
		Info: model.ToolInfo{
			Name:        "Utility.CurrentTime",
			Description: "Get the current date and time, optionally in an IANA time zone.",
			Toolkit:     "Utility",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"timezone": map[string]any{
						"type":        "string",
						"description": "IANA time zone such as America/New_York (default UTC)",
					},
				},
			},
		},
		Run: func(_ context.Context, args json.RawMessage, _ *oauth2.Token) (string, error) {
			var a struct {
				Timezone string `json:"timezone"`
			}
			if len(args) > 0 {
				if err := json.Unmarshal(args, &a); err != nil {
					return "", fmt.Errorf("invalid arguments: %w", err)
				}
			}
			loc := time.UTC
			if a.Timezone != "" {
				l, err := time.LoadLocation(a.Timezone)
				if err != nil {
					return "", fmt.Errorf("unknown time zone %q", a.Timezone)
				}
				loc = l
			}
			return now().In(loc).Format("Monday, January 2, 2006 15:04 MST"), nil
		},
	}}
}
