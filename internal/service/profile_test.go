package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/capitalize-ai/assistant/internal/model"
	"github.com/capitalize-ai/assistant/internal/store"
	"github.com/capitalize-ai/assistant/pkg/logger"
)

func TestProfileDefaults(t *testing.T) {
	kv := store.NewMemory(0)
	svc := NewProfileService(kv, catalog, "openai", "gpt-4o", logger.NewNop())
	ctx := context.Background()

	p, err := svc.Get(ctx, "U1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Provider != "openai" || p.Model != "gpt-4o" {
		t.Errorf("profile = %+v", p)
	}
	if ok, _ := kv.Exists(ctx, store.ProfileKey("U1")); !ok {
		t.Error("default profile should be persisted on first contact")
	}
}

func TestProfileUpdate(t *testing.T) {
	svc := NewProfileService(store.NewMemory(0), catalog, "openai", "gpt-4o", logger.NewNop())
	ctx := context.Background()

	p, err := svc.Update(ctx, "U1", &model.UpdateProfileRequest{Model: "claude-sonnet-4-5"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if p.Provider != "anthropic" {
		t.Errorf("provider = %q, want inferred anthropic", p.Provider)
	}

	got, _ := svc.Get(ctx, "U1")
	if got.Model != "claude-sonnet-4-5" {
		t.Errorf("stored model = %q", got.Model)
	}

	if _, err := svc.Update(ctx, "U1", &model.UpdateProfileRequest{Model: "nope"}); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("err = %v, want ErrUnknownModel", err)
	}
	if _, err := svc.Update(ctx, "U1", &model.UpdateProfileRequest{Provider: "openai", Model: "claude-sonnet-4-5"}); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("mismatched provider err = %v, want ErrUnknownModel", err)
	}
}

func TestSystemPrompt(t *testing.T) {
	long := strings.Repeat("x", 150)
	tools := []model.ToolInfo{
		{Name: "GitHub.ListIssues", Description: "List issues"},
		{Name: "Google.SendEmail", Description: long},
	}
	now := time.Date(2026, 10, 18, 15, 4, 0, 0, time.UTC)

	short := SystemPrompt(tools, true, now)
	if !strings.Contains(short, "- Google.SendEmail: "+strings.Repeat("x", 97)+"...\n") {
		t.Error("long description should be shortened to 100 characters")
	}
	if !strings.Contains(short, "- GitHub.ListIssues: List issues\n") {
		t.Error("short description should be kept")
	}
	if !strings.Contains(short, "2026-10-18") || !strings.Contains(short, BotName) {
		t.Error("prompt should carry the date and persona")
	}
	if !strings.Contains(short, "UTC: Sun Oct 18 15:04 UTC") {
		t.Errorf("prompt should list UTC time:\n%s", short)
	}

	full := SystemPrompt(tools, false, now)
	if !strings.Contains(full, long) {
		t.Error("description should be untouched when shortening is off")
	}

	if strings.Contains(SystemPrompt(nil, false, now), "Available tools") {
		t.Error("no tools section expected without tools")
	}
}
