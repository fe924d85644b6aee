package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/capitalize-ai/assistant/internal/model"
	"github.com/capitalize-ai/assistant/internal/toolprovider"
	"github.com/capitalize-ai/assistant/pkg/logger"
)

type fakeProvider struct {
	requires      map[string]bool
	auth          map[string]toolprovider.AuthResponse
	err           error
	requiresCalls int
}

func (f *fakeProvider) ListTools(context.Context) ([]model.ToolInfo, error) { return nil, nil }

func (f *fakeProvider) RequiresAuth(_ context.Context, tool string) (bool, error) {
	f.requiresCalls++
	if f.err != nil {
		return false, f.err
	}
	return f.requires[tool], nil
}

func (f *fakeProvider) Authorize(_ context.Context, tool, _ string) (toolprovider.AuthResponse, error) {
	if f.err != nil {
		return toolprovider.AuthResponse{}, f.err
	}
	return f.auth[tool], nil
}

func (f *fakeProvider) Execute(context.Context, string, json.RawMessage, string) (toolprovider.Result, error) {
	return toolprovider.Result{}, nil
}

func TestRequiresAuthCaches(t *testing.T) {
	p := &fakeProvider{requires: map[string]bool{"GitHub.ListIssues": true}}
	g := New(p, logger.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := g.RequiresAuth(ctx, "GitHub.ListIssues")
		if err != nil || !ok {
			t.Fatalf("RequiresAuth = %v, %v", ok, err)
		}
	}
	if p.requiresCalls != 1 {
		t.Errorf("provider called %d times, want 1", p.requiresCalls)
	}
}

func TestAuthorize(t *testing.T) {
	p := &fakeProvider{auth: map[string]toolprovider.AuthResponse{
		"GitHub.ListIssues": {Status: toolprovider.AuthStatusPending, URL: "https://auth/xyz", Provider: "github"},
		"Google.SendEmail":  {Status: toolprovider.AuthStatusCompleted, Provider: "google"},
	}}
	g := New(p, logger.NewNop())
	ctx := context.Background()

	a, err := g.Authorize(ctx, "GitHub.ListIssues", "U1")
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if a.Completed || a.URL != "https://auth/xyz" || a.Provider != "github" {
		t.Errorf("pending authorization = %+v", a)
	}

	a, err = g.Authorize(ctx, "Google.SendEmail", "U1")
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if !a.Completed {
		t.Errorf("completed authorization = %+v", a)
	}
}

func TestProviderErrorsAreUnavailable(t *testing.T) {
	cause := errors.New("connection refused")
	g := New(&fakeProvider{err: cause}, logger.NewNop())
	ctx := context.Background()

	if _, err := g.RequiresAuth(ctx, "x"); !errors.Is(err, ErrUnavailable) || !errors.Is(err, cause) {
		t.Errorf("RequiresAuth err = %v, want ErrUnavailable wrapping cause", err)
	}
	a, err := g.Authorize(ctx, "x", "U1")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Authorize err = %v, want ErrUnavailable", err)
	}
	if a.Completed {
		t.Error("failed authorize must not report completion")
	}
}
