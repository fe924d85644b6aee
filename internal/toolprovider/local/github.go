package local

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v69/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	oauth2github "golang.org/x/oauth2/github"

	"github.com/capitalize-ai/assistant/internal/model"
	"github.com/capitalize-ai/assistant/pkg/logger"
)

// GitHubProvider is the OAuth provider name of the GitHub toolkit.
const GitHubProvider = "github"

// GitHubOAuthConfig returns the OAuth config for GitHub consent.
func GitHubOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"repo", "read:user"},
		Endpoint:     oauth2github.Endpoint,
	}
}

// GitHubToolkit builds GitHub tools backed by go-github.
type GitHubToolkit struct {
	// BaseURL overrides the API endpoint (GitHub Enterprise, tests).
	BaseURL string
	Logger  *logger.Logger
}

func (g GitHubToolkit) client(token *oauth2.Token) (*gogithub.Client, error) {
	c := gogithub.NewClient(nil)
	if token != nil {
		c = c.WithAuthToken(token.AccessToken)
	}
	if g.BaseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(g.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("github base url: %w", err)
		}
		c.BaseURL = u
	}
	return c, nil
}

// Tools returns the GitHub tools.
func (g GitHubToolkit) Tools() []Tool {
	repoParam := map[string]any{
		"type":        "string",
		"description": "Repository in owner/name form",
	}
	stateParam := map[string]any{
		"type":        "string",
		"enum":        []string{"open", "closed", "all"},
		"description": "Filter by state (default open)",
	}

	return []Tool{
		{
			Info: model.ToolInfo{
				Name:        "GitHub.ListPullRequests",
				Description: "List pull requests in a GitHub repository.",
				Toolkit:     "GitHub",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{"repo": repoParam, "state": stateParam},
					"required":   []string{"repo"},
				},
			},
			AuthProvider: GitHubProvider,
			Run:          g.listPullRequests,
		},
		{
			Info: model.ToolInfo{
				Name:        "GitHub.ListIssues",
				Description: "List issues in a GitHub repository.",
				Toolkit:     "GitHub",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{"repo": repoParam, "state": stateParam},
					"required":   []string{"repo"},
				},
			},
			AuthProvider: GitHubProvider,
			Run:          g.listIssues,
		},
		{
			Info: model.ToolInfo{
				Name:        "GitHub.GetRepository",
				Description: "Get details about a GitHub repository.",
				Toolkit:     "GitHub",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{"repo": repoParam},
					"required":   []string{"repo"},
				},
			},
			AuthProvider: GitHubProvider,
			Run:          g.getRepository,
		},
	}
}

type repoArgs struct {
	Repo  string `json:"repo"`
	State string `json:"state"`
}

func parseRepoArgs(args json.RawMessage) (repoArgs, string, string, error) {
	var a repoArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return a, "", "", fmt.Errorf("invalid arguments: %w", err)
		}
	}
	if a.State == "" {
		a.State = "open"
	}
	owner, name, err := splitRepo(a.Repo)
	return a, owner, name, err
}

// splitRepo splits a "owner/repo" string into its two parts.
func splitRepo(repo string) (string, string, error) {
	parts := strings.SplitN(repo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo %q: expected owner/repo", repo)
	}
	return parts[0], parts[1], nil
}

// checkRateLimit logs a warning when remaining API calls drop below threshold.
func (g GitHubToolkit) checkRateLimit(resp *gogithub.Response) {
	if resp == nil || g.Logger == nil {
		return
	}
	if resp.Rate.Limit > 0 && resp.Rate.Remaining < 100 {
		g.Logger.Warn("github rate limit low",
			zap.Int("remaining", resp.Rate.Remaining),
			zap.Time("reset", resp.Rate.Reset.Time),
		)
	}
}

type pullRequestSummary struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	State     string    `json:"state"`
	Author    string    `json:"author"`
	URL       string    `json:"url"`
	Draft     bool      `json:"draft"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (g GitHubToolkit) listPullRequests(ctx context.Context, args json.RawMessage, token *oauth2.Token) (string, error) {
	a, owner, name, err := parseRepoArgs(args)
	if err != nil {
		return "", err
	}
	c, err := g.client(token)
	if err != nil {
		return "", err
	}

	prs, resp, err := c.PullRequests.List(ctx, owner, name, &gogithub.PullRequestListOptions{
		State:       a.State,
		ListOptions: gogithub.ListOptions{PerPage: 30},
	})
	if err != nil {
		return "", fmt.Errorf("list pull requests: %w", err)
	}
	g.checkRateLimit(resp)

	out := make([]pullRequestSummary, 0, len(prs))
	for _, pr := range prs {
		out = append(out, pullRequestSummary{
			Number:    pr.GetNumber(),
			Title:     pr.GetTitle(),
			State:     pr.GetState(),
			Author:    pr.GetUser().GetLogin(),
			URL:       pr.GetHTMLURL(),
			Draft:     pr.GetDraft(),
			UpdatedAt: pr.GetUpdatedAt().Time,
		})
	}
	return marshal(out)
}

type issueSummary struct {
	Number int      `json:"number"`
	Title  string   `json:"title"`
	State  string   `json:"state"`
	Author string   `json:"author"`
	URL    string   `json:"url"`
	Labels []string `json:"labels,omitempty"`
}

func (g GitHubToolkit) listIssues(ctx context.Context, args json.RawMessage, token *oauth2.Token) (string, error) {
	a, owner, name, err := parseRepoArgs(args)
	if err != nil {
		return "", err
	}
	c, err := g.client(token)
	if err != nil {
		return "", err
	}

	issues, resp, err := c.Issues.ListByRepo(ctx, owner, name, &gogithub.IssueListByRepoOptions{
		State:       a.State,
		ListOptions: gogithub.ListOptions{PerPage: 30},
	})
	if err != nil {
		return "", fmt.Errorf("list issues: %w", err)
	}
	g.checkRateLimit(resp)

	out := make([]issueSummary, 0, len(issues))
	for _, is := range issues {
		// The issues endpoint also returns pull requests.
		if is.IsPullRequest() {
			continue
		}
		s := issueSummary{
			Number: is.GetNumber(),
			Title:  is.GetTitle(),
			State:  is.GetState(),
			Author: is.GetUser().GetLogin(),
			URL:    is.GetHTMLURL(),
		}
		for _, l := range is.Labels {
			s.Labels = append(s.Labels, l.GetName())
		}
		out = append(out, s)
	}
	return marshal(out)
}

type repositorySummary struct {
	FullName      string `json:"full_name"`
	Description   string `json:"description"`
	DefaultBranch string `json:"default_branch"`
	Private       bool   `json:"private"`
	Stars         int    `json:"stars"`
	OpenIssues    int    `json:"open_issues"`
	URL           string `json:"url"`
}

func (g GitHubToolkit) getRepository(ctx context.Context, args json.RawMessage, token *oauth2.Token) (string, error) {
	_, owner, name, err := parseRepoArgs(args)
	if err != nil {
		return "", err
	}
	c, err := g.client(token)
	if err != nil {
		return "", err
	}

	repo, resp, err := c.Repositories.Get(ctx, owner, name)
	if err != nil {
		return "", fmt.Errorf("get repository: %w", err)
	}
	g.checkRateLimit(resp)

	return marshal(repositorySummary{
		FullName:      repo.GetFullName(),
		Description:   repo.GetDescription(),
		DefaultBranch: repo.GetDefaultBranch(),
		Private:       repo.GetPrivate(),
		Stars:         repo.GetStargazersCount(),
		OpenIssues:    repo.GetOpenIssuesCount(),
		URL:           repo.GetHTMLURL(),
	})
}

func marshal(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
