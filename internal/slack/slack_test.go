package slack

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/slack-go/slack"

	"github.com/capitalize-ai/assistant/internal/model"
	"github.com/capitalize-ai/assistant/internal/service"
	"github.com/capitalize-ai/assistant/pkg/logger"
)

const testSecret = "signing-secret"

type sentMessage struct {
	method  string
	channel string
	ts      string
	values  url.Values
}

type fakeAPI struct {
	mu      sync.Mutex
	sent    []sentMessage
	deleted []string
	replies []slack.Message
	views   []slack.PublishViewContextRequest
	nextTS  int
}

func (f *fakeAPI) record(method, channel, ts string, opts []slack.MsgOption) string {
	_, values, _ := slack.UnsafeApplyMsgOptions("", channel, "", opts...)
	f.mu.Lock()
	defer f.mu.Unlock()
	if ts == "" {
		f.nextTS++
		ts = "900." + strconv.Itoa(f.nextTS)
	}
	f.sent = append(f.sent, sentMessage{method: method, channel: channel, ts: ts, values: values})
	if method == "post" && values.Get("thread_ts") != "" {
		f.replies = append(f.replies, slack.Message{Msg: slack.Msg{Timestamp: ts, BotID: "B1", Text: values.Get("text")}})
	}
	return ts
}

func (f *fakeAPI) PostMessageContext(_ context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	return channelID, f.record("post", channelID, "", options), nil
}

func (f *fakeAPI) PostEphemeralContext(_ context.Context, channelID, _ string, options ...slack.MsgOption) (string, error) {
	return f.record("ephemeral", channelID, "", options), nil
}

func (f *fakeAPI) UpdateMessageContext(_ context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error) {
	f.record("update", channelID, timestamp, options)
	return channelID, timestamp, "", nil
}

func (f *fakeAPI) DeleteMessageContext(_ context.Context, channel, ts string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ts)
	return channel, ts, nil
}

func (f *fakeAPI) GetConversationRepliesContext(_ context.Context, _ *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]slack.Message(nil), f.replies...), false, "", nil
}

func (f *fakeAPI) PublishViewContext(_ context.Context, req slack.PublishViewContextRequest) (*slack.ViewResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.views = append(f.views, req)
	return &slack.ViewResponse{}, nil
}

type fakeConversations struct {
	mu      sync.Mutex
	events  []model.InboundEvent
	resumes []model.ResumeRequest
	reply   service.Reply
	err     error
}

func (f *fakeConversations) HandleEvent(_ context.Context, ev model.InboundEvent) (service.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.reply, f.err
}

func (f *fakeConversations) Resume(_ context.Context, req model.ResumeRequest) (service.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumes = append(f.resumes, req)
	return f.reply, f.err
}

type fakeProfiles struct {
	updates []model.UpdateProfileRequest
	profile model.UserProfile
}

func (f *fakeProfiles) Get(_ context.Context, userID string) (*model.UserProfile, error) {
	p := f.profile
	p.UserID = userID
	return &p, nil
}

func (f *fakeProfiles) Update(_ context.Context, userID string, req *model.UpdateProfileRequest) (*model.UserProfile, error) {
	f.updates = append(f.updates, *req)
	f.profile.Provider, f.profile.Model = req.Provider, req.Model
	return f.Get(context.Background(), userID)
}

func (f *fakeProfiles) Models() []model.ModelInfo {
	return []model.ModelInfo{
		{Provider: "openai", Model: "gpt-4o", Label: "GPT-4o"},
		{Provider: "anthropic", Model: "claude-sonnet-4-5", Label: "Claude Sonnet"},
	}
}

func newTestBot() (*Bot, *fakeAPI, *fakeConversations, *fakeProfiles) {
	api := &fakeAPI{}
	conv := &fakeConversations{reply: service.Reply{Status: service.StatusDone, Content: "hello **world**"}}
	profiles := &fakeProfiles{profile: model.UserProfile{Provider: "openai", Model: "gpt-4o"}}
	b := NewBot(Config{SigningSecret: testSecret}, api, conv, profiles, logger.NewNop())
	b.async = func(f func()) { f() }
	return b, api, conv, profiles
}

func signedRequest(t *testing.T, path, contentType, body string) *http.Request {
	t.Helper()
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte("v0:" + ts + ":" + body))

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Slack-Request-Timestamp", ts)
	req.Header.Set("X-Slack-Signature", "v0="+hex.EncodeToString(mac.Sum(nil)))
	return req
}

func callback(eventID, inner string) string {
	return `{"token":"t","team_id":"T1","api_app_id":"A1","type":"event_callback","event_id":"` +
		eventID + `","event_time":1,"event":` + inner + `}`
}

func TestEventsURLVerification(t *testing.T) {
	b, _, _, _ := newTestBot()
	body := `{"token":"t","challenge":"abc123","type":"url_verification"}`

	w := httptest.NewRecorder()
	b.Events(w, signedRequest(t, "/slack/events", "application/json", body))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Body.String() != "abc123" {
		t.Errorf("body = %q, want challenge", w.Body.String())
	}
}

func TestEventsRejectsBadSignature(t *testing.T) {
	b, _, conv, _ := newTestBot()
	req := signedRequest(t, "/slack/events", "application/json", `{"type":"url_verification"}`)
	req.Header.Set("X-Slack-Signature", "v0=deadbeef")

	w := httptest.NewRecorder()
	b.Events(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if len(conv.events) != 0 {
		t.Error("unsigned request reached the conversation service")
	}
}

func TestAppMention(t *testing.T) {
	b, api, conv, _ := newTestBot()
	api.replies = []slack.Message{
		{Msg: slack.Msg{Timestamp: "100.1", User: "U1", Text: "<@UBOT> earlier question"}},
		{Msg: slack.Msg{Timestamp: "100.2", BotID: "B1", Text: "earlier answer"}},
		{Msg: slack.Msg{Timestamp: "100.3", User: "U1", Text: "<@UBOT> what now?"}},
	}
	inner := `{"type":"app_mention","user":"U1","text":"<@UBOT> what now?","ts":"100.3","thread_ts":"100.1","channel":"C1","event_ts":"100.3"}`

	w := httptest.NewRecorder()
	b.Events(w, signedRequest(t, "/slack/events", "application/json", callback("Ev1", inner)))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(conv.events) != 1 {
		t.Fatalf("HandleEvent calls = %d, want 1", len(conv.events))
	}
	ev := conv.events[0]
	if ev.EventID != "Ev1" || ev.UserID != "U1" || ev.Text != "what now?" {
		t.Errorf("event = %+v", ev)
	}
	if ev.Locator.ChannelID != "C1" || ev.Locator.ThreadTS != "100.1" {
		t.Errorf("locator = %+v", ev.Locator)
	}
	want := []model.Message{
		{Role: model.RoleUser, Content: "earlier question"},
		{Role: model.RoleAssistant, Content: "earlier answer"},
	}
	if len(ev.Transcript) != len(want) {
		t.Fatalf("transcript = %+v", ev.Transcript)
	}
	for i := range want {
		if ev.Transcript[i].Role != want[i].Role || ev.Transcript[i].Content != want[i].Content {
			t.Errorf("transcript[%d] = %+v, want %+v", i, ev.Transcript[i], want[i])
		}
	}

	if len(api.sent) != 2 {
		t.Fatalf("sent = %+v", api.sent)
	}
	if api.sent[0].method != "post" || api.sent[0].values.Get("text") != thinkingText || api.sent[0].values.Get("thread_ts") != "100.1" {
		t.Errorf("placeholder = %+v", api.sent[0])
	}
	if api.sent[1].method != "update" || api.sent[1].ts != api.sent[0].ts {
		t.Errorf("reply should edit the placeholder, got %+v", api.sent[1])
	}
	if got := api.sent[1].values.Get("text"); got != "hello *world*" {
		t.Errorf("reply text = %q", got)
	}
}

func TestDirectMessageAuthRequired(t *testing.T) {
	b, api, conv, _ := newTestBot()
	conv.reply = service.Reply{
		Status:     service.StatusAuthRequired,
		Content:    "Please authorize: https://example.com/auth",
		SnapshotID: "snap-1",
	}
	inner := `{"type":"message","channel_type":"im","user":"U1","text":"list my repos","ts":"200.1","channel":"D1","event_ts":"200.1"}`

	w := httptest.NewRecorder()
	b.Events(w, signedRequest(t, "/slack/events", "application/json", callback("Ev2", inner)))

	if len(api.sent) != 2 {
		t.Fatalf("sent = %+v", api.sent)
	}
	update := api.sent[1]
	if !strings.Contains(update.values.Get("text"), "After authorizing, click the button below to continue:") {
		t.Errorf("text = %q", update.values.Get("text"))
	}
	blocks := update.values.Get("blocks")
	if !strings.Contains(blocks, AuthCompleteAction) {
		t.Errorf("blocks missing resume button: %s", blocks)
	}
	if !strings.Contains(blocks, `snap-1`) || !strings.Contains(blocks, `list my repos`) {
		t.Errorf("button value should carry snapshot and message: %s", blocks)
	}
}

func TestEventsIgnored(t *testing.T) {
	tests := []struct {
		name  string
		inner string
	}{
		{"bot message", `{"type":"message","channel_type":"im","bot_id":"B1","text":"hi","ts":"1.1","channel":"D1"}`},
		{"edited message", `{"type":"message","channel_type":"im","subtype":"message_changed","text":"hi","ts":"1.1","channel":"D1"}`},
		{"channel message", `{"type":"message","channel_type":"channel","user":"U1","text":"hi","ts":"1.1","channel":"C1"}`},
		{"empty dm", `{"type":"message","channel_type":"im","user":"U1","text":"  ","ts":"1.1","channel":"D1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, api, conv, _ := newTestBot()
			w := httptest.NewRecorder()
			b.Events(w, signedRequest(t, "/slack/events", "application/json", callback("Ev", tt.inner)))

			if w.Code != http.StatusOK {
				t.Errorf("status = %d", w.Code)
			}
			if len(conv.events) != 0 || len(api.sent) != 0 {
				t.Errorf("event should be ignored: events=%d sent=%d", len(conv.events), len(api.sent))
			}
		})
	}
}

func TestDuplicateEventRemovesPlaceholder(t *testing.T) {
	b, api, conv, _ := newTestBot()
	conv.reply = service.Reply{Status: service.StatusDuplicate}
	inner := `{"type":"message","channel_type":"im","user":"U1","text":"hi","ts":"1.1","channel":"D1"}`

	b.Events(httptest.NewRecorder(), signedRequest(t, "/slack/events", "application/json", callback("Ev", inner)))

	if len(api.sent) != 1 || len(api.deleted) != 1 || api.deleted[0] != api.sent[0].ts {
		t.Errorf("sent=%+v deleted=%v", api.sent, api.deleted)
	}
}

func TestFailedTurnShowsFailureText(t *testing.T) {
	b, api, conv, _ := newTestBot()
	conv.reply = service.Reply{Status: service.StatusFailed, Content: service.FailureMessage}
	conv.err = errors.New("boom")
	inner := `{"type":"message","channel_type":"im","user":"U1","text":"hi","ts":"1.1","channel":"D1"}`

	b.Events(httptest.NewRecorder(), signedRequest(t, "/slack/events", "application/json", callback("Ev", inner)))

	if got := api.sent[len(api.sent)-1].values.Get("text"); got != service.FailureMessage {
		t.Errorf("text = %q", got)
	}
}

func interactionBody(t *testing.T, payload map[string]any) string {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return url.Values{"payload": {string(raw)}}.Encode()
}

func resumePayload(t *testing.T, clicker string) map[string]any {
	t.Helper()
	value, _ := json.Marshal(resumeValue{
		UserID:    "U1",
		ChannelID: "C1",
		ThreadTS:  "100.1",
		Message:   "list my repos",
		StateID:   "snap-1",
	})
	return map[string]any{
		"type": "block_actions",
		"user": map[string]any{"id": clicker},
		"actions": []map[string]any{{
			"type":      "button",
			"action_id": AuthCompleteAction,
			"block_id":  "b1",
			"value":     string(value),
			"action_ts": "300.1",
		}},
	}
}

func TestResumeButton(t *testing.T) {
	b, api, conv, _ := newTestBot()
	conv.reply = service.Reply{Status: service.StatusDone, Content: "Here are your repos"}

	w := httptest.NewRecorder()
	b.Interactions(w, signedRequest(t, "/slack/interactions", "application/x-www-form-urlencoded",
		interactionBody(t, resumePayload(t, "U1"))))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(conv.resumes) != 1 {
		t.Fatalf("Resume calls = %d", len(conv.resumes))
	}
	req := conv.resumes[0]
	if req.EventID != "action:300.1" || req.SnapshotID != "snap-1" || req.UserID != "U1" || req.Message != "list my repos" {
		t.Errorf("resume request = %+v", req)
	}

	if len(api.sent) != 2 {
		t.Fatalf("sent = %+v", api.sent)
	}
	if api.sent[0].values.Get("text") != resumingText {
		t.Errorf("first message = %q", api.sent[0].values.Get("text"))
	}
	if len(api.deleted) != 1 || api.deleted[0] != api.sent[0].ts {
		t.Errorf("resuming placeholder not deleted: %v", api.deleted)
	}
	if api.sent[1].method != "post" || api.sent[1].values.Get("thread_ts") != "100.1" {
		t.Errorf("reply = %+v", api.sent[1])
	}
}

func TestResumeTranscriptExcludesPlaceholder(t *testing.T) {
	b, api, conv, _ := newTestBot()
	api.replies = []slack.Message{
		{Msg: slack.Msg{Timestamp: "100.1", User: "U1", Text: "list my repos"}},
		{Msg: slack.Msg{Timestamp: "100.2", BotID: "B1", Text: "Please authorize the **github** tool"}},
	}
	conv.reply = service.Reply{Status: service.StatusDone, Content: "Here are your repos"}

	b.Interactions(httptest.NewRecorder(), signedRequest(t, "/slack/interactions", "application/x-www-form-urlencoded",
		interactionBody(t, resumePayload(t, "U1"))))

	if len(conv.resumes) != 1 {
		t.Fatalf("Resume calls = %d", len(conv.resumes))
	}
	transcript := conv.resumes[0].Transcript
	if len(transcript) != 2 {
		t.Fatalf("transcript = %+v", transcript)
	}
	for _, m := range transcript {
		if m.Content == resumingText {
			t.Errorf("placeholder leaked into transcript: %+v", transcript)
		}
	}
}

func TestResumeButtonOtherUser(t *testing.T) {
	b, api, conv, _ := newTestBot()

	b.Interactions(httptest.NewRecorder(), signedRequest(t, "/slack/interactions", "application/x-www-form-urlencoded",
		interactionBody(t, resumePayload(t, "U2"))))

	if len(conv.resumes) != 0 || len(api.sent) != 0 {
		t.Errorf("another user's click should be ignored")
	}
}

func TestModelSelect(t *testing.T) {
	b, api, _, profiles := newTestBot()
	payload := map[string]any{
		"type": "block_actions",
		"user": map[string]any{"id": "U1"},
		"actions": []map[string]any{{
			"type":            "static_select",
			"action_id":       ModelAction,
			"block_id":        "model_picker",
			"selected_option": map[string]any{"value": "claude-sonnet-4-5 anthropic"},
			"action_ts":       "400.1",
		}},
	}

	b.Interactions(httptest.NewRecorder(), signedRequest(t, "/slack/interactions", "application/x-www-form-urlencoded",
		interactionBody(t, payload)))

	if len(profiles.updates) != 1 {
		t.Fatalf("updates = %+v", profiles.updates)
	}
	if u := profiles.updates[0]; u.Model != "claude-sonnet-4-5" || u.Provider != "anthropic" {
		t.Errorf("update = %+v", u)
	}
	if len(api.views) != 1 || api.views[0].UserID != "U1" {
		t.Errorf("home tab should be republished, views = %+v", api.views)
	}
}

func TestAppHomeOpened(t *testing.T) {
	b, api, _, _ := newTestBot()
	inner := `{"type":"app_home_opened","user":"U1","channel":"D1","tab":"home","event_ts":"1.1"}`

	b.Events(httptest.NewRecorder(), signedRequest(t, "/slack/events", "application/json", callback("Ev", inner)))

	if len(api.views) != 1 {
		t.Fatalf("views = %d", len(api.views))
	}
	if api.views[0].View.Type != slack.VTHomeTab {
		t.Errorf("view type = %q", api.views[0].View.Type)
	}
}

func TestHomeViewInitialOption(t *testing.T) {
	p := &fakeProfiles{}
	view := homeView(p.Models(), &model.UserProfile{Provider: "anthropic", Model: "claude-sonnet-4-5"})

	raw, err := json.Marshal(view)
	if err != nil {
		t.Fatal(err)
	}
	s := string(raw)
	for _, want := range []string{"Welcome to Archer's Home Page!", `"action_id":"Model"`, "GPT-4o (openai)", `"initial_option":{"text":{"type":"plain_text","text":"Claude Sonnet (anthropic)"`} {
		if !strings.Contains(s, want) {
			t.Errorf("view missing %q: %s", want, s)
		}
	}
}

func TestSlashCommand(t *testing.T) {
	t.Run("empty prompt", func(t *testing.T) {
		b, _, conv, _ := newTestBot()
		body := url.Values{"command": {"/archer"}, "text": {" "}, "user_id": {"U1"}, "channel_id": {"C1"}}.Encode()

		w := httptest.NewRecorder()
		b.Commands(w, signedRequest(t, "/slack/commands", "application/x-www-form-urlencoded", body))

		if !strings.Contains(w.Body.String(), emptyPromptText) {
			t.Errorf("body = %s", w.Body.String())
		}
		if len(conv.events) != 0 {
			t.Error("empty prompt should not start a turn")
		}
	})

	t.Run("prompt", func(t *testing.T) {
		b, api, conv, _ := newTestBot()
		body := url.Values{
			"command":    {"/archer"},
			"text":       {"what time is it"},
			"user_id":    {"U1"},
			"channel_id": {"C1"},
			"trigger_id": {"trig-1"},
		}.Encode()

		w := httptest.NewRecorder()
		b.Commands(w, signedRequest(t, "/slack/commands", "application/x-www-form-urlencoded", body))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if len(conv.events) != 1 || conv.events[0].EventID != "command:trig-1" || conv.events[0].Text != "what time is it" {
			t.Fatalf("events = %+v", conv.events)
		}
		if len(api.sent) != 1 || api.sent[0].method != "ephemeral" || api.sent[0].values.Get("text") != "hello *world*" {
			t.Errorf("sent = %+v", api.sent)
		}
	})

	t.Run("error", func(t *testing.T) {
		b, api, conv, _ := newTestBot()
		conv.reply = service.Reply{}
		conv.err = errors.New("boom")
		body := url.Values{"text": {"hi"}, "user_id": {"U1"}, "channel_id": {"C1"}, "trigger_id": {"t"}}.Encode()

		b.Commands(httptest.NewRecorder(), signedRequest(t, "/slack/commands", "application/x-www-form-urlencoded", body))

		if len(api.sent) != 1 || api.sent[0].values.Get("text") != commandFailedText {
			t.Errorf("sent = %+v", api.sent)
		}
	})
}

func TestMarkdownToSlack(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"**bold** text", "*bold* text"},
		{"see [docs](https://example.com/a)", "see <https://example.com/a|docs>"},
		{"## Heading\nbody", "*Heading*\nbody"},
		{"[x](ftp://nope)", "[x](ftp://nope)"},
	}
	for _, tt := range tests {
		if got := MarkdownToSlack(tt.in); got != tt.want {
			t.Errorf("MarkdownToSlack(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStripMentions(t *testing.T) {
	if got := stripMentions("<@U123ABC>  hello <@U9> there "); got != "hello  there" {
		t.Errorf("stripMentions = %q", got)
	}
}
