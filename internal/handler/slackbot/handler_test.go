package slackbot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/zhouzirui/z-relay/internal/model/agent"
	"github.com/zhouzirui/z-relay/internal/service/session"
)

type fakeMessage struct {
	channel  string
	ts       string
	threadTS string
	text     string
}

// fakePoster records outbound Slack calls, decoding the message options
// the same way the real transport would.
type fakePoster struct {
	postErr   error
	updateErr error

	posts   []fakeMessage
	updates []fakeMessage
	seq     int
}

func (f *fakePoster) PostMessageContext(_ context.Context, channel string, options ...slack.MsgOption) (string, string, error) {
	if f.postErr != nil {
		return "", "", f.postErr
	}
	_, values, _ := slack.UnsafeApplyMsgOptions("xoxb-test", channel, slack.APIURL, options...)
	f.seq++
	ts := fmt.Sprintf("1700000001.%06d", f.seq)
	f.posts = append(f.posts, fakeMessage{
		channel:  channel,
		ts:       ts,
		threadTS: values.Get("thread_ts"),
		text:     values.Get("text"),
	})
	return channel, ts, nil
}

func (f *fakePoster) UpdateMessageContext(_ context.Context, channel, timestamp string, options ...slack.MsgOption) (string, string, string, error) {
	if f.updateErr != nil {
		return "", "", "", f.updateErr
	}
	_, values, _ := slack.UnsafeApplyMsgOptions("xoxb-test", channel, slack.APIURL, options...)
	f.updates = append(f.updates, fakeMessage{
		channel: channel,
		ts:      timestamp,
		text:    values.Get("text"),
	})
	return channel, timestamp, values.Get("text"), nil
}

type agentCall struct {
	prompt    string
	sessionID string
}

type fakeAgent struct {
	reply agent.Reply
	err   error
	calls []agentCall
}

func (f *fakeAgent) Send(_ context.Context, prompt, sessionID string) (agent.Reply, error) {
	f.calls = append(f.calls, agentCall{prompt: prompt, sessionID: sessionID})
	if f.err != nil {
		return agent.Reply{}, f.err
	}
	return f.reply, nil
}

func discardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestHandler(a *fakeAgent) (*Handler, *fakePoster, *session.Store) {
	poster := &fakePoster{}
	store := session.NewStore(24 * time.Hour)
	h := NewHandler(poster, a, store, "UBOT", discardLogger())
	return h, poster, store
}

func dmEvent(text, ts, threadTS string) *slackevents.MessageEvent {
	return &slackevents.MessageEvent{
		User:            "U123",
		Channel:         "D123",
		ChannelType:     "im",
		Text:            text,
		TimeStamp:       ts,
		ThreadTimeStamp: threadTS,
	}
}

func mentionEvent(text, ts, threadTS string) *slackevents.AppMentionEvent {
	return &slackevents.AppMentionEvent{
		User:            "U123",
		Channel:         "C123",
		Text:            text,
		TimeStamp:       ts,
		ThreadTimeStamp: threadTS,
	}
}

func TestNewDirectMessageStartsSession(t *testing.T) {
	a := &fakeAgent{reply: agent.Reply{Text: "Hi", SessionID: "abc"}}
	h, poster, store := newTestHandler(a)

	h.HandleMessage(context.Background(), dmEvent("Hello", "1700000000.000100", ""))

	if len(a.calls) != 1 {
		t.Fatalf("expected one agent call, got %d", len(a.calls))
	}
	if a.calls[0].sessionID != "" {
		t.Fatalf("expected fresh conversation without session id, got %q", a.calls[0].sessionID)
	}
	if a.calls[0].prompt != "Hello" {
		t.Fatalf("expected prompt Hello, got %q", a.calls[0].prompt)
	}

	if id, ok := store.Resolve("D123", "1700000000.000100"); !ok || id != "abc" {
		t.Fatalf("expected session abc recorded under the event timestamp, got (%q, %v)", id, ok)
	}

	if len(poster.posts) != 1 {
		t.Fatalf("expected a single placeholder post, got %d", len(poster.posts))
	}
	if poster.posts[0].text != thinkingText {
		t.Fatalf("expected placeholder %q, got %q", thinkingText, poster.posts[0].text)
	}
	if poster.posts[0].threadTS != "1700000000.000100" {
		t.Fatalf("expected reply threaded under the event, got %q", poster.posts[0].threadTS)
	}

	if len(poster.updates) != 1 {
		t.Fatalf("expected the placeholder to be updated once, got %d", len(poster.updates))
	}
	if poster.updates[0].ts != poster.posts[0].ts {
		t.Fatalf("expected update to target the placeholder, got %q", poster.updates[0].ts)
	}
	if poster.updates[0].text != "Hi" {
		t.Fatalf("expected final reply Hi, got %q", poster.updates[0].text)
	}
}

func TestThreadedMessageContinuesSession(t *testing.T) {
	a := &fakeAgent{reply: agent.Reply{Text: "Sure", SessionID: "abc"}}
	h, _, store := newTestHandler(a)
	store.Record("D123", "1700000000.000100", "abc")

	h.HandleMessage(context.Background(), dmEvent("More please", "1700000000.000300", "1700000000.000100"))

	if len(a.calls) != 1 {
		t.Fatalf("expected one agent call, got %d", len(a.calls))
	}
	if a.calls[0].sessionID != "abc" {
		t.Fatalf("expected continuation with session abc, got %q", a.calls[0].sessionID)
	}

	if store.Size() != 1 {
		t.Fatalf("expected no new session entry for a threaded reply, got %d", store.Size())
	}
	if _, ok := store.Get("D123", "1700000000.000300"); ok {
		t.Fatal("expected no session keyed by the reply's own timestamp")
	}
}

func TestMentionGreetsWhenEmpty(t *testing.T) {
	a := &fakeAgent{}
	h, poster, _ := newTestHandler(a)

	h.HandleMention(context.Background(), mentionEvent("<@UBOT>", "1700000000.000100", ""))

	if len(a.calls) != 0 {
		t.Fatalf("expected no agent call for an empty mention, got %d", len(a.calls))
	}
	if len(poster.posts) != 1 || poster.posts[0].text != greetingText {
		t.Fatalf("expected greeting reply, got %+v", poster.posts)
	}
	if poster.posts[0].threadTS != "1700000000.000100" {
		t.Fatalf("expected greeting threaded under the mention, got %q", poster.posts[0].threadTS)
	}
}

func TestMentionStripsMarker(t *testing.T) {
	a := &fakeAgent{reply: agent.Reply{Text: "42"}}
	h, _, _ := newTestHandler(a)

	h.HandleMention(context.Background(), mentionEvent("<@UBOT> what is the answer", "1700000000.000100", ""))

	if len(a.calls) != 1 {
		t.Fatalf("expected one agent call, got %d", len(a.calls))
	}
	if a.calls[0].prompt != "what is the answer" {
		t.Fatalf("expected mention marker stripped, got %q", a.calls[0].prompt)
	}
}

func TestIgnoresFilteredEvents(t *testing.T) {
	a := &fakeAgent{}
	h, poster, _ := newTestHandler(a)
	ctx := context.Background()

	own := dmEvent("hello", "1700000000.000100", "")
	own.User = "UBOT"
	h.HandleMessage(ctx, own)

	fromBot := dmEvent("hello", "1700000000.000200", "")
	fromBot.BotID = "B999"
	h.HandleMessage(ctx, fromBot)

	edited := dmEvent("hello", "1700000000.000300", "")
	edited.SubType = "message_changed"
	h.HandleMessage(ctx, edited)

	channelPost := dmEvent("hello", "1700000000.000400", "")
	channelPost.ChannelType = "channel"
	h.HandleMessage(ctx, channelPost)

	empty := dmEvent("   ", "1700000000.000500", "")
	h.HandleMessage(ctx, empty)

	noChannel := dmEvent("hello", "1700000000.000600", "")
	noChannel.Channel = ""
	h.HandleMessage(ctx, noChannel)

	if len(a.calls) != 0 {
		t.Fatalf("expected filtered events to never reach the agent, got %d calls", len(a.calls))
	}
	if len(poster.posts) != 0 {
		t.Fatalf("expected no replies to filtered events, got %d", len(poster.posts))
	}
}

func TestRelayErrorRepliesInThread(t *testing.T) {
	a := &fakeAgent{err: errors.New("agent call failed: HTTP 502: model overloaded")}
	h, poster, store := newTestHandler(a)

	h.HandleMessage(context.Background(), dmEvent("Hello", "1700000000.000100", ""))

	if store.Size() != 0 {
		t.Fatalf("expected store untouched after a relay failure, got %d entries", store.Size())
	}
	if len(poster.updates) != 1 {
		t.Fatalf("expected the placeholder to be replaced with an error, got %d updates", len(poster.updates))
	}
	if !strings.HasPrefix(poster.updates[0].text, "Something went wrong:") {
		t.Fatalf("expected a user-visible error reply, got %q", poster.updates[0].text)
	}
	if !strings.Contains(poster.updates[0].text, "model overloaded") {
		t.Fatalf("expected the remote detail to surface, got %q", poster.updates[0].text)
	}
}

func TestReplyDeliveryFailureFallsBackToPost(t *testing.T) {
	a := &fakeAgent{reply: agent.Reply{Text: "Hi", SessionID: "abc"}}
	h, poster, store := newTestHandler(a)
	poster.updateErr = errors.New("message_not_found")

	h.HandleMessage(context.Background(), dmEvent("Hello", "1700000000.000100", ""))

	// The session was already recorded before delivery failed.
	if store.Size() != 1 {
		t.Fatalf("expected session recorded despite delivery failure, got %d", store.Size())
	}
	if len(poster.posts) != 2 {
		t.Fatalf("expected placeholder plus error fallback post, got %d", len(poster.posts))
	}
	if !strings.HasPrefix(poster.posts[1].text, "Something went wrong:") {
		t.Fatalf("expected error fallback post, got %q", poster.posts[1].text)
	}
}

func TestPingCommand(t *testing.T) {
	a := &fakeAgent{}
	h, poster, store := newTestHandler(a)
	store.Record("C123", "1700000000.000001", "sess-1")
	store.Record("C456", "1700000000.000002", "sess-2")

	h.HandleMessage(context.Background(), dmEvent("ping", "1700000000.000100", ""))
	h.HandleMessage(context.Background(), dmEvent("PING", "1700000000.000200", ""))

	if len(a.calls) != 0 {
		t.Fatalf("expected commands to bypass the agent, got %d calls", len(a.calls))
	}
	if len(poster.posts) != 2 {
		t.Fatalf("expected two command replies, got %d", len(poster.posts))
	}
	want := "pong: 2 active session(s)"
	if poster.posts[0].text != want || poster.posts[1].text != want {
		t.Fatalf("expected %q, got %q and %q", want, poster.posts[0].text, poster.posts[1].text)
	}
}

func TestResetCommand(t *testing.T) {
	a := &fakeAgent{}
	h, poster, store := newTestHandler(a)
	store.Record("C123", "1700000000.000100", "abc")

	h.HandleMention(context.Background(), mentionEvent("<@UBOT> reset", "1700000000.000900", "1700000000.000100"))

	if store.Size() != 0 {
		t.Fatalf("expected session removed on reset, got %d entries", store.Size())
	}
	if len(poster.posts) != 1 || !strings.HasPrefix(poster.posts[0].text, "Session reset") {
		t.Fatalf("expected reset confirmation, got %+v", poster.posts)
	}

	h.HandleMention(context.Background(), mentionEvent("<@UBOT> reset", "1700000001.000000", "1700000000.000100"))

	if len(poster.posts) != 2 || !strings.HasPrefix(poster.posts[1].text, "No active session") {
		t.Fatalf("expected no-session reply on second reset, got %+v", poster.posts)
	}
	if len(a.calls) != 0 {
		t.Fatalf("expected reset to bypass the agent, got %d calls", len(a.calls))
	}
}

func TestInfoCommand(t *testing.T) {
	a := &fakeAgent{}
	h, poster, store := newTestHandler(a)
	store.Record("C123", "1700000000.000100", "sess-abc")

	h.HandleMention(context.Background(), mentionEvent("<@UBOT> info", "1700000000.000900", "1700000000.000100"))

	if len(poster.posts) != 1 {
		t.Fatalf("expected one info reply, got %d", len(poster.posts))
	}
	if !strings.Contains(poster.posts[0].text, "sess-abc") {
		t.Fatalf("expected info reply to carry the session id, got %q", poster.posts[0].text)
	}

	h.HandleMention(context.Background(), mentionEvent("<@UBOT> info", "1700000002.000000", "1700000002.000000"))

	if len(poster.posts) != 2 || !strings.Contains(poster.posts[1].text, "No active session") {
		t.Fatalf("expected absence reply for an unknown thread, got %+v", poster.posts)
	}
}
