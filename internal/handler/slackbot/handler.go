package slackbot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/zhouzirui/z-relay/internal/metrics"
	"github.com/zhouzirui/z-relay/internal/model/agent"
	"github.com/zhouzirui/z-relay/internal/service/session"
)

// ErrMalformedEvent marks an inbound event missing the fields needed to
// even route a reply. Such events can only be dropped.
var ErrMalformedEvent = errors.New("malformed event: missing channel or timestamp")

const (
	// thinkingText is the transient placeholder shown while the agent works.
	thinkingText = "_Thinking..._"

	// greetingText answers a mention that carried no actual question.
	greetingText = "Hi! Mention me with a question and I'll pass it along to the agent."
)

// ChatPoster is the slice of the Slack API the handler needs to reply.
type ChatPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error)
}

// Agent relays one prompt to the conversational endpoint.
type Agent interface {
	Send(ctx context.Context, prompt, sessionID string) (agent.Reply, error)
}

// Handler turns inbound Slack events into agent calls and threads the
// answers back. One instance serves all channels.
type Handler struct {
	poster    ChatPoster
	agent     Agent
	sessions  *session.Store
	botUserID string
	log       logrus.FieldLogger
}

// NewHandler wires the handler to its collaborators. botUserID is the
// bot's own Slack user id, used to strip mention markers and to ignore
// the bot's own messages.
func NewHandler(poster ChatPoster, agent Agent, sessions *session.Store, botUserID string, log logrus.FieldLogger) *Handler {
	return &Handler{
		poster:    poster,
		agent:     agent,
		sessions:  sessions,
		botUserID: botUserID,
		log:       log,
	}
}

// inbound 是两类入站事件归一化之后的视图。
type inbound struct {
	channel  string
	user     string
	text     string
	eventTS  string
	threadTS string
}

// rootTS is where replies thread: the existing thread root, or the
// message itself when it starts a new conversation.
func (in inbound) rootTS() string {
	if in.threadTS != "" {
		return in.threadTS
	}
	return in.eventTS
}

func newInbound(channel, user, text, eventTS, threadTS string) (inbound, error) {
	if channel == "" || eventTS == "" {
		return inbound{}, ErrMalformedEvent
	}
	return inbound{
		channel:  channel,
		user:     user,
		text:     strings.TrimSpace(text),
		eventTS:  eventTS,
		threadTS: threadTS,
	}, nil
}

// HandleMention processes an app_mention event from any channel the bot
// has been invited to.
func (h *Handler) HandleMention(ctx context.Context, ev *slackevents.AppMentionEvent) {
	if ev == nil || ev.BotID != "" || ev.User == "" || ev.User == h.botUserID {
		return
	}

	in, err := newInbound(ev.Channel, ev.User, stripMention(ev.Text, h.botUserID), ev.TimeStamp, ev.ThreadTimeStamp)
	if err != nil {
		h.log.WithError(err).Warn("dropping mention event")
		return
	}
	metrics.EventsTotal.WithLabelValues("app_mention").Inc()

	if in.text == "" {
		if _, err := h.postThread(ctx, in.channel, in.rootTS(), greetingText); err != nil {
			h.log.WithError(err).Error("failed to post greeting")
		}
		return
	}

	if h.runCommand(ctx, in) {
		return
	}
	h.relayAndReply(ctx, in)
}

// HandleMessage processes direct messages. Channel posts reach the bot
// through app_mention instead, so anything outside an IM is ignored here.
func (h *Handler) HandleMessage(ctx context.Context, ev *slackevents.MessageEvent) {
	if ev == nil || ev.ChannelType != "im" {
		return
	}
	if ev.BotID != "" || ev.SubType != "" || ev.User == "" || ev.User == h.botUserID {
		return
	}

	in, err := newInbound(ev.Channel, ev.User, ev.Text, ev.TimeStamp, ev.ThreadTimeStamp)
	if err != nil {
		h.log.WithError(err).Warn("dropping message event")
		return
	}
	if in.text == "" {
		return
	}
	metrics.EventsTotal.WithLabelValues("direct_message").Inc()

	if h.runCommand(ctx, in) {
		return
	}
	h.relayAndReply(ctx, in)
}

// relayAndReply walks one message through the full pipeline: resolve the
// session, show a placeholder, call the agent, remember the session for
// a new conversation, then swap the placeholder for the answer. Any
// failure along the way is reported into the same thread instead of
// propagating.
func (h *Handler) relayAndReply(ctx context.Context, in inbound) {
	rootTS := in.rootTS()
	sessionID, _ := h.sessions.Resolve(in.channel, in.threadTS)

	placeholderTS, err := h.postThread(ctx, in.channel, rootTS, thinkingText)
	if err != nil {
		h.log.WithError(err).Error("failed to post placeholder")
		h.replyError(ctx, in.channel, rootTS, "", err)
		return
	}

	reply, err := h.agent.Send(ctx, in.text, sessionID)
	if err != nil {
		h.log.WithError(err).WithFields(logrus.Fields{
			"channel": in.channel,
			"user":    in.user,
		}).Error("agent relay failed")
		h.replyError(ctx, in.channel, rootTS, placeholderTS, err)
		return
	}

	// Only the root message of a brand-new conversation records a
	// session; replies inside an existing thread were resolved above,
	// and orphaned threads deliberately stay unrecorded.
	if in.threadTS == "" && reply.SessionID != "" {
		h.sessions.Record(in.channel, in.eventTS, reply.SessionID)
	}

	if err := h.updateThread(ctx, in.channel, placeholderTS, reply.Text); err != nil {
		h.log.WithError(err).Error("failed to deliver agent reply")
		h.replyError(ctx, in.channel, rootTS, placeholderTS, err)
	}
}

// runCommand intercepts the utility commands. They are answered locally
// and never reach the agent; reports whether the text matched one.
func (h *Handler) runCommand(ctx context.Context, in inbound) bool {
	rootTS := in.rootTS()

	var err error
	switch strings.ToLower(in.text) {
	case "ping":
		_, err = h.postThread(ctx, in.channel, rootTS,
			fmt.Sprintf("pong: %d active session(s)", h.sessions.Size()))
	case "reset":
		if h.sessions.Remove(in.channel, rootTS) {
			_, err = h.postThread(ctx, in.channel, rootTS,
				"Session reset. The next message starts a fresh conversation.")
		} else {
			_, err = h.postThread(ctx, in.channel, rootTS,
				"No active session to reset for this thread.")
		}
	case "info":
		err = h.postSessionInfo(ctx, in.channel, rootTS)
	default:
		return false
	}

	metrics.EventsTotal.WithLabelValues("command").Inc()
	if err != nil {
		h.log.WithError(err).Error("failed to answer command")
	}
	return true
}

// postSessionInfo 以 Block Kit 形式回报当前线程的会话状态。
func (h *Handler) postSessionInfo(ctx context.Context, channel, rootTS string) error {
	sess, ok := h.sessions.Get(channel, rootTS)
	if !ok {
		_, err := h.postThread(ctx, channel, rootTS, "No active session for this thread.")
		return err
	}

	text := fmt.Sprintf("*Session:* `%s`\n*Last activity:* %s",
		sess.ID, sess.LastActivity.UTC().Format(time.RFC3339))
	_, err := h.postThread(ctx, channel, rootTS, text,
		slack.MsgOptionBlocks(slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)))
	return err
}

// replyError reports a pipeline failure to the user in-thread, replacing
// the placeholder when one made it out.
func (h *Handler) replyError(ctx context.Context, channel, rootTS, placeholderTS string, cause error) {
	text := fmt.Sprintf("Something went wrong: %v", cause)
	if placeholderTS != "" {
		if err := h.updateThread(ctx, channel, placeholderTS, text); err == nil {
			return
		}
	}
	if _, err := h.postThread(ctx, channel, rootTS, text); err != nil {
		h.log.WithError(err).Error("failed to deliver error reply")
	}
}

func (h *Handler) postThread(ctx context.Context, channel, threadTS, text string, extra ...slack.MsgOption) (string, error) {
	opts := append([]slack.MsgOption{
		slack.MsgOptionText(text, false),
		slack.MsgOptionTS(threadTS),
	}, extra...)
	_, ts, err := h.poster.PostMessageContext(ctx, channel, opts...)
	return ts, err
}

func (h *Handler) updateThread(ctx context.Context, channel, ts, text string) error {
	_, _, _, err := h.poster.UpdateMessageContext(ctx, channel, ts, slack.MsgOptionText(text, false))
	return err
}

// stripMention removes the bot's own mention marker so the agent sees
// just the question.
func stripMention(text, botUserID string) string {
	if botUserID == "" {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(strings.ReplaceAll(text, "<@"+botUserID+">", ""))
}
