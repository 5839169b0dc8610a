package slackbot

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

// Runtime owns the Socket Mode connection and fans events out to the
// handler. Every event runs in its own goroutine so a slow agent call
// in one thread never stalls another.
type Runtime struct {
	socket  *socketmode.Client
	handler *Handler
	log     logrus.FieldLogger
}

// NewRuntime binds a connected socketmode client to the event handler.
func NewRuntime(socket *socketmode.Client, handler *Handler, log logrus.FieldLogger) *Runtime {
	return &Runtime{
		socket:  socket,
		handler: handler,
		log:     log,
	}
}

// Run connects to Slack and processes events until ctx is cancelled.
func (r *Runtime) Run(ctx context.Context) error {
	go r.dispatch(ctx)
	return r.socket.RunContext(ctx)
}

func (r *Runtime) dispatch(ctx context.Context) {
	for evt := range r.socket.Events {
		switch evt.Type {
		case socketmode.EventTypeConnecting:
			r.log.Info("connecting to Slack")
		case socketmode.EventTypeConnectionError:
			r.log.WithField("data", evt.Data).Error("Slack connection error, retrying")
		case socketmode.EventTypeConnected:
			r.log.Info("connected to Slack")
		case socketmode.EventTypeEventsAPI:
			// Ack before handling: Slack redelivers events that are not
			// acknowledged quickly, which would duplicate agent calls.
			if evt.Request != nil {
				r.socket.Ack(*evt.Request)
			}
			apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
			if !ok || apiEvent.Type != slackevents.CallbackEvent {
				continue
			}
			r.route(ctx, apiEvent)
		}
	}
}

func (r *Runtime) route(ctx context.Context, apiEvent slackevents.EventsAPIEvent) {
	switch ev := apiEvent.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		go r.handler.HandleMention(ctx, ev)
	case *slackevents.MessageEvent:
		go r.handler.HandleMessage(ctx, ev)
	}
}
