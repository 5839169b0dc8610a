package session

import "time"

// Key identifies one conversation: a Slack channel plus the timestamp of
// the message that roots the thread.
type Key struct {
	Channel  string `json:"channel"`
	ThreadTS string `json:"threadTs"`
}

// Session captures the agent-side conversation state bound to one thread.
type Session struct {
	ID           string    `json:"id"`
	LastActivity time.Time `json:"lastActivity"`
}
