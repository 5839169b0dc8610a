package agent

// Reply is the normalized agent answer. The remote endpoint surfaces the
// answer text under several shapes; the relay client flattens them all
// into this struct before anything else sees the response.
type Reply struct {
	Text      string `json:"text"`
	SessionID string `json:"sessionId,omitempty"`
}
