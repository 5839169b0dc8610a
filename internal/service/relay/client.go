package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fastjson"

	"github.com/zhouzirui/z-relay/internal/config"
	"github.com/zhouzirui/z-relay/internal/metrics"
	"github.com/zhouzirui/z-relay/internal/model/agent"
)

// replyFields 按优先级列出 agent 返回答案可能使用的字段名。
// 远端接口对响应结构没有严格契约，只能逐个探测。
var replyFields = []string{"response", "chatMessage", "content"}

// Client talks to the agent chat endpoint. Every user message becomes
// exactly one HTTP POST; there is no retry, the router reports failures
// back to the user instead.
type Client struct {
	cfg  config.AgentConfig
	http *http.Client
	log  logrus.FieldLogger
}

// NewClient creates a relay client from the agent configuration.
func NewClient(cfg config.AgentConfig, log logrus.FieldLogger) *Client {
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		log: log,
	}
}

// Send relays one prompt to the agent and normalizes whatever shape
// comes back. sessionID is included only when non-empty, signalling
// conversation continuation; when the response carries its own session
// id it replaces the caller's in the returned reply.
func (c *Client) Send(ctx context.Context, prompt, sessionID string) (agent.Reply, error) {
	req := agent.Request{
		UserID:      c.cfg.UserID,
		AgentID:     c.cfg.AgentID,
		Temperature: c.cfg.Temperature,
		TopP:        c.cfg.TopP,
		MaxTokens:   c.cfg.MaxTokens,
		Prompt:      prompt,
		SessionID:   sessionID,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return agent.Reply{}, fmt.Errorf("failed to marshal agent request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return agent.Reply{}, fmt.Errorf("failed to build agent request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("X-Request-ID", uuid.New().String())

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	metrics.RelayDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RelayRequestsTotal.WithLabelValues("transport_error").Inc()
		return agent.Reply{}, &Error{Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		metrics.RelayRequestsTotal.WithLabelValues("remote_error").Inc()
		return agent.Reply{}, readError(resp)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RelayRequestsTotal.WithLabelValues("transport_error").Inc()
		return agent.Reply{}, &Error{Detail: fmt.Sprintf("reading response body: %v", err)}
	}

	reply := normalizeReply(payload, sessionID)
	metrics.RelayRequestsTotal.WithLabelValues("ok").Inc()
	c.log.WithFields(logrus.Fields{
		"sessionId": reply.SessionID,
		"length":    len(reply.Text),
	}).Info("agent reply received")
	return reply, nil
}

// normalizeReply 将 agent 返回的任意形态拍平成统一的 Reply。
// 依次探测已知字段；都不匹配时退化为把整个负载当作文本。
func normalizeReply(payload []byte, sessionID string) agent.Reply {
	reply := agent.Reply{SessionID: sessionID}

	v, err := fastjson.ParseBytes(payload)
	if err != nil {
		// Not JSON at all: treat the body as the answer itself.
		reply.Text = strings.TrimSpace(string(payload))
		return reply
	}

	switch v.Type() {
	case fastjson.TypeString:
		reply.Text = string(v.GetStringBytes())
		return reply
	case fastjson.TypeObject:
		if id := v.GetStringBytes("sessionId"); len(id) > 0 {
			reply.SessionID = string(id)
		}
		for _, field := range replyFields {
			if text := v.GetStringBytes(field); len(text) > 0 {
				reply.Text = string(text)
				return reply
			}
		}
	}

	// Unrecognized shape: hand the serialized payload to the user rather
	// than silently dropping the agent's answer.
	reply.Text = v.String()
	return reply
}

// readError digests a non-success response into an *Error, preferring
// whatever detail the remote service put in the body.
func readError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	detail := ""
	if v, err := fastjson.ParseBytes(body); err == nil {
		switch {
		case v.Exists("error", "message"):
			detail = string(v.GetStringBytes("error", "message"))
		case v.Exists("error"):
			detail = string(v.GetStringBytes("error"))
		case v.Exists("message"):
			detail = string(v.GetStringBytes("message"))
		}
	}
	if detail == "" {
		detail = strings.TrimSpace(string(body))
	}
	if detail == "" {
		detail = http.StatusText(resp.StatusCode)
	}

	return &Error{StatusCode: resp.StatusCode, Detail: detail}
}
