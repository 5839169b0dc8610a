package agent

// Request 发送给 agent 端点的请求体。固定的账户字段来自配置，
// Prompt 与 SessionID 随每次调用变化。
type Request struct {
	UserID      string   `json:"userId"`
	AgentID     string   `json:"agentId"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"topP,omitempty"`
	MaxTokens   *int     `json:"maxTokens,omitempty"`
	Prompt      string   `json:"prompt"`
	SessionID   string   `json:"sessionId,omitempty"` // 仅在续写会话时携带
}
