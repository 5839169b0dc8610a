package ops

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-relay/internal/service/session"
	"github.com/zhouzirui/z-relay/pkg/utils"
)

// Handler 运维接口的HTTP处理器
type Handler struct {
	sessions  *session.Store
	botUser   string
	startedAt time.Time
}

// New 创建运维处理器
func New(sessions *session.Store, botUser string) *Handler {
	return &Handler{
		sessions:  sessions,
		botUser:   botUser,
		startedAt: time.Now(),
	}
}

// RegisterRoutes 注册运维相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/status", h.handleStatus)
}

// HandleHealthz reports process liveness for load balancers and probes.
func (h *Handler) HandleHealthz(w http.ResponseWriter, _ *http.Request) {
	utils.RespondText(w, http.StatusOK, "ok")
}

// handleStatus 返回机器人运行状态概览
func (h *Handler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"botUser":  h.botUser,
		"sessions": h.sessions.Size(),
		"uptime":   time.Since(h.startedAt).Round(time.Second).String(),
	})
}
