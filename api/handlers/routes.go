package handlers

import (
	"net/http"

	"github.com/BaSui01/teamflow/solution"
	"go.uber.org/zap"
)

// Set 聚合全部 HTTP 处理器
type Set struct {
	Health *HealthHandler
	Teams  *TeamHandler
	Events *EventHandler
	Goals  *GoalHandler
	Stream *StreamHandler
}

// NewSet 基于同一个 solution 编排器创建处理器集合
func NewSet(orch *solution.Orchestrator, version string, logger *zap.Logger, streamOpts ...StreamOption) *Set {
	return &Set{
		Health: NewHealthHandler(version, logger),
		Teams:  NewTeamHandler(orch, logger),
		Events: NewEventHandler(orch, logger),
		Goals:  NewGoalHandler(orch, logger),
		Stream: NewStreamHandler(orch, logger, streamOpts...),
	}
}

// Register 在 mux 上挂载路由（Go 1.22 方法与路径参数模式）
func (s *Set) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.Health.HandleHealth)
	mux.HandleFunc("GET /healthz", s.Health.HandleLive)

	mux.HandleFunc("GET /teams", s.Teams.HandleList)
	mux.HandleFunc("POST /teams", s.Teams.HandleAdd)
	mux.HandleFunc("DELETE /teams/{team}", s.Teams.HandleRemove)
	mux.HandleFunc("POST /teams/{team}/reload", s.Teams.HandleReload)
	mux.HandleFunc("GET /teams/{team}/status", s.Teams.HandleGetStatus)
	mux.HandleFunc("PUT /teams/{team}/status", s.Teams.HandlePutStatus)

	mux.HandleFunc("POST /teams/{team}/events", s.Events.HandleEvent)
	mux.HandleFunc("POST /teams/{team}/enqueue", s.Events.HandleEnqueue)
	mux.HandleFunc("GET /activity", s.Events.HandleActivity)
	mux.HandleFunc("GET /history", s.Events.HandleHistory)

	mux.HandleFunc("GET /teams/{team}/stream", s.Stream.HandleStream)

	mux.HandleFunc("POST /goals/{goal}", s.Goals.HandleGoal)
	mux.HandleFunc("POST /workflows", s.Goals.HandleWorkflow)
}
