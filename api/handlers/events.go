package handlers

import (
	"net/http"
	"strconv"

	"github.com/BaSui01/teamflow/api"
	"github.com/BaSui01/teamflow/history"
	"github.com/BaSui01/teamflow/solution"
	"github.com/BaSui01/teamflow/types"
	"go.uber.org/zap"
)

const (
	defaultActivityLimit = 50
	maxQueryLimit        = 1000
)

// =============================================================================
// 📨 事件分发 Handler
// =============================================================================

// EventHandler 事件分发与活动/历史查询
type EventHandler struct {
	orch   *solution.Orchestrator
	logger *zap.Logger
}

// NewEventHandler 创建事件处理器
func NewEventHandler(orch *solution.Orchestrator, logger *zap.Logger) *EventHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventHandler{orch: orch, logger: logger.With(zap.String("handler", "events"))}
}

// HandleEvent 同步分发事件。未知团队等结构化结果以 200 返回，由 status 区分。
// @Summary 分发事件
// @Tags 事件
// @Accept json
// @Produce json
// @Param team path string true "团队名"
// @Param request body api.EventRequest true "事件"
// @Success 200 {object} Response{data=types.Result}
// @Failure 400 {object} Response
// @Router /teams/{team}/events [post]
func (h *EventHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	ev, ok := h.decodeEvent(w, r)
	if !ok {
		return
	}
	res, err := h.orch.HandleEvent(r.Context(), r.PathValue("team"), ev)
	if err != nil {
		WriteErrorFrom(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, res)
}

// HandleEnqueue 经准入池分发事件，受并发上限与速率限制约束
// @Summary 排队分发事件
// @Tags 事件
// @Accept json
// @Produce json
// @Param team path string true "团队名"
// @Param request body api.EventRequest true "事件"
// @Success 200 {object} Response{data=types.Result}
// @Failure 429 {object} Response
// @Failure 503 {object} Response
// @Router /teams/{team}/enqueue [post]
func (h *EventHandler) HandleEnqueue(w http.ResponseWriter, r *http.Request) {
	ev, ok := h.decodeEvent(w, r)
	if !ok {
		return
	}
	res, err := h.orch.EnqueueEvent(r.Context(), r.PathValue("team"), ev)
	if err != nil {
		WriteErrorFrom(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, res)
}

// HandleActivity 返回最近的活动日志
// @Summary 最近活动
// @Tags 事件
// @Param limit query int false "条数" default(50)
// @Success 200 {object} Response{data=[]activity.Entry}
// @Router /activity [get]
func (h *EventHandler) HandleActivity(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", defaultActivityLimit, h.logger)
	if !ok {
		return
	}
	entries, err := h.orch.GetRecentActivity(limit)
	if err != nil {
		WriteErrorFrom(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, entries)
}

// HandleHistory 分页查询持久化历史
// @Summary 事件历史
// @Tags 事件
// @Param limit query int false "条数" default(50)
// @Param offset query int false "偏移"
// @Param team query string false "团队过滤"
// @Param event_type query string false "事件类型过滤"
// @Success 200 {object} Response{data=[]history.Record}
// @Router /history [get]
func (h *EventHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", defaultActivityLimit, h.logger)
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset", 0, h.logger)
	if !ok {
		return
	}
	q := r.URL.Query()
	records, err := h.orch.FetchHistory(r.Context(), history.Query{
		Limit:     limit,
		Offset:    offset,
		Team:      q.Get("team"),
		EventType: q.Get("event_type"),
	})
	if err != nil {
		WriteErrorFrom(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, records)
}

func (h *EventHandler) decodeEvent(w http.ResponseWriter, r *http.Request) (types.Event, bool) {
	var req api.EventRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return types.Event{}, false
	}
	if req.Type == "" {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrCodeInvalidRequest, "event type is required", h.logger)
		return types.Event{}, false
	}
	return req.Event(), true
}

// queryInt 解析非负整数查询参数，limit 截断到 maxQueryLimit
func queryInt(w http.ResponseWriter, r *http.Request, key string, def int, logger *zap.Logger) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrCodeInvalidRequest, key+" must be a non-negative integer", logger)
		return 0, false
	}
	if key == "limit" && n > maxQueryLimit {
		n = maxQueryLimit
	}
	return n, true
}
