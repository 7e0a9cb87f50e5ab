package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/teamflow/api"
	"github.com/BaSui01/teamflow/solution"
	"github.com/BaSui01/teamflow/team"
	"github.com/BaSui01/teamflow/types"
	"go.uber.org/zap"
)

// =============================================================================
// 👥 团队管理 Handler
// =============================================================================

// TeamHandler 团队注册表与状态接口
type TeamHandler struct {
	orch   *solution.Orchestrator
	logger *zap.Logger
}

// NewTeamHandler 创建团队处理器
func NewTeamHandler(orch *solution.Orchestrator, logger *zap.Logger) *TeamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeamHandler{orch: orch, logger: logger.With(zap.String("handler", "teams"))}
}

// HandleList 列出已注册团队
// @Summary 团队列表
// @Tags 团队
// @Produce json
// @Success 200 {object} Response{data=[]api.TeamInfo}
// @Router /teams [get]
func (h *TeamHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	names := h.orch.Teams()
	out := make([]api.TeamInfo, 0, len(names))
	for _, name := range names {
		if info, ok := h.info(name); ok {
			out = append(out, info)
		}
	}
	WriteSuccess(w, r, out)
}

// HandleAdd 注册团队，配置来自服务端文件或请求体
// @Summary 注册团队
// @Tags 团队
// @Accept json
// @Produce json
// @Param request body api.AddTeamRequest true "团队定义"
// @Success 201 {object} Response{data=api.TeamInfo}
// @Failure 400 {object} Response
// @Failure 409 {object} Response
// @Router /teams [post]
func (h *TeamHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	var req api.AddTeamRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrCodeInvalidRequest, "name is required", h.logger)
		return
	}
	if (req.Path == "") == (len(req.Config) == 0) {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrCodeInvalidRequest, "exactly one of path or config is required", h.logger)
		return
	}

	var err error
	if req.Path != "" {
		err = h.orch.AddTeamFromFile(req.Name, req.Path)
	} else {
		var cfg *team.Config
		cfg, err = team.ParseConfig(req.Config, "json")
		if err == nil {
			err = h.orch.AddTeamFromConfig(req.Name, cfg)
		}
	}
	if err != nil {
		WriteErrorFrom(w, r, err, h.logger)
		return
	}

	info, _ := h.info(req.Name)
	WriteJSON(w, http.StatusCreated, Response{
		Success:   true,
		Data:      info,
		Timestamp: time.Now(),
		RequestID: requestID(r),
	})
}

// HandleRemove 注销团队
// @Summary 注销团队
// @Tags 团队
// @Param team path string true "团队名"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /teams/{team} [delete]
func (h *TeamHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("team")
	if err := h.orch.RemoveTeam(name); err != nil {
		WriteErrorFrom(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, map[string]string{"team": name})
}

// HandleReload 从记录的配置文件重建团队
// @Summary 重载团队
// @Tags 团队
// @Param team path string true "团队名"
// @Success 200 {object} Response{data=api.TeamInfo}
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /teams/{team}/reload [post]
func (h *TeamHandler) HandleReload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("team")
	if err := h.orch.ReloadTeam(name); err != nil {
		WriteErrorFrom(w, r, err, h.logger)
		return
	}
	info, _ := h.info(name)
	WriteSuccess(w, r, info)
}

// HandleGetStatus 返回团队最近一次上报的状态
// @Summary 团队状态
// @Tags 团队
// @Param team path string true "团队名"
// @Success 200 {object} Response{data=api.StatusResponse}
// @Failure 404 {object} Response
// @Router /teams/{team}/status [get]
func (h *TeamHandler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("team")
	status, ok := h.orch.GetStatus(name)
	if !ok {
		WriteErrorMessage(w, r, http.StatusNotFound, types.ErrCodeNotFound, "no status reported for team "+name, h.logger)
		return
	}
	WriteSuccess(w, r, api.StatusResponse{Team: name, Status: status})
}

// HandlePutStatus 上报团队状态并广播给订阅者
// @Summary 上报团队状态
// @Tags 团队
// @Accept json
// @Param team path string true "团队名"
// @Param request body api.StatusRequest true "状态"
// @Success 200 {object} Response{data=api.StatusResponse}
// @Router /teams/{team}/status [put]
func (h *TeamHandler) HandlePutStatus(w http.ResponseWriter, r *http.Request) {
	var req api.StatusRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Status == "" {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrCodeInvalidRequest, "status is required", h.logger)
		return
	}
	name := r.PathValue("team")
	h.orch.ReportStatus(name, req.Status)
	WriteSuccess(w, r, api.StatusResponse{Team: name, Status: req.Status})
}

func (h *TeamHandler) info(name string) (api.TeamInfo, bool) {
	t, ok := h.orch.Team(name)
	if !ok {
		return api.TeamInfo{}, false
	}
	status, _ := h.orch.GetStatus(name)
	return api.TeamInfo{Name: name, Agents: t.Agents(), Status: status}, true
}
