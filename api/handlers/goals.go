package handlers

import (
	"net/http"
	"strconv"

	"github.com/BaSui01/teamflow/api"
	"github.com/BaSui01/teamflow/solution"
	"github.com/BaSui01/teamflow/types"
	"github.com/BaSui01/teamflow/workflow"
	"go.uber.org/zap"
)

// =============================================================================
// 🎯 目标与工作流 Handler
// =============================================================================

// GoalHandler 目标规划与图工作流执行
type GoalHandler struct {
	orch   *solution.Orchestrator
	logger *zap.Logger
}

// NewGoalHandler 创建目标处理器
func NewGoalHandler(orch *solution.Orchestrator, logger *zap.Logger) *GoalHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GoalHandler{orch: orch, logger: logger.With(zap.String("handler", "goals"))}
}

// HandleGoal 执行目标；dry_run=true 时只返回计划步骤
// @Summary 执行目标
// @Tags 目标
// @Produce json
// @Param goal path string true "目标名"
// @Param dry_run query bool false "只规划不分发"
// @Success 200 {object} Response{data=solution.GoalResult}
// @Failure 501 {object} Response "未配置规划表"
// @Router /goals/{goal} [post]
func (h *GoalHandler) HandleGoal(w http.ResponseWriter, r *http.Request) {
	goal := r.PathValue("goal")

	dryRun := false
	if raw := r.URL.Query().Get("dry_run"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrCodeInvalidRequest, "dry_run must be a boolean", h.logger)
			return
		}
		dryRun = v
	}

	var (
		res solution.GoalResult
		err error
	)
	if dryRun {
		res, err = h.orch.PlanGoal(goal)
	} else {
		res, err = h.orch.ExecuteGoal(r.Context(), goal)
	}
	if err != nil {
		WriteErrorFrom(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, res)
}

// HandleWorkflow 执行图工作流，定义来自服务端文件或请求体
// @Summary 执行工作流
// @Tags 工作流
// @Accept json
// @Produce json
// @Param request body api.WorkflowRequest true "工作流"
// @Success 200 {object} Response{data=workflow.Result}
// @Failure 400 {object} Response
// @Router /workflows [post]
func (h *GoalHandler) HandleWorkflow(w http.ResponseWriter, r *http.Request) {
	var req api.WorkflowRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if (req.Path == "") == (len(req.Definition) == 0) {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrCodeInvalidRequest, "exactly one of path or definition is required", h.logger)
		return
	}

	var opts []workflow.Option
	if req.Strict {
		opts = append(opts, workflow.WithStrict())
	}

	var (
		res workflow.Result
		err error
	)
	if req.Path != "" {
		res, err = h.orch.ExecuteWorkflowFile(r.Context(), req.Path, opts...)
	} else {
		var def *workflow.Definition
		def, err = workflow.ParseDefinition(req.Definition, "json")
		if err == nil {
			res, err = h.orch.ExecuteWorkflow(r.Context(), def, opts...)
		}
	}
	if err != nil {
		WriteErrorFrom(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, res)
}
