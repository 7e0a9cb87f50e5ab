package api

import (
	"encoding/json"

	"github.com/BaSui01/teamflow/types"
)

// =============================================================================
// 事件类型
// =============================================================================

// EventRequest 表示发往团队的事件。
// @Description 事件分发请求结构
type EventRequest struct {
	// 事件 ID，为空时由服务端生成
	ID string `json:"id,omitempty" example:"5f0c6b9e-5d0a-4b7e-9a53-1d2b1b8f7c11"`
	// 事件类型，决定由哪个 agent 处理
	Type string `json:"type" example:"lead_created" binding:"required"`
	// 事件负载
	Payload map[string]any `json:"payload,omitempty"`
}

// Event 转换为内部事件
func (r EventRequest) Event() types.Event {
	ev := types.NewEvent(r.Type, r.Payload)
	ev.ID = r.ID
	return ev
}

// =============================================================================
// 团队类型
// =============================================================================

// AddTeamRequest 表示注册团队的请求。Path 与 Config 二选一。
// @Description 团队注册请求结构
type AddTeamRequest struct {
	// 团队名称
	Name string `json:"name" example:"sales" binding:"required"`
	// 服务端可读的团队配置文件路径（支持重载）
	Path string `json:"path,omitempty" example:"/etc/teamflow/teams/sales.yaml"`
	// 内联团队配置文档
	Config json.RawMessage `json:"config,omitempty" swaggertype:"object"`
}

// TeamInfo 描述已注册的团队
// @Description 团队信息
type TeamInfo struct {
	Name   string   `json:"name" example:"sales"`
	Agents []string `json:"agents"`
	Status string   `json:"status,omitempty" example:"running"`
}

// StatusRequest 上报团队生命周期状态
// @Description 团队状态上报请求
type StatusRequest struct {
	Status string `json:"status" example:"running" binding:"required"`
}

// StatusResponse 团队的最新状态
// @Description 团队状态
type StatusResponse struct {
	Team   string `json:"team" example:"sales"`
	Status string `json:"status" example:"running"`
}

// =============================================================================
// 工作流类型
// =============================================================================

// WorkflowRequest 执行工作流的请求。Path 与 Definition 二选一。
// @Description 工作流执行请求结构
type WorkflowRequest struct {
	// 服务端可读的工作流定义文件
	Path string `json:"path,omitempty" example:"/etc/teamflow/workflows/onboarding.yaml"`
	// 内联工作流定义（JSON）
	Definition json.RawMessage `json:"definition,omitempty" swaggertype:"object"`
	// 拒绝含有永远无法就绪节点的图
	Strict bool `json:"strict,omitempty"`
}
