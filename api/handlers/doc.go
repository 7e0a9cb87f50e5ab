// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 TeamFlow HTTP API 的请求处理器实现。

# 概述

handlers 包把 solution 编排器暴露为 HTTP 端点：事件分发与排队、
团队注册表管理、状态上报、目标与工作流执行、活动与历史查询，
以及基于 WebSocket 的团队消息流。所有 Handler 均遵循标准 net/http 接口，
路由使用 Go 1.22 的方法与路径参数模式。

# 核心类型

  - Set            — 全部处理器的集合，Register 挂载路由
  - TeamHandler    — 团队列表、注册、注销、重载与状态
  - EventHandler   — 同步分发、排队分发、活动与历史查询
  - GoalHandler    — 目标执行（支持 dry_run）与图工作流
  - StreamHandler  — /teams/{team}/stream WebSocket 推送
  - HealthHandler  — /health 与 /healthz，可注册数据库、Redis 检查
  - Response       — 统一 JSON 响应结构（success + data + error + timestamp）

# 错误映射

WriteErrorFrom 把编排层错误归类为 HTTP 状态：NOT_FOUND → 404，
INVALID_CONFIG / INVALID_REQUEST / 工作流定义错误 → 400，CONFLICT → 409，
CAPABILITY_MISMATCH → 422，准入限流 → 429，已关闭 → 503，
未配置规划表 → 501，超时 → 504。未知团队、未注册事件类型等
分发结果不是错误，以 200 返回并由 status 字段区分。
*/
package handlers
