// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 teamflow 编排引擎的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 bus、agent、team、
solution、workflow 等上层模块提供统一的类型契约。

# 核心类型

  - Event             — 外部事件（type + payload，可选 id）
  - Result / Status   — 分发结果（done / ignored / invalid / terminated 等）
  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码与 Retryable 标记

# 错误工具链

哨兵错误 ErrInvalidConfig、ErrAgentNotFound、ErrTeamNotFound、
ErrCapabilityMismatch 可用 errors.Is 匹配；Errorf 基于哨兵派生
带上下文的错误，GetErrorCode / IsErrorCode / HTTPStatusOf 用于分类。
*/
package types
