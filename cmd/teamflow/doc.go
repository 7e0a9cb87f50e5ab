// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 TeamFlow 服务端程序入口。

# 概述

cmd/teamflow 是 TeamFlow 事件编排引擎的可执行入口，提供 HTTP API 服务、
历史库迁移、健康检查和版本查询等子命令。程序支持 YAML 配置文件加载、
结构化日志（zap）、Prometheus 指标采集、OpenTelemetry 追踪以及团队
配置文件热重载。

# 核心类型

  - Server      — 主服务器，装配事件总线、编排器、历史库并管理 API/Metrics 双端口
  - Middleware  — HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve（启动服务）、migrate（历史库迁移）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、Metrics、
    OTelTracing、CORS、JWTAuth、APIKeyAuth、RateLimiter（按主体或 IP）
  - 启动装配：加载 teams 目录、goal 计划与 cron 调度，监听团队文件变更
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号监听 → 停止后台任务 → 关闭 HTTP → 排空编排器 → 关闭存储
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
