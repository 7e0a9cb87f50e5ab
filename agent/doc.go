// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package agent 定义处理器（agent）契约，以及名字到处理器类的解析。

# 契约

  - Agent      — 立即返回：Run(ctx, payload) (any, error)
  - AsyncAgent — 挂起式：RunAsync(ctx, payload) <-chan Result
  - Skilled / Budgeted — 可选能力：技能声明与预算声明

Handle 统一包装两种形态，调用方通过 Invoke 获得结果，无需区分。

# 解析

Resolver 先查显式注册表（Registry，由发现代码在 init 中填充），
再按命名约定在 Catalog 中查找：命名空间保留，末段按下划线转为驼峰，
例如 operations.dummy_cli_agent → operations.DummyCliAgent。
两者都未命中时返回 types.ErrAgentNotFound；解析出的对象不满足契约时
返回 types.ErrCapabilityMismatch。

# 用量

UsageStore 按类路径累计调用次数与 token 数，供团队编排器执行预算；
TokenEstimator 提供 JSON 长度估算与 tiktoken 估算两种实现。
*/
package agent
