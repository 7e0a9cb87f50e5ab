// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的编排指标采集能力。

# 核心类型

  - Collector：通过 promauto 注册到默认 Registry，覆盖 HTTP 请求、
    团队分发（按 team/status）、订阅者丢弃、准入队列、工作流与
    目标执行、历史库查询以及 agent 用量 gauge。
  - Pusher：使用独立 Registry，把 agent_loop_count 与
    agent_tokens_used 推送到 Pushgateway，适合短生命周期进程。

Collector 与 Pusher 都实现 ReportUsage(ctx, class, loops, tokens)，
可以直接作为团队编排器的用量上报器。上报失败只返回错误，
是否忽略由调用方决定。
*/
package metrics
