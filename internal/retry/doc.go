// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package retry 提供指数退避重试。

Backoff 按 Policy 计算 initial * multiplier^(n-1) 的等待时间，上限为
MaxDelay，可选 ±25% 抖动；ctx 结束时立即返回。用 Permanent 包装的错误
不会被重试。metrics.Pusher 用它重试 Pushgateway 推送。
*/
package retry
