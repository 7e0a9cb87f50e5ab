// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package solution 实现解决方案编排器：团队注册表与事件入口。

# 注册表

AddTeam / AddTeamFromFile / RemoveTeam 维护 名字 → 团队编排器 的映射。
从文件加载的团队可以 ReloadTeam，WatchTeams 在文件变化时自动重载；
新配置构建失败时保留旧团队。

# 分发

HandleEvent 把事件交给团队，成功后依次写入内存历史、持久化历史
（history.Store）与活动日志（activity.Logger），并向订阅者广播。
未知团队返回 unknown_team 状态，不产生任何记录。协作方的写入失败
只记日志，不影响分发结果。

Submit / EnqueueEvent 经过令牌桶限流与有界工作池，提供背压。

# 订阅

Subscribe 返回有界队列。默认队列满即丢弃并计数；WithBlockingFanout
让发布方在超时内等待空位。

# 目标与工作流

ExecuteGoal 按规划表依次执行步骤，PlanGoal 只预演；ScheduleGoal 用
cron 表达式定时执行目标。ExecuteWorkflow 以 HandleEvent 作为分发函数
运行图工作流。
*/
package solution
