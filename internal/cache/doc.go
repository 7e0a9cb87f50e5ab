// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 管理 teamflow 共享的 Redis 连接。

# 概述

Manager 负责连接生命周期：初始化时 PING 校验、后台定时健康检查、
优雅关闭。RedisBus、RedisUsageStore 通过 Client() 直接使用底层客户端；
事件记忆的 Redis 后端使用 AppendJSON / TailJSON 列表操作。

# 核心类型

  - Manager：连接管理器，提供 Client/Ping/Close 与 JSON 列表读写。
  - Config：地址、密码、连接池大小与健康检查间隔；ConfigFrom 由全局配置构造。
*/
package cache
