// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理事件历史库（event_history 表）的 Schema 迁移，
支持 PostgreSQL、MySQL 与 SQLite，基于 golang-migrate 实现。

# 概述

各方言的 SQL 迁移文件通过 embed.FS 内嵌在二进制中，由 iofs 源驱动
交给 golang-migrate 执行。SQLite 使用纯 Go 驱动（驱动名 "sqlite"），
与 history 包的 gorm 方言共用同一个数据库文件，无需 cgo。

# 核心类型

  - Migrator：Up/Down/DownAll/Steps/Goto/Force/Version/Status/Info/Close。
  - DefaultMigrator：Migrator 的默认实现，ctx 取消时请求优雅停止。
  - CLI：`teamflow migrate <cmd>` 的格式化输出层，Run 按子命令分发。
  - NewMigratorFromConfig / NewMigratorFromDatabaseConfig / NewMigratorFromURL：
    从应用配置或连接串创建迁移器。
*/
package migration
