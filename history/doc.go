// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 history 持久化每次团队分发的 {team, event_type, payload, result}，
供运维通过 /history 回看。

Store 基于 GORM，经 internal/database.PoolManager 访问 PostgreSQL、
MySQL 或纯 Go SQLite；表结构由 internal/migration 管理，SQLite 部署
也可以调用 AutoMigrate。写入走 WithTransactionRetry，死锁与序列化
失败会按指数退避重试。

MongoStore 是 database.driver 为 mongodb 时的替代实现：记录写入
event_history 集合，id 由 counters 集合的原子自增生成，排序语义与
SQL 存储一致；EnsureIndexes 创建与迁移脚本等价的索引。
*/
package history
