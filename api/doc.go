// Package api 定义 TeamFlow HTTP API 的请求与响应类型。
//
// # API 概览
//
// TeamFlow 通过 REST 接口暴露解决方案编排器：
//   - POST   /teams/{team}/events   同步分发事件
//   - POST   /teams/{team}/enqueue  经准入队列异步分发并等待结果
//   - GET    /teams                 列出团队
//   - POST   /teams                 注册团队（配置文件路径或内联配置）
//   - DELETE /teams/{team}          注销团队
//   - POST   /teams/{team}/reload   从配置文件重载团队
//   - GET|PUT /teams/{team}/status  查询 / 上报团队状态
//   - GET    /teams/{team}/stream   WebSocket 实时活动与状态推送
//   - GET    /activity              最近活动日志
//   - GET    /history               持久化事件历史
//   - POST   /goals/{goal}          执行目标（?dry_run=true 仅预演）
//   - POST   /workflows             执行图工作流
//   - GET    /health, /ready        健康检查
//
// # 认证
//
// 配置了 API Key 时请求需携带 X-API-Key 头；配置了 JWT 密钥时需携带
// Authorization: Bearer <token>。健康检查端点不需要认证。
//
// # 基础地址
//
//	http://localhost:8080
package api
