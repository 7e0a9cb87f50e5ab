// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 team 实现单个团队的编排：解析并校验团队配置，按参与者实例化
agent，把事件按类型分发给对应 agent，并执行循环与 token 预算。

# 配置

团队配置为 JSON 或 YAML，先经固定 JSON Schema 校验结构，再执行
responsibilities 白名单检查。没有 name 的参与者被跳过，其余
config 键透传给 agent 工厂。

# 分发

HandleEvent 的处理顺序：

 1. 未知事件类型返回 ignored，不产生任何副作用；
 2. 配置了 memory 时按事件类型保存 payload；
 3. 注册了 payload Schema 时先做强制转换，失败返回 invalid；
 4. 按 agent 类累加用量，超出预算返回 terminated，原因此后固定；
 5. 调用 agent（立即或挂起式）并返回 done。

用量上报是尽力而为的，失败只记录日志。agent 自身的错误作为
Go error 返回，其余按事件的状况都编码在 types.Result 中。
*/
package team
