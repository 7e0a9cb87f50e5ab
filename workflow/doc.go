// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 workflow 提供基于有向图的工作流定义与执行引擎。

# 定义

Definition 由 nodes 与 edges 组成，可从 JSON 或 YAML 加载并保存。
节点类型为 agent 或 tool；节点 config 中同时带有 team 与 event
时，执行该节点会把事件分发给对应团队，否则节点只传递就绪状态。

# 执行

Engine 在构造时校验所有边的端点并计算入度，入度为零的节点按
声明顺序构成初始就绪队列；没有入口节点时构造失败。Run 按先进
先出逐个执行就绪节点，同一时刻只执行一个节点。节点执行后其出边
目标的入度减一，归零即入队。

环上的节点永远不会就绪：默认情况下运行正常结束并在 Skipped 中
列出这些节点；使用 WithStrict 时构造阶段直接返回 ErrCycle。
*/
package workflow
