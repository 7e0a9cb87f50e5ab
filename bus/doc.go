/*
Package bus 提供主题发布/订阅事件总线。

三种实现共享同一契约：

  - SyncBus  — 在发布者 goroutine 上按注册顺序依次调用订阅者
  - AsyncBus — 每个订阅者一个 goroutine，Publish 等待全部结束（join）
  - RedisBus — 经 Redis Pub/Sub 跨进程传递，接收端按本地规则扇出

处理器返回的错误或 panic 只会被记录，不影响同一次发布中的其他处理器，
也不会传回发布者。没有订阅者的主题发布为静默空操作。
*/
package bus
