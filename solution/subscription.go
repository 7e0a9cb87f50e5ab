package solution

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BaSui01/teamflow/types"
	"go.uber.org/zap"
)

// 广播消息类型
const (
	MessageActivity = "activity"
	MessageStatus   = "status"
)

// ErrSubscriptionClosed 订阅已取消
var ErrSubscriptionClosed = errors.New("subscription closed")

// Message 推送给订阅者的消息
type Message struct {
	Type   string        `json:"type"`
	Event  *types.Event  `json:"event,omitempty"`
	Result *types.Result `json:"result,omitempty"`
	Status string        `json:"status,omitempty"`
}

// Subscription 单个消费者的有界消息队列
type Subscription struct {
	team    string
	ch      chan Message
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64
}

func newSubscription(team string, buffer int) *Subscription {
	return &Subscription{
		team: team,
		ch:   make(chan Message, buffer),
		done: make(chan struct{}),
	}
}

// Team 返回订阅的团队
func (s *Subscription) Team() string { return s.team }

// C 返回消息通道。取消订阅后通道不会关闭，用 Done 判断。
func (s *Subscription) C() <-chan Message { return s.ch }

// Done 在取消订阅后关闭
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Dropped 返回因队列满而丢弃的消息数
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Next 等待下一条消息，最长 timeout。超时返回 ok=false 与 nil 错误，
// 便于消费方在轮询间隙检查取消。已缓冲的消息在取消订阅后仍可读出。
func (s *Subscription) Next(ctx context.Context, timeout time.Duration) (Message, bool, error) {
	select {
	case m := <-s.ch:
		return m, true, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case m := <-s.ch:
		return m, true, nil
	case <-s.done:
		return Message{}, false, ErrSubscriptionClosed
	case <-ctx.Done():
		return Message{}, false, ctx.Err()
	case <-timer.C:
		return Message{}, false, nil
	}
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.done) })
}

// Subscribe 为团队创建一个新的订阅者队列
func (o *Orchestrator) Subscribe(teamName string) *Subscription {
	s := newSubscription(teamName, o.subBuffer)
	o.subsMu.Lock()
	o.subs[teamName] = append(o.subs[teamName], s)
	o.subsMu.Unlock()
	return s
}

// Unsubscribe 移除订阅者；重复调用无副作用
func (o *Orchestrator) Unsubscribe(teamName string, sub *Subscription) {
	if sub == nil {
		return
	}
	o.subsMu.Lock()
	list := o.subs[teamName]
	for i, s := range list {
		if s == sub {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(o.subs, teamName)
	} else {
		o.subs[teamName] = list
	}
	o.subsMu.Unlock()
	sub.close()
}

// Subscribers 返回团队当前订阅者数量
func (o *Orchestrator) Subscribers(teamName string) int {
	o.subsMu.Lock()
	defer o.subsMu.Unlock()
	return len(o.subs[teamName])
}

// publish 向团队的所有订阅者投递消息。默认队列满即丢弃；
// 阻塞模式下等待空位，受 blockTimeout 与 ctx 约束。
func (o *Orchestrator) publish(ctx context.Context, teamName string, msg Message) {
	o.subsMu.Lock()
	targets := append([]*Subscription(nil), o.subs[teamName]...)
	o.subsMu.Unlock()

	for _, s := range targets {
		if o.deliver(ctx, s, msg) {
			continue
		}
		s.dropped.Add(1)
		o.metrics.RecordSubscriberDrop(teamName)
		o.logger.Debug("subscriber queue full, message dropped",
			zap.String("team", teamName), zap.String("type", msg.Type))
	}
}

func (o *Orchestrator) deliver(ctx context.Context, s *Subscription, msg Message) bool {
	select {
	case <-s.done:
		return true
	case s.ch <- msg:
		return true
	default:
	}
	if !o.blocking {
		return false
	}

	if o.blockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.blockTimeout)
		defer cancel()
	}
	select {
	case s.ch <- msg:
		return true
	case <-s.done:
		return true
	case <-ctx.Done():
		return false
	}
}
